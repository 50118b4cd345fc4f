package marketplace

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"giftwatch/pkg/types"
)

func newGetGemsTestServer(t *testing.T, handler http.HandlerFunc) *GetGemsClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	tokens := NewTokenStore(map[types.Marketplace]string{types.GetGems: "api-key"})
	return NewGetGemsClient(srv.URL, tokens, discardLogger())
}

func onSaleItem(name string, nano float64) map[string]any {
	return map[string]any{
		"address": "EQ" + name,
		"name":    name + " #97737",
		"attributes": []any{
			map[string]any{"traitType": "Model", "value": "Whip"},
			map[string]any{"traitType": "Backdrop", "value": "Deep Cyan"},
		},
		"sale":  map[string]any{"fullPrice": nano},
		"image": "https://img.getgems.io/" + name + ".png",
	}
}

func TestGetGemsAnnotate(t *testing.T) {
	t.Parallel()

	var gotAuth string
	client := newGetGemsTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/v1/nfts/offchain/on-sale/gifts" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"success":  true,
			"response": map[string]any{"items": []any{onSaleItem("Cupcake", 1_500_000_000)}},
		})
	})

	items, err := client.ListNewest(context.Background(), 10, types.SortPriceAsc)
	if err != nil {
		t.Fatalf("ListNewest: %v", err)
	}
	if gotAuth != "Bearer api-key" {
		t.Errorf("auth header = %q, want Bearer scheme", gotAuth)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items", len(items))
	}

	item := items[0]
	if Str(item, "name") != "Cupcake" {
		t.Errorf("name = %q, want number suffix split off", Str(item, "name"))
	}
	if Str(item, "gift_number") != "97737" {
		t.Errorf("gift_number = %q", Str(item, "gift_number"))
	}
	if Str(item, "model") != "Whip" {
		t.Errorf("model = %q", Str(item, "model"))
	}
	if Str(item, "backdrop") != "Deep Cyan" {
		t.Errorf("backdrop = %q", Str(item, "backdrop"))
	}
	if p, ok := ParseTON(item["price"]); !ok || p.String() != "1.5" {
		t.Errorf("price = %v, want 1.5 after nano conversion", item["price"])
	}
	if Str(item, "id") != "EQCupcake" {
		t.Errorf("id = %q, want address", Str(item, "id"))
	}
}

func TestGetGemsLatestUsesHistoryFeed(t *testing.T) {
	t.Parallel()

	client := newGetGemsTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/nfts/history/gifts" {
			t.Errorf("path = %q, want history feed for latest sort", r.URL.Path)
		}
		if got := r.URL.Query().Get("types"); got != "putUpForSale" {
			t.Errorf("types = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"response": map[string]any{"items": []any{
				map[string]any{
					"address":  "EQ1",
					"name":     "Cupcake #5",
					"typeData": map[string]any{"priceNano": 2_000_000_000.0},
				},
			}},
		})
	})

	items, err := client.ListNewest(context.Background(), 10, types.SortLatest)
	if err != nil {
		t.Fatalf("ListNewest: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items", len(items))
	}
	if p, ok := ParseTON(items[0]["price"]); !ok || p.String() != "2" {
		t.Errorf("price = %v, want 2", items[0]["price"])
	}
}

func TestGetGemsClientSideSort(t *testing.T) {
	t.Parallel()

	client := newGetGemsTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"response": map[string]any{"items": []any{
				onSaleItem("Mid", 5_000_000_000),
				onSaleItem("Cheap", 1_000_000_000),
				onSaleItem("Rich", 9_000_000_000),
			}},
		})
	})

	items, err := client.ListNewest(context.Background(), 10, types.SortPriceAsc)
	if err != nil {
		t.Fatalf("ListNewest: %v", err)
	}
	if Str(items[0], "name") != "Cheap" || Str(items[2], "name") != "Rich" {
		t.Errorf("items not sorted ascending: %v, %v, %v",
			Str(items[0], "name"), Str(items[1], "name"), Str(items[2], "name"))
	}
}

func TestGetGemsSuccessFalse(t *testing.T) {
	t.Parallel()

	client := newGetGemsTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"success": false})
	})

	if _, err := client.ListNewest(context.Background(), 10, types.SortPriceAsc); err == nil {
		t.Error("expected error for success=false")
	}
}

func TestGetGemsSalesHistoryStub(t *testing.T) {
	t.Parallel()

	client := NewGetGemsClient("http://unused", NewTokenStore(nil), discardLogger())
	sales, err := client.SalesHistory(context.Background(), "Cupcake", "Whip", 5)
	if err != nil {
		t.Fatalf("SalesHistory: %v", err)
	}
	if len(sales) != 0 {
		t.Errorf("stub should return empty slice, got %d", len(sales))
	}
}
