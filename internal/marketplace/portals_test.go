package marketplace

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"giftwatch/pkg/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newPortalsTestServer(t *testing.T, handler http.HandlerFunc) (*PortalsClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	tokens := NewTokenStore(map[types.Marketplace]string{types.Portals: "init-data"})
	return NewPortalsClient(srv.URL, tokens, discardLogger()), srv
}

func TestPortalsListNewest(t *testing.T) {
	t.Parallel()

	var gotAuth, gotSort, gotStatus, gotLimit string
	client, _ := newPortalsTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		q := r.URL.Query()
		gotSort = q.Get("sort_by")
		gotStatus = q.Get("status")
		gotLimit = q.Get("limit")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"results": []any{
				map[string]any{"id": "111", "name": "Astral Shard", "price": "5.5"},
			},
		})
	})

	items, err := client.ListNewest(context.Background(), 999, types.SortLatest)
	if err != nil {
		t.Fatalf("ListNewest: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if gotAuth != "tma init-data" {
		t.Errorf("auth header = %q, want tma prefix added", gotAuth)
	}
	if gotSort != "listed_at desc" {
		t.Errorf("sort_by = %q", gotSort)
	}
	if gotStatus != "listed" {
		t.Errorf("status = %q, want listed", gotStatus)
	}
	if gotLimit != "50" {
		t.Errorf("limit = %q, want clamped to 50", gotLimit)
	}
}

func TestPortalsAuthPrefixNotDoubled(t *testing.T) {
	t.Parallel()

	var gotAuth string
	client, _ := newPortalsTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"results": []any{}})
	})
	client.tokens.Set(types.Portals, "tma already-prefixed")

	if _, err := client.ListNewest(context.Background(), 10, types.SortLatest); err != nil {
		t.Fatalf("ListNewest: %v", err)
	}
	if gotAuth != "tma already-prefixed" {
		t.Errorf("auth header = %q", gotAuth)
	}
}

func TestPortalsAuthError(t *testing.T) {
	t.Parallel()

	client, _ := newPortalsTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.ListNewest(context.Background(), 10, types.SortLatest)
	if !IsAuth(err) {
		t.Errorf("expected auth error, got %v", err)
	}
}

func TestPortalsNoToken(t *testing.T) {
	t.Parallel()

	client := NewPortalsClient("http://unused", NewTokenStore(nil), discardLogger())
	_, err := client.ListNewest(context.Background(), 10, types.SortLatest)
	if !IsPermanent(err) {
		t.Errorf("expected permanent error without token, got %v", err)
	}
}

func TestPortalsGiftFloor(t *testing.T) {
	t.Parallel()

	client, _ := newPortalsTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("filter_by_collections"); got != "Astral Shard" {
			t.Errorf("filter_by_collections = %q, want title-cased", got)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"results": []any{
				map[string]any{"id": "1", "price": "9.10"},
				map[string]any{"id": "2", "price": "4.20"},
				map[string]any{"id": "3", "price": "0"},
			},
		})
	})

	floor, err := client.GiftFloor(context.Background(), "astral shard")
	if err != nil {
		t.Fatalf("GiftFloor: %v", err)
	}
	if floor == nil || floor.String() != "4.2" {
		t.Errorf("floor = %v, want 4.2", floor)
	}
}

func TestPortalsGetByIDStripsPrefix(t *testing.T) {
	t.Parallel()

	var gotPath string
	client, _ := newPortalsTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"id": "777"})
	})

	item, err := client.GetByID(context.Background(), "gift_777")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if gotPath != "/nfts/777" {
		t.Errorf("path = %q, want /nfts/777", gotPath)
	}
	if Str(item, "id") != "777" {
		t.Errorf("item id = %q", Str(item, "id"))
	}
}
