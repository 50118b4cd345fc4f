package marketplace

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"giftwatch/pkg/types"
)

func newMRKTTestServer(t *testing.T, handler http.HandlerFunc) *MRKTClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	tokens := NewTokenStore(map[types.Marketplace]string{types.MRKT: "raw-token"})
	return NewMRKTClient(srv.URL, tokens, discardLogger())
}

func TestMRKTListNewest(t *testing.T) {
	t.Parallel()

	var gotAuth string
	var body map[string]any
	client := newMRKTTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/gifts/saling" {
			t.Errorf("path = %q", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"gifts": []any{
				map[string]any{"id": "abc-def", "collectionName": "Astral Shard", "price": 6.0},
			},
		})
	})

	items, err := client.ListNewest(context.Background(), 50, types.SortLatest)
	if err != nil {
		t.Fatalf("ListNewest: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items", len(items))
	}
	if gotAuth != "raw-token" {
		t.Errorf("auth header = %q, want raw token without prefix", gotAuth)
	}
	if body["count"].(float64) != 20 {
		t.Errorf("count = %v, want clamped to 20", body["count"])
	}
	if _, hasOrdering := body["ordering"]; hasOrdering {
		t.Error("latest sort must omit ordering (venue sorts by time)")
	}
	if body["req"] != "all" {
		t.Errorf("req = %v, want all for unfiltered search", body["req"])
	}
}

func TestMRKTHashExtraction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		item RawItem
		want string
	}{
		{
			name: "id with dashes stripped",
			item: RawItem{"id": "01234567-89ab-cdef-0123-456789abcdef"},
			want: "0123456789abcdef0123456789abcdef",
		},
		{
			name: "fallback field",
			item: RawItem{"id": "short", "hashId": "abcdefabcdefabcdefabcdefabcdefab"},
			want: "abcdefabcdefabcdefabcdefabcdefab",
		},
		{
			name: "uppercase normalized",
			item: RawItem{"id": "ABCDEFABCDEFABCDEFABCDEFABCDEFAB"},
			want: "abcdefabcdefabcdefabcdefabcdefab",
		},
		{
			name: "no valid hash",
			item: RawItem{"id": "42", "token": "zzz"},
			want: "",
		},
		{
			name: "pre-set hash wins",
			item: RawItem{"mrkt_hash": "11111111111111111111111111111111", "id": "22222222222222222222222222222222"},
			want: "11111111111111111111111111111111",
		},
	}

	client := &MRKTClient{logger: discardLogger()}
	for _, tt := range tests {
		client.fillHash(tt.item)
		if got := Str(tt.item, "mrkt_hash"); got != tt.want {
			t.Errorf("%s: mrkt_hash = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestMRKTModelFloor(t *testing.T) {
	t.Parallel()

	var body map[string]any
	client := newMRKTTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"gifts": []any{
				map[string]any{"id": "1", "tonPrice": 8.0},
				map[string]any{"id": "2", "price": 3.25},
			},
		})
	})

	floor, err := client.ModelFloor(context.Background(), "Astral Shard", "Onyx (1.5%)")
	if err != nil {
		t.Fatalf("ModelFloor: %v", err)
	}
	if floor == nil || floor.String() != "3.25" {
		t.Errorf("floor = %v, want 3.25", floor)
	}

	models := body["modelNames"].([]any)
	if len(models) != 1 || models[0] != "onyx" {
		t.Errorf("modelNames = %v, want rarity suffix stripped", models)
	}
	if body["ordering"] != "Price" {
		t.Errorf("ordering = %v, want Price", body["ordering"])
	}
}

func TestMRKTTransientError(t *testing.T) {
	t.Parallel()

	attempts := 0
	client := newMRKTTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.ListNewest(context.Background(), 5, types.SortLatest)
	if !IsTransient(err) {
		t.Errorf("expected transient error, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3 (retry twice then give up)", attempts)
	}
}
