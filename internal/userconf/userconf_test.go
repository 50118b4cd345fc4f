package userconf

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"giftwatch/pkg/types"
)

func TestMemoryUsersForMarketplace(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	m.SetRules(1, []types.Rule{{Marketplaces: []types.Marketplace{types.Portals}}})
	m.SetRules(2, []types.Rule{{}}) // all venues
	m.SetRules(3, []types.Rule{{Marketplaces: []types.Marketplace{types.Tonnel}}})

	users, err := m.UsersForMarketplace(context.Background(), types.Portals)
	if err != nil {
		t.Fatalf("UsersForMarketplace: %v", err)
	}
	if len(users) != 2 {
		t.Errorf("got %d users, want 2 (explicit portals + wildcard)", len(users))
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rules.json")
	s, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}

	rules := []types.Rule{{
		Collections:  []string{"Astral Shard"},
		Models:       []string{types.Any},
		Marketplaces: []types.Marketplace{types.Tonnel},
	}}
	if err := s.SetRules(42, rules); err != nil {
		t.Fatalf("SetRules: %v", err)
	}

	// A change event was emitted.
	select {
	case <-s.Changes():
	default:
		t.Error("expected a change signal after SetRules")
	}

	// A fresh store sees the persisted rules.
	reopened, err := OpenFile(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := reopened.RulesForUser(context.Background(), 42)
	if err != nil {
		t.Fatalf("RulesForUser: %v", err)
	}
	if len(got) != 1 || got[0].Collections[0] != "Astral Shard" {
		t.Errorf("rules after reload = %+v", got)
	}
}

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	s, err := OpenFile(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	users, err := s.UsersForMarketplace(context.Background(), types.Portals)
	if err != nil {
		t.Fatalf("UsersForMarketplace: %v", err)
	}
	if len(users) != 0 {
		t.Errorf("expected no users, got %d", len(users))
	}
}

type failingStore struct{ calls int }

func (f *failingStore) UsersForMarketplace(context.Context, types.Marketplace) ([]int64, error) {
	f.calls++
	return []int64{7}, nil
}

func (f *failingStore) RulesForUser(context.Context, int64) ([]types.Rule, error) {
	return nil, errors.New("backend down")
}

func TestCacheHitsAndInvalidation(t *testing.T) {
	t.Parallel()

	backend := &failingStore{}
	c := NewCache(backend)

	for i := 0; i < 3; i++ {
		if _, err := c.UsersForMarketplace(context.Background(), types.Portals); err != nil {
			t.Fatalf("lookup %d: %v", i, err)
		}
	}
	if backend.calls != 1 {
		t.Errorf("backend calls = %d, want 1 (cached)", backend.calls)
	}

	c.Invalidate()
	if _, err := c.UsersForMarketplace(context.Background(), types.Portals); err != nil {
		t.Fatalf("lookup after invalidate: %v", err)
	}
	if backend.calls != 2 {
		t.Errorf("backend calls = %d, want 2 after invalidation", backend.calls)
	}

	// Errors are not cached.
	if _, err := c.RulesForUser(context.Background(), 7); err == nil {
		t.Error("expected backend error to propagate")
	}
}
