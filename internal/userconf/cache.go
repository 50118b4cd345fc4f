package userconf

import (
	"context"
	"sync"

	"giftwatch/pkg/types"
)

// Cache is a read-through cache over a Store. The dispatcher hits the
// store once per listing per subscriber without it; with it, repeated
// lookups within one filter generation are free. Invalidate drops
// everything and is called on every filter-change event.
type Cache struct {
	store Store

	mu    sync.RWMutex
	users map[types.Marketplace][]int64
	rules map[int64][]types.Rule
}

// NewCache wraps a store.
func NewCache(store Store) *Cache {
	return &Cache{
		store: store,
		users: make(map[types.Marketplace][]int64),
		rules: make(map[int64][]types.Rule),
	}
}

func (c *Cache) UsersForMarketplace(ctx context.Context, mp types.Marketplace) ([]int64, error) {
	c.mu.RLock()
	cached, ok := c.users[mp]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	users, err := c.store.UsersForMarketplace(ctx, mp)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.users[mp] = users
	c.mu.Unlock()
	return users, nil
}

func (c *Cache) RulesForUser(ctx context.Context, userID int64) ([]types.Rule, error) {
	c.mu.RLock()
	cached, ok := c.rules[userID]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	rules, err := c.store.RulesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.rules[userID] = rules
	c.mu.Unlock()
	return rules, nil
}

// Invalidate drops all cached lookups.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users = make(map[types.Marketplace][]int64)
	c.rules = make(map[int64][]types.Rule)
}
