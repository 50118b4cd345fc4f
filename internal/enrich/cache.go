package enrich

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"giftwatch/pkg/types"
)

// floorScope distinguishes collection floors from model floors in the cache.
type floorScope string

const (
	scopeGift  floorScope = "gift"
	scopeModel floorScope = "model"
)

type floorKey struct {
	mp         types.Marketplace
	scope      floorScope
	collection string
	model      string
}

type floorEntry struct {
	value   decimal.Decimal
	expires time.Time
}

// FloorCache holds recently fetched floor prices. Values are stored raw
// (no marketplace fee); the fee is applied at output. Only successful
// lookups are cached, so a venue outage never pins a stale miss.
type FloorCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[floorKey]floorEntry
}

// NewFloorCache creates a cache with the given TTL.
func NewFloorCache(ttl time.Duration) *FloorCache {
	return &FloorCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[floorKey]floorEntry),
	}
}

func key(mp types.Marketplace, scope floorScope, collection, model string) floorKey {
	return floorKey{
		mp:         mp,
		scope:      scope,
		collection: types.CleanName(collection),
		model:      types.CleanName(model),
	}
}

// Get returns a fresh cached floor, or false on miss/expiry.
func (c *FloorCache) Get(mp types.Marketplace, scope floorScope, collection, model string) (decimal.Decimal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key(mp, scope, collection, model)
	e, ok := c.entries[k]
	if !ok {
		return decimal.Zero, false
	}
	if c.now().After(e.expires) {
		delete(c.entries, k)
		return decimal.Zero, false
	}
	return e.value, true
}

// Set stores a floor value.
func (c *FloorCache) Set(mp types.Marketplace, scope floorScope, collection, model string, value decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key(mp, scope, collection, model)] = floorEntry{
		value:   value,
		expires: c.now().Add(c.ttl),
	}
}
