// Package seen implements the per-marketplace dedup memory for the poller.
package seen

import (
	"sync"

	"giftwatch/pkg/types"
)

// Set remembers which composite listing IDs have already been observed per
// marketplace. Memory is bounded: each venue keeps at most cap IDs in
// insertion order, evicting the oldest. Trimming happens lazily once a
// venue grows past twice the cap, so steady-state inserts stay O(1).
type Set struct {
	mu    sync.Mutex
	cap   int
	order map[types.Marketplace][]string
	index map[types.Marketplace]map[string]struct{}
}

// New creates a Set keeping up to cap IDs per marketplace.
func New(cap int) *Set {
	if cap <= 0 {
		cap = 1000
	}
	return &Set{
		cap:   cap,
		order: make(map[types.Marketplace][]string),
		index: make(map[types.Marketplace]map[string]struct{}),
	}
}

// Observe records a composite ID and reports whether it was new.
// A re-observed ID refreshes nothing: eviction order is insertion order.
func (s *Set) Observe(mp types.Marketplace, compositeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.index[mp]
	if idx == nil {
		idx = make(map[string]struct{})
		s.index[mp] = idx
	}
	if _, ok := idx[compositeID]; ok {
		return false
	}
	idx[compositeID] = struct{}{}
	s.order[mp] = append(s.order[mp], compositeID)

	if len(s.order[mp]) > 2*s.cap {
		s.trim(mp)
	}
	return true
}

// trim drops the oldest entries down to cap. Caller holds the lock.
func (s *Set) trim(mp types.Marketplace) {
	order := s.order[mp]
	drop := order[:len(order)-s.cap]
	for _, id := range drop {
		delete(s.index[mp], id)
	}
	kept := make([]string, s.cap)
	copy(kept, order[len(order)-s.cap:])
	s.order[mp] = kept
}

// Len returns how many IDs a venue currently remembers.
func (s *Set) Len(mp types.Marketplace) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order[mp])
}

// Reset forgets everything for every marketplace. Used when user filters
// change and the next sweep must re-baseline.
func (s *Set) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = make(map[types.Marketplace][]string)
	s.index = make(map[types.Marketplace]map[string]struct{})
}
