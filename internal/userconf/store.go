// Package userconf provides access to per-user filter rules.
//
// The monitor treats rule storage as an external collaborator behind the
// Store interface: a lookup of subscribers per marketplace and of rules per
// user. Two implementations live here — an in-memory store for tests and
// embedding, and a crash-safe JSON file store for running stand-alone. A
// read-through cache sits in front of either and is dropped whenever
// filters change.
package userconf

import (
	"context"
	"sync"

	"giftwatch/pkg/types"
)

// Store is the rule source the matcher reads from.
type Store interface {
	// UsersForMarketplace returns the IDs of users with at least one rule
	// covering the given venue.
	UsersForMarketplace(ctx context.Context, mp types.Marketplace) ([]int64, error)

	// RulesForUser returns every rule a user has configured.
	RulesForUser(ctx context.Context, userID int64) ([]types.Rule, error)
}

// Memory is a mutable in-process Store. Safe for concurrent use.
type Memory struct {
	mu    sync.RWMutex
	rules map[int64][]types.Rule
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{rules: make(map[int64][]types.Rule)}
}

// SetRules replaces a user's rules. An empty slice removes the user.
func (m *Memory) SetRules(userID int64, rules []types.Rule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(rules) == 0 {
		delete(m.rules, userID)
		return
	}
	m.rules[userID] = append([]types.Rule(nil), rules...)
}

func (m *Memory) UsersForMarketplace(_ context.Context, mp types.Marketplace) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var users []int64
	for id, rules := range m.rules {
		for _, r := range rules {
			if r.AllowsMarketplace(mp) {
				users = append(users, id)
				break
			}
		}
	}
	return users, nil
}

func (m *Memory) RulesForUser(_ context.Context, userID int64) ([]types.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]types.Rule(nil), m.rules[userID]...), nil
}
