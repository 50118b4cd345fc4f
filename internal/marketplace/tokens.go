package marketplace

import (
	"context"
	"sync"

	"giftwatch/pkg/types"
)

// TokenStore holds the current auth token per venue. Adapters read the
// token fresh on every request, so a refresh takes effect immediately
// without rebuilding clients.
type TokenStore struct {
	mu     sync.RWMutex
	tokens map[types.Marketplace]string
}

// NewTokenStore creates a store seeded with the given tokens. Venues with
// an empty token are treated as unconfigured.
func NewTokenStore(tokens map[types.Marketplace]string) *TokenStore {
	s := &TokenStore{tokens: make(map[types.Marketplace]string, len(tokens))}
	for mp, tok := range tokens {
		s.tokens[mp] = tok
	}
	return s
}

// Get returns the current token for a venue, empty when unconfigured.
func (s *TokenStore) Get(mp types.Marketplace) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens[mp]
}

// Set replaces the token for a venue.
func (s *TokenStore) Set(mp types.Marketplace, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[mp] = token
}

// Has reports whether a venue has a non-empty token.
func (s *TokenStore) Has(mp types.Marketplace) bool {
	return s.Get(mp) != ""
}

// TokenProvider obtains a fresh auth token after the venue rejects the
// current one. Token acquisition itself (Telegram web-view handshakes)
// lives outside this process; the provider is the seam to it.
type TokenProvider interface {
	Refresh(ctx context.Context, mp types.Marketplace) (string, error)
}

// StaticTokens is a TokenProvider that can never refresh: Refresh returns
// the stored token unchanged. Useful when tokens are long-lived or managed
// by an operator.
type StaticTokens struct {
	Store *TokenStore
}

func (s StaticTokens) Refresh(_ context.Context, mp types.Marketplace) (string, error) {
	return s.Store.Get(mp), nil
}
