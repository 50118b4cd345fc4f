// Package filter decides which users get notified about a listing.
package filter

import (
	"context"
	"log/slog"

	"giftwatch/internal/userconf"
	"giftwatch/pkg/types"
)

// Matcher evaluates listings against per-user rules. Rule lookups go
// through the userconf layer; a failing lookup silences that user for the
// current listing but never blocks the others.
type Matcher struct {
	store  userconf.Store
	logger *slog.Logger
}

// New creates a matcher reading rules from store.
func New(store userconf.Store, logger *slog.Logger) *Matcher {
	return &Matcher{store: store, logger: logger.With("component", "filter")}
}

// Recipients returns the IDs of every user whose rules match the listing.
func (m *Matcher) Recipients(ctx context.Context, l types.Listing) []int64 {
	users, err := m.store.UsersForMarketplace(ctx, l.Marketplace)
	if err != nil {
		m.logger.Error("subscriber lookup failed", "marketplace", l.Marketplace, "error", err)
		return nil
	}

	var matched []int64
	for _, userID := range users {
		rules, err := m.store.RulesForUser(ctx, userID)
		if err != nil {
			m.logger.Warn("rule lookup failed, skipping user", "user_id", userID, "error", err)
			continue
		}
		for _, r := range rules {
			if Matches(l, r) {
				matched = append(matched, userID)
				break
			}
		}
	}
	return matched
}

// Matches reports whether one rule covers the listing. Name comparison is
// case-insensitive with "(...)" rarity suffixes stripped on both sides.
// A listing with an unknown model or backdrop only passes the wildcard.
func Matches(l types.Listing, r types.Rule) bool {
	if !r.AllowsMarketplace(l.Marketplace) {
		return false
	}
	if !nameListMatches(r.Collections, l.CollectionName, false) {
		return false
	}
	if !nameListMatches(r.Models, l.ModelName, l.ModelName == types.ModelUnknown) {
		return false
	}
	if !nameListMatches(r.Backdrops, l.BackdropName, l.BackdropName == "") {
		return false
	}
	if r.MinPrice != nil && l.PriceTON.LessThan(*r.MinPrice) {
		return false
	}
	if r.MaxPrice != nil && l.PriceTON.GreaterThan(*r.MaxPrice) {
		return false
	}
	return true
}

// nameListMatches checks one rule list against a listing value. An empty
// list or an ANY element is the wildcard. unknown marks a listing value
// that can only ever pass the wildcard.
func nameListMatches(list []string, value string, unknown bool) bool {
	if len(list) == 0 {
		return true
	}
	cleaned := types.CleanName(value)
	for _, want := range list {
		if want == types.Any {
			return true
		}
		if unknown {
			continue
		}
		if types.CleanName(want) == cleaned {
			return true
		}
	}
	return false
}
