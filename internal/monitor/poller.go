// Package monitor runs the per-marketplace polling loops and the
// supervisor that owns their shared state. Each poller sweeps its
// venue's newest listings on a fixed interval; listings never seen
// before go to the dispatcher.
package monitor

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"giftwatch/internal/marketplace"
	"giftwatch/internal/normalize"
	"giftwatch/internal/seen"
	"giftwatch/internal/userconf"
	"giftwatch/pkg/types"
)

// Enqueuer is where a poller hands off fresh listings. The dispatcher
// implements this.
type Enqueuer interface {
	Enqueue(l types.Listing) bool
}

// Poller sweeps one marketplace. The first sweep after start, enable,
// or a filter reset is a baseline: it marks everything currently listed
// as seen without dispatching, so old listings never alert.
type Poller struct {
	adapter    marketplace.Adapter
	tokens     marketplace.TokenProvider
	tokenStore *marketplace.TokenStore
	store      userconf.Store
	seen       *seen.Set
	out        Enqueuer
	interval   time.Duration
	limit      int
	logger     *slog.Logger

	enabled  atomic.Bool
	baseline atomic.Bool
}

// NewPoller creates a poller for one venue. It starts enabled and in
// baseline mode.
func NewPoller(adapter marketplace.Adapter, tokens marketplace.TokenProvider, tokenStore *marketplace.TokenStore, store userconf.Store, seenSet *seen.Set, out Enqueuer, interval time.Duration, limit int, logger *slog.Logger) *Poller {
	p := &Poller{
		adapter:    adapter,
		tokens:     tokens,
		tokenStore: tokenStore,
		store:      store,
		seen:       seenSet,
		out:        out,
		interval:   interval,
		limit:      limit,
		logger:     logger.With("component", "poller", "marketplace", adapter.Marketplace()),
	}
	p.enabled.Store(true)
	p.baseline.Store(true)
	return p
}

// Marketplace returns the venue this poller sweeps.
func (p *Poller) Marketplace() types.Marketplace {
	return p.adapter.Marketplace()
}

// Enabled reports whether sweeps are running.
func (p *Poller) Enabled() bool {
	return p.enabled.Load()
}

// SetEnabled turns sweeps on or off. Disabling arms a new baseline so
// re-enabling does not flood users with everything listed meanwhile.
func (p *Poller) SetEnabled(on bool) {
	if !on {
		p.baseline.Store(true)
	}
	p.enabled.Store(on)
}

// Rebaseline arms the next sweep to mark without dispatching.
func (p *Poller) Rebaseline() {
	p.baseline.Store(true)
}

// Run starts the polling loop. Blocks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	// Immediate sweep on startup, then tick.
	p.sweep(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

func (p *Poller) sweep(ctx context.Context) {
	if !p.enabled.Load() {
		return
	}
	mp := p.adapter.Marketplace()

	// No subscribers means no sweep. Arm a baseline so the first sweep
	// after someone subscribes only marks the backlog.
	users, err := p.store.UsersForMarketplace(ctx, mp)
	if err != nil {
		p.logger.Warn("subscriber lookup failed", "error", err)
	} else if len(users) == 0 {
		p.baseline.Store(true)
		return
	}

	items, err := p.adapter.ListNewest(ctx, p.limit, types.SortLatest)
	if err != nil {
		p.handleSweepError(ctx, err)
		return
	}

	baseline := p.baseline.Load()
	var fresh int

	// Venues return newest first; walk backwards so older listings
	// dispatch before newer ones.
	for i := len(items) - 1; i >= 0; i-- {
		l, err := normalize.ToListing(mp, items[i])
		if err != nil {
			p.logger.Debug("skipping malformed item", "error", err)
			continue
		}
		if !p.seen.Observe(mp, l.CompositeID()) {
			continue
		}
		if baseline {
			continue
		}
		fresh++
		p.out.Enqueue(l)
	}

	if baseline {
		p.baseline.Store(false)
		p.logger.Info("baseline sweep complete", "seen", p.seen.Len(mp))
		return
	}
	if fresh > 0 {
		p.logger.Info("sweep found new listings", "count", fresh)
	}
}

// handleSweepError classifies a failed sweep. Auth failures trigger a
// token refresh; everything else is logged and retried next tick.
func (p *Poller) handleSweepError(ctx context.Context, err error) {
	mp := p.adapter.Marketplace()
	switch {
	case marketplace.IsAuth(err):
		p.logger.Warn("auth rejected, refreshing token", "error", err)
		if p.tokens == nil {
			return
		}
		tok, rerr := p.tokens.Refresh(ctx, mp)
		if rerr != nil {
			p.logger.Error("token refresh failed", "error", rerr)
			return
		}
		if tok != "" && p.tokenStore != nil {
			p.tokenStore.Set(mp, tok)
		}
	case marketplace.IsPermanent(err):
		p.logger.Debug("sweep skipped", "error", err)
	case marketplace.IsTransient(err):
		p.logger.Warn("sweep failed, will retry", "error", err)
	default:
		p.logger.Error("sweep failed", "error", err)
	}
}
