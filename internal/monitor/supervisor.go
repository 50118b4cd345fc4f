package monitor

import (
	"context"
	"log/slog"
	"sync"

	"giftwatch/internal/seen"
	"giftwatch/pkg/types"
)

// Invalidator drops cached user rules. The userconf cache implements this.
type Invalidator interface {
	Invalidate()
}

// Supervisor owns the pollers and the state they share. It runs their
// loops, exposes per-venue enable switches, and reacts to rule changes
// by invalidating caches and re-baselining every venue so edited
// filters apply to fresh listings only.
type Supervisor struct {
	pollers map[types.Marketplace]*Poller
	seen    *seen.Set
	rules   Invalidator     // may be nil
	changes <-chan struct{} // may be nil
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewSupervisor wires the pollers under one lifecycle. changes is the
// rule store's change signal; nil disables the watch.
func NewSupervisor(pollers []*Poller, seenSet *seen.Set, rules Invalidator, changes <-chan struct{}, logger *slog.Logger) *Supervisor {
	byMP := make(map[types.Marketplace]*Poller, len(pollers))
	for _, p := range pollers {
		byMP[p.Marketplace()] = p
	}
	return &Supervisor{
		pollers: byMP,
		seen:    seenSet,
		rules:   rules,
		changes: changes,
		logger:  logger.With("component", "supervisor"),
	}
}

// Run starts every poller and the rule-change watcher, then blocks
// until ctx is cancelled and all loops have returned.
func (s *Supervisor) Run(ctx context.Context) {
	for _, p := range s.pollers {
		s.wg.Add(1)
		go func(p *Poller) {
			defer s.wg.Done()
			p.Run(ctx)
		}(p)
	}

	if s.changes != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.watchChanges(ctx)
		}()
	}

	s.logger.Info("monitoring started", "venues", len(s.pollers))
	s.wg.Wait()
	s.logger.Info("monitoring stopped")
}

func (s *Supervisor) watchChanges(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-s.changes:
			if !ok {
				return
			}
			s.onRulesChanged()
		}
	}
}

// onRulesChanged applies an edited rule set: drop cached rules, forget
// every seen listing, and re-baseline so the backlog is marked silently
// under the new filters.
func (s *Supervisor) onRulesChanged() {
	s.logger.Info("rules changed, re-baselining")
	if s.rules != nil {
		s.rules.Invalidate()
	}
	s.seen.Reset()
	for _, p := range s.pollers {
		p.Rebaseline()
	}
}

// SetEnabled switches one venue's sweeps. Returns false for a venue
// without a poller.
func (s *Supervisor) SetEnabled(mp types.Marketplace, on bool) bool {
	p, ok := s.pollers[mp]
	if !ok {
		return false
	}
	p.SetEnabled(on)
	s.logger.Info("poller switched", "marketplace", mp, "enabled", on)
	return true
}

// Enabled reports one venue's switch state. The second result is false
// for a venue without a poller.
func (s *Supervisor) Enabled(mp types.Marketplace) (bool, bool) {
	p, ok := s.pollers[mp]
	if !ok {
		return false, false
	}
	return p.Enabled(), true
}

// Toggle flips one venue's switch and returns the new state.
func (s *Supervisor) Toggle(mp types.Marketplace) (bool, bool) {
	p, ok := s.pollers[mp]
	if !ok {
		return false, false
	}
	next := !p.Enabled()
	p.SetEnabled(next)
	s.logger.Info("poller toggled", "marketplace", mp, "enabled", next)
	return next, true
}
