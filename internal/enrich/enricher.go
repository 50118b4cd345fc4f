// Package enrich attaches market context to a listing before dispatch:
// collection floor, model floor, and recent sales of the same model.
//
// Floors come from the listing's own marketplace; sales always come from
// the Tonnel feed, which is the only venue with a usable sales history.
// Every lookup is best-effort under a deadline — a slow or failing venue
// degrades the message, never delays it past the budget.
package enrich

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"giftwatch/internal/marketplace"
	"giftwatch/pkg/types"
)

// Enricher performs the floor and sales lookups.
type Enricher struct {
	adapters   map[types.Marketplace]marketplace.Adapter
	oracle     marketplace.Adapter // sales source (Tonnel), nil when unavailable
	cache      *FloorCache
	feeFactor  decimal.Decimal // 1 + fee rate, applied to Tonnel amounts on output
	floorWait  time.Duration
	salesWait  time.Duration
	salesLimit int
	logger     *slog.Logger
}

// Config bundles the enricher's tuning knobs.
type Config struct {
	FloorTimeout  time.Duration
	SalesTimeout  time.Duration
	FloorCacheTTL time.Duration
	TonnelFeeRate float64
	SalesLimit    int
}

// New creates an enricher over the given adapters. oracle is the sales
// source and may be nil, in which case messages carry no sales block.
func New(adapters map[types.Marketplace]marketplace.Adapter, oracle marketplace.Adapter, cfg Config, logger *slog.Logger) *Enricher {
	return &Enricher{
		adapters:   adapters,
		oracle:     oracle,
		cache:      NewFloorCache(cfg.FloorCacheTTL),
		feeFactor:  decimal.NewFromFloat(1 + cfg.TonnelFeeRate),
		floorWait:  cfg.FloorTimeout,
		salesWait:  cfg.SalesTimeout,
		salesLimit: cfg.SalesLimit,
		logger:     logger.With("component", "enrich"),
	}
}

// AdjustedPrice returns the price shown to users: Tonnel listings include
// the marketplace fee, everything else passes through unchanged. Matching
// always uses the raw price, so this applies strictly at output.
func (e *Enricher) AdjustedPrice(l types.Listing) decimal.Decimal {
	if l.Marketplace == types.Tonnel {
		return l.PriceTON.Mul(e.feeFactor).Round(2)
	}
	return l.PriceTON
}

// adjustFloor applies the fee to a Tonnel-sourced floor on output.
func (e *Enricher) adjustFloor(mp types.Marketplace, v *decimal.Decimal) *decimal.Decimal {
	if v == nil || mp != types.Tonnel {
		return v
	}
	adj := v.Mul(e.feeFactor).Round(2)
	return &adj
}

// Enrich gathers floors and sales for a listing. The two floor lookups run
// concurrently under one deadline; the sales lookup has its own. Failures
// and timeouts leave the corresponding fields empty.
func (e *Enricher) Enrich(ctx context.Context, l types.Listing) types.Enrichment {
	var enr types.Enrichment

	collection := types.CleanName(l.CollectionName)
	model := ""
	if l.ModelName != types.ModelUnknown {
		model = types.CleanName(l.ModelName)
	}

	adapter := e.adapters[l.Marketplace]
	if adapter != nil {
		floorCtx, cancel := context.WithTimeout(ctx, e.floorWait)
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			enr.GiftFloor = e.floor(floorCtx, adapter, scopeGift, collection, "")
		}()
		if model != "" {
			wg.Add(1)
			go func() {
				defer wg.Done()
				enr.ModelFloor = e.floor(floorCtx, adapter, scopeModel, collection, model)
			}()
		}
		wg.Wait()
		cancel()

		enr.GiftFloor = e.adjustFloor(l.Marketplace, enr.GiftFloor)
		enr.ModelFloor = e.adjustFloor(l.Marketplace, enr.ModelFloor)
	}

	if e.oracle != nil && model != "" {
		salesCtx, cancel := context.WithTimeout(ctx, e.salesWait)
		sales, err := e.oracle.SalesHistory(salesCtx, collection, model, e.salesLimit)
		cancel()
		if err != nil {
			e.logger.Debug("sales lookup failed", "collection", collection, "model", model, "error", err)
		} else {
			enr.Sales = sales
		}
	}

	return enr
}

// floor resolves one floor through the cache, fetching on miss. Only
// successful fetches are cached. Returns the raw (fee-free) value.
func (e *Enricher) floor(ctx context.Context, adapter marketplace.Adapter, scope floorScope, collection, model string) *decimal.Decimal {
	mp := adapter.Marketplace()
	if v, ok := e.cache.Get(mp, scope, collection, model); ok {
		return &v
	}

	var (
		value *decimal.Decimal
		err   error
	)
	if scope == scopeGift {
		value, err = adapter.GiftFloor(ctx, collection)
	} else {
		value, err = adapter.ModelFloor(ctx, collection, model)
	}
	if err != nil {
		e.logger.Debug("floor lookup failed", "marketplace", mp, "scope", scope, "collection", collection, "error", err)
		return nil
	}
	if value == nil {
		return nil
	}
	e.cache.Set(mp, scope, collection, model, *value)
	return value
}
