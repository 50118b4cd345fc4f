// Package marketplace implements the REST clients for the four supported
// gift venues: Portals, Tonnel, MRKT and GetGems.
//
// Each adapter speaks its venue's native protocol and returns raw items in
// a shared candidate-field vocabulary; the normalize package turns those
// into canonical listings. Adapters never panic on malformed payloads —
// every failure comes back as a *APIError with a Kind the caller can act on.
package marketplace

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"giftwatch/pkg/types"
)

// RawItem is one decoded JSON object as the venue returned it, plus any
// adapter-injected keys (e.g. "mrkt_hash", "photo_url" fallbacks).
type RawItem map[string]any

// Adapter is the uniform surface the poller and enricher work against.
type Adapter interface {
	Marketplace() types.Marketplace

	// ListNewest fetches up to limit listings in the given sort order.
	// limit is silently clamped to the venue's page cap.
	ListNewest(ctx context.Context, limit int, sort types.SortKey) ([]RawItem, error)

	// GetByID fetches a single listing by its venue-native ID.
	GetByID(ctx context.Context, id string) (RawItem, error)

	// GiftFloor returns the collection floor price, nil when unknown.
	GiftFloor(ctx context.Context, collection string) (*decimal.Decimal, error)

	// ModelFloor returns the floor for one model within a collection.
	ModelFloor(ctx context.Context, collection, model string) (*decimal.Decimal, error)

	// SalesHistory returns recent sales for a collection/model pair,
	// newest first. Venues without a sales feed return an empty slice.
	SalesHistory(ctx context.Context, collection, model string, limit int) ([]types.Sale, error)
}

// newHTTPClient builds the resty client shared by all adapters: base URL,
// timeout, and retry on transient failures only (429/5xx/network).
func newHTTPClient(baseURL string) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(1*time.Second).
		SetRetryMaxWaitTime(4*time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == 429 || r.StatusCode() >= 500
		}).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")
}

// clampLimit bounds a requested page size to [1, pageCap].
func clampLimit(limit, pageCap int) int {
	if limit < 1 {
		return 1
	}
	if limit > pageCap {
		return pageCap
	}
	return limit
}

// nanoThreshold separates whole-TON amounts from nano-TON amounts. Gift
// prices above 1000 TON do not occur in practice, so larger raw values are
// assumed to be nano-TON and divided by 1e9.
var nanoThreshold = decimal.NewFromInt(1000)

var nanoDivisor = decimal.NewFromInt(1_000_000_000)

// ParseTON coerces a venue price value into TON. Accepts numbers and
// strings (commas and a trailing "TON" token are tolerated). Applies the
// nano-TON heuristic and rounds to 2 decimal places. Returns false for
// missing, malformed, or non-positive values.
func ParseTON(v any) (decimal.Decimal, bool) {
	var d decimal.Decimal
	switch x := v.(type) {
	case float64:
		d = decimal.NewFromFloat(x)
	case int:
		d = decimal.NewFromInt(int64(x))
	case int64:
		d = decimal.NewFromInt(x)
	case string:
		s := strings.TrimSpace(x)
		s = strings.TrimSuffix(strings.ToUpper(s), "TON")
		s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
		if s == "" {
			return decimal.Zero, false
		}
		parsed, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, false
		}
		d = parsed
	default:
		return decimal.Zero, false
	}
	if d.GreaterThan(nanoThreshold) {
		d = d.Div(nanoDivisor)
	}
	d = d.Round(2)
	if !d.IsPositive() {
		return decimal.Zero, false
	}
	return d, true
}

// Str returns the first non-empty string value among keys.
func Str(item RawItem, keys ...string) string {
	for _, k := range keys {
		if v, ok := item[k]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

// Field returns the first present value among keys, nil when none exist.
func Field(item RawItem, keys ...string) any {
	for _, k := range keys {
		if v, ok := item[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// asItems coerces a decoded JSON value into a slice of raw items, tolerating
// the list living under any of the usual envelope keys.
func asItems(data any, envelopeKeys ...string) []RawItem {
	if m, ok := data.(map[string]any); ok {
		for _, k := range envelopeKeys {
			if v, ok := m[k]; ok {
				data = v
				break
			}
		}
	}
	list, ok := data.([]any)
	if !ok {
		return nil
	}
	items := make([]RawItem, 0, len(list))
	for _, el := range list {
		if m, ok := el.(map[string]any); ok {
			items = append(items, RawItem(m))
		}
	}
	return items
}

// parseTime coerces a venue timestamp (unix seconds or an ISO-8601 string)
// into a time.Time, zero when unparseable.
func parseTime(v any) time.Time {
	switch x := v.(type) {
	case float64:
		if x <= 0 {
			return time.Time{}
		}
		return time.Unix(int64(x), 0)
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return time.Time{}
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}

// minPrice scans items for the lowest positive price under the given keys.
func minPrice(items []RawItem, keys ...string) *decimal.Decimal {
	var best *decimal.Decimal
	for _, item := range items {
		v := Field(item, keys...)
		if v == nil {
			continue
		}
		p, ok := ParseTON(v)
		if !ok {
			continue
		}
		if best == nil || p.LessThan(*best) {
			val := p
			best = &val
		}
	}
	return best
}
