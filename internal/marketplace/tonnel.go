package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"giftwatch/pkg/types"
)

// TonnelPageCap is the venue's maximum page size.
const TonnelPageCap = 30

// tonnelSorts maps canonical sort keys to the venue's Mongo-style sort
// documents, serialized into the request body as JSON strings.
var tonnelSorts = map[types.SortKey]map[string]int{
	types.SortLatest:          {"message_post_time": -1, "gift_id": -1},
	types.SortPriceAsc:        {"price": 1},
	types.SortPriceDesc:       {"price": -1},
	types.SortGiftIDAsc:       {"gift_id": 1},
	types.SortGiftIDDesc:      {"gift_id": -1},
	types.SortModelRarityAsc:  {"rarity": 1},
	types.SortModelRarityDesc: {"rarity": -1},
}

// TonnelClient talks to the Tonnel gifts API. The venue aggressively rate
// limits, so every request first waits on a process-wide limiter shared by
// the poller and the enricher. Auth travels inside the JSON body.
type TonnelClient struct {
	http   *resty.Client
	tokens *TokenStore
	gate   *rate.Limiter
	logger *slog.Logger
}

// NewTonnelClient creates the Tonnel adapter. gate enforces the minimum
// interval between any two Tonnel requests process-wide; pass the same
// limiter to every TonnelClient instance. Resty-level retries are off for
// this venue: retrying happens in post so every attempt waits on the gate.
func NewTonnelClient(baseURL string, tokens *TokenStore, gate *rate.Limiter, logger *slog.Logger) *TonnelClient {
	return &TonnelClient{
		http: newHTTPClient(baseURL).
			SetHeader("Origin", "https://market.tonnel.network").
			SetRetryCount(0),
		tokens: tokens,
		gate:   gate,
		logger: logger.With("component", "tonnel"),
	}
}

// NewTonnelGate builds the process-wide request limiter for Tonnel.
func NewTonnelGate(minInterval rate.Limit) *rate.Limiter {
	return rate.NewLimiter(minInterval, 1)
}

func (c *TonnelClient) Marketplace() types.Marketplace { return types.Tonnel }

// tonnelAttempts bounds the per-call attempts against transient failures.
const tonnelAttempts = 3

func (c *TonnelClient) post(ctx context.Context, op, path string, body map[string]any, out any) error {
	if !c.tokens.Has(types.Tonnel) {
		return errNoToken(types.Tonnel, op)
	}
	body["user_auth"] = c.tokens.Get(types.Tonnel)

	// The retry loop lives here rather than in resty so that every attempt,
	// including retries of a 429 burst, waits on the process-wide gate.
	var lastErr error
	for attempt := 0; attempt < tonnelAttempts; attempt++ {
		if err := c.gate.Wait(ctx); err != nil {
			return wrapErr(types.Tonnel, op, 0, err)
		}
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(body).
			SetResult(out).
			Post(path)
		if err != nil {
			lastErr = wrapErr(types.Tonnel, op, 0, err)
			continue
		}
		switch code := resp.StatusCode(); {
		case code == http.StatusOK:
			return nil
		case code == http.StatusTooManyRequests || code >= 500:
			lastErr = wrapErr(types.Tonnel, op, code, fmt.Errorf("%s", resp.String()))
		default:
			return wrapErr(types.Tonnel, op, code, fmt.Errorf("%s", resp.String()))
		}
	}
	return lastErr
}

func mustJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func (c *TonnelClient) pageGifts(ctx context.Context, limit int, sort types.SortKey, collection, model string) ([]RawItem, error) {
	const op = "page gifts"

	sortDoc, ok := tonnelSorts[sort]
	if !ok {
		sortDoc = tonnelSorts[types.SortLatest]
	}
	filter := map[string]any{
		"price":     map[string]any{"$exists": true},
		"refunded":  map[string]any{"$ne": true},
		"buyer":     map[string]any{"$exists": false},
		"export_at": map[string]any{"$exists": true},
		"asset":     "TON",
	}
	if collection != "" {
		filter["gift_name"] = collection
	}
	if model != "" {
		// Exact match when the rarity suffix is included, prefix match otherwise.
		if strings.Contains(model, "(") {
			filter["model"] = model
		} else {
			filter["model"] = map[string]any{"$regex": "^" + model}
		}
	}

	var data any
	err := c.post(ctx, op, "/pageGifts", map[string]any{
		"page":        1,
		"limit":       clampLimit(limit, TonnelPageCap),
		"sort":        mustJSON(sortDoc),
		"filter":      mustJSON(filter),
		"price_range": nil,
	}, &data)
	if err != nil {
		return nil, err
	}

	items := asItems(data, "items", "data", "results", "gifts")
	if items == nil {
		return nil, wrapErr(types.Tonnel, op, 0, fmt.Errorf("unexpected response shape"))
	}
	for _, item := range items {
		c.fillPhotoURL(item)
	}
	return items, nil
}

// fillPhotoURL injects the fragment.com render as photo_url when the item
// carries no image of its own.
func (c *TonnelClient) fillPhotoURL(item RawItem) {
	if Str(item, "photo_url", "image_url", "image", "photo", "photoUrl", "imageUrl") != "" {
		return
	}
	name := Str(item, "gift_name", "name")
	num := Str(item, "external_collection_number", "gift_num", "number", "gift_number")
	if num == "" {
		if v, ok := item["gift_num"].(float64); ok {
			num = fmt.Sprintf("%.0f", v)
		}
	}
	if num == "" {
		num = Str(item, "gift_id", "id")
		if num == "" {
			if v, ok := item["gift_id"].(float64); ok {
				num = fmt.Sprintf("%.0f", v)
			}
		}
	}
	slug := fragmentSlug(name)
	if slug == "" || num == "" {
		return
	}
	item["photo_url"] = fmt.Sprintf("https://nft.fragment.com/gift/%s-%s.medium.jpg", slug, num)
}

func fragmentSlug(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ListNewest fetches one page of active TON-denominated listings.
func (c *TonnelClient) ListNewest(ctx context.Context, limit int, sort types.SortKey) ([]RawItem, error) {
	return c.pageGifts(ctx, limit, sort, "", "")
}

// GetByID fetches a single listing by its numeric gift ID.
func (c *TonnelClient) GetByID(ctx context.Context, id string) (RawItem, error) {
	const op = "get by id"

	var data any
	err := c.post(ctx, op, "/pageGifts", map[string]any{
		"page":        1,
		"limit":       1,
		"sort":        mustJSON(tonnelSorts[types.SortLatest]),
		"filter":      mustJSON(map[string]any{"gift_id": id, "asset": "TON"}),
		"price_range": nil,
	}, &data)
	if err != nil {
		return nil, err
	}
	items := asItems(data, "items", "data", "results", "gifts")
	if len(items) == 0 {
		return nil, wrapErr(types.Tonnel, op, 0, fmt.Errorf("gift %s not found", id))
	}
	c.fillPhotoURL(items[0])
	return items[0], nil
}

// filterStats fetches the venue's per-collection floor statistics document:
// data[collection][model].floorPrice for models, data[collection]["data"]
// .floorPrice for the whole collection. Values are raw, fee not included.
func (c *TonnelClient) filterStats(ctx context.Context) (map[string]any, error) {
	const op = "filter stats"

	var data map[string]any
	if err := c.post(ctx, op, "/filterStats", map[string]any{}, &data); err != nil {
		return nil, err
	}
	if status, _ := data["status"].(string); status != "success" {
		return nil, wrapErr(types.Tonnel, op, 0, fmt.Errorf("status %q", data["status"]))
	}
	stats, ok := data["data"].(map[string]any)
	if !ok {
		return nil, wrapErr(types.Tonnel, op, 0, fmt.Errorf("unexpected response shape"))
	}
	return stats, nil
}

// findKey locates a map entry by cleaned-name comparison.
func findKey(m map[string]any, name string) (map[string]any, bool) {
	want := types.CleanName(name)
	if v, ok := m[name]; ok {
		sub, ok := v.(map[string]any)
		return sub, ok
	}
	for k, v := range m {
		if types.CleanName(k) == want {
			sub, ok := v.(map[string]any)
			return sub, ok
		}
	}
	return nil, false
}

// GiftFloor returns the raw collection floor from the stats document.
func (c *TonnelClient) GiftFloor(ctx context.Context, collection string) (*decimal.Decimal, error) {
	stats, err := c.filterStats(ctx)
	if err != nil {
		return nil, err
	}
	giftData, ok := findKey(stats, collection)
	if !ok {
		return nil, nil
	}
	info, ok := giftData["data"].(map[string]any)
	if !ok {
		return nil, nil
	}
	if p, ok := ParseTON(info["floorPrice"]); ok {
		return &p, nil
	}
	return nil, nil
}

// ModelFloor returns the raw model floor from the stats document. Model
// keys in the document carry rarity suffixes, so matching is by clean name.
func (c *TonnelClient) ModelFloor(ctx context.Context, collection, model string) (*decimal.Decimal, error) {
	stats, err := c.filterStats(ctx)
	if err != nil {
		return nil, err
	}
	giftData, ok := findKey(stats, collection)
	if !ok {
		return nil, nil
	}
	info, ok := findKey(giftData, model)
	if !ok {
		return nil, nil
	}
	if p, ok := ParseTON(info["floorPrice"]); ok {
		return &p, nil
	}
	return nil, nil
}

// SalesHistory returns recent completed sales for a collection/model pair,
// newest first. Tonnel is the only venue with a usable sales feed, so the
// enricher routes every sales lookup here.
func (c *TonnelClient) SalesHistory(ctx context.Context, collection, model string, limit int) ([]types.Sale, error) {
	const op = "sale history"

	// Overfetch: the feed filter is loose and the model match happens here.
	var data any
	err := c.post(ctx, op, "/saleHistory", map[string]any{
		"page":      1,
		"limit":     clampLimit(limit*5, 100),
		"type":      "SALE",
		"sort":      "latest",
		"gift_name": collection,
		"model":     model,
	}, &data)
	if err != nil {
		return nil, err
	}
	items := asItems(data, "items", "data", "results", "sales")
	if items == nil {
		return nil, wrapErr(types.Tonnel, op, 0, fmt.Errorf("unexpected response shape"))
	}

	wantGift := types.CleanName(collection)
	wantModel := types.CleanName(model)
	var sales []types.Sale
	for _, item := range items {
		gift := types.CleanName(Str(item, "gift_name", "name"))
		m := types.CleanName(Str(item, "model", "model_name"))
		if gift != wantGift || (wantModel != "" && m != wantModel) {
			continue
		}
		price, ok := ParseTON(Field(item, "price", "amount", "sale_price"))
		if !ok {
			continue
		}
		num := Str(item, "gift_num", "number", "external_collection_number")
		if num == "" {
			if v, ok := item["gift_num"].(float64); ok {
				num = fmt.Sprintf("%.0f", v)
			}
		}
		sales = append(sales, types.Sale{
			Marketplace:    types.Tonnel,
			CollectionName: collection,
			ModelName:      model,
			GiftNumber:     num,
			PriceTON:       price,
			SoldAt:         parseTime(Field(item, "date", "sold_at", "created_at", "timestamp")),
		})
	}
	sort.Slice(sales, func(i, j int) bool { return sales[i].SoldAt.After(sales[j].SoldAt) })
	if len(sales) > limit {
		sales = sales[:limit]
	}
	return sales, nil
}
