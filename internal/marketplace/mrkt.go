package marketplace

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"giftwatch/pkg/types"
)

// MRKTPageCap is the venue's maximum page size.
const MRKTPageCap = 20

// mrktPriceFields is the candidate order for a listing's price.
var mrktPriceFields = []string{
	"price", "tonPrice", "ton_price", "priceTON", "price_ton",
	"amount", "salePrice", "sale_price", "listPrice", "list_price", "raw_price",
}

var mrktHashRe = regexp.MustCompile(`^[0-9a-f]{32}$`)

// MRKTClient talks to the MRKT gifts API. The auth token goes into the
// Authorization header without a scheme prefix. Listing search is a POST
// with a structured filter body.
type MRKTClient struct {
	http   *resty.Client
	tokens *TokenStore
	logger *slog.Logger
}

// NewMRKTClient creates the MRKT adapter.
func NewMRKTClient(baseURL string, tokens *TokenStore, logger *slog.Logger) *MRKTClient {
	return &MRKTClient{
		http:   newHTTPClient(baseURL),
		tokens: tokens,
		logger: logger.With("component", "mrkt"),
	}
}

func (c *MRKTClient) Marketplace() types.Marketplace { return types.MRKT }

func (c *MRKTClient) search(ctx context.Context, limit int, sort types.SortKey, collection, model string) ([]RawItem, error) {
	const op = "search"
	if !c.tokens.Has(types.MRKT) {
		return nil, errNoToken(types.MRKT, op)
	}

	// ordering: "Price" | "ModelRarity" | "BackgroundRarity", absent = newest first.
	body := map[string]any{
		"collectionNames": []string{},
		"modelNames":      []string{},
		"backdropNames":   []string{},
		"symbolNames":     []string{},
		"lowToHigh":       sort == types.SortLatest || strings.HasSuffix(string(sort), "_asc"),
		"maxPrice":        nil,
		"minPrice":        nil,
		"mintable":        nil,
		"number":          nil,
		"count":           clampLimit(limit, MRKTPageCap),
		"cursor":          "",
		"query":           nil,
		"promotedFirst":   false,
	}
	switch sort {
	case types.SortLatest:
		// no ordering: the venue sorts by listing time
	case types.SortModelRarityAsc, types.SortModelRarityDesc:
		body["ordering"] = "ModelRarity"
	default:
		body["ordering"] = "Price"
	}
	if collection != "" {
		body["collectionNames"] = []string{collection}
	}
	if model != "" {
		body["modelNames"] = []string{model}
	}
	if collection != "" || model != "" {
		body["req"] = "search"
	} else {
		body["req"] = "all"
	}

	var data map[string]any
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", c.tokens.Get(types.MRKT)).
		SetBody(body).
		SetResult(&data).
		Post("/gifts/saling")
	if err != nil {
		return nil, wrapErr(types.MRKT, op, 0, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, wrapErr(types.MRKT, op, resp.StatusCode(), fmt.Errorf("%s", resp.String()))
	}

	items := asItems(data["gifts"])
	if items == nil {
		return nil, wrapErr(types.MRKT, op, 0, fmt.Errorf("unexpected response shape"))
	}
	for _, item := range items {
		c.fillHash(item)
	}
	return items, nil
}

// fillHash injects "mrkt_hash" when a 32-hex identifier can be recovered.
// Priority: the id field with dashes stripped, then the known fallback
// fields. Without the hash the listing has no deep link, but it is still
// dispatched.
func (c *MRKTClient) fillHash(item RawItem) {
	if Str(item, "mrkt_hash") != "" {
		return
	}
	candidates := []string{Str(item, "id")}
	for _, f := range []string{"hash", "hashId", "hash_id", "token", "uuid", "guid"} {
		candidates = append(candidates, Str(item, f))
	}
	for _, cand := range candidates {
		h := strings.ToLower(strings.ReplaceAll(cand, "-", ""))
		if mrktHashRe.MatchString(h) {
			item["mrkt_hash"] = h
			return
		}
	}
}

// ListNewest fetches one page of listings in the given sort order.
func (c *MRKTClient) ListNewest(ctx context.Context, limit int, sort types.SortKey) ([]RawItem, error) {
	return c.search(ctx, limit, sort, "", "")
}

// GetByID fetches a single gift by its hash ID.
func (c *MRKTClient) GetByID(ctx context.Context, id string) (RawItem, error) {
	const op = "get by id"
	if !c.tokens.Has(types.MRKT) {
		return nil, errNoToken(types.MRKT, op)
	}

	var data map[string]any
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", c.tokens.Get(types.MRKT)).
		SetResult(&data).
		Get("/gifts/" + id)
	if err != nil {
		return nil, wrapErr(types.MRKT, op, 0, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, wrapErr(types.MRKT, op, resp.StatusCode(), fmt.Errorf("%s", resp.String()))
	}
	item := RawItem(data)
	c.fillHash(item)
	return item, nil
}

// GiftFloor derives the collection floor from the cheapest listed item.
func (c *MRKTClient) GiftFloor(ctx context.Context, collection string) (*decimal.Decimal, error) {
	items, err := c.search(ctx, MRKTPageCap, types.SortPriceAsc, collection, "")
	if err != nil {
		return nil, err
	}
	return minPrice(items, mrktPriceFields...), nil
}

// ModelFloor derives the model floor from the cheapest listed item of that model.
func (c *MRKTClient) ModelFloor(ctx context.Context, collection, model string) (*decimal.Decimal, error) {
	items, err := c.search(ctx, MRKTPageCap, types.SortPriceAsc, collection, types.CleanName(model))
	if err != nil {
		return nil, err
	}
	return minPrice(items, mrktPriceFields...), nil
}

// SalesHistory collects recent sales via the per-gift sales endpoint of the
// newest matching listings.
func (c *MRKTClient) SalesHistory(ctx context.Context, collection, model string, limit int) ([]types.Sale, error) {
	items, err := c.search(ctx, MRKTPageCap, types.SortLatest, collection, types.CleanName(model))
	if err != nil {
		return nil, err
	}

	var sales []types.Sale
	for _, item := range items {
		id := Str(item, "id")
		if id == "" {
			continue
		}
		page, err := c.giftSales(ctx, id)
		if err != nil {
			c.logger.Debug("sales lookup failed", "gift_id", id, "error", err)
			continue
		}
		for _, raw := range page {
			price, ok := ParseTON(Field(raw, "price", "amount", "sale_price"))
			if !ok {
				continue
			}
			sales = append(sales, types.Sale{
				Marketplace:    types.MRKT,
				CollectionName: collection,
				ModelName:      model,
				GiftNumber:     Str(raw, "number", "giftNumber", "gift_number"),
				PriceTON:       price,
				SoldAt:         parseTime(Field(raw, "date", "sold_at", "created_at", "timestamp")),
			})
		}
		if len(sales) >= limit {
			break
		}
	}
	if len(sales) > limit {
		sales = sales[:limit]
	}
	return sales, nil
}

func (c *MRKTClient) giftSales(ctx context.Context, id string) ([]RawItem, error) {
	const op = "gift sales"
	var data any
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", c.tokens.Get(types.MRKT)).
		SetResult(&data).
		Get("/gifts/" + id + "/sales")
	if err != nil {
		return nil, wrapErr(types.MRKT, op, 0, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, wrapErr(types.MRKT, op, resp.StatusCode(), fmt.Errorf("%s", resp.String()))
	}
	items := asItems(data, "sales")
	if items == nil {
		return nil, wrapErr(types.MRKT, op, 0, fmt.Errorf("unexpected response shape"))
	}
	return items, nil
}
