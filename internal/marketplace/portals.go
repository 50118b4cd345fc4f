package marketplace

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"giftwatch/pkg/types"
)

// portalsSorts maps canonical sort keys to the venue's sort_by values.
// The latest sort additionally narrows to active non-bundled listings.
var portalsSorts = map[types.SortKey]string{
	types.SortLatest:          "listed_at desc",
	types.SortPriceAsc:        "price asc",
	types.SortPriceDesc:       "price desc",
	types.SortGiftIDAsc:       "external_collection_number asc",
	types.SortGiftIDDesc:      "external_collection_number desc",
	types.SortModelRarityAsc:  "model_rarity asc",
	types.SortModelRarityDesc: "model_rarity desc",
}

// PortalsPageCap is the venue's maximum page size.
const PortalsPageCap = 50

// PortalsClient talks to the Portals market API. Auth uses Telegram
// web-app init data with a "tma " prefix.
type PortalsClient struct {
	http   *resty.Client
	tokens *TokenStore
	logger *slog.Logger
}

// NewPortalsClient creates the Portals adapter.
func NewPortalsClient(baseURL string, tokens *TokenStore, logger *slog.Logger) *PortalsClient {
	return &PortalsClient{
		http:   newHTTPClient(baseURL).SetHeader("Origin", "https://portal-market.com"),
		tokens: tokens,
		logger: logger.With("component", "portals"),
	}
}

func (c *PortalsClient) Marketplace() types.Marketplace { return types.Portals }

func (c *PortalsClient) authHeader() string {
	tok := c.tokens.Get(types.Portals)
	if tok == "" || strings.HasPrefix(tok, "tma ") {
		return tok
	}
	return "tma " + tok
}

// capWords uppercases the first letter of every word; the venue's filters
// are case-sensitive and expect title-cased names.
func capWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		if len(r) > 0 && r[0] >= 'a' && r[0] <= 'z' {
			r[0] = r[0] - 'a' + 'A'
		}
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

func (c *PortalsClient) search(ctx context.Context, limit int, sort types.SortKey, collection, model string) ([]RawItem, error) {
	const op = "search"
	if !c.tokens.Has(types.Portals) {
		return nil, errNoToken(types.Portals, op)
	}

	sortBy, ok := portalsSorts[sort]
	if !ok {
		sortBy = portalsSorts[types.SortPriceAsc]
	}

	req := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", c.authHeader()).
		SetQueryParam("offset", "0").
		SetQueryParam("limit", fmt.Sprintf("%d", clampLimit(limit, PortalsPageCap))).
		SetQueryParam("sort_by", sortBy)
	if sort == types.SortLatest {
		req.SetQueryParam("status", "listed").
			SetQueryParam("exclude_bundled", "true").
			SetQueryParam("premarket_status", "all")
	}
	if collection != "" {
		req.SetQueryParam("filter_by_collections", capWords(collection))
	}
	if model != "" {
		req.SetQueryParam("filter_by_models", capWords(model))
	}

	var data any
	resp, err := req.SetResult(&data).Get("/nfts/search")
	if err != nil {
		return nil, wrapErr(types.Portals, op, 0, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, wrapErr(types.Portals, op, resp.StatusCode(), fmt.Errorf("%s", resp.String()))
	}

	items := asItems(data, "results", "items", "data")
	if items == nil {
		return nil, wrapErr(types.Portals, op, 0, fmt.Errorf("unexpected response shape"))
	}
	return items, nil
}

// ListNewest fetches one page of listings in the given sort order.
func (c *PortalsClient) ListNewest(ctx context.Context, limit int, sort types.SortKey) ([]RawItem, error) {
	return c.search(ctx, limit, sort, "", "")
}

// GetByID fetches a single listing. A composite "gift_{id}" prefix is
// stripped before the call.
func (c *PortalsClient) GetByID(ctx context.Context, id string) (RawItem, error) {
	const op = "get by id"
	if !c.tokens.Has(types.Portals) {
		return nil, errNoToken(types.Portals, op)
	}
	if i := strings.LastIndex(id, "_"); i >= 0 {
		id = id[i+1:]
	}

	var data map[string]any
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", c.authHeader()).
		SetResult(&data).
		Get("/nfts/" + id)
	if err != nil {
		return nil, wrapErr(types.Portals, op, 0, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, wrapErr(types.Portals, op, resp.StatusCode(), fmt.Errorf("%s", resp.String()))
	}
	return RawItem(data), nil
}

// GiftFloor derives the collection floor from the cheapest listed item.
func (c *PortalsClient) GiftFloor(ctx context.Context, collection string) (*decimal.Decimal, error) {
	items, err := c.search(ctx, PortalsPageCap, types.SortPriceAsc, collection, "")
	if err != nil {
		return nil, err
	}
	return minPrice(items, "price", "floor_price"), nil
}

// ModelFloor derives the model floor from the cheapest listed item of that model.
func (c *PortalsClient) ModelFloor(ctx context.Context, collection, model string) (*decimal.Decimal, error) {
	items, err := c.search(ctx, PortalsPageCap, types.SortPriceAsc, collection, types.CleanName(model))
	if err != nil {
		return nil, err
	}
	return minPrice(items, "price", "floor_price"), nil
}

// SalesHistory collects recent sales for a model by querying the per-NFT
// sales endpoint of the newest matching listings.
func (c *PortalsClient) SalesHistory(ctx context.Context, collection, model string, limit int) ([]types.Sale, error) {
	items, err := c.search(ctx, 10, types.SortLatest, collection, types.CleanName(model))
	if err != nil {
		return nil, err
	}

	var sales []types.Sale
	for _, item := range items {
		id := Str(item, "id", "gift_id", "nft_id")
		if id == "" {
			continue
		}
		page, err := c.nftSales(ctx, id)
		if err != nil {
			c.logger.Debug("sales lookup failed", "nft_id", id, "error", err)
			continue
		}
		for _, raw := range page {
			price, ok := ParseTON(Field(raw, "price", "amount", "sale_price"))
			if !ok {
				continue
			}
			sales = append(sales, types.Sale{
				Marketplace:    types.Portals,
				CollectionName: collection,
				ModelName:      model,
				GiftNumber:     Str(raw, "external_collection_number", "gift_number", "number"),
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

func (c *PortalsClient) nftSales(ctx context.Context, id string) ([]RawItem, error) {
	const op = "nft sales"
	var data any
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", c.authHeader()).
		SetResult(&data).
		Get("/nfts/" + id + "/sales")
	if err != nil {
		return nil, wrapErr(types.Portals, op, 0, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, wrapErr(types.Portals, op, resp.StatusCode(), fmt.Errorf("%s", resp.String()))
	}
	items := asItems(data, "sales", "results", "data")
	if items == nil {
		return nil, wrapErr(types.Portals, op, 0, fmt.Errorf("unexpected response shape"))
	}
	return items, nil
}
