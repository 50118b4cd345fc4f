package marketplace

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"giftwatch/pkg/types"
)

// GetGemsPageCap is the venue's maximum page size.
const GetGemsPageCap = 100

// GetGemsClient talks to the GetGems public API with Bearer auth. The
// on-sale endpoint returns every listed gift without server-side sorting,
// so price sorts happen client-side; the "latest" sort goes through the
// putUpForSale history feed instead.
type GetGemsClient struct {
	http   *resty.Client
	tokens *TokenStore
	logger *slog.Logger
}

// NewGetGemsClient creates the GetGems adapter.
func NewGetGemsClient(baseURL string, tokens *TokenStore, logger *slog.Logger) *GetGemsClient {
	return &GetGemsClient{
		http:   newHTTPClient(baseURL),
		tokens: tokens,
		logger: logger.With("component", "getgems"),
	}
}

func (c *GetGemsClient) Marketplace() types.Marketplace { return types.GetGems }

type getgemsEnvelope struct {
	Success  bool           `json:"success"`
	Response map[string]any `json:"response"`
}

func (c *GetGemsClient) get(ctx context.Context, op, path string, params map[string]string) (*getgemsEnvelope, error) {
	if !c.tokens.Has(types.GetGems) {
		return nil, errNoToken(types.GetGems, op)
	}

	var env getgemsEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+c.tokens.Get(types.GetGems)).
		SetQueryParams(params).
		SetResult(&env).
		Get(path)
	if err != nil {
		return nil, wrapErr(types.GetGems, op, 0, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, wrapErr(types.GetGems, op, resp.StatusCode(), fmt.Errorf("%s", resp.String()))
	}
	if !env.Success {
		return nil, wrapErr(types.GetGems, op, 0, fmt.Errorf("success=false"))
	}
	return &env, nil
}

// annotate splits the "Collection #1234" display name, lifts Model/Backdrop
// out of the attributes array, and surfaces the nano-TON sale price, so the
// normalizer sees the shared candidate vocabulary.
func (c *GetGemsClient) annotate(item RawItem) {
	name := Str(item, "name")
	if idx := strings.LastIndex(name, " #"); idx > 0 {
		item["name"] = name[:idx]
		item["gift_number"] = strings.TrimSpace(name[idx+2:])
	}

	if attrs, ok := item["attributes"].([]any); ok {
		for _, a := range attrs {
			attr, ok := a.(map[string]any)
			if !ok {
				continue
			}
			trait, _ := attr["traitType"].(string)
			val, _ := attr["value"].(string)
			switch strings.ToLower(trait) {
			case "model":
				item["model"] = val
			case "backdrop":
				item["backdrop"] = val
			}
		}
	}

	if sale, ok := item["sale"].(map[string]any); ok {
		if p := Field(RawItem(sale), "fullPrice", "price"); p != nil {
			item["price"] = p
		}
	}
	if item["price"] == nil {
		if td, ok := item["typeData"].(map[string]any); ok {
			if p := Field(RawItem(td), "priceNano", "price"); p != nil {
				item["price"] = p
			}
		}
	}

	if Str(item, "photo_url") == "" {
		photo := Str(item, "image")
		if photo == "" {
			if sizes, ok := item["imageSizes"].(map[string]any); ok {
				photo = Str(RawItem(sizes), "352", "96")
			}
		}
		if photo != "" {
			item["photo_url"] = photo
		}
	}

	if Str(item, "id") == "" {
		if addr := Str(item, "address"); addr != "" {
			item["id"] = addr
		}
	}
}

func (c *GetGemsClient) onSale(ctx context.Context, limit int) ([]RawItem, error) {
	env, err := c.get(ctx, "on sale", "/v1/nfts/offchain/on-sale/gifts", map[string]string{
		"limit": fmt.Sprintf("%d", clampLimit(limit, GetGemsPageCap)),
	})
	if err != nil {
		return nil, err
	}
	items := asItems(env.Response, "items")
	if items == nil {
		return nil, wrapErr(types.GetGems, "on sale", 0, fmt.Errorf("unexpected response shape"))
	}
	for _, item := range items {
		c.annotate(item)
	}
	return items, nil
}

// ListNewest fetches listings. For the latest sort it reads the
// putUpForSale history feed (the on-sale endpoint has no time order);
// price sorts fetch the on-sale page and order it here.
func (c *GetGemsClient) ListNewest(ctx context.Context, limit int, sortKey types.SortKey) ([]RawItem, error) {
	limit = clampLimit(limit, GetGemsPageCap)

	if sortKey == types.SortLatest {
		env, err := c.get(ctx, "history", "/v1/nfts/history/gifts", map[string]string{
			"types": "putUpForSale",
			"limit": fmt.Sprintf("%d", limit),
		})
		if err != nil {
			return nil, err
		}
		items := asItems(env.Response, "items")
		if items == nil {
			return nil, wrapErr(types.GetGems, "history", 0, fmt.Errorf("unexpected response shape"))
		}
		for _, item := range items {
			c.annotate(item)
		}
		return items, nil
	}

	items, err := c.onSale(ctx, limit)
	if err != nil {
		return nil, err
	}
	desc := sortKey == types.SortPriceDesc
	sort.SliceStable(items, func(i, j int) bool {
		pi, iok := ParseTON(items[i]["price"])
		pj, jok := ParseTON(items[j]["price"])
		if !iok || !jok {
			return iok
		}
		if desc {
			return pi.GreaterThan(pj)
		}
		return pi.LessThan(pj)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// GetByID fetches a single NFT by its address.
func (c *GetGemsClient) GetByID(ctx context.Context, id string) (RawItem, error) {
	env, err := c.get(ctx, "get by id", "/v1/nft/"+id, nil)
	if err != nil {
		return nil, err
	}
	item := RawItem(env.Response)
	c.annotate(item)
	return item, nil
}

// GiftFloor derives the collection floor from the cheapest on-sale item.
func (c *GetGemsClient) GiftFloor(ctx context.Context, collection string) (*decimal.Decimal, error) {
	return c.floor(ctx, collection, "")
}

// ModelFloor derives the model floor from the cheapest on-sale item of
// that model.
func (c *GetGemsClient) ModelFloor(ctx context.Context, collection, model string) (*decimal.Decimal, error) {
	return c.floor(ctx, collection, model)
}

func (c *GetGemsClient) floor(ctx context.Context, collection, model string) (*decimal.Decimal, error) {
	items, err := c.onSale(ctx, GetGemsPageCap)
	if err != nil {
		return nil, err
	}
	wantGift := types.CleanName(collection)
	wantModel := types.CleanName(model)
	var matched []RawItem
	for _, item := range items {
		if types.CleanName(Str(item, "name")) != wantGift {
			continue
		}
		if wantModel != "" && types.CleanName(Str(item, "model")) != wantModel {
			continue
		}
		matched = append(matched, item)
	}
	return minPrice(matched, "price"), nil
}

// SalesHistory is a stub: the public API exposes no completed-sales feed,
// so GetGems listings get their sales block from the Tonnel oracle.
func (c *GetGemsClient) SalesHistory(_ context.Context, _, _ string, _ int) ([]types.Sale, error) {
	return []types.Sale{}, nil
}
