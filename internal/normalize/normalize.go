// Package normalize turns raw marketplace items into canonical listings.
//
// Venues disagree on almost every field name, so extraction walks candidate
// keys in priority order. Items that cannot yield a collection name and a
// positive price are rejected; everything downstream relies on those two.
package normalize

import (
	"fmt"
	"strconv"
	"strings"

	"giftwatch/internal/marketplace"
	"giftwatch/pkg/types"
)

var (
	collectionKeys = []string{"collectionName", "collection_name", "gift_name", "giftName", "collection", "name"}
	modelKeys      = []string{"model", "modelName", "model_name"}
	backdropKeys   = []string{"backdrop", "backdropName", "backdrop_name"}
	numberKeys     = []string{"gift_number", "external_collection_number", "externalCollectionNumber", "gift_num", "number", "giftNumber"}
	photoKeys      = []string{"photo_url", "photoUrl", "image_url", "imageUrl", "image", "photo"}
	priceKeys      = []string{
		"price", "tonPrice", "ton_price", "priceTON", "price_ton",
		"amount", "salePrice", "sale_price", "listPrice", "list_price", "raw_price",
	}
	rarityKeys = []string{"model_rarity", "modelRarity", "rarity_per_mille", "rarity"}
)

// idKeys is per-venue: the same key means different things on different venues.
var idKeys = map[types.Marketplace][]string{
	types.Portals: {"id", "gift_id", "nft_id"},
	types.Tonnel:  {"gift_id", "id"},
	types.MRKT:    {"id"},
	types.GetGems: {"id", "address"},
}

// ToListing converts one raw item into a canonical listing. The conversion
// is idempotent: feeding a marshalled Listing back through produces the
// same result.
func ToListing(mp types.Marketplace, item marketplace.RawItem) (types.Listing, error) {
	l := types.Listing{Marketplace: mp}

	l.ListingID = scalarString(item, idKeys[mp]...)
	if l.ListingID == "" {
		return types.Listing{}, fmt.Errorf("%s: item has no usable id", mp)
	}

	l.CollectionName = marketplace.Str(item, collectionKeys...)
	if l.CollectionName == "" {
		return types.Listing{}, fmt.Errorf("%s %s: empty collection name", mp, l.ListingID)
	}

	price, ok := marketplace.ParseTON(marketplace.Field(item, priceKeys...))
	if !ok {
		return types.Listing{}, fmt.Errorf("%s %s: no positive price", mp, l.ListingID)
	}
	l.PriceTON = price

	l.ModelName = marketplace.Str(item, modelKeys...)
	l.BackdropName = marketplace.Str(item, backdropKeys...)
	l.GiftNumber = scalarString(item, numberKeys...)
	l.PhotoURL = marketplace.Str(item, photoKeys...)
	l.ModelRarity = rarity(item)

	extractAttributes(item, &l)

	if l.ModelName == "" {
		l.ModelName = types.ModelUnknown
	}
	if l.GiftNumber == "" {
		l.GiftNumber = types.NumberUnknown
	}
	if mp == types.MRKT {
		l.Hash32 = marketplace.Str(item, "mrkt_hash", "marketplace_id")
	}
	return l, nil
}

// extractAttributes pulls model/backdrop from a Portals-style attributes
// array when the flat keys were absent.
func extractAttributes(item marketplace.RawItem, l *types.Listing) {
	attrs, ok := item["attributes"].([]any)
	if !ok {
		return
	}
	for _, a := range attrs {
		attr, ok := a.(map[string]any)
		if !ok {
			continue
		}
		typ, _ := attr["type"].(string)
		val, _ := attr["value"].(string)
		switch strings.ToLower(typ) {
		case "model":
			if l.ModelName == "" && val != "" {
				l.ModelName = val
			}
			if l.ModelRarity == "" {
				if pm, ok := attr["rarity_per_mille"].(float64); ok && pm > 0 {
					l.ModelRarity = formatPercent(pm / 10)
				}
			}
		case "backdrop":
			if l.BackdropName == "" && val != "" {
				l.BackdropName = val
			}
		}
	}
}

// rarity extracts the model rarity as a display string. Per-mille values
// become percentages; bare numbers get a percent sign; strings pass through.
// As a last resort any key containing "rarity" or "tier" is scanned.
func rarity(item marketplace.RawItem) string {
	for _, k := range rarityKeys {
		v, ok := item[k]
		if !ok || v == nil {
			continue
		}
		if s := rarityValue(k, v); s != "" {
			return s
		}
	}
	for k, v := range item {
		lk := strings.ToLower(k)
		if !strings.Contains(lk, "rarity") && !strings.Contains(lk, "tier") {
			continue
		}
		if s := rarityValue(k, v); s != "" {
			return s
		}
	}
	return ""
}

func rarityValue(key string, v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		if x <= 0 {
			return ""
		}
		if strings.Contains(strings.ToLower(key), "mille") {
			return formatPercent(x / 10)
		}
		return formatPercent(x)
	}
	return ""
}

func formatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "%"
}

// scalarString extracts a value that may arrive as a string or a JSON
// number; numbers are rendered without a fractional part.
func scalarString(item marketplace.RawItem, keys ...string) string {
	for _, k := range keys {
		switch v := item[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', 0, 64)
		}
	}
	return ""
}
