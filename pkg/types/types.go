// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the monitor — marketplaces,
// canonical listings, enrichment results, and user filter rules. It has no
// dependencies on internal packages, so it can be imported by any layer.
package types

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Marketplace identifies one of the supported Telegram-gift venues.
type Marketplace string

const (
	Portals Marketplace = "portals"
	Tonnel  Marketplace = "tonnel"
	MRKT    Marketplace = "mrkt"
	GetGems Marketplace = "getgems"
)

// AllMarketplaces lists every supported venue in canonical order.
var AllMarketplaces = []Marketplace{Portals, Tonnel, MRKT, GetGems}

// DisplayName returns the human-readable venue name used in messages.
func (m Marketplace) DisplayName() string {
	switch m {
	case Portals:
		return "Portals"
	case Tonnel:
		return "Tonnel"
	case MRKT:
		return "MRKT"
	case GetGems:
		return "GetGems"
	default:
		return string(m)
	}
}

// Valid reports whether m is one of the supported venues.
func (m Marketplace) Valid() bool {
	switch m {
	case Portals, Tonnel, MRKT, GetGems:
		return true
	}
	return false
}

// SortKey enumerates the listing sort orders an adapter can request.
// Each adapter translates these into its venue's native sort parameters.
type SortKey string

const (
	SortLatest          SortKey = "latest"
	SortPriceAsc        SortKey = "price_asc"
	SortPriceDesc       SortKey = "price_desc"
	SortGiftIDAsc       SortKey = "gift_id_asc"
	SortGiftIDDesc      SortKey = "gift_id_desc"
	SortModelRarityAsc  SortKey = "model_rarity_asc"
	SortModelRarityDesc SortKey = "model_rarity_desc"
)

// ————————————————————————————————————————————————————————————————————————
// Listings
// ————————————————————————————————————————————————————————————————————————

// ModelUnknown is the sentinel for a listing whose model could not be
// determined. It never matches a concrete model filter.
const ModelUnknown = "N/A"

// NumberUnknown is the sentinel for a listing without a resolvable gift number.
const NumberUnknown = "N/A"

var hex32Re = regexp.MustCompile(`^[0-9a-f]{32}$`)

// Listing is the canonical, marketplace-independent view of one active
// listing. Adapters produce raw items; the normalizer turns them into this.
type Listing struct {
	Marketplace    Marketplace     `json:"marketplace"`
	ListingID      string          `json:"id"`
	CollectionName string          `json:"name"`
	ModelName      string          `json:"model"`    // ModelUnknown when absent
	BackdropName   string          `json:"backdrop"` // empty when absent
	GiftNumber     string          `json:"gift_number"`
	PriceTON       decimal.Decimal `json:"price"`
	ModelRarity    string          `json:"model_rarity,omitempty"` // e.g. "1.5%", empty when unknown
	PhotoURL       string          `json:"photo_url"`
	Hash32         string          `json:"marketplace_id,omitempty"` // MRKT 32-hex hash, empty otherwise
}

// CompositeID is the global dedup key: "{marketplace}_{listing_id}".
// Identical numeric gifts listed on two venues stay distinct.
func (l Listing) CompositeID() string {
	return fmt.Sprintf("%s_%s", l.Marketplace, l.ListingID)
}

// MarketplaceLink builds the deep link that opens this listing on its venue.
// For MRKT the link requires a valid 32-hex hash; without one it is empty.
func (l Listing) MarketplaceLink() string {
	switch l.Marketplace {
	case Portals:
		return "https://t.me/portals/market?startapp=gift_" + l.ListingID
	case Tonnel:
		return "https://t.me/tonnel_network_bot/gift?startapp=" + l.ListingID
	case MRKT:
		if hex32Re.MatchString(l.Hash32) {
			return "https://t.me/mrkt/app?startapp=" + l.Hash32
		}
		return ""
	case GetGems:
		return "https://getgems.io/nft/" + l.ListingID
	}
	return ""
}

// NFTLink builds the venue-independent t.me/nft/{slug}-{number} link.
// The slug keeps only alphanumerics and hyphens from the collection name.
// Empty when the gift number is unknown.
func (l Listing) NFTLink() string {
	if l.GiftNumber == "" || l.GiftNumber == NumberUnknown {
		return ""
	}
	slug := nftSlug(l.CollectionName)
	if slug == "" {
		return ""
	}
	return fmt.Sprintf("https://t.me/nft/%s-%s", slug, l.GiftNumber)
}

func nftSlug(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ————————————————————————————————————————————————————————————————————————
// Enrichment
// ————————————————————————————————————————————————————————————————————————

// Sale is one historical sale of a gift model, used for the message's
// sales-history block.
type Sale struct {
	Marketplace    Marketplace
	CollectionName string
	ModelName      string
	GiftNumber     string
	PriceTON       decimal.Decimal
	SoldAt         time.Time // zero when the venue did not report a time
}

// Enrichment carries the supplementary market context attached to a listing
// before dispatch. Nil floors mean the lookup failed or timed out; the
// formatter omits those lines rather than guessing.
type Enrichment struct {
	GiftFloor  *decimal.Decimal
	ModelFloor *decimal.Decimal
	Sales      []Sale
}

// ————————————————————————————————————————————————————————————————————————
// User filter rules
// ————————————————————————————————————————————————————————————————————————

// Any is the wildcard element in rule lists: a list containing Any (or an
// empty list) matches every value. The sentinel is uppercase everywhere.
const Any = "ANY"

// Rule is one user subscription: which collections, models, backdrops and
// venues the user wants, within an optional price band. Name comparison is
// case-insensitive after stripping "(...)" rarity suffixes.
type Rule struct {
	Collections  []string         `json:"collections"`
	Models       []string         `json:"models"`
	Backdrops    []string         `json:"backdrops"`
	Marketplaces []Marketplace    `json:"marketplaces"`
	MinPrice     *decimal.Decimal `json:"price_min,omitempty"`
	MaxPrice     *decimal.Decimal `json:"price_max,omitempty"`
}

// AllowsMarketplace reports whether the rule covers listings from m.
// An empty marketplace list means all venues.
func (r Rule) AllowsMarketplace(m Marketplace) bool {
	if len(r.Marketplaces) == 0 {
		return true
	}
	for _, mp := range r.Marketplaces {
		if mp == m {
			return true
		}
	}
	return false
}

var raritySuffixRe = regexp.MustCompile(`\s*\([^)]*\)`)

// CleanName lowercases a collection/model/backdrop name and strips any
// parenthesized rarity suffix, e.g. "Astral Shard (1.2%)" -> "astral shard".
func CleanName(name string) string {
	return strings.ToLower(strings.TrimSpace(raritySuffixRe.ReplaceAllString(name, "")))
}
