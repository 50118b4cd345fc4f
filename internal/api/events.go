// Package api serves the HTTP/WebSocket feed of dispatched listings.
// Every listing that clears the pipeline is pushed to connected clients
// and kept in a small in-memory ring for the REST endpoint.
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"giftwatch/pkg/types"
)

// Event is the envelope every WebSocket message uses.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// GiftEvent is the payload of a "new_gift" event. Prices carry the
// marketplace fee where the venue charges one, matching what users see
// in Telegram.
type GiftEvent struct {
	Marketplace    string           `json:"marketplace"`
	ListingID      string           `json:"id"`
	Name           string           `json:"name"`
	Model          string           `json:"model"`
	Backdrop       string           `json:"backdrop,omitempty"`
	GiftNumber     string           `json:"gift_number"`
	ModelRarity    string           `json:"model_rarity,omitempty"`
	PriceTON       decimal.Decimal  `json:"price"`
	GiftFloor      *decimal.Decimal `json:"floor_price,omitempty"`
	ModelFloor     *decimal.Decimal `json:"model_floor_price,omitempty"`
	PhotoURL       string           `json:"photo_url,omitempty"`
	MarketplaceURL string           `json:"marketplace_url,omitempty"`
}

// NewGiftEvent builds the event for one dispatched listing.
func NewGiftEvent(l types.Listing, price decimal.Decimal, enr types.Enrichment) Event {
	return Event{
		Type:      "new_gift",
		Timestamp: time.Now(),
		Data: GiftEvent{
			Marketplace:    string(l.Marketplace),
			ListingID:      l.ListingID,
			Name:           l.CollectionName,
			Model:          l.ModelName,
			Backdrop:       l.BackdropName,
			GiftNumber:     l.GiftNumber,
			ModelRarity:    l.ModelRarity,
			PriceTON:       price,
			GiftFloor:      enr.GiftFloor,
			ModelFloor:     enr.ModelFloor,
			PhotoURL:       l.PhotoURL,
			MarketplaceURL: l.MarketplaceLink(),
		},
	}
}
