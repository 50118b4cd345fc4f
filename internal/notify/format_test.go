package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"giftwatch/pkg/types"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func fullListing() types.Listing {
	return types.Listing{
		Marketplace:    types.Portals,
		ListingID:      "abc",
		CollectionName: "Astral Shard",
		ModelName:      "Onyx (1.5%)",
		GiftNumber:     "777",
		PriceTON:       decimal.NewFromInt(10),
		PhotoURL:       "https://img.example/x.jpg",
	}
}

func TestBuildFullMessage(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	enr := types.Enrichment{
		GiftFloor:  dec("5.3"),
		ModelFloor: dec("12.72"),
		Sales: []types.Sale{
			{
				CollectionName: "Astral Shard",
				GiftNumber:     "12",
				PriceTON:       decimal.NewFromInt(9),
				SoldAt:         now.Add(-2 * time.Hour),
			},
		},
	}

	msg := Build(fullListing(), decimal.RequireFromString("10.6"), enr, now)

	want := "✔️ ЛИСТИНГ\n" +
		"<a href='https://t.me/nft/AstralShard-777'>Astral Shard #777</a>" +
		" на <a href='https://t.me/portals/market?startapp=gift_abc'>Portals</a>" +
		" за 10.60 TON\n" +
		"Модель: Onyx (1.5%)\n\n" +
		"Флор гифта: 5.30 TON\n" +
		"Флор модели: 12.72 TON\n\n" +
		"<blockquote>" +
		"<a href='https://t.me/nft/AstralShard-12'>#12</a> за 9.0 TON на Tonnel - 2 часов назад" +
		"</blockquote>"
	if msg.Text != want {
		t.Errorf("text mismatch\n got: %q\nwant: %q", msg.Text, want)
	}
	if msg.PhotoURL != "https://img.example/x.jpg" {
		t.Errorf("photo url = %q", msg.PhotoURL)
	}
	if msg.Button == nil {
		t.Fatal("expected a button")
	}
	if msg.Button.Text != "🔗 Открыть на Portals" {
		t.Errorf("button text = %q", msg.Button.Text)
	}
	if msg.Button.URL != "https://t.me/portals/market?startapp=gift_abc" {
		t.Errorf("button url = %q", msg.Button.URL)
	}
}

func TestBuildMinimalMessage(t *testing.T) {
	t.Parallel()

	// MRKT without a valid hash has no deep link: plain text, no button.
	l := types.Listing{
		Marketplace:    types.MRKT,
		ListingID:      "42",
		CollectionName: "Astral Shard",
		ModelName:      types.ModelUnknown,
		GiftNumber:     types.NumberUnknown,
		PriceTON:       decimal.NewFromInt(5),
	}

	msg := Build(l, decimal.NewFromInt(5), types.Enrichment{}, time.Now())

	want := "✔️ ЛИСТИНГ\nAstral Shard #N/A на MRKT за 5.00 TON"
	if msg.Text != want {
		t.Errorf("text = %q, want %q", msg.Text, want)
	}
	if msg.Button != nil {
		t.Errorf("no marketplace link should mean no button, got %+v", msg.Button)
	}
}

func TestBuildOmitsModelFloorForUnknownModel(t *testing.T) {
	t.Parallel()

	l := fullListing()
	l.ModelName = types.ModelUnknown
	enr := types.Enrichment{GiftFloor: dec("5"), ModelFloor: dec("12")}

	msg := Build(l, l.PriceTON, enr, time.Now())
	if strings.Contains(msg.Text, "Модель") {
		t.Error("unknown model must not render a model line")
	}
	if strings.Contains(msg.Text, "Флор модели") {
		t.Error("unknown model must not render a model floor line")
	}
	if !strings.Contains(msg.Text, "Флор гифта: 5.00 TON") {
		t.Errorf("gift floor line missing:\n%s", msg.Text)
	}
}

func TestBuildEscapesHTML(t *testing.T) {
	t.Parallel()

	l := fullListing()
	l.CollectionName = "Fish & Chips"

	msg := Build(l, l.PriceTON, types.Enrichment{}, time.Now())
	if !strings.Contains(msg.Text, ">Fish &amp; Chips #777<") {
		t.Errorf("collection name not escaped:\n%s", msg.Text)
	}
}

func TestBuildCapsSalesBlock(t *testing.T) {
	t.Parallel()

	now := time.Now()
	var sales []types.Sale
	for i := 0; i < 8; i++ {
		sales = append(sales, types.Sale{
			CollectionName: "Astral Shard",
			GiftNumber:     types.NumberUnknown,
			PriceTON:       decimal.NewFromInt(int64(i + 1)),
			SoldAt:         now.Add(-time.Hour),
		})
	}

	msg := Build(fullListing(), decimal.NewFromInt(10), types.Enrichment{Sales: sales}, now)
	if got := strings.Count(msg.Text, "#N/A за"); got != maxSaleLines {
		t.Errorf("sales block has %d lines, want %d", got, maxSaleLines)
	}
}

func TestRelativeDate(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{0, "только что"},
		{30 * time.Second, "только что"},
		{time.Minute, "1 минуту назад"},
		{3 * time.Minute, "3 минуты назад"},
		{30 * time.Minute, "30 минут назад"},
		{time.Hour, "1 час назад"},
		{5 * time.Hour, "5 часов назад"},
		{25 * time.Hour, "1 день назад"},
		{3 * 24 * time.Hour, "3 дней назад"},
		{10 * 24 * time.Hour, "14.08.2026"},
	}
	for _, tt := range tests {
		if got := relativeDate(now.Add(-tt.ago), now); got != tt.want {
			t.Errorf("relativeDate(-%v) = %q, want %q", tt.ago, got, tt.want)
		}
	}
}
