// Package notify turns matched listings into Telegram messages and
// delivers them. The dispatcher owns the pipeline tail: enrichment,
// recipient resolution, formatting, and fan-out.
package notify

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"giftwatch/pkg/types"
)

// maxSaleLines caps the sales block in a message.
const maxSaleLines = 5

// Button is the single inline keyboard button under a message.
type Button struct {
	Text string
	URL  string
}

// Message is a fully rendered notification, ready for any sender.
// Text uses Telegram HTML markup.
type Message struct {
	Text     string
	PhotoURL string
	Button   *Button
}

// Build renders the notification for one listing. price is the
// fee-adjusted display price. now anchors the relative dates in the
// sales block.
func Build(l types.Listing, price decimal.Decimal, enr types.Enrichment, now time.Time) Message {
	var b strings.Builder

	b.WriteString("✔️ ЛИСТИНГ\n")

	name := fmt.Sprintf("%s #%s", l.CollectionName, l.GiftNumber)
	writeLinked(&b, name, l.NFTLink())

	b.WriteString(" на ")
	writeLinked(&b, l.Marketplace.DisplayName(), l.MarketplaceLink())

	fmt.Fprintf(&b, " за %s TON", price.StringFixed(2))

	if l.ModelName != types.ModelUnknown {
		fmt.Fprintf(&b, "\nМодель: %s", html.EscapeString(l.ModelName))
	}

	var floors []string
	if enr.GiftFloor != nil {
		floors = append(floors, fmt.Sprintf("Флор гифта: %s TON", enr.GiftFloor.StringFixed(2)))
	}
	if enr.ModelFloor != nil && l.ModelName != types.ModelUnknown {
		floors = append(floors, fmt.Sprintf("Флор модели: %s TON", enr.ModelFloor.StringFixed(2)))
	}
	if len(floors) > 0 {
		b.WriteString("\n\n")
		b.WriteString(strings.Join(floors, "\n"))
	}

	if len(enr.Sales) > 0 {
		b.WriteString("\n\n<blockquote>")
		sales := enr.Sales
		if len(sales) > maxSaleLines {
			sales = sales[:maxSaleLines]
		}
		lines := make([]string, 0, len(sales))
		for _, s := range sales {
			lines = append(lines, saleLine(s, now))
		}
		b.WriteString(strings.Join(lines, "\n"))
		b.WriteString("</blockquote>")
	}

	msg := Message{Text: b.String(), PhotoURL: l.PhotoURL}
	if url := l.MarketplaceLink(); url != "" {
		msg.Button = &Button{
			Text: "🔗 Открыть на " + l.Marketplace.DisplayName(),
			URL:  url,
		}
	}
	return msg
}

// writeLinked appends text as an HTML anchor when url is non-empty,
// plain escaped text otherwise.
func writeLinked(b *strings.Builder, text, url string) {
	if url == "" {
		b.WriteString(html.EscapeString(text))
		return
	}
	fmt.Fprintf(b, "<a href='%s'>%s</a>", url, html.EscapeString(text))
}

// saleLine renders one past sale: a gift link when the number is known,
// price, venue, and a relative date.
func saleLine(s types.Sale, now time.Time) string {
	var b strings.Builder

	link := types.Listing{
		CollectionName: s.CollectionName,
		GiftNumber:     s.GiftNumber,
	}.NFTLink()
	writeLinked(&b, "#"+s.GiftNumber, link)

	venue := s.Marketplace
	if !venue.Valid() {
		venue = types.Tonnel
	}
	fmt.Fprintf(&b, " за %s TON на %s", s.PriceTON.StringFixed(1), venue.DisplayName())

	if !s.SoldAt.IsZero() {
		b.WriteString(" - ")
		b.WriteString(relativeDate(s.SoldAt, now))
	}
	return b.String()
}

// relativeDate renders a Russian relative timestamp with the case
// endings the minute and hour counts need. Anything older than a week
// falls back to DD.MM.YYYY.
func relativeDate(t, now time.Time) string {
	d := now.Sub(t)
	if d < 0 {
		d = 0
	}

	switch mins := int(d.Minutes()); {
	case mins < 1:
		return "только что"
	case mins == 1:
		return "1 минуту назад"
	case mins < 5:
		return fmt.Sprintf("%d минуты назад", mins)
	case mins < 60:
		return fmt.Sprintf("%d минут назад", mins)
	}

	switch hours := int(d.Hours()); {
	case hours == 1:
		return "1 час назад"
	case hours < 24:
		return fmt.Sprintf("%d часов назад", hours)
	}

	switch days := int(d.Hours() / 24); {
	case days == 0:
		return "сегодня"
	case days == 1:
		return "1 день назад"
	case days < 7:
		return fmt.Sprintf("%d дней назад", days)
	}
	return t.Format("02.01.2006")
}
