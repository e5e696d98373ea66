package social

import (
	"fmt"
	"strings"
	"time"

	"tickerclub/internal/ledger"
)

// TradePosted is the feed event emitted after a trade commits. The feed
// worker materializes it into a post row; consumers must treat it as
// at-least-once.
type TradePosted struct {
	TradeID    string    `json:"trade_id"`
	UserID     string    `json:"user_id"`
	GameID     int64     `json:"game_id"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	Quantity   int64     `json:"quantity"`
	PriceCents int64     `json:"price_cents"`
	TotalCents int64     `json:"total_cents"`
	Content    string    `json:"content"`
	PostedAt   time.Time `json:"posted_at"`
}

// ComposeContent renders the canonical trade post text, optionally
// appending the trader's note.
func ComposeContent(side ledger.Side, quantity int64, symbol string, priceCents, totalCents int64, note string) string {
	verb := "Bought"
	if side == ledger.SideSell {
		verb = "Sold"
	}
	content := fmt.Sprintf("%s %d shares of %s for %s each. Total: %s",
		verb, quantity, symbol, ledger.FormatCents(priceCents), ledger.FormatCents(totalCents))
	note = strings.TrimSpace(note)
	if note != "" {
		content += " " + note
	}
	return content
}

func eventFromTrade(t ledger.TradeRecord, note string) TradePosted {
	return TradePosted{
		TradeID:    t.ID,
		UserID:     t.UserID,
		GameID:     t.GameID,
		Symbol:     t.Symbol,
		Side:       string(t.Side),
		Quantity:   t.Quantity,
		PriceCents: t.PriceCents,
		TotalCents: t.TotalCents,
		Content:    ComposeContent(t.Side, t.Quantity, t.Symbol, t.PriceCents, t.TotalCents, note),
		PostedAt:   t.ExecutedAt,
	}
}
