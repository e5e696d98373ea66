package social

import (
	"testing"
	"time"

	"tickerclub/internal/ledger"
)

func TestComposeContentBuy(t *testing.T) {
	got := ComposeContent(ledger.SideBuy, 10, "AAPL", 5000, 50_000, "")
	want := "Bought 10 shares of AAPL for $50.00 each. Total: $500.00"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestComposeContentSellWithNote(t *testing.T) {
	got := ComposeContent(ledger.SideSell, 5, "MSFT", 30_000, 150_000, "  taking profits  ")
	want := "Sold 5 shares of MSFT for $300.00 each. Total: $1500.00 taking profits"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestEventFromTrade(t *testing.T) {
	executed := time.Date(2026, 3, 14, 15, 9, 0, 0, time.UTC)
	trade := ledger.TradeRecord{
		ID:         "t-1",
		UserID:     "u-1",
		GameID:     42,
		Symbol:     "AAPL",
		Quantity:   10,
		PriceCents: 5000,
		Side:       ledger.SideBuy,
		TotalCents: 50_000,
		ExecutedAt: executed,
	}
	ev := eventFromTrade(trade, "first buy")

	if ev.TradeID != "t-1" || ev.UserID != "u-1" || ev.GameID != 42 {
		t.Fatalf("identity fields wrong: %+v", ev)
	}
	if ev.Side != "buy" || ev.Quantity != 10 || ev.PriceCents != 5000 || ev.TotalCents != 50_000 {
		t.Fatalf("trade fields wrong: %+v", ev)
	}
	if !ev.PostedAt.Equal(executed) {
		t.Fatalf("posted at got %v want %v", ev.PostedAt, executed)
	}
	want := "Bought 10 shares of AAPL for $50.00 each. Total: $500.00 first buy"
	if ev.Content != want {
		t.Fatalf("content got %q want %q", ev.Content, want)
	}
}
