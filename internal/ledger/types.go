package ledger

import "time"

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

type TradeInput struct {
	UserID   string
	GameID   int64
	Symbol   string
	Quantity int64
	// PriceCents of zero means "price the order through the oracle".
	PriceCents int64
	Side       Side
	Note       string
}

type TradeResult struct {
	TradeID          string `json:"trade_id"`
	Symbol           string `json:"symbol"`
	Side             Side   `json:"side"`
	Quantity         int64  `json:"quantity"`
	PriceCents       int64  `json:"price_cents"`
	TotalCents       int64  `json:"total_cents"`
	NewCashCents     int64  `json:"new_cash_cents"`
	NewStockQuantity int64  `json:"new_stock_quantity"`
	// PostWarning carries a best-effort feed failure without failing
	// the trade itself.
	PostWarning string `json:"post_warning,omitempty"`
}

type Holding struct {
	Symbol       string `json:"symbol"`
	Quantity     int64  `json:"quantity"`
	AvgCostCents int64  `json:"avg_cost_cents"`
}

// Snapshot is the transaction-local view of one (user, game) ledger.
type Snapshot struct {
	CashCents           int64
	InitialBalanceCents int64
	Holdings            map[string]Holding
}

type HoldingView struct {
	Symbol          string `json:"symbol"`
	Quantity        int64  `json:"quantity"`
	AvgCostCents    int64  `json:"avg_cost_cents"`
	PriceCents      int64  `json:"price_cents"`
	MarketCents     int64  `json:"market_cents"`
	UnrealizedCents int64  `json:"unrealized_cents"`
	// PricedAtCost marks a holding whose quote lookup failed and was
	// valued at its cost basis instead.
	PricedAtCost bool `json:"priced_at_cost"`
}

type PortfolioView struct {
	GameID              int64         `json:"game_id"`
	CashCents           int64         `json:"cash_cents"`
	TotalValueCents     int64         `json:"total_value_cents"`
	InitialBalanceCents int64         `json:"initial_balance_cents"`
	TotalReturnCents    int64         `json:"total_return_cents"`
	TotalReturnPct      float64       `json:"total_return_pct"`
	Holdings            []HoldingView `json:"holdings"`
}

type TradeRecord struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	GameID     int64     `json:"game_id"`
	Symbol     string    `json:"symbol"`
	Quantity   int64     `json:"quantity"`
	PriceCents int64     `json:"price_cents"`
	Side       Side      `json:"side"`
	TotalCents int64     `json:"total_cents"`
	ExecutedAt time.Time `json:"executed_at"`
}

type LeaderboardRow struct {
	Rank            int64   `json:"rank"`
	UserID          string  `json:"user_id"`
	TotalValueCents int64   `json:"total_value_cents"`
	TotalReturnPct  float64 `json:"total_return_pct"`
}
