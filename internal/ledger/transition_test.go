package ledger

import (
	"errors"
	"testing"
)

func freshSnapshot() Snapshot {
	return Snapshot{
		CashCents:           DefaultStartingCashCents,
		InitialBalanceCents: DefaultStartingCashCents,
		Holdings:            map[string]Holding{},
	}
}

func mustApply(t *testing.T, snap Snapshot, symbol string, qty, price int64, side Side) (Snapshot, applied) {
	t.Helper()
	ap, err := apply(snap, symbol, qty, price, side)
	if err != nil {
		t.Fatalf("apply %s %d %s @ %d: %v", side, qty, symbol, price, err)
	}
	next := Snapshot{
		CashCents:           ap.NewCashCents,
		InitialBalanceCents: snap.InitialBalanceCents,
		Holdings:            cloneHoldings(snap.Holdings),
	}
	if ap.RemoveHolding {
		delete(next.Holdings, symbol)
	} else {
		next.Holdings[symbol] = Holding{Symbol: symbol, Quantity: ap.NewQuantity, AvgCostCents: ap.NewAvgCostCents}
	}
	return next, ap
}

func TestBuyCreatesPosition(t *testing.T) {
	snap, ap := mustApply(t, freshSnapshot(), "AAPL", 10, 5000, SideBuy)

	if ap.TotalCents != 50_000 {
		t.Fatalf("total got %d want 50000", ap.TotalCents)
	}
	if snap.CashCents != DefaultStartingCashCents-50_000 {
		t.Fatalf("cash got %d want %d", snap.CashCents, DefaultStartingCashCents-50_000)
	}
	h := snap.Holdings["AAPL"]
	if h.Quantity != 10 || h.AvgCostCents != 5000 {
		t.Fatalf("holding got %+v want qty=10 avg=5000", h)
	}
}

func TestBuyRollsWeightedAverageCost(t *testing.T) {
	snap, _ := mustApply(t, freshSnapshot(), "AAPL", 10, 5000, SideBuy)
	snap, _ = mustApply(t, snap, "AAPL", 10, 6000, SideBuy)

	h := snap.Holdings["AAPL"]
	if h.Quantity != 20 {
		t.Fatalf("quantity got %d want 20", h.Quantity)
	}
	if h.AvgCostCents != 5500 {
		t.Fatalf("avg cost got %d want 5500", h.AvgCostCents)
	}
	if snap.CashCents != DefaultStartingCashCents-110_000 {
		t.Fatalf("cash got %d want %d", snap.CashCents, DefaultStartingCashCents-110_000)
	}
}

func TestSellMoreThanHeldFails(t *testing.T) {
	snap, _ := mustApply(t, freshSnapshot(), "AAPL", 20, 5500, SideBuy)

	_, err := apply(snap, "AAPL", 25, 7000, SideSell)
	if !errors.Is(err, ErrInsufficientShares) {
		t.Fatalf("got %v want ErrInsufficientShares", err)
	}

	// Snapshot untouched by the rejected sell.
	if snap.Holdings["AAPL"].Quantity != 20 {
		t.Fatalf("holding mutated by failed sell: %+v", snap.Holdings["AAPL"])
	}
}

func TestSellEntirePositionRemovesHolding(t *testing.T) {
	snap, _ := mustApply(t, freshSnapshot(), "AAPL", 10, 5000, SideBuy)
	snap, _ = mustApply(t, snap, "AAPL", 10, 6000, SideBuy)
	snap, ap := mustApply(t, snap, "AAPL", 20, 7000, SideSell)

	if !ap.RemoveHolding {
		t.Fatalf("expected position removal at zero quantity")
	}
	if _, held := snap.Holdings["AAPL"]; held {
		t.Fatalf("holding should be gone after full sell")
	}
	want := DefaultStartingCashCents - 110_000 + 140_000
	if snap.CashCents != want {
		t.Fatalf("cash got %d want %d", snap.CashCents, want)
	}
}

func TestBuyBeyondCashFails(t *testing.T) {
	snap := freshSnapshot()
	snap.CashCents = 49_999

	_, err := apply(snap, "AAPL", 10, 5000, SideBuy)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("got %v want ErrInsufficientFunds", err)
	}
}

func TestSellLeavesAverageCostUnchanged(t *testing.T) {
	snap, _ := mustApply(t, freshSnapshot(), "MSFT", 30, 4000, SideBuy)
	snap, _ = mustApply(t, snap, "MSFT", 10, 9000, SideSell)

	h := snap.Holdings["MSFT"]
	if h.Quantity != 20 || h.AvgCostCents != 4000 {
		t.Fatalf("got %+v want qty=20 avg=4000", h)
	}
}

func TestCashNeverNegativeAcrossSequence(t *testing.T) {
	snap := freshSnapshot()
	trades := []struct {
		symbol string
		qty    int64
		price  int64
		side   Side
	}{
		{"AAPL", 100, 15_000, SideBuy},
		{"MSFT", 50, 30_000, SideBuy},
		{"AAPL", 40, 16_000, SideSell},
		{"GOOG", 10, 250_000, SideBuy},
		{"MSFT", 50, 28_000, SideSell},
	}
	for _, tr := range trades {
		var ap applied
		snap, ap = mustApply(t, snap, tr.symbol, tr.qty, tr.price, tr.side)
		if snap.CashCents < 0 {
			t.Fatalf("cash went negative after %s %d %s: %d", tr.side, tr.qty, tr.symbol, snap.CashCents)
		}
		if !ap.RemoveHolding && ap.NewQuantity < 0 {
			t.Fatalf("quantity went negative: %+v", ap)
		}
	}
}

func TestValidateOrder(t *testing.T) {
	valid := TradeInput{UserID: "u1", GameID: 1, Symbol: "AAPL", Quantity: 5, Side: SideBuy}
	if err := validateOrder(valid); err != nil {
		t.Fatalf("expected valid order: %v", err)
	}

	cases := []TradeInput{
		{UserID: "", GameID: 1, Symbol: "AAPL", Quantity: 5, Side: SideBuy},
		{UserID: "u1", GameID: 0, Symbol: "AAPL", Quantity: 5, Side: SideBuy},
		{UserID: "u1", GameID: 1, Symbol: "aapl9", Quantity: 5, Side: SideBuy},
		{UserID: "u1", GameID: 1, Symbol: "AAPL", Quantity: 0, Side: SideBuy},
		{UserID: "u1", GameID: 1, Symbol: "AAPL", Quantity: -3, Side: SideSell},
		{UserID: "u1", GameID: 1, Symbol: "AAPL", Quantity: 5, PriceCents: -1, Side: SideBuy},
		{UserID: "u1", GameID: 1, Symbol: "AAPL", Quantity: 5, Side: Side("hold")},
	}
	for _, in := range cases {
		if err := validateOrder(in); !errors.Is(err, ErrInvalidParameters) {
			t.Fatalf("input %+v: got %v want ErrInvalidParameters", in, err)
		}
	}
}

func TestCostBasis(t *testing.T) {
	holdings := map[string]Holding{
		"AAPL": {Symbol: "AAPL", Quantity: 10, AvgCostCents: 5000},
		"MSFT": {Symbol: "MSFT", Quantity: 4, AvgCostCents: 30_000},
	}
	got, err := costBasisCents(holdings)
	if err != nil {
		t.Fatalf("cost basis: %v", err)
	}
	if got != 170_000 {
		t.Fatalf("got %d want 170000", got)
	}
}

func TestValueSnapshotMarksToMarket(t *testing.T) {
	snap := Snapshot{
		CashCents:           1_000_00,
		InitialBalanceCents: 2_000_00,
		Holdings: map[string]Holding{
			"AAPL": {Symbol: "AAPL", Quantity: 10, AvgCostCents: 5000},
		},
	}
	view, err := valueSnapshot(snap, map[string]int64{"AAPL": 6000})
	if err != nil {
		t.Fatalf("value snapshot: %v", err)
	}
	if view.TotalValueCents != 1_000_00+60_000 {
		t.Fatalf("total got %d want %d", view.TotalValueCents, 1_000_00+60_000)
	}
	h := view.Holdings[0]
	if h.PricedAtCost {
		t.Fatalf("expected live pricing for quoted symbol")
	}
	if h.UnrealizedCents != 10_000 {
		t.Fatalf("unrealized got %d want 10000", h.UnrealizedCents)
	}
}

func TestValueSnapshotFallsBackPerSymbol(t *testing.T) {
	snap := Snapshot{
		CashCents:           0,
		InitialBalanceCents: 100_000,
		Holdings: map[string]Holding{
			"AAPL": {Symbol: "AAPL", Quantity: 10, AvgCostCents: 5000},
			"MSFT": {Symbol: "MSFT", Quantity: 2, AvgCostCents: 25_000},
		},
	}
	view, err := valueSnapshot(snap, map[string]int64{"AAPL": 6000})
	if err != nil {
		t.Fatalf("value snapshot: %v", err)
	}
	// AAPL at market, MSFT at cost basis.
	if view.TotalValueCents != 60_000+50_000 {
		t.Fatalf("total got %d want 110000", view.TotalValueCents)
	}
	for _, h := range view.Holdings {
		switch h.Symbol {
		case "AAPL":
			if h.PricedAtCost {
				t.Fatalf("AAPL should be priced at market")
			}
		case "MSFT":
			if !h.PricedAtCost {
				t.Fatalf("MSFT should fall back to cost basis")
			}
			if h.UnrealizedCents != 0 {
				t.Fatalf("cost-based holding reports unrealized %d", h.UnrealizedCents)
			}
		}
	}
}

func TestValueSnapshotReturnPct(t *testing.T) {
	snap := Snapshot{
		CashCents:           150_000,
		InitialBalanceCents: 100_000,
		Holdings:            map[string]Holding{},
	}
	view, err := valueSnapshot(snap, nil)
	if err != nil {
		t.Fatalf("value snapshot: %v", err)
	}
	if view.TotalReturnCents != 50_000 {
		t.Fatalf("return got %d want 50000", view.TotalReturnCents)
	}
	if view.TotalReturnPct != 50 {
		t.Fatalf("return pct got %v want 50", view.TotalReturnPct)
	}
}
