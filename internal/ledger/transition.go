package ledger

import (
	"fmt"
	"strings"
)

// applied is the computed outcome of one trade against a snapshot.
// Nothing is mutated until the caller writes it back inside the same
// transaction the snapshot was read in.
type applied struct {
	TotalCents      int64
	NewCashCents    int64
	NewQuantity     int64
	NewAvgCostCents int64
	RemoveHolding   bool
	HadHolding      bool
}

func validateOrder(in TradeInput) error {
	if strings.TrimSpace(in.UserID) == "" || in.GameID <= 0 {
		return fmt.Errorf("%w: user and game are required", ErrInvalidParameters)
	}
	if err := ValidateSymbol(in.Symbol); err != nil {
		return err
	}
	if in.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be > 0", ErrInvalidParameters)
	}
	if in.PriceCents < 0 {
		return fmt.Errorf("%w: price must be > 0", ErrInvalidParameters)
	}
	if in.Side != SideBuy && in.Side != SideSell {
		return fmt.Errorf("%w: side must be buy or sell", ErrInvalidParameters)
	}
	return nil
}

// apply runs the canonical buy/sell state transition. Invariants: cash
// never goes negative, a sell never exceeds the held quantity, and the
// average cost rolls as a quantity-weighted average on buys only.
func apply(snap Snapshot, symbol string, quantity, priceCents int64, side Side) (applied, error) {
	var out applied
	if priceCents <= 0 {
		return out, fmt.Errorf("%w: price must be > 0", ErrInvalidParameters)
	}
	total, err := mulCents(priceCents, quantity)
	if err != nil {
		return out, err
	}
	out.TotalCents = total
	pos, held := snap.Holdings[symbol]
	out.HadHolding = held

	switch side {
	case SideBuy:
		if snap.CashCents < total {
			return out, fmt.Errorf("%w: available %s, required %s",
				ErrInsufficientFunds, FormatCents(snap.CashCents), FormatCents(total))
		}
		out.NewCashCents = snap.CashCents - total
		if !held {
			out.NewQuantity = quantity
			out.NewAvgCostCents = priceCents
			return out, nil
		}
		out.NewQuantity = pos.Quantity + quantity
		oldCost, err := mulCents(pos.AvgCostCents, pos.Quantity)
		if err != nil {
			return out, err
		}
		avg, err := divRound(oldCost+total, out.NewQuantity)
		if err != nil {
			return out, err
		}
		out.NewAvgCostCents = avg
		return out, nil

	case SideSell:
		if !held || pos.Quantity < quantity {
			have := int64(0)
			if held {
				have = pos.Quantity
			}
			return out, fmt.Errorf("%w: holding %d shares of %s, requested %d",
				ErrInsufficientShares, have, symbol, quantity)
		}
		out.NewCashCents = snap.CashCents + total
		out.NewQuantity = pos.Quantity - quantity
		out.NewAvgCostCents = pos.AvgCostCents
		out.RemoveHolding = out.NewQuantity == 0
		return out, nil
	}
	return out, fmt.Errorf("%w: side must be buy or sell", ErrInvalidParameters)
}

// costBasisCents values the holdings at average cost. Used for the
// stored portfolio value column and as the per-symbol valuation
// fallback when a quote lookup fails.
func costBasisCents(holdings map[string]Holding) (int64, error) {
	var sum int64
	for _, h := range holdings {
		v, err := mulCents(h.AvgCostCents, h.Quantity)
		if err != nil {
			return 0, err
		}
		sum += v
	}
	return sum, nil
}

// valueSnapshot marks the snapshot to market. priceCents carries the
// quotes that resolved; any missing symbol degrades to cost basis for
// that symbol only.
func valueSnapshot(snap Snapshot, priceCents map[string]int64) (PortfolioView, error) {
	view := PortfolioView{
		CashCents:           snap.CashCents,
		InitialBalanceCents: snap.InitialBalanceCents,
	}
	total := snap.CashCents
	for _, h := range snap.Holdings {
		hv := HoldingView{
			Symbol:       h.Symbol,
			Quantity:     h.Quantity,
			AvgCostCents: h.AvgCostCents,
		}
		price, ok := priceCents[h.Symbol]
		if !ok || price <= 0 {
			price = h.AvgCostCents
			hv.PricedAtCost = true
		}
		hv.PriceCents = price
		market, err := mulCents(price, h.Quantity)
		if err != nil {
			return view, err
		}
		cost, err := mulCents(h.AvgCostCents, h.Quantity)
		if err != nil {
			return view, err
		}
		hv.MarketCents = market
		hv.UnrealizedCents = market - cost
		total += market
		view.Holdings = append(view.Holdings, hv)
	}
	view.TotalValueCents = total
	view.TotalReturnCents = total - snap.InitialBalanceCents
	if snap.InitialBalanceCents > 0 {
		view.TotalReturnPct = float64(view.TotalReturnCents) / float64(snap.InitialBalanceCents) * 100
	}
	return view, nil
}
