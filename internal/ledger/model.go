package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

const (
	CentsPerDollar = int64(100)

	// DefaultStartingCashCents seeds a portfolio that is created lazily
	// on first trade, outside the normal join path.
	DefaultStartingCashCents = int64(100_000) * CentsPerDollar
)

var (
	ErrInvalidParameters   = errors.New("invalid parameters")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInsufficientShares  = errors.New("insufficient shares")
	ErrPortfolioNotFound   = errors.New("portfolio not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrPersistence         = errors.New("persistence failure")
	ErrOracleUnavailable   = errors.New("price oracle unavailable")
	ErrTxConflict          = errors.New("transaction conflict, retry later")
)

var symbolRE = regexp.MustCompile(`^[A-Z]{1,8}$`)

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func ValidateSymbol(symbol string) error {
	if !symbolRE.MatchString(strings.TrimSpace(symbol)) {
		return fmt.Errorf("%w: symbol must be 1-8 uppercase letters", ErrInvalidParameters)
	}
	return nil
}

func DollarsToCents(v float64) int64 {
	if v >= 0 {
		return int64(v*float64(CentsPerDollar) + 0.5)
	}
	return int64(v*float64(CentsPerDollar) - 0.5)
}

func CentsToDollars(v int64) float64 {
	return float64(v) / float64(CentsPerDollar)
}

// FormatCents renders an amount for user-facing error and post text.
func FormatCents(v int64) string {
	return fmt.Sprintf("$%.2f", CentsToDollars(v))
}

func mulCents(priceCents, quantity int64) (int64, error) {
	v := new(big.Int).Mul(big.NewInt(priceCents), big.NewInt(quantity))
	if !v.IsInt64() {
		return 0, fmt.Errorf("%w: order notional overflows", ErrInvalidParameters)
	}
	return v.Int64(), nil
}

// divRound divides with half-up rounding, used for the weighted average
// cost so a buy never drops more than half a cent of cost basis.
func divRound(total, quantity int64) (int64, error) {
	if quantity <= 0 {
		return 0, fmt.Errorf("%w: quantity must be > 0", ErrInvalidParameters)
	}
	num := new(big.Int).Mul(big.NewInt(total), big.NewInt(2))
	num.Add(num, big.NewInt(quantity))
	num.Div(num, big.NewInt(2*quantity))
	if !num.IsInt64() {
		return 0, fmt.Errorf("%w: average cost overflows", ErrInvalidParameters)
	}
	return num.Int64(), nil
}
