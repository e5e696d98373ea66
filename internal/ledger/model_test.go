package ledger

import "testing"

func TestValidateSymbol(t *testing.T) {
	valid := []string{"A", "AAPL", "BRKB", "ABCDEFGH"}
	for _, s := range valid {
		if err := ValidateSymbol(s); err != nil {
			t.Fatalf("expected symbol %q to be valid: %v", s, err)
		}
	}

	invalid := []string{"", "aapl", "ABC123", "TOOLONGSYM", "A.B", "AAPL "}
	for _, s := range invalid {
		if err := ValidateSymbol(s); err == nil {
			t.Fatalf("expected symbol %q to fail", s)
		}
	}
}

func TestMulCents(t *testing.T) {
	got, err := mulCents(5000, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 50_000 {
		t.Fatalf("got %d want 50000", got)
	}

	if _, err := mulCents(1<<62, 4); err == nil {
		t.Fatalf("expected overflow to be rejected")
	}
}

func TestDivRoundHalfUp(t *testing.T) {
	tests := []struct {
		total, qty, want int64
	}{
		{110_000, 20, 5500},
		{100, 3, 33},   // 33.33 rounds down
		{101, 2, 51},   // 50.5 rounds up
		{999, 1000, 1}, // 0.999 rounds up
	}
	for _, tc := range tests {
		got, err := divRound(tc.total, tc.qty)
		if err != nil {
			t.Fatalf("divRound(%d, %d): %v", tc.total, tc.qty, err)
		}
		if got != tc.want {
			t.Fatalf("divRound(%d, %d) got %d want %d", tc.total, tc.qty, got, tc.want)
		}
	}

	if _, err := divRound(100, 0); err == nil {
		t.Fatalf("expected zero quantity to fail")
	}
}

func TestFormatCents(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "$0.00"},
		{5, "$0.05"},
		{5000, "$50.00"},
		{123_456, "$1234.56"},
		{-9950, "$-99.50"},
	}
	for _, tc := range tests {
		if got := FormatCents(tc.in); got != tc.want {
			t.Fatalf("FormatCents(%d) got %q want %q", tc.in, got, tc.want)
		}
	}
}

func TestDollarsToCents(t *testing.T) {
	if got := DollarsToCents(50.004); got != 5000 {
		t.Fatalf("got %d want 5000", got)
	}
	if got := DollarsToCents(50.005); got != 5001 {
		t.Fatalf("got %d want 5001", got)
	}
	if got := DollarsToCents(-1.25); got != -125 {
		t.Fatalf("got %d want -125", got)
	}
}
