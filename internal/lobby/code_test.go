package lobby

import (
	"errors"
	"fmt"
	mathrand "math/rand"
	"testing"
)

func TestRandomCodeShape(t *testing.T) {
	r := mathrand.New(mathrand.NewSource(1))
	for i := 0; i < 10_000; i++ {
		code := randomCode(r)
		if len(code) != 6 {
			t.Fatalf("code %q is not 6 digits", code)
		}
		if code[0] == '0' {
			t.Fatalf("code %q has a leading zero", code)
		}
	}
}

func TestClaimCodeFirstFree(t *testing.T) {
	r := mathrand.New(mathrand.NewSource(42))
	taken := map[string]bool{}

	var claimed []string
	for i := 0; i < 500; i++ {
		code, err := claimCode(codeAttempts, func() string { return randomCode(r) }, func(code string) (bool, error) {
			if taken[code] {
				return true, nil
			}
			taken[code] = true
			return false, nil
		})
		if err != nil {
			t.Fatalf("claim %d: %v", i, err)
		}
		claimed = append(claimed, code)
	}

	seen := map[string]bool{}
	for _, code := range claimed {
		if seen[code] {
			t.Fatalf("code %q claimed twice", code)
		}
		seen[code] = true
	}
}

func TestClaimCodeRetriesCollisions(t *testing.T) {
	codes := []string{"111111", "222222", "333333"}
	i := 0
	gen := func() string {
		code := codes[i]
		i++
		return code
	}

	code, err := claimCode(codeAttempts, gen, func(code string) (bool, error) {
		return code != "333333", nil
	})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if code != "333333" {
		t.Fatalf("got %q want 333333", code)
	}
	if i != 3 {
		t.Fatalf("generator called %d times want 3", i)
	}
}

func TestClaimCodeExhaustsBudget(t *testing.T) {
	calls := 0
	_, err := claimCode(codeAttempts, func() string {
		calls++
		return "999999"
	}, func(string) (bool, error) {
		return true, nil
	})
	if !errors.Is(err, ErrCodeGenerationExhausted) {
		t.Fatalf("got %v want ErrCodeGenerationExhausted", err)
	}
	if calls != codeAttempts {
		t.Fatalf("generator called %d times want %d", calls, codeAttempts)
	}
}

// A claim failure that is not a collision (the insert-and-enroll
// transaction erroring out) aborts immediately instead of burning the
// retry budget on a code that was never the problem.
func TestClaimCodePropagatesClaimError(t *testing.T) {
	boom := fmt.Errorf("insert failed")
	calls := 0
	_, err := claimCode(codeAttempts, func() string {
		calls++
		return "123456"
	}, func(string) (bool, error) {
		return false, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v want claim error", err)
	}
	if calls != 1 {
		t.Fatalf("generator called %d times want 1", calls)
	}
}
