package ledger

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	km := newKeyedMutex()
	key := ledgerKey("u1", 1)

	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			km.Lock(key)
			n := atomic.AddInt32(&active, 1)
			if n > atomic.LoadInt32(&maxActive) {
				atomic.StoreInt32(&maxActive, n)
			}
			atomic.AddInt32(&active, -1)
			km.Unlock(key)
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Fatalf("critical section overlap: max concurrent holders %d", maxActive)
	}
}

func TestKeyedMutexReleasesEntries(t *testing.T) {
	km := newKeyedMutex()
	key := ledgerKey("u1", 7)
	km.Lock(key)
	km.Unlock(key)
	if len(km.locks) != 0 {
		t.Fatalf("expected lock table to drain, have %d entries", len(km.locks))
	}
}

// Two identical buys race for a balance that only covers one. The keyed
// mutex forces them through one at a time, so exactly one succeeds.
func TestConcurrentBuysExactlyOneSucceeds(t *testing.T) {
	km := newKeyedMutex()
	key := ledgerKey("u1", 1)

	var mu sync.Mutex
	snap := Snapshot{
		CashCents: 50_000,
		Holdings:  map[string]Holding{},
	}

	buy := func() error {
		km.Lock(key)
		defer km.Unlock(key)

		mu.Lock()
		current := snap
		mu.Unlock()

		ap, err := apply(current, "AAPL", 10, 5000, SideBuy)
		if err != nil {
			return err
		}
		mu.Lock()
		snap.CashCents = ap.NewCashCents
		snap.Holdings["AAPL"] = Holding{Symbol: "AAPL", Quantity: ap.NewQuantity, AvgCostCents: ap.NewAvgCostCents}
		mu.Unlock()
		return nil
	}

	const workers = 8
	results := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- buy()
		}()
	}
	wg.Wait()
	close(results)

	succeeded, rejected := 0, 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrInsufficientFunds):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("got %d successes want exactly 1", succeeded)
	}
	if rejected != workers-1 {
		t.Fatalf("got %d rejections want %d", rejected, workers-1)
	}
	if snap.CashCents != 0 {
		t.Fatalf("cash got %d want 0", snap.CashCents)
	}
	if snap.Holdings["AAPL"].Quantity != 10 {
		t.Fatalf("quantity got %d want 10", snap.Holdings["AAPL"].Quantity)
	}
}
