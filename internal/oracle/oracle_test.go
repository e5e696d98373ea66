package oracle

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memCache struct {
	mu     sync.Mutex
	quotes map[string]Quote
}

func newMemCache() *memCache {
	return &memCache{quotes: map[string]Quote{}}
}

func (c *memCache) Get(_ context.Context, symbol string) (Quote, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.quotes[symbol]
	return q, ok, nil
}

func (c *memCache) Set(_ context.Context, symbol string, q Quote) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes[symbol] = q
	return nil
}

func quoteServer(t *testing.T, prices map[string]float64, calls *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			*calls++
		}
		symbol := r.URL.Query().Get("symbol")
		price, ok := prices[symbol]
		if !ok {
			http.Error(w, "unknown symbol", http.StatusNotFound)
			return
		}
		fmt.Fprintf(w, `{"symbol":%q,"price":%v}`, symbol, price)
	}))
}

func TestPriceFetchesAndCaches(t *testing.T) {
	calls := 0
	srv := quoteServer(t, map[string]float64{"AAPL": 189.50}, &calls)
	defer srv.Close()

	cache := newMemCache()
	o := New(NewClient(srv.URL, "", 0), cache, nil, nil, Config{})

	price, err := o.Price(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, int64(18950), price)
	assert.Equal(t, 1, calls)

	// Second lookup inside the fresh window never hits upstream.
	price, err = o.Price(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, int64(18950), price)
	assert.Equal(t, 1, calls)
}

func TestPriceServesStaleOnUpstreamFailure(t *testing.T) {
	srv := quoteServer(t, map[string]float64{}, nil)
	defer srv.Close()

	cache := newMemCache()
	stale := Quote{PriceCents: 15000, FetchedAt: time.Now().Add(-time.Hour)}
	require.NoError(t, cache.Set(context.Background(), "AAPL", stale))

	o := New(NewClient(srv.URL, "", 0), cache, nil, nil, Config{})
	price, err := o.Price(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, int64(15000), price)
}

func TestPriceFailsWithNothingUsable(t *testing.T) {
	srv := quoteServer(t, map[string]float64{}, nil)
	defer srv.Close()

	o := New(NewClient(srv.URL, "", 0), newMemCache(), nil, nil, Config{})
	_, err := o.Price(context.Background(), "AAPL")
	require.ErrorIs(t, err, ErrNoQuote)
}

func TestPriceRejectsNonPositiveQuote(t *testing.T) {
	srv := quoteServer(t, map[string]float64{"ZERO": 0}, nil)
	defer srv.Close()

	o := New(NewClient(srv.URL, "", 0), newMemCache(), nil, nil, Config{})
	_, err := o.Price(context.Background(), "ZERO")
	require.ErrorIs(t, err, ErrNoQuote)
}

func TestPricesDegradesPerSymbol(t *testing.T) {
	srv := quoteServer(t, map[string]float64{"AAPL": 100, "MSFT": 250}, nil)
	defer srv.Close()

	o := New(NewClient(srv.URL, "", 0), newMemCache(), nil, nil, Config{})
	got := o.Prices(context.Background(), []string{"AAPL", "MSFT", "NOPE"})

	assert.Equal(t, map[string]int64{"AAPL": 10000, "MSFT": 25000}, got)
}

func TestRateLimitFallsBackToStale(t *testing.T) {
	calls := 0
	srv := quoteServer(t, map[string]float64{"AAPL": 200}, &calls)
	defer srv.Close()

	cache := newMemCache()
	// Zero fresh window forces every lookup past the cache; burst of one
	// means only the first reaches upstream.
	o := New(NewClient(srv.URL, "", 0), cache, nil, nil, Config{
		FreshFor:      time.Nanosecond,
		RatePerSecond: 0.001,
		RateBurst:     1,
	})

	price, err := o.Price(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, int64(20000), price)
	require.Equal(t, 1, calls)

	price, err = o.Price(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, int64(20000), price)
	assert.Equal(t, 1, calls, "rate-limited lookup must serve stale, not call upstream")
}

func TestRateLimitFailsWithEmptyCache(t *testing.T) {
	calls := 0
	srv := quoteServer(t, map[string]float64{"AAPL": 200, "MSFT": 100}, &calls)
	defer srv.Close()

	o := New(NewClient(srv.URL, "", 0), newMemCache(), nil, nil, Config{
		RatePerSecond: 0.001,
		RateBurst:     1,
	})

	_, err := o.Price(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	// Burst spent, nothing cached for MSFT: the lookup fails rather
	// than hammering upstream.
	_, err = o.Price(context.Background(), "MSFT")
	require.ErrorIs(t, err, ErrNoQuote)
	assert.Equal(t, 1, calls)
}
