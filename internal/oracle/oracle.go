package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"tickerclub/internal/metrics"
)

var ErrNoQuote = errors.New("no usable quote")

type Config struct {
	// FreshFor is how long a cached quote is served without going
	// upstream.
	FreshFor time.Duration
	// RequestTimeout bounds a single upstream call.
	RequestTimeout time.Duration
	RatePerSecond  float64
	RateBurst      int
}

func (c *Config) defaults() {
	if c.FreshFor <= 0 {
		c.FreshFor = 30 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 4 * time.Second
	}
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = 5
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 10
	}
}

// Oracle is the single quote path for the whole service: cache first,
// then a rate-limited upstream call, then stale cache as a last resort.
// It never invents a price; with nothing usable it returns ErrNoQuote
// and the caller fails cleanly.
type Oracle struct {
	client   *Client
	cache    Cache
	limit    *rate.Limiter
	log      *slog.Logger
	met      *metrics.Metrics
	freshFor time.Duration
	timeout  time.Duration
}

func New(client *Client, cache Cache, logger *slog.Logger, met *metrics.Metrics, cfg Config) *Oracle {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Oracle{
		client:   client,
		cache:    cache,
		limit:    rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RateBurst),
		log:      logger,
		met:      met,
		freshFor: cfg.FreshFor,
		timeout:  cfg.RequestTimeout,
	}
}

func (o *Oracle) Price(ctx context.Context, symbol string) (int64, error) {
	cached, haveCached, err := o.cache.Get(ctx, symbol)
	if err != nil {
		// A broken cache degrades to upstream-only.
		o.log.Warn("quote cache read failed", "symbol", symbol, "err", err)
		haveCached = false
	}
	if haveCached && time.Since(cached.FetchedAt) < o.freshFor {
		o.count(func(m *metrics.Metrics) { m.OracleCacheHits.Inc() })
		return cached.PriceCents, nil
	}
	o.count(func(m *metrics.Metrics) { m.OracleCacheMisses.Inc() })

	if !o.limit.Allow() {
		if haveCached {
			o.count(func(m *metrics.Metrics) { m.OracleStaleServes.Inc() })
			return cached.PriceCents, nil
		}
		return 0, fmt.Errorf("%w: rate limited and nothing cached for %s", ErrNoQuote, symbol)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	price, err := o.client.Quote(fetchCtx, symbol)
	if err != nil {
		if haveCached {
			o.log.Warn("upstream quote failed, serving stale", "symbol", symbol, "err", err)
			o.count(func(m *metrics.Metrics) { m.OracleStaleServes.Inc() })
			return cached.PriceCents, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrNoQuote, err)
	}

	if err := o.cache.Set(ctx, symbol, Quote{PriceCents: price, FetchedAt: time.Now().UTC()}); err != nil {
		o.log.Warn("quote cache write failed", "symbol", symbol, "err", err)
	}
	return price, nil
}

// Prices resolves a batch; symbols whose lookup fails are simply absent
// from the result so the caller can degrade per symbol.
func (o *Oracle) Prices(ctx context.Context, symbols []string) map[string]int64 {
	out := make(map[string]int64, len(symbols))
	for _, sym := range symbols {
		price, err := o.Price(ctx, sym)
		if err != nil {
			o.log.Warn("quote lookup failed", "symbol", sym, "err", err)
			continue
		}
		out[sym] = price
	}
	return out
}

func (o *Oracle) count(fn func(*metrics.Metrics)) {
	if o.met != nil {
		fn(o.met)
	}
}
