package oracle

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Quote is a cached price point. FetchedAt decides freshness; entries
// older than the fresh window are still usable as a stale fallback.
type Quote struct {
	PriceCents int64     `json:"price_cents"`
	FetchedAt  time.Time `json:"fetched_at"`
}

type Cache interface {
	Get(ctx context.Context, symbol string) (Quote, bool, error)
	Set(ctx context.Context, symbol string, q Quote) error
}

type RedisCache struct {
	r   *redis.Client
	ttl time.Duration
}

// NewRedisCache keeps quotes around for ttl; the fresh window enforced
// by the Oracle is much shorter, the remainder covers stale fallback.
func NewRedisCache(r *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisCache{r: r, ttl: ttl}
}

func quoteKey(symbol string) string { return "quote:" + symbol }

func (c *RedisCache) Get(ctx context.Context, symbol string) (Quote, bool, error) {
	b, err := c.r.Get(ctx, quoteKey(symbol)).Bytes()
	if err == redis.Nil {
		return Quote{}, false, nil
	}
	if err != nil {
		return Quote{}, false, err
	}
	var q Quote
	if err := json.Unmarshal(b, &q); err != nil {
		return Quote{}, false, err
	}
	return q, true, nil
}

func (c *RedisCache) Set(ctx context.Context, symbol string, q Quote) error {
	b, err := json.Marshal(q)
	if err != nil {
		return err
	}
	return c.r.Set(ctx, quoteKey(symbol), b, c.ttl).Err()
}
