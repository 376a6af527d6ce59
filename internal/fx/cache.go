package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedRates wraps a RateSource with a Redis read-through cache. Rates are
// immutable once created, so cached entries only expire by TTL to pick up
// newly appended rows.
type CachedRates struct {
	source RateSource
	client *redis.Client
	ttl    time.Duration
}

// NewCachedRates constructs the cache wrapper.
func NewCachedRates(source RateSource, client *redis.Client, ttl time.Duration) *CachedRates {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedRates{source: source, client: client, ttl: ttl}
}

func cacheKey(from, to string, asOf time.Time) string {
	return fmt.Sprintf("fx:rate:%s:%s:%s", from, to, asOf.UTC().Format("2006-01-02"))
}

// RateAt serves from Redis when possible, falling back to the source. Cache
// failures degrade to a direct lookup rather than failing the conversion.
// The key is day-granular but the contract is instant-granular: a cached row
// is served only while it still covers the requested instant, so a rate
// boundary falling inside the day falls through to the source.
func (c *CachedRates) RateAt(ctx context.Context, from, to string, asOf time.Time) (ExchangeRate, error) {
	key := cacheKey(from, to, asOf)
	if c.client != nil {
		if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
			var rate ExchangeRate
			if err := json.Unmarshal(raw, &rate); err == nil && rate.Covers(asOf) {
				return rate, nil
			}
		}
	}
	rate, err := c.source.RateAt(ctx, from, to, asOf)
	if err != nil {
		return ExchangeRate{}, err
	}
	if c.client != nil {
		if raw, err := json.Marshal(rate); err == nil {
			_ = c.client.Set(ctx, key, raw, c.ttl).Err()
		}
	}
	return rate, nil
}
