package fx

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	inner RateSource
	hits  atomic.Int64
}

func (s *countingSource) RateAt(ctx context.Context, from, to string, asOf time.Time) (ExchangeRate, error) {
	s.hits.Add(1)
	return s.inner.RateAt(ctx, from, to, asOf)
}

func TestCachedRatesReadThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	source := &countingSource{inner: NewRateTable(ExchangeRate{
		From: "USD", To: "EUR", Rate: decimal.RequireFromString("0.92"), ValidFrom: day("2025-01-01"),
	})}
	cached := NewCachedRates(source, client, time.Minute)
	ctx := context.Background()

	first, err := cached.RateAt(ctx, "USD", "EUR", day("2026-01-15"))
	require.NoError(t, err)
	second, err := cached.RateAt(ctx, "USD", "EUR", day("2026-01-15"))
	require.NoError(t, err)

	require.True(t, first.Rate.Equal(second.Rate))
	require.EqualValues(t, 1, source.hits.Load())
}

func TestCachedRatesRespectsIntraDayBoundary(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	noon := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	source := &countingSource{inner: NewRateTable(
		ExchangeRate{From: "USD", To: "EUR", Rate: decimal.RequireFromString("0.80"), ValidFrom: day("2025-01-01"), ValidTo: &noon},
		ExchangeRate{From: "USD", To: "EUR", Rate: decimal.RequireFromString("0.90"), ValidFrom: noon},
	)}
	cached := NewCachedRates(source, client, time.Minute)
	ctx := context.Background()

	morning, err := cached.RateAt(ctx, "USD", "EUR", noon.Add(-3*time.Hour))
	require.NoError(t, err)
	require.True(t, morning.Rate.Equal(decimal.RequireFromString("0.80")))

	// Same day, past the boundary: the cached morning row no longer covers
	// the instant and must not be served.
	afternoon, err := cached.RateAt(ctx, "USD", "EUR", noon.Add(3*time.Hour))
	require.NoError(t, err)
	require.True(t, afternoon.Rate.Equal(decimal.RequireFromString("0.90")))
	require.EqualValues(t, 2, source.hits.Load())
}

func TestCachedRatesPropagatesMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cached := NewCachedRates(NewRateTable(), client, time.Minute)
	_, err := cached.RateAt(context.Background(), "USD", "EUR", day("2026-01-15"))
	require.ErrorIs(t, err, ErrNoRateFound)
}
