package fx

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kiloware/kiloware/internal/money"
)

// RateSource yields the rate applicable for a currency pair at a point in
// time: the latest ValidFrom <= asOf whose ValidTo is absent or later than
// asOf. Implementations return ErrNoRateFound when no row covers the instant.
type RateSource interface {
	RateAt(ctx context.Context, from, to string, asOf time.Time) (ExchangeRate, error)
}

// Converter normalises amounts into a target currency. Lookups for the same
// pair and instant are collapsed through singleflight so a burst of
// conversions (e.g. recomputing a document with many payment events) hits
// the source once.
type Converter struct {
	rates RateSource
	group singleflight.Group
}

// NewConverter builds a Converter on top of a rate source.
func NewConverter(rates RateSource) *Converter {
	return &Converter{rates: rates}
}

// Convert resolves amount into the target currency at the reference instant.
// An amount already in the target currency is returned unchanged.
func (c *Converter) Convert(ctx context.Context, amount money.Money, to string, asOf time.Time) (money.Money, error) {
	if amount.Currency == to {
		return amount, nil
	}
	key := fmt.Sprintf("%s:%s:%s", amount.Currency, to, asOf.UTC().Format(time.RFC3339Nano))
	v, err, _ := c.group.Do(key, func() (any, error) {
		return c.rates.RateAt(ctx, amount.Currency, to, asOf)
	})
	if err != nil {
		return money.Money{}, fmt.Errorf("fx: convert %s to %s: %w", amount.Currency, to, err)
	}
	rate := v.(ExchangeRate)
	return money.Money{Amount: amount.Amount.Mul(rate.Rate), Currency: to}, nil
}
