package fx

import (
	"context"
	"sync"
	"time"
)

// RateTable is an in-memory RateSource over already-loaded rates. It backs
// the pure calculators in tests and the batch allocator when rates have been
// prefetched for a known reference date.
type RateTable struct {
	mu    sync.RWMutex
	rates []ExchangeRate
}

// NewRateTable builds a table from the given rows.
func NewRateTable(rates ...ExchangeRate) *RateTable {
	t := &RateTable{}
	t.rates = append(t.rates, rates...)
	return t
}

// Add appends a rate row. Rows are never modified in place.
func (t *RateTable) Add(rate ExchangeRate) error {
	if err := rate.Validate(); err != nil {
		return err
	}
	t.mu.Lock()
	t.rates = append(t.rates, rate)
	t.mu.Unlock()
	return nil
}

// RateAt picks the covering rate with the latest ValidFrom.
func (t *RateTable) RateAt(_ context.Context, from, to string, asOf time.Time) (ExchangeRate, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var best ExchangeRate
	found := false
	for _, r := range t.rates {
		if r.From != from || r.To != to || !r.Covers(asOf) {
			continue
		}
		if !found || r.ValidFrom.After(best.ValidFrom) {
			best = r
			found = true
		}
	}
	if !found {
		return ExchangeRate{}, ErrNoRateFound
	}
	return best, nil
}
