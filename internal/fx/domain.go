// Package fx resolves amounts between currencies using time-scoped exchange
// rates. Rates are append-only: corrections are issued as new rows, never as
// updates, so a conversion is reproducible for any historical reference date.
package fx

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNoRateFound indicates no exchange rate covers the requested pair and
// reference date. The converter never substitutes a guessed rate; callers
// decide whether to retry, fall back, or abort.
var ErrNoRateFound = errors.New("fx: no rate found")

// ErrInvalidRate indicates a rate row that cannot be stored.
var ErrInvalidRate = errors.New("fx: invalid rate")

// ExchangeRate converts one unit of From into Rate units of To between
// ValidFrom (inclusive) and ValidTo (exclusive, open-ended when nil).
type ExchangeRate struct {
	ID        int64
	From      string
	To        string
	Rate      decimal.Decimal
	ValidFrom time.Time
	ValidTo   *time.Time
	CreatedAt time.Time
}

// Covers reports whether the rate is applicable at the given instant.
func (r ExchangeRate) Covers(asOf time.Time) bool {
	if r.ValidFrom.After(asOf) {
		return false
	}
	if r.ValidTo != nil && !r.ValidTo.After(asOf) {
		return false
	}
	return true
}

// Validate checks the row before insertion.
func (r ExchangeRate) Validate() error {
	if r.From == "" || r.To == "" || r.From == r.To {
		return ErrInvalidRate
	}
	if !r.Rate.IsPositive() {
		return ErrInvalidRate
	}
	if r.ValidFrom.IsZero() {
		return ErrInvalidRate
	}
	if r.ValidTo != nil && !r.ValidTo.After(r.ValidFrom) {
		return ErrInvalidRate
	}
	return nil
}
