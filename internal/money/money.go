// Package money provides the monetary value object shared by all financial
// modules. Amounts are decimal, never binary floating point, so repeated
// recomputation of derived totals cannot drift.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

var (
	// ErrInvalidCurrency indicates a code that is not ISO 4217.
	ErrInvalidCurrency = errors.New("money: invalid currency code")
	// ErrCurrencyMismatch indicates arithmetic across different currencies.
	ErrCurrencyMismatch = errors.New("money: currency mismatch")
)

// Money is an amount in a single ISO 4217 currency.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// New validates the currency code and returns a Money value.
func New(amount decimal.Decimal, code string) (Money, error) {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}
	return Money{Amount: amount, Currency: unit.String()}, nil
}

// Zero returns a zero amount in the given currency. The code is not
// validated; use New for untrusted input.
func Zero(code string) Money {
	return Money{Amount: decimal.Zero, Currency: code}
}

// MustParse builds a Money from a decimal string and currency code and
// panics on malformed input. Intended for literals in tests and seeds.
func MustParse(amount, code string) Money {
	m, err := New(decimal.RequireFromString(amount), code)
	if err != nil {
		panic(err)
	}
	return m
}

// Add returns m + o. Both operands must share a currency.
func (m Money) Add(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, o.Currency)
	}
	return Money{Amount: m.Amount.Add(o.Amount), Currency: m.Currency}, nil
}

// Sub returns m - o. Both operands must share a currency.
func (m Money) Sub(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, o.Currency)
	}
	return Money{Amount: m.Amount.Sub(o.Amount), Currency: m.Currency}, nil
}

// Mul scales the amount by a decimal factor.
func (m Money) Mul(factor decimal.Decimal) Money {
	return Money{Amount: m.Amount.Mul(factor), Currency: m.Currency}
}

// MulInt scales the amount by an integer quantity.
func (m Money) MulInt(n int64) Money {
	return m.Mul(decimal.NewFromInt(n))
}

// Div divides the amount by a decimal divisor. The divisor must be non-zero.
func (m Money) Div(divisor decimal.Decimal) Money {
	return Money{Amount: m.Amount.DivRound(divisor, 6), Currency: m.Currency}
}

// Neg returns the negated amount.
func (m Money) Neg() Money {
	return Money{Amount: m.Amount.Neg(), Currency: m.Currency}
}

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool { return m.Amount.IsZero() }

// IsNegative reports whether the amount is below zero.
func (m Money) IsNegative() bool { return m.Amount.IsNegative() }

// IsPositive reports whether the amount is above zero.
func (m Money) IsPositive() bool { return m.Amount.IsPositive() }

// Cmp compares amounts, ignoring currency. Callers are expected to have
// normalised the operands first.
func (m Money) Cmp(o Money) int { return m.Amount.Cmp(o.Amount) }

// String renders the amount with two fraction digits, e.g. "53.55 EUR".
func (m Money) String() string {
	return m.Amount.StringFixed(2) + " " + m.Currency
}
