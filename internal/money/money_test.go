package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestNewValidatesCurrency(t *testing.T) {
	m, err := New(decimal.NewFromInt(10), "EUR")
	require.NoError(t, err)
	require.Equal(t, "EUR", m.Currency)

	_, err = New(decimal.NewFromInt(10), "EURO")
	require.ErrorIs(t, err, ErrInvalidCurrency)

	_, err = New(decimal.NewFromInt(10), "")
	require.ErrorIs(t, err, ErrInvalidCurrency)
}

func TestArithmeticRequiresSameCurrency(t *testing.T) {
	eur := MustParse("10.50", "EUR")
	usd := MustParse("10.50", "USD")

	_, err := eur.Add(usd)
	require.ErrorIs(t, err, ErrCurrencyMismatch)
	_, err = eur.Sub(usd)
	require.ErrorIs(t, err, ErrCurrencyMismatch)

	sum, err := eur.Add(MustParse("0.50", "EUR"))
	require.NoError(t, err)
	require.True(t, sum.Amount.Equal(decimal.RequireFromString("11.00")))
}

func TestScaling(t *testing.T) {
	m := MustParse("25", "EUR")
	require.True(t, m.MulInt(2).Amount.Equal(decimal.NewFromInt(50)))
	require.True(t, m.Mul(decimal.RequireFromString("0.1")).Amount.Equal(decimal.RequireFromString("2.5")))
	require.True(t, m.Neg().IsNegative())
	require.True(t, Zero("EUR").IsZero())
}

func TestString(t *testing.T) {
	require.Equal(t, "53.55 EUR", MustParse("53.55", "EUR").String())
	require.Equal(t, "2.20 EUR", MustParse("2.2", "EUR").String())
}
