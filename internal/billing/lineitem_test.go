package billing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/kiloware/kiloware/internal/money"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCalculateLinePercentDiscountAndTax(t *testing.T) {
	item, err := CalculateLine(LineItem{
		UnitPrice: money.MustParse("25", "EUR"),
		Quantity:  2,
		Discount:  &Discount{Kind: DiscountPercent, Value: dec("10")},
		TaxRate:   dec("19"),
	})
	require.NoError(t, err)

	require.Equal(t, "50.00 EUR", item.Subtotal.String())
	require.Equal(t, "5.00 EUR", item.DiscountAmount.String())
	require.Equal(t, "8.55 EUR", item.TaxAmount.String())
	require.Equal(t, "53.55 EUR", item.Total.String())
}

func TestCalculateLineFixedDiscountClamped(t *testing.T) {
	item, err := CalculateLine(LineItem{
		UnitPrice: money.MustParse("4", "EUR"),
		Quantity:  2,
		Discount:  &Discount{Kind: DiscountFixed, Value: dec("20")},
	})
	require.NoError(t, err)

	// A fixed discount larger than the subtotal zeroes the line, never below.
	require.Equal(t, "8.00 EUR", item.DiscountAmount.String())
	require.Equal(t, "0.00 EUR", item.Total.String())
}

func TestCalculateLineNoDiscountNoTax(t *testing.T) {
	item, err := CalculateLine(LineItem{UnitPrice: money.MustParse("12.50", "EUR"), Quantity: 3})
	require.NoError(t, err)
	require.Equal(t, "37.50 EUR", item.Subtotal.String())
	require.Equal(t, "0.00 EUR", item.DiscountAmount.String())
	require.Equal(t, "0.00 EUR", item.TaxAmount.String())
	require.Equal(t, "37.50 EUR", item.Total.String())
}

func TestCalculateLineIdempotent(t *testing.T) {
	once, err := CalculateLine(LineItem{
		UnitPrice: money.MustParse("9.99", "EUR"),
		Quantity:  7,
		Discount:  &Discount{Kind: DiscountPercent, Value: dec("5")},
		TaxRate:   dec("7"),
	})
	require.NoError(t, err)
	twice, err := CalculateLine(once)
	require.NoError(t, err)
	require.Equal(t, once, twice)
}

func TestCalculateLineRejectsBadInput(t *testing.T) {
	_, err := CalculateLine(LineItem{UnitPrice: money.MustParse("10", "EUR"), Quantity: 0})
	require.ErrorIs(t, err, ErrInvalidLineItem)

	_, err = CalculateLine(LineItem{UnitPrice: money.MustParse("10", "EUR"), Quantity: -2})
	require.ErrorIs(t, err, ErrInvalidLineItem)

	_, err = CalculateLine(LineItem{UnitPrice: money.MustParse("-1", "EUR"), Quantity: 1})
	require.ErrorIs(t, err, ErrInvalidLineItem)

	_, err = CalculateLine(LineItem{
		UnitPrice: money.MustParse("10", "EUR"),
		Quantity:  1,
		Discount:  &Discount{Kind: "BOGOF", Value: dec("1")},
	})
	require.ErrorIs(t, err, ErrInvalidDiscount)
}
