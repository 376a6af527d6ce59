package billing

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kiloware/kiloware/internal/money"
)

func TestRecomputeDocumentDiscountAndShipping(t *testing.T) {
	doc := Document{
		Currency: "EUR",
		Items: []LineItem{
			{UnitPrice: money.MustParse("40", "EUR"), Quantity: 2},
			{UnitPrice: money.MustParse("20", "EUR"), Quantity: 1},
		},
		Discounts: []Discount{{Kind: DiscountFixed, Value: dec("10")}},
		Shipping:  money.MustParse("5", "EUR"),
	}
	_, totals, err := Recompute(doc)
	require.NoError(t, err)

	require.Equal(t, "100.00 EUR", totals.Subtotal.String())
	require.Equal(t, "10.00 EUR", totals.DocDiscount.String())
	require.Equal(t, "5.00 EUR", totals.Shipping.String())
	require.Equal(t, "95.00 EUR", totals.Total.String())
}

func TestRecomputeItemAndDocumentDiscountsDoNotStack(t *testing.T) {
	doc := Document{
		Currency: "EUR",
		Items: []LineItem{{
			UnitPrice: money.MustParse("100", "EUR"),
			Quantity:  1,
			Discount:  &Discount{Kind: DiscountPercent, Value: dec("10")},
		}},
		Discounts: []Discount{{Kind: DiscountPercent, Value: dec("10")}},
	}
	_, totals, err := Recompute(doc)
	require.NoError(t, err)

	// The document discount applies to the raw item subtotal sum (100),
	// not the already discounted net (90).
	require.Equal(t, "10.00 EUR", totals.ItemDiscount.String())
	require.Equal(t, "10.00 EUR", totals.DocDiscount.String())
	require.Equal(t, "80.00 EUR", totals.Total.String())
}

func TestRecomputeIdempotent(t *testing.T) {
	doc := Document{
		Currency: "EUR",
		Items: []LineItem{
			{UnitPrice: money.MustParse("19.90", "EUR"), Quantity: 3, TaxRate: dec("19")},
			{UnitPrice: money.MustParse("7.45", "EUR"), Quantity: 2, Discount: &Discount{Kind: DiscountPercent, Value: dec("15")}},
		},
		Discounts: []Discount{{Kind: DiscountFixed, Value: dec("2.50")}},
		Shipping:  money.MustParse("4.90", "EUR"),
	}
	itemsOnce, totalsOnce, err := Recompute(doc)
	require.NoError(t, err)

	doc.Items = itemsOnce
	itemsTwice, totalsTwice, err := Recompute(doc)
	require.NoError(t, err)

	require.Equal(t, itemsOnce, itemsTwice)
	require.Equal(t, totalsOnce, totalsTwice)
}

func TestRecomputeOrderIndependentSums(t *testing.T) {
	a := LineItem{UnitPrice: money.MustParse("11.11", "EUR"), Quantity: 2, TaxRate: dec("7")}
	b := LineItem{UnitPrice: money.MustParse("33.33", "EUR"), Quantity: 1, TaxRate: dec("19")}

	_, forward, err := Recompute(Document{Currency: "EUR", Items: []LineItem{a, b}})
	require.NoError(t, err)
	_, backward, err := Recompute(Document{Currency: "EUR", Items: []LineItem{b, a}})
	require.NoError(t, err)

	require.Equal(t, forward.Total.String(), backward.Total.String())
}

func TestRecomputeRejectsForeignCurrencyLine(t *testing.T) {
	_, _, err := Recompute(Document{
		Currency: "EUR",
		Items:    []LineItem{{UnitPrice: money.MustParse("10", "USD"), Quantity: 1}},
	})
	require.ErrorIs(t, err, money.ErrCurrencyMismatch)
}

func TestRecomputeEmptyDocument(t *testing.T) {
	_, totals, err := Recompute(Document{Currency: "EUR"})
	require.NoError(t, err)
	require.Equal(t, "0.00 EUR", totals.Total.String())
}
