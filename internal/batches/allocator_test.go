package batches

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/kiloware/kiloware/internal/fx"
	"github.com/kiloware/kiloware/internal/money"
)

var orderDate = time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)

func eurCost(label, amount string) Cost {
	return Cost{Label: label, Amount: money.MustParse(amount, "EUR")}
}

func TestAllocateSpreadsCostsOverWeight(t *testing.T) {
	alloc := NewAllocator(nil, "EUR")

	// 1000 purchase + 100 freight over 500 KG.
	result, err := alloc.Allocate(context.Background(),
		[]Cost{eurCost("purchase", "1000.00"), eurCost("freight", "100.00")},
		500, orderDate)
	require.NoError(t, err)
	require.Equal(t, "1100.00 EUR", result.TotalCost.String())
	require.Equal(t, "2.20 EUR", result.CostPerUnit.String())
	require.True(t, result.CostPerUnit.Amount.Equal(decimal.RequireFromString("2.2")))
}

func TestAllocateIdempotent(t *testing.T) {
	alloc := NewAllocator(nil, "EUR")
	costs := []Cost{eurCost("purchase", "333.33"), eurCost("customs", "66.67")}

	first, err := alloc.Allocate(context.Background(), costs, 7, orderDate)
	require.NoError(t, err)
	second, err := alloc.Allocate(context.Background(), costs, 7, orderDate)
	require.NoError(t, err)

	require.True(t, first.TotalCost.Amount.Equal(second.TotalCost.Amount))
	require.True(t, first.CostPerUnit.Amount.Equal(second.CostPerUnit.Amount))
}

func TestAllocateZeroWeight(t *testing.T) {
	alloc := NewAllocator(nil, "EUR")
	_, err := alloc.Allocate(context.Background(), []Cost{eurCost("purchase", "1000.00")}, 0, orderDate)
	require.ErrorIs(t, err, ErrUnknownCost)
}

func TestAllocateNoCosts(t *testing.T) {
	alloc := NewAllocator(nil, "EUR")
	_, err := alloc.Allocate(context.Background(), nil, 500, orderDate)
	require.ErrorIs(t, err, ErrNoCosts)
}

func TestAllocateConvertsAtOrderDate(t *testing.T) {
	// 1 USD = 0.80 EUR around the order date, 0.90 later. The allocation
	// must use the order-date rate.
	rates := fx.NewRateTable(
		fx.ExchangeRate{From: "USD", To: "EUR", Rate: decimal.RequireFromString("0.80"), ValidFrom: orderDate.Add(-24 * time.Hour)},
		fx.ExchangeRate{From: "USD", To: "EUR", Rate: decimal.RequireFromString("0.90"), ValidFrom: orderDate.Add(30 * 24 * time.Hour)},
	)
	alloc := NewAllocator(fx.NewConverter(rates), "EUR")

	result, err := alloc.Allocate(context.Background(), []Cost{
		eurCost("freight", "100.00"),
		{Label: "purchase", Amount: money.MustParse("1000.00", "USD")},
	}, 500, orderDate)
	require.NoError(t, err)
	require.Equal(t, "900.00 EUR", result.TotalCost.String())
	require.Equal(t, "1.80 EUR", result.CostPerUnit.String())
}

func TestAllocateMissingRate(t *testing.T) {
	alloc := NewAllocator(fx.NewConverter(fx.NewRateTable()), "EUR")
	_, err := alloc.Allocate(context.Background(), []Cost{
		{Label: "purchase", Amount: money.MustParse("1000.00", "USD")},
	}, 500, orderDate)
	require.ErrorIs(t, err, fx.ErrNoRateFound)
}

func TestAllocateNegativeCost(t *testing.T) {
	alloc := NewAllocator(nil, "EUR")
	_, err := alloc.Allocate(context.Background(), []Cost{
		{Label: "rebate", Amount: money.MustParse("-10.00", "EUR")},
	}, 500, orderDate)
	require.Error(t, err)
}
