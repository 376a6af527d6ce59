package fx

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/kiloware/kiloware/internal/money"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr(t time.Time) *time.Time { return &t }

func TestConvertIdentity(t *testing.T) {
	conv := NewConverter(NewRateTable())
	got, err := conv.Convert(context.Background(), money.MustParse("100", "EUR"), "EUR", day("2026-01-15"))
	require.NoError(t, err)
	require.Equal(t, "100.00 EUR", got.String())
}

func TestConvertPicksLatestCoveringRate(t *testing.T) {
	table := NewRateTable(
		ExchangeRate{From: "USD", To: "EUR", Rate: decimal.RequireFromString("0.95"), ValidFrom: day("2025-01-01")},
		ExchangeRate{From: "USD", To: "EUR", Rate: decimal.RequireFromString("0.90"), ValidFrom: day("2025-06-01")},
		ExchangeRate{From: "USD", To: "EUR", Rate: decimal.RequireFromString("0.85"), ValidFrom: day("2026-02-01")},
	)
	conv := NewConverter(table)

	got, err := conv.Convert(context.Background(), money.MustParse("100", "USD"), "EUR", day("2026-01-15"))
	require.NoError(t, err)
	require.Equal(t, "90.00 EUR", got.String())

	got, err = conv.Convert(context.Background(), money.MustParse("100", "USD"), "EUR", day("2026-03-01"))
	require.NoError(t, err)
	require.Equal(t, "85.00 EUR", got.String())
}

func TestConvertIntraDayRateBoundary(t *testing.T) {
	noon := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	table := NewRateTable(
		ExchangeRate{From: "USD", To: "EUR", Rate: decimal.RequireFromString("0.80"), ValidFrom: day("2025-01-01"), ValidTo: ptr(noon)},
		ExchangeRate{From: "USD", To: "EUR", Rate: decimal.RequireFromString("0.90"), ValidFrom: noon},
	)
	conv := NewConverter(table)

	got, err := conv.Convert(context.Background(), money.MustParse("100", "USD"), "EUR", noon.Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, "80.00 EUR", got.String())

	got, err = conv.Convert(context.Background(), money.MustParse("100", "USD"), "EUR", noon.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, "90.00 EUR", got.String())
}

func TestConvertFailsWhenOnlyRateExpired(t *testing.T) {
	table := NewRateTable(ExchangeRate{
		From:      "USD",
		To:        "EUR",
		Rate:      decimal.RequireFromString("0.92"),
		ValidFrom: day("2025-01-01"),
		ValidTo:   ptr(day("2025-07-01")),
	})
	conv := NewConverter(table)

	_, err := conv.Convert(context.Background(), money.MustParse("100", "USD"), "EUR", day("2026-01-15"))
	require.ErrorIs(t, err, ErrNoRateFound)
}

func TestConvertDoesNotUseFutureRate(t *testing.T) {
	table := NewRateTable(ExchangeRate{
		From:      "GBP",
		To:        "EUR",
		Rate:      decimal.RequireFromString("1.15"),
		ValidFrom: day("2026-06-01"),
	})
	conv := NewConverter(table)

	_, err := conv.Convert(context.Background(), money.MustParse("10", "GBP"), "EUR", day("2026-01-15"))
	require.ErrorIs(t, err, ErrNoRateFound)
}

func TestRateValidate(t *testing.T) {
	cases := []struct {
		name string
		rate ExchangeRate
	}{
		{"same pair", ExchangeRate{From: "EUR", To: "EUR", Rate: decimal.NewFromInt(1), ValidFrom: day("2025-01-01")}},
		{"zero rate", ExchangeRate{From: "USD", To: "EUR", Rate: decimal.Zero, ValidFrom: day("2025-01-01")}},
		{"negative rate", ExchangeRate{From: "USD", To: "EUR", Rate: decimal.NewFromInt(-1), ValidFrom: day("2025-01-01")}},
		{"valid_to before valid_from", ExchangeRate{From: "USD", To: "EUR", Rate: decimal.NewFromInt(1), ValidFrom: day("2025-06-01"), ValidTo: ptr(day("2025-01-01"))}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorIs(t, tc.rate.Validate(), ErrInvalidRate)
		})
	}
}
