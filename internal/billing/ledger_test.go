package billing

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/kiloware/kiloware/internal/fx"
	"github.com/kiloware/kiloware/internal/money"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestLedgerFullyPaid(t *testing.T) {
	ledger := NewLedger(nil)
	result, err := ledger.Apply(context.Background(),
		money.MustParse("50", "EUR"), ts("2026-03-01T00:00:00Z"), ts("2026-02-01T00:00:00Z"),
		[]PaymentEvent{
			{ID: "p1", Amount: money.MustParse("30", "EUR"), Status: EventCompleted, At: ts("2026-01-10T10:00:00Z")},
			{ID: "p2", Amount: money.MustParse("20", "EUR"), Status: EventCompleted, At: ts("2026-01-12T10:00:00Z")},
		})
	require.NoError(t, err)

	require.Equal(t, "50.00 EUR", result.Paid.String())
	require.Equal(t, "0.00 EUR", result.Balance.String())
	require.Equal(t, PaymentPaid, result.Status)
}

func TestLedgerIgnoresPendingAndFailed(t *testing.T) {
	ledger := NewLedger(nil)
	result, err := ledger.Apply(context.Background(),
		money.MustParse("50", "EUR"), ts("2026-03-01T00:00:00Z"), ts("2026-02-01T00:00:00Z"),
		[]PaymentEvent{
			{ID: "p1", Amount: money.MustParse("30", "EUR"), Status: EventPending, At: ts("2026-01-10T10:00:00Z")},
			{ID: "p2", Amount: money.MustParse("20", "EUR"), Status: EventFailed, At: ts("2026-01-11T10:00:00Z")},
			{ID: "p3", Amount: money.MustParse("10", "EUR"), Status: EventCompleted, At: ts("2026-01-12T10:00:00Z")},
		})
	require.NoError(t, err)

	require.Equal(t, "10.00 EUR", result.Paid.String())
	require.Equal(t, "40.00 EUR", result.Balance.String())
	require.Equal(t, PaymentPartiallyPaid, result.Status)
}

func TestLedgerRefundSubtracts(t *testing.T) {
	ledger := NewLedger(nil)
	result, err := ledger.Apply(context.Background(),
		money.MustParse("50", "EUR"), ts("2026-03-01T00:00:00Z"), ts("2026-02-01T00:00:00Z"),
		[]PaymentEvent{
			{ID: "p1", Amount: money.MustParse("50", "EUR"), Status: EventCompleted, At: ts("2026-01-10T10:00:00Z")},
			{ID: "r1", Amount: money.MustParse("50", "EUR"), Status: EventRefunded, At: ts("2026-01-20T10:00:00Z")},
		})
	require.NoError(t, err)

	require.Equal(t, "0.00 EUR", result.Paid.String())
	require.Equal(t, "50.00 EUR", result.Balance.String())
	require.Equal(t, PaymentPending, result.Status)
}

func TestLedgerOverpaymentGoesNegativeAndIsExposed(t *testing.T) {
	ledger := NewLedger(nil)
	result, err := ledger.Apply(context.Background(),
		money.MustParse("50", "EUR"), ts("2026-03-01T00:00:00Z"), ts("2026-02-01T00:00:00Z"),
		[]PaymentEvent{
			{ID: "p1", Amount: money.MustParse("70", "EUR"), Status: EventCompleted, At: ts("2026-01-10T10:00:00Z")},
		})
	require.NoError(t, err)

	require.Equal(t, "-20.00 EUR", result.Balance.String())
	require.Equal(t, "20.00 EUR", result.Overpaid.String())
	require.Equal(t, PaymentPaid, result.Status)
}

func TestLedgerOverdueWhenUnpaidPastDue(t *testing.T) {
	ledger := NewLedger(nil)
	result, err := ledger.Apply(context.Background(),
		money.MustParse("50", "EUR"), ts("2026-01-01T00:00:00Z"), ts("2026-02-01T00:00:00Z"), nil)
	require.NoError(t, err)
	require.Equal(t, PaymentOverdue, result.Status)
}

func TestLedgerToleratesOutOfOrderDelivery(t *testing.T) {
	ledger := NewLedger(nil)
	events := []PaymentEvent{
		{ID: "late", Amount: money.MustParse("20", "EUR"), Status: EventCompleted, At: ts("2026-01-12T10:00:00Z")},
		{ID: "early", Amount: money.MustParse("30", "EUR"), Status: EventCompleted, At: ts("2026-01-10T10:00:00Z")},
	}
	result, err := ledger.Apply(context.Background(),
		money.MustParse("50", "EUR"), ts("2026-03-01T00:00:00Z"), ts("2026-02-01T00:00:00Z"), events)
	require.NoError(t, err)
	require.Equal(t, PaymentPaid, result.Status)

	// The input slice is not reordered.
	require.Equal(t, "late", events[0].ID)
}

func TestLedgerConvertsForeignCurrencyEvents(t *testing.T) {
	table := fx.NewRateTable(fx.ExchangeRate{
		From: "USD", To: "EUR", Rate: decimal.RequireFromString("0.9"),
		ValidFrom: ts("2025-01-01T00:00:00Z"),
	})
	ledger := NewLedger(fx.NewConverter(table))

	result, err := ledger.Apply(context.Background(),
		money.MustParse("90", "EUR"), ts("2026-03-01T00:00:00Z"), ts("2026-02-01T00:00:00Z"),
		[]PaymentEvent{
			{ID: "p1", Amount: money.MustParse("100", "USD"), Status: EventCompleted, At: ts("2026-01-10T10:00:00Z")},
		})
	require.NoError(t, err)
	require.Equal(t, "90.00 EUR", result.Paid.String())
	require.Equal(t, PaymentPaid, result.Status)
}

func TestLedgerFailsWhenRateMissing(t *testing.T) {
	ledger := NewLedger(fx.NewConverter(fx.NewRateTable()))
	_, err := ledger.Apply(context.Background(),
		money.MustParse("90", "EUR"), time.Time{}, ts("2026-02-01T00:00:00Z"),
		[]PaymentEvent{
			{ID: "p1", Amount: money.MustParse("100", "USD"), Status: EventCompleted, At: ts("2026-01-10T10:00:00Z")},
		})
	require.ErrorIs(t, err, fx.ErrNoRateFound)
}
