package invoices

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusDraft, StatusSent, true},
		{StatusSent, StatusViewed, true},
		{StatusSent, StatusPartiallyPaid, true},
		{StatusSent, StatusPaid, true},
		{StatusViewed, StatusPaid, true},
		{StatusPartiallyPaid, StatusPaid, true},
		{StatusPaid, StatusRefunded, true},

		{StatusDraft, StatusPaid, false},
		{StatusDraft, StatusViewed, false},
		{StatusViewed, StatusSent, false},
		{StatusPaid, StatusCancelled, false},
		{StatusCancelled, StatusSent, false},
		{StatusRefunded, StatusPaid, false},

		// OVERDUE is computed, never a transition target.
		{StatusSent, StatusOverdue, false},
		{StatusViewed, StatusOverdue, false},
	}
	for _, tc := range cases {
		require.Equalf(t, tc.ok, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestEffectiveStatusOverdueOverlay(t *testing.T) {
	due := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	before := due.Add(-24 * time.Hour)
	after := due.Add(24 * time.Hour)

	inv := &Invoice{Status: StatusSent, DueDate: due}
	require.Equal(t, StatusSent, inv.EffectiveStatus(before))
	require.Equal(t, StatusOverdue, inv.EffectiveStatus(after))

	inv.Status = StatusPartiallyPaid
	require.Equal(t, StatusOverdue, inv.EffectiveStatus(after))

	// Settled, cancelled, and draft invoices never go overdue.
	for _, s := range []Status{StatusDraft, StatusPaid, StatusCancelled, StatusRefunded} {
		inv.Status = s
		require.Equal(t, s, inv.EffectiveStatus(after), s)
	}
}
