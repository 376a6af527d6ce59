// Package invoices implements accounts-receivable documents. An invoice
// shares the billing calculation core with orders but follows its own
// lifecycle: delivery states are explicit, payment states are derived from
// the ledger, and overdue is a computed overlay rather than a stored status.
package invoices

import (
	"errors"
	"time"

	"github.com/kiloware/kiloware/internal/billing"
	"github.com/kiloware/kiloware/internal/money"
)

// Status enumerates the stored invoice lifecycle.
type Status string

const (
	StatusDraft         Status = "DRAFT"
	StatusSent          Status = "SENT"
	StatusViewed        Status = "VIEWED"
	StatusPartiallyPaid Status = "PARTIALLY_PAID"
	StatusPaid          Status = "PAID"
	StatusCancelled     Status = "CANCELLED"
	StatusRefunded      Status = "REFUNDED"

	// StatusOverdue is never stored. It is the effective status of an
	// unpaid invoice past its due date; storing it would let the stored
	// state disagree with the clock.
	StatusOverdue Status = "OVERDUE"
)

var transitions = map[Status][]Status{
	StatusDraft:         {StatusSent, StatusCancelled},
	StatusSent:          {StatusViewed, StatusPartiallyPaid, StatusPaid, StatusCancelled},
	StatusViewed:        {StatusPartiallyPaid, StatusPaid, StatusCancelled},
	StatusPartiallyPaid: {StatusPaid, StatusCancelled},
	StatusPaid:          {StatusRefunded},
}

// CanTransitionTo reports whether next is a legal successor.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Invoice is a receivable document. Derived fields are recomputed from the
// items and payment events after every mutation.
type Invoice struct {
	ID         int64
	Number     string
	CustomerID int64
	// OrderID links the originating sales order, zero when issued directly.
	OrderID  int64
	Currency string
	Status   Status

	Items     []billing.LineItem
	Discounts []billing.Discount
	Shipping  money.Money
	Handling  money.Money

	Totals billing.DocumentTotals

	Payments      []billing.PaymentEvent
	Paid          money.Money
	Balance       money.Money
	Overpaid      money.Money
	PaymentStatus billing.PaymentStatus

	IssuedAt time.Time
	DueDate  time.Time
	SentAt   *time.Time
	ViewedAt *time.Time
	ClosedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EffectiveStatus overlays OVERDUE on an unpaid invoice past its due date.
// The stored status is untouched; a payment recorded after the due date
// still lands on the real state machine.
func (inv *Invoice) EffectiveStatus(now time.Time) Status {
	switch inv.Status {
	case StatusSent, StatusViewed, StatusPartiallyPaid:
		if !inv.DueDate.IsZero() && now.After(inv.DueDate) {
			return StatusOverdue
		}
	}
	return inv.Status
}

var (
	// ErrIllegalTransition indicates a status-machine violation.
	ErrIllegalTransition = errors.New("invoices: illegal status transition")
	// ErrNotFound indicates a missing invoice.
	ErrNotFound = errors.New("invoices: invoice not found")
	// ErrEmptyItems indicates an invoice without line items.
	ErrEmptyItems = errors.New("invoices: at least one item is required")
)
