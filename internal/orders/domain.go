// Package orders implements customer orders: line items, payments, stock
// reservations, and the order status machine. Status is always derived from
// the underlying totals, payment state, and fulfilment milestones; it is
// never set independently of them.
package orders

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kiloware/kiloware/internal/billing"
	"github.com/kiloware/kiloware/internal/money"
)

// Status enumerates the order lifecycle.
type Status string

const (
	StatusDraft           Status = "DRAFT"
	StatusPendingPayment  Status = "PENDING_PAYMENT"
	StatusPaymentReceived Status = "PAYMENT_RECEIVED"
	StatusProcessing      Status = "PROCESSING"
	StatusPacked          Status = "PACKED"
	StatusShipped         Status = "SHIPPED"
	StatusDelivered       Status = "DELIVERED"
	StatusCompleted       Status = "COMPLETED"
	StatusCancelled       Status = "CANCELLED"
	StatusReturned        Status = "RETURNED"
	StatusRefunded        Status = "REFUNDED"
)

// transitions lists the legal next states. No transition skips intermediate
// states except administrative cancellation.
var transitions = map[Status][]Status{
	StatusDraft:           {StatusPendingPayment, StatusCancelled},
	StatusPendingPayment:  {StatusPaymentReceived, StatusCancelled},
	StatusPaymentReceived: {StatusProcessing, StatusCancelled},
	StatusProcessing:      {StatusPacked, StatusCancelled},
	StatusPacked:          {StatusShipped, StatusCancelled},
	StatusShipped:         {StatusDelivered},
	StatusDelivered:       {StatusCompleted, StatusReturned, StatusRefunded},
	StatusReturned:        {StatusRefunded},
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

// CanBeCancelled reports whether the order may still be cancelled: any
// state before the goods leave the warehouse.
func (s Status) CanBeCancelled() bool {
	return s.CanTransitionTo(StatusCancelled)
}

// OrderItem is a billed line plus the stock hold backing it.
type OrderItem struct {
	billing.LineItem
	ReservationToken uuid.UUID `json:"reservation_token,omitempty"`
}

// Order is a financial document: it exclusively owns its line items and
// payment events, and every derived field below the Items/Payments pair is
// recomputed after any mutation of them.
type Order struct {
	ID         int64
	Number     string
	CustomerID int64
	Currency   string
	Status     Status

	Items     []OrderItem
	Discounts []billing.Discount
	Shipping  money.Money
	Handling  money.Money

	Totals billing.DocumentTotals

	Payments      []billing.PaymentEvent
	Paid          money.Money
	Balance       money.Money
	Overpaid      money.Money
	PaymentStatus billing.PaymentStatus

	DueDate     time.Time
	PlacedAt    time.Time
	ShippedAt   *time.Time
	DeliveredAt *time.Time
	ClosedAt    *time.Time

	CancellationReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ErrIllegalTransition indicates a status-machine violation. The operation
// is rejected, never coerced.
var ErrIllegalTransition = errors.New("orders: illegal status transition")

// ErrNotFound indicates a missing order.
var ErrNotFound = errors.New("orders: order not found")

// ErrEmptyItems indicates an order without line items.
var ErrEmptyItems = errors.New("orders: at least one item is required")

// ErrReturnWindowClosed indicates a return attempted after the allowed
// period following delivery.
var ErrReturnWindowClosed = errors.New("orders: return window closed")
