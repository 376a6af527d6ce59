// Package billing holds the pure calculation core shared by orders and
// invoices: line item arithmetic, document totals aggregation, and the
// payment ledger. Nothing here performs I/O; callers load state first and
// persist the derived fields afterwards.
package billing

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kiloware/kiloware/internal/money"
)

var (
	// ErrInvalidLineItem indicates a line item with a non-positive quantity
	// or a negative unit price.
	ErrInvalidLineItem = errors.New("billing: invalid line item")
	// ErrInvalidDiscount indicates a discount with an unknown kind or a
	// negative value.
	ErrInvalidDiscount = errors.New("billing: invalid discount")
)

// DiscountKind enumerates supported discount shapes.
type DiscountKind string

const (
	// DiscountPercent deducts a percentage of the amount it applies to.
	DiscountPercent DiscountKind = "PERCENT"
	// DiscountFixed deducts a fixed amount, clamped so the result never
	// goes negative.
	DiscountFixed DiscountKind = "FIXED"
)

// Discount is a percentage or fixed deduction.
type Discount struct {
	Kind  DiscountKind    `json:"kind"`
	Value decimal.Decimal `json:"value"`
}

// Validate checks the discount shape.
func (d Discount) Validate() error {
	if d.Kind != DiscountPercent && d.Kind != DiscountFixed {
		return ErrInvalidDiscount
	}
	if d.Value.IsNegative() {
		return ErrInvalidDiscount
	}
	return nil
}

// LineItem is one priced row of an order or invoice. The derived fields are
// always recomputed from the inputs via CalculateLine, never mutated
// independently.
type LineItem struct {
	ProductID   int64           `json:"product_id"`
	Description string          `json:"description,omitempty"`
	UnitPrice   money.Money     `json:"unit_price"`
	Quantity    int64           `json:"quantity"`
	Discount    *Discount       `json:"discount,omitempty"`
	TaxRate     decimal.Decimal `json:"tax_rate"`

	// Derived.
	Subtotal       money.Money `json:"subtotal"`
	DiscountAmount money.Money `json:"discount_amount"`
	TaxAmount      money.Money `json:"tax_amount"`
	Total          money.Money `json:"total"`
}

// DocumentTotals are the aggregate fields of an order or invoice. They are a
// pure function of the items, document discounts, and shipping/handling.
type DocumentTotals struct {
	Currency     string      `json:"currency"`
	Subtotal     money.Money `json:"subtotal"`
	ItemDiscount money.Money `json:"item_discount"`
	DocDiscount  money.Money `json:"doc_discount"`
	Tax          money.Money `json:"tax"`
	Shipping     money.Money `json:"shipping"`
	Handling     money.Money `json:"handling"`
	Total        money.Money `json:"total"`
}

// EventStatus enumerates payment event outcomes.
type EventStatus string

const (
	EventPending   EventStatus = "PENDING"
	EventCompleted EventStatus = "COMPLETED"
	EventFailed    EventStatus = "FAILED"
	EventRefunded  EventStatus = "REFUNDED"
)

// PaymentEvent records one gateway callback against a document. Only
// COMPLETED events add to the paid amount; REFUNDED events subtract.
type PaymentEvent struct {
	ID     string      `json:"id"`
	Amount money.Money `json:"amount"`
	Status EventStatus `json:"status"`
	Method string      `json:"method,omitempty"`
	At     time.Time   `json:"at"`
}

// HasEvent reports whether an event with the given ID is already recorded.
// Gateways redeliver; the fold must count each event exactly once.
func HasEvent(events []PaymentEvent, id string) bool {
	for _, evt := range events {
		if evt.ID == id {
			return true
		}
	}
	return false
}

// PaymentStatus is derived from the ledger fold, never stored independently
// of the events it summarises.
type PaymentStatus string

const (
	PaymentPending       PaymentStatus = "PENDING"
	PaymentPartiallyPaid PaymentStatus = "PARTIALLY_PAID"
	PaymentPaid          PaymentStatus = "PAID"
	PaymentOverdue       PaymentStatus = "OVERDUE"
)
