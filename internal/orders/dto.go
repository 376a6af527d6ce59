package orders

import (
	"github.com/shopspring/decimal"

	"github.com/kiloware/kiloware/internal/billing"
	"github.com/kiloware/kiloware/internal/money"
)

// DiscountRequest is the wire shape of a discount.
type DiscountRequest struct {
	Kind  string          `json:"kind" validate:"required,oneof=PERCENT FIXED"`
	Value decimal.Decimal `json:"value" validate:"required"`
}

func (d DiscountRequest) toDomain() billing.Discount {
	return billing.Discount{Kind: billing.DiscountKind(d.Kind), Value: d.Value}
}

// PlaceOrderItemRequest is one requested line.
type PlaceOrderItemRequest struct {
	ProductID   int64            `json:"product_id" validate:"required,gt=0"`
	Description string           `json:"description" validate:"max=500"`
	UnitPrice   decimal.Decimal  `json:"unit_price" validate:"required"`
	Quantity    int64            `json:"quantity" validate:"required,gt=0"`
	Discount    *DiscountRequest `json:"discount,omitempty"`
	TaxRate     decimal.Decimal  `json:"tax_rate"`
}

// PlaceOrderRequest is the order intake payload. All monetary values are in
// the document currency.
type PlaceOrderRequest struct {
	CustomerID int64                   `json:"customer_id" validate:"required,gt=0"`
	Currency   string                  `json:"currency" validate:"required,len=3"`
	Items      []PlaceOrderItemRequest `json:"items" validate:"required,min=1,dive"`
	Discounts  []DiscountRequest       `json:"discounts" validate:"dive"`
	Shipping   decimal.Decimal         `json:"shipping"`
	Handling   decimal.Decimal         `json:"handling"`
}

func (req PlaceOrderRequest) toInput() PlaceOrderInput {
	input := PlaceOrderInput{
		CustomerID: req.CustomerID,
		Currency:   req.Currency,
		Items:      make([]billing.LineItem, len(req.Items)),
		Shipping:   money.Money{Amount: req.Shipping, Currency: req.Currency},
		Handling:   money.Money{Amount: req.Handling, Currency: req.Currency},
	}
	for i, item := range req.Items {
		line := billing.LineItem{
			ProductID:   item.ProductID,
			Description: item.Description,
			UnitPrice:   money.Money{Amount: item.UnitPrice, Currency: req.Currency},
			Quantity:    item.Quantity,
			TaxRate:     item.TaxRate,
		}
		if item.Discount != nil {
			d := item.Discount.toDomain()
			line.Discount = &d
		}
		input.Items[i] = line
	}
	for _, d := range req.Discounts {
		input.Discounts = append(input.Discounts, d.toDomain())
	}
	return input
}

// PaymentRequest records one gateway event against the order.
type PaymentRequest struct {
	EventID  string          `json:"event_id" validate:"required,max=128"`
	Amount   decimal.Decimal `json:"amount" validate:"required"`
	Currency string          `json:"currency" validate:"required,len=3"`
	Status   string          `json:"status" validate:"required,oneof=PENDING COMPLETED FAILED REFUNDED"`
	Method   string          `json:"method" validate:"max=64"`
}

func (req PaymentRequest) toEvent() billing.PaymentEvent {
	return billing.PaymentEvent{
		ID:     req.EventID,
		Amount: money.Money{Amount: req.Amount, Currency: req.Currency},
		Status: billing.EventStatus(req.Status),
		Method: req.Method,
	}
}

// CancelRequest carries the mandatory cancellation reason.
type CancelRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

// OrderResponse is the outward order shape.
type OrderResponse struct {
	ID            int64                  `json:"id"`
	Number        string                 `json:"number"`
	CustomerID    int64                  `json:"customer_id"`
	Currency      string                 `json:"currency"`
	Status        Status                 `json:"status"`
	Items         []OrderItem            `json:"items,omitempty"`
	Totals        billing.DocumentTotals `json:"totals"`
	Paid          money.Money            `json:"paid"`
	Balance       money.Money            `json:"balance"`
	Overpaid      money.Money            `json:"overpaid"`
	PaymentStatus billing.PaymentStatus  `json:"payment_status"`
	DueDate       string                 `json:"due_date"`
	PlacedAt      string                 `json:"placed_at"`
}

func orderResponse(o *Order) OrderResponse {
	return OrderResponse{
		ID:            o.ID,
		Number:        o.Number,
		CustomerID:    o.CustomerID,
		Currency:      o.Currency,
		Status:        o.Status,
		Items:         o.Items,
		Totals:        o.Totals,
		Paid:          o.Paid,
		Balance:       o.Balance,
		Overpaid:      o.Overpaid,
		PaymentStatus: o.PaymentStatus,
		DueDate:       o.DueDate.Format("2006-01-02"),
		PlacedAt:      o.PlacedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}
