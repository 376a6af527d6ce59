package billing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kiloware/kiloware/internal/money"
)

var hundred = decimal.NewFromInt(100)

// CalculateLine recomputes the derived fields of a line item. The order of
// operations is fixed: subtotal, then discount, then tax on the discounted
// net. The function is pure and idempotent.
func CalculateLine(item LineItem) (LineItem, error) {
	if item.Quantity <= 0 {
		return LineItem{}, fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidLineItem, item.Quantity)
	}
	if item.UnitPrice.IsNegative() {
		return LineItem{}, fmt.Errorf("%w: unit price must not be negative", ErrInvalidLineItem)
	}
	if item.TaxRate.IsNegative() {
		return LineItem{}, fmt.Errorf("%w: tax rate must not be negative", ErrInvalidLineItem)
	}

	item.Subtotal = item.UnitPrice.MulInt(item.Quantity)

	discount, err := discountAmount(item.Discount, item.Subtotal)
	if err != nil {
		return LineItem{}, err
	}
	item.DiscountAmount = discount

	net, err := item.Subtotal.Sub(item.DiscountAmount)
	if err != nil {
		return LineItem{}, err
	}
	item.TaxAmount = net.Mul(item.TaxRate.Div(hundred))

	total, err := net.Add(item.TaxAmount)
	if err != nil {
		return LineItem{}, err
	}
	item.Total = total
	return item, nil
}

// discountAmount resolves a discount against a base amount. Fixed discounts
// are clamped to the base so the result can never go negative.
func discountAmount(d *Discount, base money.Money) (money.Money, error) {
	if d == nil {
		return money.Zero(base.Currency), nil
	}
	if err := d.Validate(); err != nil {
		return money.Money{}, err
	}
	switch d.Kind {
	case DiscountPercent:
		return base.Mul(d.Value.Div(hundred)), nil
	case DiscountFixed:
		fixed := money.Money{Amount: d.Value, Currency: base.Currency}
		if fixed.Cmp(base) > 0 {
			return base, nil
		}
		return fixed, nil
	}
	return money.Money{}, ErrInvalidDiscount
}
