package billing

import (
	"fmt"

	"github.com/kiloware/kiloware/internal/money"
)

// Document is the calculation input for totals aggregation: the ordered line
// items plus the document-level modifiers.
type Document struct {
	Currency  string
	Items     []LineItem
	Discounts []Discount
	Shipping  money.Money
	Handling  money.Money
}

// Recompute recalculates every line item and folds them into document
// totals. Document-level discounts apply to the sum of item subtotals, not
// stacked multiplicatively with item discounts. The function is deterministic
// and idempotent: repeated invocation with unchanged inputs yields identical
// output. It must run after every structural mutation of a document.
func Recompute(doc Document) ([]LineItem, DocumentTotals, error) {
	if doc.Currency == "" {
		return nil, DocumentTotals{}, fmt.Errorf("%w: document currency required", ErrInvalidLineItem)
	}

	totals := DocumentTotals{
		Currency:     doc.Currency,
		Subtotal:     money.Zero(doc.Currency),
		ItemDiscount: money.Zero(doc.Currency),
		DocDiscount:  money.Zero(doc.Currency),
		Tax:          money.Zero(doc.Currency),
		Shipping:     money.Zero(doc.Currency),
		Handling:     money.Zero(doc.Currency),
		Total:        money.Zero(doc.Currency),
	}

	items := make([]LineItem, len(doc.Items))
	for i, raw := range doc.Items {
		if raw.UnitPrice.Currency != doc.Currency {
			return nil, DocumentTotals{}, fmt.Errorf("%w: line %d priced in %s, document is %s",
				money.ErrCurrencyMismatch, i, raw.UnitPrice.Currency, doc.Currency)
		}
		item, err := CalculateLine(raw)
		if err != nil {
			return nil, DocumentTotals{}, fmt.Errorf("line %d: %w", i, err)
		}
		items[i] = item

		if totals.Subtotal, err = totals.Subtotal.Add(item.Subtotal); err != nil {
			return nil, DocumentTotals{}, err
		}
		if totals.ItemDiscount, err = totals.ItemDiscount.Add(item.DiscountAmount); err != nil {
			return nil, DocumentTotals{}, err
		}
		if totals.Tax, err = totals.Tax.Add(item.TaxAmount); err != nil {
			return nil, DocumentTotals{}, err
		}
	}

	for i, d := range doc.Discounts {
		amount, err := discountAmount(&d, totals.Subtotal)
		if err != nil {
			return nil, DocumentTotals{}, fmt.Errorf("document discount %d: %w", i, err)
		}
		if totals.DocDiscount, err = totals.DocDiscount.Add(amount); err != nil {
			return nil, DocumentTotals{}, err
		}
	}

	if !doc.Shipping.IsZero() {
		if doc.Shipping.Currency != doc.Currency || doc.Shipping.IsNegative() {
			return nil, DocumentTotals{}, fmt.Errorf("%w: invalid shipping cost", ErrInvalidLineItem)
		}
		totals.Shipping = doc.Shipping
	}
	if !doc.Handling.IsZero() {
		if doc.Handling.Currency != doc.Currency || doc.Handling.IsNegative() {
			return nil, DocumentTotals{}, fmt.Errorf("%w: invalid handling cost", ErrInvalidLineItem)
		}
		totals.Handling = doc.Handling
	}

	// total = Σsubtotal − Σdiscount(item) − Σdiscount(doc) + Σtax + shipping + handling
	total := totals.Subtotal
	var err error
	if total, err = total.Sub(totals.ItemDiscount); err != nil {
		return nil, DocumentTotals{}, err
	}
	if total, err = total.Sub(totals.DocDiscount); err != nil {
		return nil, DocumentTotals{}, err
	}
	if total, err = total.Add(totals.Tax); err != nil {
		return nil, DocumentTotals{}, err
	}
	if total, err = total.Add(totals.Shipping); err != nil {
		return nil, DocumentTotals{}, err
	}
	if total, err = total.Add(totals.Handling); err != nil {
		return nil, DocumentTotals{}, err
	}
	totals.Total = total
	return items, totals, nil
}
