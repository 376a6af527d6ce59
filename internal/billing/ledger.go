package billing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kiloware/kiloware/internal/money"
)

// AmountConverter normalises a payment amount into the document currency.
// Satisfied by *fx.Converter.
type AmountConverter interface {
	Convert(ctx context.Context, amount money.Money, to string, asOf time.Time) (money.Money, error)
}

// LedgerResult summarises the payment state of a document. Balance may go
// negative to flag overpayment; Overpaid carries the surplus separately so
// callers never have to interpret a negative balance themselves.
type LedgerResult struct {
	Paid     money.Money
	Balance  money.Money
	Overpaid money.Money
	Status   PaymentStatus
}

// Ledger folds payment events into paid/balance/status for a document.
type Ledger struct {
	fx AmountConverter
}

// NewLedger builds a Ledger on top of a currency converter.
func NewLedger(fx AmountConverter) *Ledger {
	return &Ledger{fx: fx}
}

// Apply folds events in timestamp order regardless of arrival order; payment
// gateways deliver out of order and the fold must not care. Each event amount
// is converted to the document currency at the event time. Only COMPLETED
// events add; REFUNDED events subtract. The fold is pure apart from rate
// lookups through the converter.
func (l *Ledger) Apply(ctx context.Context, total money.Money, dueDate, now time.Time, events []PaymentEvent) (LedgerResult, error) {
	sorted := make([]PaymentEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].At.Before(sorted[j].At) })

	paid := money.Zero(total.Currency)
	for _, evt := range sorted {
		var sign int64
		switch evt.Status {
		case EventCompleted:
			sign = 1
		case EventRefunded:
			sign = -1
		default:
			continue
		}
		amount := evt.Amount
		if amount.Currency != total.Currency {
			converted, err := l.fx.Convert(ctx, amount, total.Currency, evt.At)
			if err != nil {
				return LedgerResult{}, fmt.Errorf("billing: payment %s: %w", evt.ID, err)
			}
			amount = converted
		}
		var err error
		if paid, err = paid.Add(amount.MulInt(sign)); err != nil {
			return LedgerResult{}, err
		}
	}

	balance, err := total.Sub(paid)
	if err != nil {
		return LedgerResult{}, err
	}
	overpaid := money.Zero(total.Currency)
	if balance.IsNegative() {
		overpaid = balance.Neg()
	}

	result := LedgerResult{Paid: paid, Balance: balance, Overpaid: overpaid}
	switch {
	case !balance.IsPositive():
		result.Status = PaymentPaid
	case paid.IsPositive():
		result.Status = PaymentPartiallyPaid
	case !dueDate.IsZero() && now.After(dueDate):
		result.Status = PaymentOverdue
	default:
		result.Status = PaymentPending
	}
	return result, nil
}
