package batches

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kiloware/kiloware/internal/billing"
	"github.com/kiloware/kiloware/internal/money"
)

// unitScale is the decimal precision of a per-kilogram cost. Four places
// keep sub-cent resolution without pretending to more accuracy than the
// weighbridge provides.
const unitScale = 4

// Allocation is the result of spreading a batch's landed costs over its
// received weight.
type Allocation struct {
	TotalCost   money.Money
	CostPerUnit money.Money
}

// Allocator converts cost components into the accounting currency and
// spreads them over received weight. Allocate is pure and idempotent; it can
// be re-run against stored inputs for audit and must reproduce the stored
// result exactly.
type Allocator struct {
	fx       billing.AmountConverter
	currency string
}

// NewAllocator builds an Allocator converting into the given accounting
// currency.
func NewAllocator(fx billing.AmountConverter, currency string) *Allocator {
	return &Allocator{fx: fx, currency: currency}
}

// Allocate sums the cost components in the accounting currency, converting
// each at asOf (the order date), and divides by the received weight. A zero
// weight has no meaningful unit cost and returns ErrUnknownCost.
func (a *Allocator) Allocate(ctx context.Context, costs []Cost, receivedQty int64, asOf time.Time) (Allocation, error) {
	if len(costs) == 0 {
		return Allocation{}, ErrNoCosts
	}
	total := money.Zero(a.currency)
	for i, cost := range costs {
		amount := cost.Amount
		if amount.IsNegative() {
			return Allocation{}, fmt.Errorf("batches: cost %q: negative amount", cost.Label)
		}
		if amount.Currency != a.currency {
			converted, err := a.fx.Convert(ctx, amount, a.currency, asOf)
			if err != nil {
				return Allocation{}, fmt.Errorf("batches: cost %d (%s): %w", i, cost.Label, err)
			}
			amount = converted
		}
		var err error
		if total, err = total.Add(amount); err != nil {
			return Allocation{}, err
		}
	}
	if receivedQty <= 0 {
		return Allocation{}, ErrUnknownCost
	}
	perUnit := money.Money{
		Amount:   total.Amount.DivRound(decimal.NewFromInt(receivedQty), unitScale),
		Currency: a.currency,
	}
	return Allocation{TotalCost: total, CostPerUnit: perUnit}, nil
}
