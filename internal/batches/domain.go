// Package batches implements procurement of bulk secondhand-clothing lots:
// the batch lifecycle from purchase order to storage, and the allocation of
// landed costs over the received weight.
package batches

import (
	"errors"
	"time"

	"github.com/kiloware/kiloware/internal/money"
)

// Status enumerates the batch lifecycle.
type Status string

const (
	StatusOrdered         Status = "ORDERED"
	StatusInTransit       Status = "IN_TRANSIT"
	StatusReceived        Status = "RECEIVED"
	StatusInSorting       Status = "IN_SORTING"
	StatusPartiallySorted Status = "PARTIALLY_SORTED"
	StatusSorted          Status = "SORTED"
	StatusInStorage       Status = "IN_STORAGE"
	StatusCompleted       Status = "COMPLETED"
	StatusCancelled       Status = "CANCELLED"
)

// Cancellation is only possible while the goods are still with the supplier
// or carrier; once received, the batch flows through sorting to storage.
var transitions = map[Status][]Status{
	StatusOrdered:         {StatusInTransit, StatusCancelled},
	StatusInTransit:       {StatusReceived, StatusCancelled},
	StatusReceived:        {StatusInSorting},
	StatusInSorting:       {StatusPartiallySorted, StatusSorted},
	StatusPartiallySorted: {StatusSorted},
	StatusSorted:          {StatusInStorage},
	StatusInStorage:       {StatusCompleted},
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

// Cost is one landed-cost component of a batch: purchase price, freight,
// customs, and the like. Components may be priced in different currencies.
type Cost struct {
	Label  string      `json:"label"`
	Amount money.Money `json:"amount"`
}

// Batch is one purchased lot, tracked in kilograms. TotalCost and
// CostPerUnit are derived by the allocator at receipt and fixed thereafter.
type Batch struct {
	ID         int64
	Number     string
	SupplierID int64
	Status     Status

	// ExpectedQty and ReceivedQty are weights in whole kilograms.
	ExpectedQty int64
	ReceivedQty int64

	Costs []Cost

	// TotalCost and CostPerUnit are in the accounting currency, converted
	// at the order date.
	TotalCost   money.Money
	CostPerUnit money.Money

	// ProductID is the stock record created at receipt.
	ProductID int64

	OrderedAt  time.Time
	ReceivedAt *time.Time
	ClosedAt   *time.Time

	CancellationReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

var (
	// ErrIllegalTransition indicates a status-machine violation.
	ErrIllegalTransition = errors.New("batches: illegal status transition")
	// ErrNotFound indicates a missing batch.
	ErrNotFound = errors.New("batches: batch not found")
	// ErrInvalidQuantity indicates a non-positive weight.
	ErrInvalidQuantity = errors.New("batches: quantity must be positive")
	// ErrUnknownCost indicates a cost-per-unit request against zero received
	// weight. The unit cost is unknown, not zero; pricing downstream must
	// not silently treat the goods as free.
	ErrUnknownCost = errors.New("batches: cost per unit unknown for zero received quantity")
	// ErrNoCosts indicates a batch without any cost components.
	ErrNoCosts = errors.New("batches: at least one cost component is required")
)
