package batches

import (
	"context"
	"fmt"
	"time"

	"github.com/kiloware/kiloware/internal/inventory"
	"github.com/kiloware/kiloware/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	Create(ctx context.Context, batch *Batch) error
	Get(ctx context.Context, id int64) (*Batch, error)
	Update(ctx context.Context, batch *Batch) error
	List(ctx context.Context, limit, offset int) ([]Batch, error)
}

// StockPort creates the stock record for a received batch. Satisfied by
// *inventory.Service.
type StockPort interface {
	CreateProduct(ctx context.Context, input inventory.ProductInput) (inventory.Product, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service implements batch operations.
type Service struct {
	repo      RepositoryPort
	stock     StockPort
	allocator *Allocator
	audit     AuditPort
	clock     shared.Clock
}

// NewService builds Service.
func NewService(repo RepositoryPort, stock StockPort, allocator *Allocator, audit AuditPort, clock shared.Clock) *Service {
	if clock == nil {
		clock = shared.RealClock{}
	}
	return &Service{repo: repo, stock: stock, allocator: allocator, audit: audit, clock: clock}
}

// CreateInput describes a new purchase order for a lot.
type CreateInput struct {
	SupplierID  int64
	ExpectedQty int64
	Costs       []Cost
	// OrderedAt defaults to now; back-dated purchase orders are allowed
	// because rate lookups key off this date.
	OrderedAt time.Time
}

// Create registers an ORDERED batch. Costs may still change until receipt;
// the recorded components here are the agreed purchase terms.
func (s *Service) Create(ctx context.Context, input CreateInput) (*Batch, error) {
	if input.ExpectedQty <= 0 {
		return nil, ErrInvalidQuantity
	}
	if len(input.Costs) == 0 {
		return nil, ErrNoCosts
	}
	now := s.clock.Now()
	orderedAt := input.OrderedAt
	if orderedAt.IsZero() {
		orderedAt = now
	}
	batch := &Batch{
		Number:      fmt.Sprintf("PB-%d", now.UnixNano()),
		SupplierID:  input.SupplierID,
		Status:      StatusOrdered,
		ExpectedQty: input.ExpectedQty,
		Costs:       input.Costs,
		OrderedAt:   orderedAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, batch); err != nil {
		return nil, err
	}
	s.auditRecord(ctx, batch, "batches:create", map[string]any{"expected_qty": input.ExpectedQty})
	return batch, nil
}

// Get loads a single batch.
func (s *Service) Get(ctx context.Context, id int64) (*Batch, error) {
	return s.repo.Get(ctx, id)
}

// List returns a page of batches, newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Batch, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.List(ctx, limit, offset)
}

// ReceiveInput carries the weighbridge result and the final landed costs.
type ReceiveInput struct {
	// ReceivedQty is the weighed quantity in kilograms. It may differ from
	// the expected quantity; the allocation uses what actually arrived.
	ReceivedQty int64
	// Costs replaces the ordered components when non-empty, covering
	// freight or customs known only at arrival.
	Costs []Cost
	// SKU and Name describe the bulk stock record created for the lot.
	SKU  string
	Name string
}

// Receive books the arrival of a batch: the landed costs are converted at
// the order date and spread over the received weight, and a stock record is
// created for the full weight. The allocation is computed once here and
// fixed on the batch.
func (s *Service) Receive(ctx context.Context, id int64, input ReceiveInput) (*Batch, error) {
	batch, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if input.ReceivedQty <= 0 {
		return nil, ErrInvalidQuantity
	}
	if err := s.transition(ctx, batch, StatusReceived); err != nil {
		return nil, err
	}
	if len(input.Costs) > 0 {
		batch.Costs = input.Costs
	}

	allocation, err := s.allocator.Allocate(ctx, batch.Costs, input.ReceivedQty, batch.OrderedAt)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	batch.ReceivedQty = input.ReceivedQty
	batch.TotalCost = allocation.TotalCost
	batch.CostPerUnit = allocation.CostPerUnit
	batch.ReceivedAt = &now
	batch.UpdatedAt = now

	sku := input.SKU
	if sku == "" {
		sku = batch.Number
	}
	product, err := s.stock.CreateProduct(ctx, inventory.ProductInput{
		SKU:      sku,
		Name:     input.Name,
		BatchID:  batch.ID,
		Quantity: input.ReceivedQty,
	})
	if err != nil {
		return nil, fmt.Errorf("batches: create stock record: %w", err)
	}
	batch.ProductID = product.ID

	if err := s.repo.Update(ctx, batch); err != nil {
		return nil, err
	}
	s.auditRecord(ctx, batch, "batches:receive", map[string]any{
		"received_qty":  input.ReceivedQty,
		"total_cost":    batch.TotalCost.String(),
		"cost_per_unit": batch.CostPerUnit.String(),
	})
	return batch, nil
}

// Reallocate re-runs the allocation against the stored inputs. It mutates
// nothing; auditors use it to verify the fixed figures.
func (s *Service) Reallocate(ctx context.Context, id int64) (Allocation, error) {
	batch, err := s.repo.Get(ctx, id)
	if err != nil {
		return Allocation{}, err
	}
	return s.allocator.Allocate(ctx, batch.Costs, batch.ReceivedQty, batch.OrderedAt)
}

// MarkInTransit records carrier pickup.
func (s *Service) MarkInTransit(ctx context.Context, id int64) (*Batch, error) {
	return s.advance(ctx, id, StatusInTransit)
}

// StartSorting moves a received batch onto the sorting floor.
func (s *Service) StartSorting(ctx context.Context, id int64) (*Batch, error) {
	return s.advance(ctx, id, StatusInSorting)
}

// MarkPartiallySorted records interrupted sorting.
func (s *Service) MarkPartiallySorted(ctx context.Context, id int64) (*Batch, error) {
	return s.advance(ctx, id, StatusPartiallySorted)
}

// MarkSorted records completed sorting.
func (s *Service) MarkSorted(ctx context.Context, id int64) (*Batch, error) {
	return s.advance(ctx, id, StatusSorted)
}

// Store moves the sorted goods into storage.
func (s *Service) Store(ctx context.Context, id int64) (*Batch, error) {
	return s.advance(ctx, id, StatusInStorage)
}

// Complete closes the batch.
func (s *Service) Complete(ctx context.Context, id int64) (*Batch, error) {
	batch, err := s.advance(ctx, id, StatusCompleted)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	batch.ClosedAt = &now
	batch.UpdatedAt = now
	if err := s.repo.Update(ctx, batch); err != nil {
		return nil, err
	}
	return batch, nil
}

// Cancel aborts a batch before the goods arrive.
func (s *Service) Cancel(ctx context.Context, id int64, reason string) (*Batch, error) {
	batch, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, batch, StatusCancelled); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	batch.CancellationReason = reason
	batch.ClosedAt = &now
	batch.UpdatedAt = now
	if err := s.repo.Update(ctx, batch); err != nil {
		return nil, err
	}
	s.auditRecord(ctx, batch, "batches:cancel", map[string]any{"reason": reason})
	return batch, nil
}

func (s *Service) advance(ctx context.Context, id int64, to Status) (*Batch, error) {
	batch, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, batch, to); err != nil {
		return nil, err
	}
	batch.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, batch); err != nil {
		return nil, err
	}
	return batch, nil
}

func (s *Service) transition(ctx context.Context, batch *Batch, to Status) error {
	if !batch.Status.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, batch.Status, to)
	}
	from := batch.Status
	batch.Status = to
	s.auditRecord(ctx, batch, "batches:transition", map[string]any{"from": string(from), "to": string(to)})
	return nil
}

func (s *Service) auditRecord(ctx context.Context, batch *Batch, action string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "batch",
		EntityID: batch.Number,
		Meta:     meta,
		At:       s.clock.Now(),
	})
}
