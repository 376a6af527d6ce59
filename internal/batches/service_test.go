package batches

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kiloware/kiloware/internal/inventory"
	"github.com/kiloware/kiloware/internal/money"
	"github.com/kiloware/kiloware/internal/shared"
)

type memoryRepo struct {
	mu      sync.Mutex
	nextID  int64
	batches map[int64]*Batch
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{nextID: 1, batches: map[int64]*Batch{}}
}

func (r *memoryRepo) Create(_ context.Context, batch *Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	batch.ID = r.nextID
	r.nextID++
	clone := *batch
	r.batches[batch.ID] = &clone
	return nil
}

func (r *memoryRepo) Get(_ context.Context, id int64) (*Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.batches[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *stored
	clone.Costs = append([]Cost(nil), stored.Costs...)
	return &clone, nil
}

func (r *memoryRepo) Update(_ context.Context, batch *Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.batches[batch.ID]; !ok {
		return ErrNotFound
	}
	clone := *batch
	clone.Costs = append([]Cost(nil), batch.Costs...)
	r.batches[batch.ID] = &clone
	return nil
}

func (r *memoryRepo) List(_ context.Context, limit, offset int) ([]Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Batch, 0, len(r.batches))
	for _, b := range r.batches {
		out = append(out, *b)
	}
	return out, nil
}

type fakeStock struct {
	mu      sync.Mutex
	nextID  int64
	created []inventory.ProductInput
}

func (s *fakeStock) CreateProduct(_ context.Context, input inventory.ProductInput) (inventory.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.created = append(s.created, input)
	return inventory.Product{
		ID:       s.nextID,
		SKU:      input.SKU,
		Name:     input.Name,
		BatchID:  input.BatchID,
		Quantity: input.Quantity,
	}, nil
}

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *fakeStock) {
	t.Helper()
	stock := &fakeStock{}
	svc := NewService(newMemoryRepo(), stock, NewAllocator(nil, "EUR"), nil, shared.FixedClock{At: now})
	return svc, stock
}

func orderedBatch(t *testing.T, svc *Service) *Batch {
	t.Helper()
	batch, err := svc.Create(context.Background(), CreateInput{
		SupplierID:  11,
		ExpectedQty: 500,
		Costs: []Cost{
			{Label: "purchase", Amount: money.MustParse("1000.00", "EUR")},
			{Label: "freight", Amount: money.MustParse("100.00", "EUR")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, StatusOrdered, batch.Status)
	return batch
}

func TestCreateValidatesInput(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Create(context.Background(), CreateInput{SupplierID: 1, ExpectedQty: 0,
		Costs: []Cost{{Label: "purchase", Amount: money.MustParse("1.00", "EUR")}}})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.Create(context.Background(), CreateInput{SupplierID: 1, ExpectedQty: 500})
	require.ErrorIs(t, err, ErrNoCosts)
}

func TestReceiveAllocatesAndCreatesStock(t *testing.T) {
	svc, stock := newTestService(t)
	batch := orderedBatch(t, svc)

	_, err := svc.MarkInTransit(context.Background(), batch.ID)
	require.NoError(t, err)

	received, err := svc.Receive(context.Background(), batch.ID, ReceiveInput{
		ReceivedQty: 500,
		SKU:         "LOT-A",
		Name:        "Mixed winter, credential",
	})
	require.NoError(t, err)

	require.Equal(t, StatusReceived, received.Status)
	require.Equal(t, int64(500), received.ReceivedQty)
	require.Equal(t, "1100.00 EUR", received.TotalCost.String())
	require.Equal(t, "2.20 EUR", received.CostPerUnit.String())
	require.NotNil(t, received.ReceivedAt)

	// One bulk stock record for the full weight.
	require.Len(t, stock.created, 1)
	require.Equal(t, "LOT-A", stock.created[0].SKU)
	require.Equal(t, batch.ID, stock.created[0].BatchID)
	require.Equal(t, int64(500), stock.created[0].Quantity)
	require.Equal(t, stock.created[0].Quantity, received.ReceivedQty)
	require.NotZero(t, received.ProductID)
}

func TestReceiveShortDelivery(t *testing.T) {
	svc, _ := newTestService(t)
	batch := orderedBatch(t, svc)
	_, err := svc.MarkInTransit(context.Background(), batch.ID)
	require.NoError(t, err)

	// 440 KG arrive instead of 500; the allocation uses the real weight.
	received, err := svc.Receive(context.Background(), batch.ID, ReceiveInput{ReceivedQty: 440})
	require.NoError(t, err)
	require.Equal(t, "2.50 EUR", received.CostPerUnit.String())
}

func TestReceiveRequiresTransit(t *testing.T) {
	svc, _ := newTestService(t)
	batch := orderedBatch(t, svc)

	_, err := svc.Receive(context.Background(), batch.ID, ReceiveInput{ReceivedQty: 500})
	require.ErrorIs(t, err, ErrIllegalTransition)
}

func TestReallocateReproducesStoredFigures(t *testing.T) {
	svc, _ := newTestService(t)
	batch := orderedBatch(t, svc)
	_, err := svc.MarkInTransit(context.Background(), batch.ID)
	require.NoError(t, err)
	received, err := svc.Receive(context.Background(), batch.ID, ReceiveInput{ReceivedQty: 500})
	require.NoError(t, err)

	allocation, err := svc.Reallocate(context.Background(), batch.ID)
	require.NoError(t, err)
	require.True(t, allocation.TotalCost.Amount.Equal(received.TotalCost.Amount))
	require.True(t, allocation.CostPerUnit.Amount.Equal(received.CostPerUnit.Amount))
}

func TestSortingLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	batch := orderedBatch(t, svc)
	_, err := svc.MarkInTransit(context.Background(), batch.ID)
	require.NoError(t, err)
	_, err = svc.Receive(context.Background(), batch.ID, ReceiveInput{ReceivedQty: 500})
	require.NoError(t, err)

	b, err := svc.StartSorting(context.Background(), batch.ID)
	require.NoError(t, err)
	require.Equal(t, StatusInSorting, b.Status)

	b, err = svc.MarkPartiallySorted(context.Background(), batch.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPartiallySorted, b.Status)

	b, err = svc.MarkSorted(context.Background(), batch.ID)
	require.NoError(t, err)
	b, err = svc.Store(context.Background(), batch.ID)
	require.NoError(t, err)
	b, err = svc.Complete(context.Background(), batch.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, b.Status)
	require.NotNil(t, b.ClosedAt)

	// No skipping from storage back onto the sorting floor.
	_, err = svc.StartSorting(context.Background(), batch.ID)
	require.ErrorIs(t, err, ErrIllegalTransition)
}

func TestCancelOnlyBeforeReceipt(t *testing.T) {
	svc, _ := newTestService(t)
	batch := orderedBatch(t, svc)

	cancelled, err := svc.Cancel(context.Background(), batch.ID, "supplier defaulted")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.Equal(t, "supplier defaulted", cancelled.CancellationReason)

	batch2 := orderedBatch(t, svc)
	_, err = svc.MarkInTransit(context.Background(), batch2.ID)
	require.NoError(t, err)
	_, err = svc.Receive(context.Background(), batch2.ID, ReceiveInput{ReceivedQty: 500})
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), batch2.ID, "too late")
	require.ErrorIs(t, err, ErrIllegalTransition)
}
