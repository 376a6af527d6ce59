package inventory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/kiloware/kiloware/internal/shared"
)

// memoryRepo serialises each transaction behind a mutex, mirroring the
// atomicity the SQL repository gets from its version check.
type memoryRepo struct {
	mu           sync.Mutex
	products     map[int64]Product
	reservations map[uuid.UUID]Reservation
	movements    []Movement
	nextID       int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		products:     make(map[int64]Product),
		reservations: make(map[uuid.UUID]Reservation),
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetProduct(ctx context.Context, productID int64) (Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[productID]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

func (r *memoryRepo) ListExpiredReservations(ctx context.Context, asOf time.Time, limit int) ([]Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stale []Reservation
	for _, res := range r.reservations {
		if res.Status == ReservationActive && res.ExpiresAt.Before(asOf) {
			stale = append(stale, res)
		}
	}
	return stale, nil
}

func (r *memoryRepo) ListMovements(ctx context.Context, productID int64, limit int) ([]Movement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Movement
	for _, m := range r.movements {
		if m.ProductID == productID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (tx *memoryTx) GetProduct(ctx context.Context, productID int64) (Product, error) {
	p, ok := tx.repo.products[productID]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

func (tx *memoryTx) InsertProduct(ctx context.Context, product Product) (int64, error) {
	tx.repo.nextID++
	product.ID = tx.repo.nextID
	tx.repo.products[product.ID] = product
	return product.ID, nil
}

func (tx *memoryTx) UpdateCounters(ctx context.Context, productID, quantity, reserved, expectVersion int64) error {
	p, ok := tx.repo.products[productID]
	if !ok {
		return ErrProductNotFound
	}
	if p.Version != expectVersion {
		return ErrVersionConflict
	}
	if quantity < 0 || reserved < 0 || reserved > quantity {
		return ErrVersionConflict
	}
	p.Quantity = quantity
	p.Reserved = reserved
	p.Version++
	tx.repo.products[productID] = p
	return nil
}

func (tx *memoryTx) InsertReservation(ctx context.Context, res Reservation) error {
	tx.repo.reservations[res.Token] = res
	return nil
}

func (tx *memoryTx) GetReservation(ctx context.Context, token uuid.UUID) (Reservation, error) {
	res, ok := tx.repo.reservations[token]
	if !ok {
		return Reservation{}, ErrReservationNotFound
	}
	return res, nil
}

func (tx *memoryTx) CloseReservation(ctx context.Context, token uuid.UUID, from, to ReservationStatus, at time.Time) error {
	res, ok := tx.repo.reservations[token]
	if !ok || res.Status != from {
		return ErrVersionConflict
	}
	res.Status = to
	res.ClosedAt = &at
	tx.repo.reservations[token] = res
	return nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, movement Movement) error {
	tx.repo.movements = append(tx.repo.movements, movement)
	return nil
}

// conflictRepo injects version conflicts ahead of the real counter update to
// exercise the optimistic retry path, which the mutex-serialised memoryRepo
// alone can never trigger.
type conflictRepo struct {
	*memoryRepo
	remaining int
}

func (r *conflictRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return r.memoryRepo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return fn(ctx, &conflictTx{TxRepository: tx, repo: r})
	})
}

type conflictTx struct {
	TxRepository
	repo *conflictRepo
}

func (tx *conflictTx) UpdateCounters(ctx context.Context, productID, quantity, reserved, expectVersion int64) error {
	if tx.repo.remaining > 0 {
		tx.repo.remaining--
		return ErrVersionConflict
	}
	return tx.TxRepository.UpdateCounters(ctx, productID, quantity, reserved, expectVersion)
}

func newTestService(t *testing.T, qty int64) (*Service, *memoryRepo, int64) {
	t.Helper()
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, ServiceConfig{})
	product, err := svc.CreateProduct(context.Background(), ProductInput{SKU: "SKU-1", Name: "Wool coat", Quantity: qty})
	require.NoError(t, err)
	return svc, repo, product.ID
}

func requireInvariant(t *testing.T, p Product) {
	t.Helper()
	require.GreaterOrEqual(t, p.Reserved, int64(0))
	require.LessOrEqual(t, p.Reserved, p.Quantity)
	require.Equal(t, p.Quantity, p.Reserved+p.Available())
}

func TestReserveHoldsStock(t *testing.T) {
	svc, _, id := newTestService(t, 10)
	ctx := context.Background()

	res, err := svc.Reserve(ctx, id, 4, "orders", "SO-1")
	require.NoError(t, err)
	require.Equal(t, ReservationActive, res.Status)

	p, err := svc.GetProduct(ctx, id)
	require.NoError(t, err)
	require.EqualValues(t, 10, p.Quantity)
	require.EqualValues(t, 4, p.Reserved)
	require.EqualValues(t, 6, p.Available())
	requireInvariant(t, p)
}

func TestReserveRejectsInsufficientStock(t *testing.T) {
	svc, _, id := newTestService(t, 3)
	ctx := context.Background()

	_, err := svc.Reserve(ctx, id, 4, "orders", "SO-1")
	require.ErrorIs(t, err, ErrInsufficientStock)

	// Nothing was clamped or partially applied.
	p, err := svc.GetProduct(ctx, id)
	require.NoError(t, err)
	require.EqualValues(t, 0, p.Reserved)
}

func TestReleaseRestoresAvailability(t *testing.T) {
	svc, _, id := newTestService(t, 10)
	ctx := context.Background()

	res, err := svc.Reserve(ctx, id, 4, "orders", "SO-1")
	require.NoError(t, err)
	require.NoError(t, svc.Release(ctx, res.Token))

	p, err := svc.GetProduct(ctx, id)
	require.NoError(t, err)
	require.EqualValues(t, 10, p.Available())
	requireInvariant(t, p)

	// Releasing again is a no-op.
	require.NoError(t, svc.Release(ctx, res.Token))
	p, err = svc.GetProduct(ctx, id)
	require.NoError(t, err)
	require.EqualValues(t, 10, p.Available())
}

func TestCommitDeductsQuantityKeepsAvailability(t *testing.T) {
	svc, _, id := newTestService(t, 10)
	ctx := context.Background()

	before, err := svc.GetProduct(ctx, id)
	require.NoError(t, err)

	res, err := svc.Reserve(ctx, id, 4, "orders", "SO-1")
	require.NoError(t, err)

	held, err := svc.GetProduct(ctx, id)
	require.NoError(t, err)
	require.Equal(t, before.Available()-4, held.Available())

	require.NoError(t, svc.Commit(ctx, res.Token))

	after, err := svc.GetProduct(ctx, id)
	require.NoError(t, err)
	require.EqualValues(t, 6, after.Quantity)
	require.EqualValues(t, 0, after.Reserved)
	require.Equal(t, held.Available(), after.Available())
	requireInvariant(t, after)

	// Re-committing is a no-op: the deduction must not apply twice.
	require.NoError(t, svc.Commit(ctx, res.Token))
	again, err := svc.GetProduct(ctx, id)
	require.NoError(t, err)
	require.Equal(t, after, again)
}

func TestCommitReleasedReservationFails(t *testing.T) {
	svc, _, id := newTestService(t, 10)
	ctx := context.Background()

	res, err := svc.Reserve(ctx, id, 4, "orders", "SO-1")
	require.NoError(t, err)
	require.NoError(t, svc.Release(ctx, res.Token))

	// The hold is gone; there is nothing left to deduct.
	require.ErrorIs(t, svc.Commit(ctx, res.Token), ErrReservationNotFound)
}

func TestReserveRetriesVersionConflicts(t *testing.T) {
	repo := &conflictRepo{memoryRepo: newMemoryRepo(), remaining: 2}
	svc := NewService(repo, nil, nil, ServiceConfig{})
	ctx := context.Background()

	product, err := svc.CreateProduct(ctx, ProductInput{SKU: "SKU-1", Quantity: 10})
	require.NoError(t, err)

	res, err := svc.Reserve(ctx, product.ID, 4, "orders", "SO-1")
	require.NoError(t, err)
	require.Equal(t, ReservationActive, res.Status)
	require.Zero(t, repo.remaining)

	p, err := svc.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	require.EqualValues(t, 4, p.Reserved)
	requireInvariant(t, p)
}

func TestReserveExhaustsRetries(t *testing.T) {
	repo := &conflictRepo{memoryRepo: newMemoryRepo(), remaining: 10}
	svc := NewService(repo, nil, nil, ServiceConfig{MaxRetries: 3})
	ctx := context.Background()

	product, err := svc.CreateProduct(ctx, ProductInput{SKU: "SKU-1", Quantity: 10})
	require.NoError(t, err)

	_, err = svc.Reserve(ctx, product.ID, 1, "orders", "SO-1")
	require.ErrorIs(t, err, ErrVersionConflict)
	require.ErrorContains(t, err, "retries exhausted")
	require.Equal(t, 7, repo.remaining)

	// No hold landed.
	p, err := svc.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	require.EqualValues(t, 0, p.Reserved)
}

func TestConcurrentReservationsNeverOversell(t *testing.T) {
	svc, _, id := newTestService(t, 10)
	ctx := context.Background()

	const attempts = 120
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Reserve(ctx, id, 1, "orders", "SO-N")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, ErrInsufficientStock)
		}
	}
	require.Equal(t, 10, succeeded)

	p, err := svc.GetProduct(ctx, id)
	require.NoError(t, err)
	require.EqualValues(t, 10, p.Reserved)
	require.EqualValues(t, 0, p.Available())
	requireInvariant(t, p)
}

func TestAdjustGuardsAndJournals(t *testing.T) {
	svc, repo, id := newTestService(t, 10)
	ctx := context.Background()

	_, err := svc.Reserve(ctx, id, 8, "orders", "SO-1")
	require.NoError(t, err)

	// Shrinking below the reserved amount is rejected.
	_, err = svc.Adjust(ctx, id, -5, "recount", 1)
	require.ErrorIs(t, err, ErrAdjustBelowReserved)

	_, err = svc.Adjust(ctx, id, -2, "", 1)
	require.ErrorIs(t, err, ErrReasonRequired)

	p, err := svc.Adjust(ctx, id, -2, "water damage", 1)
	require.NoError(t, err)
	require.EqualValues(t, 8, p.Quantity)
	requireInvariant(t, p)

	movements, err := repo.ListMovements(ctx, id, 0)
	require.NoError(t, err)
	var adjusts int
	for _, m := range movements {
		if m.Type == MovementAdjust {
			adjusts++
			require.Equal(t, "water damage", m.Reason)
		}
	}
	require.Equal(t, 1, adjusts)
}

func TestExpireStaleReleasesAbandonedHolds(t *testing.T) {
	repo := newMemoryRepo()
	clock := &stepClock{at: time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewService(repo, nil, clock, ServiceConfig{HoldTTL: 10 * time.Minute})
	ctx := context.Background()

	product, err := svc.CreateProduct(ctx, ProductInput{SKU: "SKU-1", Quantity: 10})
	require.NoError(t, err)

	_, err = svc.Reserve(ctx, product.ID, 3, "orders", "SO-1")
	require.NoError(t, err)

	// Not yet expired.
	released, err := svc.ExpireStale(ctx, 100)
	require.NoError(t, err)
	require.Zero(t, released)

	clock.advance(11 * time.Minute)
	released, err = svc.ExpireStale(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, 1, released)

	p, err := svc.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	require.EqualValues(t, 10, p.Available())
	requireInvariant(t, p)
}

type stepClock struct {
	mu sync.Mutex
	at time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

func (c *stepClock) advance(d time.Duration) {
	c.mu.Lock()
	c.at = c.at.Add(d)
	c.mu.Unlock()
}

var _ shared.Clock = (*stepClock)(nil)
