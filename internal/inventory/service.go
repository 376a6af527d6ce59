package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kiloware/kiloware/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetProduct(ctx context.Context, productID int64) (Product, error)
	ListExpiredReservations(ctx context.Context, asOf time.Time, limit int) ([]Reservation, error)
	ListMovements(ctx context.Context, productID int64, limit int) ([]Movement, error)
}

// TxRepository exposes transactional operations used by service. Every
// counter update is a compare-and-swap on the product version; a lost race
// surfaces as ErrVersionConflict and the service retries the whole attempt.
type TxRepository interface {
	GetProduct(ctx context.Context, productID int64) (Product, error)
	InsertProduct(ctx context.Context, product Product) (int64, error)
	UpdateCounters(ctx context.Context, productID, quantity, reserved, expectVersion int64) error
	InsertReservation(ctx context.Context, res Reservation) error
	GetReservation(ctx context.Context, token uuid.UUID) (Reservation, error)
	CloseReservation(ctx context.Context, token uuid.UUID, from, to ReservationStatus, at time.Time) error
	InsertMovement(ctx context.Context, movement Movement) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// HoldTTL bounds how long an uncommitted reservation survives before
	// the background sweep releases it.
	HoldTTL time.Duration
	// MaxRetries bounds optimistic-concurrency retries per operation.
	MaxRetries int
}

const (
	defaultHoldTTL    = 30 * time.Minute
	defaultMaxRetries = 5
)

// Service is the reservation manager: the single writer of the product
// counter triple. Reservations against different products never contend;
// there is no cross-product lock.
type Service struct {
	repo       RepositoryPort
	audit      AuditPort
	clock      shared.Clock
	holdTTL    time.Duration
	maxRetries int
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, clock shared.Clock, cfg ServiceConfig) *Service {
	if clock == nil {
		clock = shared.RealClock{}
	}
	if cfg.HoldTTL <= 0 {
		cfg.HoldTTL = defaultHoldTTL
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	return &Service{repo: repo, audit: audit, clock: clock, holdTTL: cfg.HoldTTL, maxRetries: cfg.MaxRetries}
}

// ProductInput describes a new stock record.
type ProductInput struct {
	SKU      string
	Name     string
	BatchID  int64
	Quantity int64
}

// CreateProduct registers a stock record with the full quantity available.
func (s *Service) CreateProduct(ctx context.Context, input ProductInput) (Product, error) {
	if input.SKU == "" {
		return Product{}, errors.New("inventory: sku required")
	}
	if input.Quantity < 0 {
		return Product{}, ErrInvalidQuantity
	}
	now := s.clock.Now()
	product := Product{
		SKU:       input.SKU,
		Name:      input.Name,
		BatchID:   input.BatchID,
		Quantity:  input.Quantity,
		Reserved:  0,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertProduct(ctx, product)
		if err != nil {
			return err
		}
		product.ID = id
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	return product, nil
}

// GetProduct returns the current counter triple.
func (s *Service) GetProduct(ctx context.Context, productID int64) (Product, error) {
	return s.repo.GetProduct(ctx, productID)
}

// Movements lists the counter journal for a product, newest first.
func (s *Service) Movements(ctx context.Context, productID int64, limit int) ([]Movement, error) {
	return s.repo.ListMovements(ctx, productID, limit)
}

// Reserve places a hold of qty units on the product. The check-and-update is
// atomic with respect to concurrent callers: two reservations whose combined
// quantity exceeds availability can never both succeed.
func (s *Service) Reserve(ctx context.Context, productID, qty int64, refModule, refID string) (Reservation, error) {
	if qty <= 0 {
		return Reservation{}, ErrInvalidQuantity
	}
	now := s.clock.Now()
	res := Reservation{
		Token:     uuid.New(),
		ProductID: productID,
		Qty:       qty,
		Status:    ReservationActive,
		RefModule: refModule,
		RefID:     refID,
		ExpiresAt: now.Add(s.holdTTL),
		CreatedAt: now,
	}
	err := s.retry(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		if product.Available() < qty {
			return ErrInsufficientStock
		}
		if err := tx.UpdateCounters(ctx, productID, product.Quantity, product.Reserved+qty, product.Version); err != nil {
			return err
		}
		if err := tx.InsertReservation(ctx, res); err != nil {
			return err
		}
		return tx.InsertMovement(ctx, Movement{
			ProductID: productID,
			Type:      MovementReserve,
			Qty:       qty,
			RefModule: refModule,
			RefID:     refID,
			At:        now,
		})
	})
	if err != nil {
		return Reservation{}, err
	}
	return res, nil
}

// Release reverses an uncommitted reservation. Releasing a reservation that
// is already released or committed is a no-op, not an error.
func (s *Service) Release(ctx context.Context, token uuid.UUID) error {
	return s.close(ctx, token, ReservationReleased, "released")
}

// Commit converts a reservation into a permanent deduction: quantity and
// reserved both drop by the held amount, availability is unchanged.
// Committing an already committed reservation is a no-op so a caller whose
// multi-line commit failed halfway can retry the whole set.
func (s *Service) Commit(ctx context.Context, token uuid.UUID) error {
	now := s.clock.Now()
	return s.retry(ctx, func(ctx context.Context, tx TxRepository) error {
		res, err := tx.GetReservation(ctx, token)
		if err != nil {
			return err
		}
		if res.Status == ReservationCommitted {
			return nil
		}
		if res.Status != ReservationActive {
			return fmt.Errorf("inventory: commit %s reservation %s: %w", res.Status, token, ErrReservationNotFound)
		}
		product, err := tx.GetProduct(ctx, res.ProductID)
		if err != nil {
			return err
		}
		if err := tx.UpdateCounters(ctx, res.ProductID, product.Quantity-res.Qty, product.Reserved-res.Qty, product.Version); err != nil {
			return err
		}
		if err := tx.CloseReservation(ctx, token, ReservationActive, ReservationCommitted, now); err != nil {
			return err
		}
		return tx.InsertMovement(ctx, Movement{
			ProductID: res.ProductID,
			Type:      MovementCommit,
			Qty:       res.Qty,
			RefModule: res.RefModule,
			RefID:     res.RefID,
			At:        now,
		})
	})
}

// Adjust applies a direct administrative correction (damage, theft,
// recount), bypassing the reservation flow. The reason is mandatory and the
// correction is always audit-logged.
func (s *Service) Adjust(ctx context.Context, productID, delta int64, reason string, actorID int64) (Product, error) {
	if delta == 0 {
		return Product{}, ErrInvalidQuantity
	}
	if reason == "" {
		return Product{}, ErrReasonRequired
	}
	now := s.clock.Now()
	var updated Product
	err := s.retry(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		newQty := product.Quantity + delta
		if newQty < 0 || newQty < product.Reserved {
			return ErrAdjustBelowReserved
		}
		if err := tx.UpdateCounters(ctx, productID, newQty, product.Reserved, product.Version); err != nil {
			return err
		}
		if err := tx.InsertMovement(ctx, Movement{
			ProductID: productID,
			Type:      MovementAdjust,
			Qty:       delta,
			Reason:    reason,
			At:        now,
		}); err != nil {
			return err
		}
		updated = product
		updated.Quantity = newQty
		updated.Version++
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "inventory:adjust",
			Entity:   "product",
			EntityID: fmt.Sprintf("%d", productID),
			Meta:     map[string]any{"delta": delta, "reason": reason},
			At:       now,
		})
	}
	return updated, nil
}

// ExpireStale releases reservations whose hold has lapsed without a commit
// or release. Called by the background sweep; callers of Reserve carry no
// cleanup obligation. Returns the number of reservations released.
func (s *Service) ExpireStale(ctx context.Context, limit int) (int, error) {
	now := s.clock.Now()
	stale, err := s.repo.ListExpiredReservations(ctx, now, limit)
	if err != nil {
		return 0, err
	}
	released := 0
	for _, res := range stale {
		if err := s.close(ctx, res.Token, ReservationExpired, "hold expired"); err != nil {
			return released, err
		}
		released++
	}
	return released, nil
}

// close releases the hold behind token, marking it with the given terminal
// status. Idempotent on non-active reservations.
func (s *Service) close(ctx context.Context, token uuid.UUID, to ReservationStatus, reason string) error {
	now := s.clock.Now()
	return s.retry(ctx, func(ctx context.Context, tx TxRepository) error {
		res, err := tx.GetReservation(ctx, token)
		if err != nil {
			return err
		}
		if res.Status != ReservationActive {
			return nil
		}
		product, err := tx.GetProduct(ctx, res.ProductID)
		if err != nil {
			return err
		}
		if err := tx.UpdateCounters(ctx, res.ProductID, product.Quantity, product.Reserved-res.Qty, product.Version); err != nil {
			return err
		}
		if err := tx.CloseReservation(ctx, token, ReservationActive, to, now); err != nil {
			return err
		}
		return tx.InsertMovement(ctx, Movement{
			ProductID: res.ProductID,
			Type:      MovementRelease,
			Qty:       res.Qty,
			Reason:    reason,
			RefModule: res.RefModule,
			RefID:     res.RefID,
			At:        now,
		})
	})
}

// retry runs fn in a transaction, retrying on version conflicts. Conflicts
// are expected under contention and recoverable; business errors pass
// through untouched.
func (s *Service) retry(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	var err error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err = s.repo.WithTx(ctx, fn)
		if err == nil || !errors.Is(err, ErrVersionConflict) {
			return err
		}
	}
	return fmt.Errorf("inventory: retries exhausted: %w", err)
}
