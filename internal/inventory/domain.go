package inventory

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Product is the stock record for one sellable unit. The counter triple is
// the only state in the system with real mutual-exclusion requirements:
// available = quantity - reserved must hold at all times, and
// 0 <= reserved <= quantity. Version backs optimistic concurrency; every
// counter update must carry the version it read.
type Product struct {
	ID        int64
	SKU       string
	Name      string
	BatchID   int64
	Quantity  int64
	Reserved  int64
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Available is the quantity not held by active reservations.
func (p Product) Available() int64 { return p.Quantity - p.Reserved }

// ReservationStatus enumerates the hold lifecycle.
type ReservationStatus string

const (
	// ReservationActive holds stock pending fulfilment or cancellation.
	ReservationActive ReservationStatus = "ACTIVE"
	// ReservationReleased returned the held stock to availability.
	ReservationReleased ReservationStatus = "RELEASED"
	// ReservationCommitted converted the hold into a permanent deduction.
	ReservationCommitted ReservationStatus = "COMMITTED"
	// ReservationExpired was released by the background sweep.
	ReservationExpired ReservationStatus = "EXPIRED"
)

// Reservation is a temporary hold on product quantity. Token is the handle
// callers use to release or commit.
type Reservation struct {
	Token     uuid.UUID
	ProductID int64
	Qty       int64
	Status    ReservationStatus
	RefModule string
	RefID     string
	ExpiresAt time.Time
	CreatedAt time.Time
	ClosedAt  *time.Time
}

// MovementType enumerates stock counter movements.
type MovementType string

const (
	MovementReserve MovementType = "RESERVE"
	MovementRelease MovementType = "RELEASE"
	MovementCommit  MovementType = "COMMIT"
	MovementAdjust  MovementType = "ADJUST"
)

// Movement journals every counter change so the triple stays auditable.
type Movement struct {
	ID        int64
	ProductID int64
	Type      MovementType
	Qty       int64
	Reason    string
	RefModule string
	RefID     string
	At        time.Time
}

// ErrInsufficientStock indicates a reservation larger than availability. It
// is returned, never silently clamped; the caller decides whether to
// partially fulfil or reject.
var ErrInsufficientStock = errors.New("inventory: insufficient stock")

// ErrInvalidQuantity indicates a non-positive quantity.
var ErrInvalidQuantity = errors.New("inventory: quantity must be positive")

// ErrProductNotFound indicates a missing product row.
var ErrProductNotFound = errors.New("inventory: product not found")

// ErrReservationNotFound indicates an unknown reservation token.
var ErrReservationNotFound = errors.New("inventory: reservation not found")

// ErrVersionConflict indicates a lost optimistic-concurrency race; the
// operation is retried internally.
var ErrVersionConflict = errors.New("inventory: version conflict")

// ErrAdjustBelowReserved indicates an adjustment that would leave fewer
// units than are currently reserved.
var ErrAdjustBelowReserved = errors.New("inventory: adjustment below reserved quantity")

// ErrReasonRequired indicates an adjustment without a reason.
var ErrReasonRequired = errors.New("inventory: adjustment reason required")
