package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kiloware/kiloware/internal/billing"
	"github.com/kiloware/kiloware/internal/inventory"
	"github.com/kiloware/kiloware/internal/money"
	"github.com/kiloware/kiloware/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	Create(ctx context.Context, order *Order) error
	Get(ctx context.Context, id int64) (*Order, error)
	Update(ctx context.Context, order *Order) error
	AppendPayment(ctx context.Context, orderID int64, evt billing.PaymentEvent) error
	List(ctx context.Context, limit, offset int) ([]Order, error)
}

// StockPort is the slice of the inventory service orders depend on.
// Satisfied by *inventory.Service.
type StockPort interface {
	Reserve(ctx context.Context, productID, qty int64, refModule, refID string) (inventory.Reservation, error)
	Release(ctx context.Context, token uuid.UUID) error
	Commit(ctx context.Context, token uuid.UUID) error
}

// IdempotencyPort guards payment events against webhook retries.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// PaymentTerm sets the due date relative to placement.
	PaymentTerm time.Duration
	// ReturnWindow bounds how long after delivery a return is accepted.
	ReturnWindow time.Duration
}

const (
	defaultPaymentTerm  = 14 * 24 * time.Hour
	defaultReturnWindow = 14 * 24 * time.Hour
)

// Service implements order operations. Derived fields (line amounts, totals,
// paid, balance, payment status) are recomputed after every mutation and
// persisted together with the source rows.
type Service struct {
	repo         RepositoryPort
	stock        StockPort
	ledger       *billing.Ledger
	idempotency  IdempotencyPort
	audit        AuditPort
	clock        shared.Clock
	paymentTerm  time.Duration
	returnWindow time.Duration
}

// NewService builds Service.
func NewService(repo RepositoryPort, stock StockPort, ledger *billing.Ledger, idempotency IdempotencyPort, audit AuditPort, clock shared.Clock, cfg ServiceConfig) *Service {
	if clock == nil {
		clock = shared.RealClock{}
	}
	if cfg.PaymentTerm <= 0 {
		cfg.PaymentTerm = defaultPaymentTerm
	}
	if cfg.ReturnWindow <= 0 {
		cfg.ReturnWindow = defaultReturnWindow
	}
	return &Service{
		repo:         repo,
		stock:        stock,
		ledger:       ledger,
		idempotency:  idempotency,
		audit:        audit,
		clock:        clock,
		paymentTerm:  cfg.PaymentTerm,
		returnWindow: cfg.ReturnWindow,
	}
}

// PlaceOrderInput carries the validated order intake. Shipping and handling
// default to zero in the document currency when left empty.
type PlaceOrderInput struct {
	CustomerID int64
	Currency   string
	Items      []billing.LineItem
	Discounts  []billing.Discount
	Shipping   money.Money
	Handling   money.Money
}

// PlaceOrder validates the items, reserves stock for every line, and persists
// the order in PENDING_PAYMENT. Reservations for the lines run concurrently;
// if any line cannot be reserved the acquired holds are released and the
// whole order is rejected. Stock is held, not deducted, until shipping.
func (s *Service) PlaceOrder(ctx context.Context, input PlaceOrderInput) (*Order, error) {
	if len(input.Items) == 0 {
		return nil, ErrEmptyItems
	}

	doc := billing.Document{
		Currency:  input.Currency,
		Items:     input.Items,
		Discounts: input.Discounts,
		Shipping:  input.Shipping,
		Handling:  input.Handling,
	}
	items, totals, err := billing.Recompute(doc)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	order := &Order{
		Number:     fmt.Sprintf("SO-%d", now.UnixNano()),
		CustomerID: input.CustomerID,
		Currency:   input.Currency,
		Status:     StatusDraft,
		Items:      make([]OrderItem, len(items)),
		Discounts:  input.Discounts,
		Shipping:   doc.Shipping,
		Handling:   doc.Handling,
		Totals:     totals,
		DueDate:    now.Add(s.paymentTerm),
		PlacedAt:   now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for i, item := range items {
		order.Items[i] = OrderItem{LineItem: item}
	}

	if err := s.reserveAll(ctx, order); err != nil {
		return nil, err
	}

	if err := s.refreshLedger(ctx, order, now); err != nil {
		s.releaseAll(ctx, order)
		return nil, err
	}
	order.Status = StatusPendingPayment

	if err := s.repo.Create(ctx, order); err != nil {
		s.releaseAll(ctx, order)
		return nil, err
	}

	s.auditRecord(ctx, order, "orders:place", map[string]any{"total": order.Totals.Total.String()})
	return order, nil
}

// reserveAll places a hold per line concurrently. On any failure the holds
// that did land are released before returning; a half-reserved order never
// escapes this function.
func (s *Service) reserveAll(ctx context.Context, order *Order) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := range order.Items {
		item := &order.Items[i]
		g.Go(func() error {
			res, err := s.stock.Reserve(gctx, item.ProductID, item.Quantity, "orders", order.Number)
			if err != nil {
				return fmt.Errorf("orders: reserve product %d: %w", item.ProductID, err)
			}
			item.ReservationToken = res.Token
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.releaseAll(ctx, order)
		return err
	}
	return nil
}

// releaseAll releases every hold the order carries. Release is idempotent so
// tokens already closed are harmless.
func (s *Service) releaseAll(ctx context.Context, order *Order) {
	for i := range order.Items {
		token := order.Items[i].ReservationToken
		if token == uuid.Nil {
			continue
		}
		_ = s.stock.Release(ctx, token)
	}
}

// Get loads a single order.
func (s *Service) Get(ctx context.Context, id int64) (*Order, error) {
	return s.repo.Get(ctx, id)
}

// List returns a page of orders, newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.List(ctx, limit, offset)
}

// RecordPayment applies one gateway event to the order. The event ID is the
// idempotency key: redelivery of the same event changes nothing. A fully paid
// order moves from PENDING_PAYMENT to PAYMENT_RECEIVED.
func (s *Service) RecordPayment(ctx context.Context, orderID int64, evt billing.PaymentEvent) (*Order, error) {
	if evt.ID == "" {
		return nil, errors.New("orders: payment event id required")
	}
	key := fmt.Sprintf("orders:%d:payment:%s", orderID, evt.ID)
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "orders"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return s.repo.Get(ctx, orderID)
			}
			return nil, err
		}
	}

	order, err := s.applyPayment(ctx, orderID, evt)
	if err != nil && s.idempotency != nil {
		_ = s.idempotency.Delete(ctx, key)
	}
	return order, err
}

func (s *Service) applyPayment(ctx context.Context, orderID int64, evt billing.PaymentEvent) (*Order, error) {
	order, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status.Terminal() {
		return nil, fmt.Errorf("%w: payment on %s order", ErrIllegalTransition, order.Status)
	}
	now := s.clock.Now()
	if evt.At.IsZero() {
		evt.At = now
	}

	// Fold the ledger before anything is persisted: a failed conversion
	// must leave no event row behind, or a redelivery of the same event
	// would count it twice.
	if !billing.HasEvent(order.Payments, evt.ID) {
		order.Payments = append(order.Payments, evt)
	}
	if err := s.refreshLedger(ctx, order, now); err != nil {
		return nil, err
	}
	if err := s.repo.AppendPayment(ctx, orderID, evt); err != nil {
		return nil, err
	}
	if order.PaymentStatus == billing.PaymentPaid && order.Status == StatusPendingPayment {
		if err := s.transition(ctx, order, StatusPaymentReceived); err != nil {
			return nil, err
		}
	}
	order.UpdatedAt = now
	if err := s.repo.Update(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// Cancel aborts the order and releases every stock hold. Allowed in any state
// before the goods leave the warehouse; afterwards the return flow applies.
func (s *Service) Cancel(ctx context.Context, id int64, reason string) (*Order, error) {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !order.Status.CanBeCancelled() {
		return nil, fmt.Errorf("%w: cancel %s order", ErrIllegalTransition, order.Status)
	}
	s.releaseAll(ctx, order)

	now := s.clock.Now()
	order.Status = StatusCancelled
	order.CancellationReason = reason
	order.ClosedAt = &now
	order.UpdatedAt = now
	if err := s.repo.Update(ctx, order); err != nil {
		return nil, err
	}
	s.auditRecord(ctx, order, "orders:cancel", map[string]any{"reason": reason})
	return order, nil
}

// StartProcessing moves a paid order onto the warehouse floor.
func (s *Service) StartProcessing(ctx context.Context, id int64) (*Order, error) {
	return s.advance(ctx, id, StatusProcessing)
}

// MarkPacked records that the goods are boxed and ready to ship.
func (s *Service) MarkPacked(ctx context.Context, id int64) (*Order, error) {
	return s.advance(ctx, id, StatusPacked)
}

// Ship dispatches a packed order. Every reservation is committed: the held
// units become permanent deductions at the moment the goods leave.
func (s *Service) Ship(ctx context.Context, id int64) (*Order, error) {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, order, StatusShipped); err != nil {
		return nil, err
	}
	for i := range order.Items {
		token := order.Items[i].ReservationToken
		if token == uuid.Nil {
			continue
		}
		if err := s.stock.Commit(ctx, token); err != nil {
			return nil, fmt.Errorf("orders: commit reservation for product %d: %w", order.Items[i].ProductID, err)
		}
	}
	now := s.clock.Now()
	order.ShippedAt = &now
	order.UpdatedAt = now
	if err := s.repo.Update(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// MarkDelivered records carrier confirmation.
func (s *Service) MarkDelivered(ctx context.Context, id int64) (*Order, error) {
	order, err := s.advance(ctx, id, StatusDelivered)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	order.DeliveredAt = &now
	order.UpdatedAt = now
	if err := s.repo.Update(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// Complete closes a delivered order once the return window is no concern.
func (s *Service) Complete(ctx context.Context, id int64) (*Order, error) {
	order, err := s.advance(ctx, id, StatusCompleted)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	order.ClosedAt = &now
	order.UpdatedAt = now
	if err := s.repo.Update(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// Fulfill walks a paid order through the whole warehouse flow in one call:
// PROCESSING, PACKED, then SHIPPED with the reservations committed. Each step
// is validated; the shortcut never skips the state machine.
func (s *Service) Fulfill(ctx context.Context, id int64) (*Order, error) {
	if _, err := s.StartProcessing(ctx, id); err != nil {
		return nil, err
	}
	if _, err := s.MarkPacked(ctx, id); err != nil {
		return nil, err
	}
	return s.Ship(ctx, id)
}

// Return accepts goods back from a delivered order inside the return window.
func (s *Service) Return(ctx context.Context, id int64) (*Order, error) {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if order.DeliveredAt != nil && now.After(order.DeliveredAt.Add(s.returnWindow)) {
		return nil, ErrReturnWindowClosed
	}
	if err := s.transition(ctx, order, StatusReturned); err != nil {
		return nil, err
	}
	order.UpdatedAt = now
	if err := s.repo.Update(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// Refund settles a return (or a delivered order refunded outright). The
// money flow itself arrives as a REFUNDED payment event through
// RecordPayment; this transition closes the document.
func (s *Service) Refund(ctx context.Context, id int64) (*Order, error) {
	order, err := s.advance(ctx, id, StatusRefunded)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	order.ClosedAt = &now
	order.UpdatedAt = now
	if err := s.repo.Update(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// advance performs a plain status transition and persists it.
func (s *Service) advance(ctx context.Context, id int64, to Status) (*Order, error) {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, order, to); err != nil {
		return nil, err
	}
	order.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// transition enforces the status machine and audit-logs the change.
func (s *Service) transition(ctx context.Context, order *Order, to Status) error {
	if !order.Status.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, order.Status, to)
	}
	from := order.Status
	order.Status = to
	s.auditRecord(ctx, order, "orders:transition", map[string]any{"from": string(from), "to": string(to)})
	return nil
}

// refreshLedger folds the payment events into the derived payment fields.
func (s *Service) refreshLedger(ctx context.Context, order *Order, now time.Time) error {
	result, err := s.ledger.Apply(ctx, order.Totals.Total, order.DueDate, now, order.Payments)
	if err != nil {
		return err
	}
	order.Paid = result.Paid
	order.Balance = result.Balance
	order.Overpaid = result.Overpaid
	order.PaymentStatus = result.Status
	return nil
}

func (s *Service) auditRecord(ctx context.Context, order *Order, action string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "order",
		EntityID: order.Number,
		Meta:     meta,
		At:       s.clock.Now(),
	})
}
