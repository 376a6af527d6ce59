package invoices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kiloware/kiloware/internal/billing"
	"github.com/kiloware/kiloware/internal/money"
	"github.com/kiloware/kiloware/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	Create(ctx context.Context, inv *Invoice) error
	Get(ctx context.Context, id int64) (*Invoice, error)
	Update(ctx context.Context, inv *Invoice) error
	AppendPayment(ctx context.Context, invoiceID int64, evt billing.PaymentEvent) error
	List(ctx context.Context, limit, offset int) ([]Invoice, error)
	ListOverdue(ctx context.Context, asOf time.Time, limit int) ([]Invoice, error)
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
	// PaymentTerm sets the due date relative to issuing.
	PaymentTerm time.Duration
}

const defaultPaymentTerm = 30 * 24 * time.Hour

// Service implements invoice operations.
type Service struct {
	repo        RepositoryPort
	ledger      *billing.Ledger
	idempotency IdempotencyPort
	audit       AuditPort
	clock       shared.Clock
	paymentTerm time.Duration
}

// NewService builds Service.
func NewService(repo RepositoryPort, ledger *billing.Ledger, idempotency IdempotencyPort, audit AuditPort, clock shared.Clock, cfg ServiceConfig) *Service {
	if clock == nil {
		clock = shared.RealClock{}
	}
	if cfg.PaymentTerm <= 0 {
		cfg.PaymentTerm = defaultPaymentTerm
	}
	return &Service{
		repo:        repo,
		ledger:      ledger,
		idempotency: idempotency,
		audit:       audit,
		clock:       clock,
		paymentTerm: cfg.PaymentTerm,
	}
}

// CreateInput carries the validated invoice intake.
type CreateInput struct {
	CustomerID int64
	OrderID    int64
	Currency   string
	Items      []billing.LineItem
	Discounts  []billing.Discount
	Shipping   money.Money
	Handling   money.Money
	// DueDate overrides the default payment term when set.
	DueDate time.Time
}

// Create validates the items and persists a DRAFT invoice with computed
// totals. Nothing is owed until the invoice is sent, but the totals are
// final at creation.
func (s *Service) Create(ctx context.Context, input CreateInput) (*Invoice, error) {
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
	due := input.DueDate
	if due.IsZero() {
		due = now.Add(s.paymentTerm)
	}
	inv := &Invoice{
		Number:     fmt.Sprintf("INV-%d", now.UnixNano()),
		CustomerID: input.CustomerID,
		OrderID:    input.OrderID,
		Currency:   input.Currency,
		Status:     StatusDraft,
		Items:      items,
		Discounts:  input.Discounts,
		Shipping:   doc.Shipping,
		Handling:   doc.Handling,
		Totals:     totals,
		IssuedAt:   now,
		DueDate:    due,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.refreshLedger(ctx, inv, now); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, inv); err != nil {
		return nil, err
	}
	s.auditRecord(ctx, inv, "invoices:create", map[string]any{"total": inv.Totals.Total.String()})
	return inv, nil
}

// Get loads a single invoice.
func (s *Service) Get(ctx context.Context, id int64) (*Invoice, error) {
	return s.repo.Get(ctx, id)
}

// List returns a page of invoices, newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Invoice, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.List(ctx, limit, offset)
}

// ListOverdue returns unpaid invoices past their due date as of now. Used by
// the background overdue scan.
func (s *Service) ListOverdue(ctx context.Context, limit int) ([]Invoice, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.repo.ListOverdue(ctx, s.clock.Now(), limit)
}

// Send issues the draft to the customer.
func (s *Service) Send(ctx context.Context, id int64) (*Invoice, error) {
	inv, err := s.advance(ctx, id, StatusSent, func(inv *Invoice, now time.Time) {
		inv.SentAt = &now
	})
	return inv, err
}

// MarkViewed records that the customer opened the invoice.
func (s *Service) MarkViewed(ctx context.Context, id int64) (*Invoice, error) {
	return s.advance(ctx, id, StatusViewed, func(inv *Invoice, now time.Time) {
		inv.ViewedAt = &now
	})
}

// RecordPayment applies one gateway event to the invoice. The event ID is
// the idempotency key. The stored status follows the ledger: a partial
// payment lands on PARTIALLY_PAID, settlement lands on PAID.
func (s *Service) RecordPayment(ctx context.Context, invoiceID int64, evt billing.PaymentEvent) (*Invoice, error) {
	if evt.ID == "" {
		return nil, errors.New("invoices: payment event id required")
	}
	key := fmt.Sprintf("invoices:%d:payment:%s", invoiceID, evt.ID)
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "invoices"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return s.repo.Get(ctx, invoiceID)
			}
			return nil, err
		}
	}
	inv, err := s.applyPayment(ctx, invoiceID, evt)
	if err != nil && s.idempotency != nil {
		_ = s.idempotency.Delete(ctx, key)
	}
	return inv, err
}

func (s *Service) applyPayment(ctx context.Context, invoiceID int64, evt billing.PaymentEvent) (*Invoice, error) {
	inv, err := s.repo.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Status == StatusDraft || inv.Status.Terminal() {
		return nil, fmt.Errorf("%w: payment on %s invoice", ErrIllegalTransition, inv.Status)
	}
	now := s.clock.Now()
	if evt.At.IsZero() {
		evt.At = now
	}
	// Fold the ledger before anything is persisted: a failed conversion
	// must leave no event row behind, or a redelivery of the same event
	// would count it twice.
	if !billing.HasEvent(inv.Payments, evt.ID) {
		inv.Payments = append(inv.Payments, evt)
	}
	if err := s.refreshLedger(ctx, inv, now); err != nil {
		return nil, err
	}
	if err := s.repo.AppendPayment(ctx, invoiceID, evt); err != nil {
		return nil, err
	}

	// The stored status tracks the ledger but only moves forward.
	switch {
	case inv.PaymentStatus == billing.PaymentPaid && inv.Status != StatusPaid:
		if err := s.transition(ctx, inv, StatusPaid); err != nil {
			return nil, err
		}
		inv.ClosedAt = &now
	case inv.PaymentStatus == billing.PaymentPartiallyPaid && inv.Status.CanTransitionTo(StatusPartiallyPaid):
		if err := s.transition(ctx, inv, StatusPartiallyPaid); err != nil {
			return nil, err
		}
	}
	inv.UpdatedAt = now
	if err := s.repo.Update(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// Cancel voids an unpaid invoice.
func (s *Service) Cancel(ctx context.Context, id int64) (*Invoice, error) {
	return s.advance(ctx, id, StatusCancelled, func(inv *Invoice, now time.Time) {
		inv.ClosedAt = &now
	})
}

// Refund reverses a settled invoice. The money flow arrives as REFUNDED
// payment events; this transition closes the document.
func (s *Service) Refund(ctx context.Context, id int64) (*Invoice, error) {
	return s.advance(ctx, id, StatusRefunded, func(inv *Invoice, now time.Time) {
		inv.ClosedAt = &now
	})
}

// advance performs a status transition, applies the side effect, and
// persists the invoice.
func (s *Service) advance(ctx context.Context, id int64, to Status, apply func(*Invoice, time.Time)) (*Invoice, error) {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, inv, to); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if apply != nil {
		apply(inv, now)
	}
	inv.UpdatedAt = now
	if err := s.repo.Update(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *Service) transition(ctx context.Context, inv *Invoice, to Status) error {
	if !inv.Status.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, inv.Status, to)
	}
	from := inv.Status
	inv.Status = to
	s.auditRecord(ctx, inv, "invoices:transition", map[string]any{"from": string(from), "to": string(to)})
	return nil
}

func (s *Service) refreshLedger(ctx context.Context, inv *Invoice, now time.Time) error {
	result, err := s.ledger.Apply(ctx, inv.Totals.Total, inv.DueDate, now, inv.Payments)
	if err != nil {
		return err
	}
	inv.Paid = result.Paid
	inv.Balance = result.Balance
	inv.Overpaid = result.Overpaid
	inv.PaymentStatus = result.Status
	return nil
}

func (s *Service) auditRecord(ctx context.Context, inv *Invoice, action string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "invoice",
		EntityID: inv.Number,
		Meta:     meta,
		At:       s.clock.Now(),
	})
}
