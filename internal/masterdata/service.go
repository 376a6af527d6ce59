package masterdata

import (
	"context"
	"fmt"

	"github.com/kiloware/kiloware/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	ListSuppliers(ctx context.Context, filters ListFilters) ([]Supplier, int, error)
	GetSupplier(ctx context.Context, id int64) (Supplier, error)
	CreateSupplier(ctx context.Context, supplier Supplier) (Supplier, error)
	UpdateSupplier(ctx context.Context, supplier Supplier) error

	ListCustomers(ctx context.Context, filters ListFilters) ([]Customer, int, error)
	GetCustomer(ctx context.Context, id int64) (Customer, error)
	CreateCustomer(ctx context.Context, customer Customer) (Customer, error)
	UpdateCustomer(ctx context.Context, customer Customer) error
}

// Svc implements the master data operations. Records are deactivated, never
// deleted: batches and orders keep their references valid forever.
type Svc struct {
	repo  RepositoryPort
	clock shared.Clock
}

// NewService builds Svc.
func NewService(repo RepositoryPort, clock shared.Clock) *Svc {
	if clock == nil {
		clock = shared.RealClock{}
	}
	return &Svc{repo: repo, clock: clock}
}

// ListSuppliers returns a filtered page of suppliers plus the total count.
func (s *Svc) ListSuppliers(ctx context.Context, filters ListFilters) ([]Supplier, int, error) {
	return s.repo.ListSuppliers(ctx, normalize(filters))
}

// GetSupplier loads one supplier.
func (s *Svc) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	return s.repo.GetSupplier(ctx, id)
}

// CreateSupplier registers a supplier, active by default.
func (s *Svc) CreateSupplier(ctx context.Context, supplier Supplier) (Supplier, error) {
	if supplier.Code == "" || supplier.Name == "" {
		return Supplier{}, fmt.Errorf("%w: code and name required", ErrInvalidRecord)
	}
	now := s.clock.Now()
	supplier.IsActive = true
	supplier.CreatedAt = now
	supplier.UpdatedAt = now
	return s.repo.CreateSupplier(ctx, supplier)
}

// UpdateSupplier rewrites the mutable supplier fields.
func (s *Svc) UpdateSupplier(ctx context.Context, supplier Supplier) error {
	if supplier.Name == "" {
		return fmt.Errorf("%w: name required", ErrInvalidRecord)
	}
	supplier.UpdatedAt = s.clock.Now()
	return s.repo.UpdateSupplier(ctx, supplier)
}

// DeactivateSupplier hides the supplier from intake without touching the
// batches that reference it.
func (s *Svc) DeactivateSupplier(ctx context.Context, id int64) error {
	supplier, err := s.repo.GetSupplier(ctx, id)
	if err != nil {
		return err
	}
	supplier.IsActive = false
	supplier.UpdatedAt = s.clock.Now()
	return s.repo.UpdateSupplier(ctx, supplier)
}

// ListCustomers returns a filtered page of customers plus the total count.
func (s *Svc) ListCustomers(ctx context.Context, filters ListFilters) ([]Customer, int, error) {
	return s.repo.ListCustomers(ctx, normalize(filters))
}

// GetCustomer loads one customer.
func (s *Svc) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	return s.repo.GetCustomer(ctx, id)
}

// CreateCustomer registers a customer, active by default.
func (s *Svc) CreateCustomer(ctx context.Context, customer Customer) (Customer, error) {
	if customer.Code == "" || customer.Name == "" {
		return Customer{}, fmt.Errorf("%w: code and name required", ErrInvalidRecord)
	}
	now := s.clock.Now()
	customer.IsActive = true
	customer.CreatedAt = now
	customer.UpdatedAt = now
	return s.repo.CreateCustomer(ctx, customer)
}

// UpdateCustomer rewrites the mutable customer fields.
func (s *Svc) UpdateCustomer(ctx context.Context, customer Customer) error {
	if customer.Name == "" {
		return fmt.Errorf("%w: name required", ErrInvalidRecord)
	}
	customer.UpdatedAt = s.clock.Now()
	return s.repo.UpdateCustomer(ctx, customer)
}

// DeactivateCustomer hides the customer from order intake.
func (s *Svc) DeactivateCustomer(ctx context.Context, id int64) error {
	customer, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		return err
	}
	customer.IsActive = false
	customer.UpdatedAt = s.clock.Now()
	return s.repo.UpdateCustomer(ctx, customer)
}

func normalize(filters ListFilters) ListFilters {
	if filters.Limit <= 0 || filters.Limit > 100 {
		filters.Limit = 50
	}
	if filters.Offset < 0 {
		filters.Offset = 0
	}
	return filters
}
