package masterdata

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kiloware/kiloware/internal/shared"
)

type memoryRepo struct {
	mu        sync.Mutex
	nextID    int64
	suppliers map[int64]Supplier
	customers map[int64]Customer
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{nextID: 1, suppliers: map[int64]Supplier{}, customers: map[int64]Customer{}}
}

func (r *memoryRepo) ListSuppliers(_ context.Context, filters ListFilters) ([]Supplier, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Supplier
	for _, s := range r.suppliers {
		if filters.Search != "" && !strings.Contains(strings.ToLower(s.Name), strings.ToLower(filters.Search)) {
			continue
		}
		if filters.IsActive != nil && s.IsActive != *filters.IsActive {
			continue
		}
		out = append(out, s)
	}
	return out, len(out), nil
}

func (r *memoryRepo) GetSupplier(_ context.Context, id int64) (Supplier, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.suppliers[id]
	if !ok {
		return Supplier{}, shared.ErrNotFound
	}
	return s, nil
}

func (r *memoryRepo) CreateSupplier(_ context.Context, s Supplier) (Supplier, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.suppliers {
		if existing.Code == s.Code {
			return Supplier{}, ErrCodeTaken
		}
	}
	s.ID = r.nextID
	r.nextID++
	r.suppliers[s.ID] = s
	return s, nil
}

func (r *memoryRepo) UpdateSupplier(_ context.Context, s Supplier) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.suppliers[s.ID]; !ok {
		return shared.ErrNotFound
	}
	r.suppliers[s.ID] = s
	return nil
}

func (r *memoryRepo) ListCustomers(_ context.Context, filters ListFilters) ([]Customer, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Customer
	for _, c := range r.customers {
		if filters.IsActive != nil && c.IsActive != *filters.IsActive {
			continue
		}
		out = append(out, c)
	}
	return out, len(out), nil
}

func (r *memoryRepo) GetCustomer(_ context.Context, id int64) (Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.customers[id]
	if !ok {
		return Customer{}, shared.ErrNotFound
	}
	return c, nil
}

func (r *memoryRepo) CreateCustomer(_ context.Context, c Customer) (Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.customers {
		if existing.Code == c.Code {
			return Customer{}, ErrCodeTaken
		}
	}
	c.ID = r.nextID
	r.nextID++
	r.customers[c.ID] = c
	return c, nil
}

func (r *memoryRepo) UpdateCustomer(_ context.Context, c Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.customers[c.ID]; !ok {
		return shared.ErrNotFound
	}
	r.customers[c.ID] = c
	return nil
}

func newTestService() *Svc {
	return NewService(newMemoryRepo(), shared.FixedClock{At: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)})
}

func TestCreateSupplier(t *testing.T) {
	svc := newTestService()

	s, err := svc.CreateSupplier(context.Background(), Supplier{Code: "NL-01", Name: "Rotterdam Textiles", Country: "NL"})
	require.NoError(t, err)
	require.True(t, s.IsActive)
	require.NotZero(t, s.ID)

	_, err = svc.CreateSupplier(context.Background(), Supplier{Code: "NL-01", Name: "Duplicate"})
	require.ErrorIs(t, err, ErrCodeTaken)

	_, err = svc.CreateSupplier(context.Background(), Supplier{Name: "No code"})
	require.ErrorIs(t, err, ErrInvalidRecord)
}

func TestDeactivateSupplierKeepsRecord(t *testing.T) {
	svc := newTestService()
	s, err := svc.CreateSupplier(context.Background(), Supplier{Code: "DE-01", Name: "Hamburg Sammler"})
	require.NoError(t, err)

	require.NoError(t, svc.DeactivateSupplier(context.Background(), s.ID))

	got, err := svc.GetSupplier(context.Background(), s.ID)
	require.NoError(t, err)
	require.False(t, got.IsActive)

	active := true
	listed, _, err := svc.ListSuppliers(context.Background(), ListFilters{IsActive: &active})
	require.NoError(t, err)
	require.Empty(t, listed)
}

func TestCustomerLifecycle(t *testing.T) {
	svc := newTestService()
	c, err := svc.CreateCustomer(context.Background(), Customer{Code: "C-100", Name: "Baltic Resale OU"})
	require.NoError(t, err)

	c.Email = "office@example.com"
	require.NoError(t, svc.UpdateCustomer(context.Background(), c))

	got, err := svc.GetCustomer(context.Background(), c.ID)
	require.NoError(t, err)
	require.Equal(t, "office@example.com", got.Email)

	require.NoError(t, svc.DeactivateCustomer(context.Background(), c.ID))
	got, err = svc.GetCustomer(context.Background(), c.ID)
	require.NoError(t, err)
	require.False(t, got.IsActive)

	require.ErrorIs(t, svc.DeactivateCustomer(context.Background(), 999), shared.ErrNotFound)
}
