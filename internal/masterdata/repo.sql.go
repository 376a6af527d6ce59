package masterdata

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kiloware/kiloware/internal/shared"
)

// Repository persists master data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a Repository backed by pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListSuppliers returns a filtered page of suppliers and the total count.
func (r *Repository) ListSuppliers(ctx context.Context, filters ListFilters) ([]Supplier, int, error) {
	where, args := filterClause(filters)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM suppliers`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("masterdata: count suppliers: %w", err)
	}
	args = append(args, filters.Limit, filters.Offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, code, name, country, phone, email, address, is_active, created_at, updated_at
		FROM suppliers%s ORDER BY name LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("masterdata: list suppliers: %w", err)
	}
	defer rows.Close()

	var suppliers []Supplier
	for rows.Next() {
		var s Supplier
		if err := rows.Scan(&s.ID, &s.Code, &s.Name, &s.Country, &s.Phone, &s.Email,
			&s.Address, &s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("masterdata: scan supplier: %w", err)
		}
		suppliers = append(suppliers, s)
	}
	return suppliers, total, rows.Err()
}

// GetSupplier loads one supplier.
func (r *Repository) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	var s Supplier
	err := r.pool.QueryRow(ctx, `
		SELECT id, code, name, country, phone, email, address, is_active, created_at, updated_at
		FROM suppliers WHERE id=$1`, id).Scan(
		&s.ID, &s.Code, &s.Name, &s.Country, &s.Phone, &s.Email,
		&s.Address, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Supplier{}, shared.ErrNotFound
		}
		return Supplier{}, fmt.Errorf("masterdata: get supplier %d: %w", id, err)
	}
	return s, nil
}

// CreateSupplier inserts a supplier. A duplicate code maps to ErrCodeTaken.
func (r *Repository) CreateSupplier(ctx context.Context, s Supplier) (Supplier, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO suppliers (code, name, country, phone, email, address, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`,
		s.Code, s.Name, s.Country, s.Phone, s.Email, s.Address, s.IsActive, s.CreatedAt, s.UpdatedAt,
	).Scan(&s.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return Supplier{}, ErrCodeTaken
		}
		return Supplier{}, fmt.Errorf("masterdata: insert supplier: %w", err)
	}
	return s, nil
}

// UpdateSupplier rewrites the mutable supplier fields.
func (r *Repository) UpdateSupplier(ctx context.Context, s Supplier) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE suppliers SET name=$2, country=$3, phone=$4, email=$5, address=$6, is_active=$7, updated_at=$8
		WHERE id=$1`,
		s.ID, s.Name, s.Country, s.Phone, s.Email, s.Address, s.IsActive, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("masterdata: update supplier %d: %w", s.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListCustomers returns a filtered page of customers and the total count.
func (r *Repository) ListCustomers(ctx context.Context, filters ListFilters) ([]Customer, int, error) {
	where, args := filterClause(filters)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM customers`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("masterdata: count customers: %w", err)
	}
	args = append(args, filters.Limit, filters.Offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, code, name, email, phone, address, is_active, created_at, updated_at
		FROM customers%s ORDER BY name LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("masterdata: list customers: %w", err)
	}
	defer rows.Close()

	var customers []Customer
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.Email, &c.Phone,
			&c.Address, &c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("masterdata: scan customer: %w", err)
		}
		customers = append(customers, c)
	}
	return customers, total, rows.Err()
}

// GetCustomer loads one customer.
func (r *Repository) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	var c Customer
	err := r.pool.QueryRow(ctx, `
		SELECT id, code, name, email, phone, address, is_active, created_at, updated_at
		FROM customers WHERE id=$1`, id).Scan(
		&c.ID, &c.Code, &c.Name, &c.Email, &c.Phone,
		&c.Address, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, shared.ErrNotFound
		}
		return Customer{}, fmt.Errorf("masterdata: get customer %d: %w", id, err)
	}
	return c, nil
}

// CreateCustomer inserts a customer. A duplicate code maps to ErrCodeTaken.
func (r *Repository) CreateCustomer(ctx context.Context, c Customer) (Customer, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO customers (code, name, email, phone, address, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		c.Code, c.Name, c.Email, c.Phone, c.Address, c.IsActive, c.CreatedAt, c.UpdatedAt,
	).Scan(&c.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return Customer{}, ErrCodeTaken
		}
		return Customer{}, fmt.Errorf("masterdata: insert customer: %w", err)
	}
	return c, nil
}

// UpdateCustomer rewrites the mutable customer fields.
func (r *Repository) UpdateCustomer(ctx context.Context, c Customer) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE customers SET name=$2, email=$3, phone=$4, address=$5, is_active=$6, updated_at=$7
		WHERE id=$1`,
		c.ID, c.Name, c.Email, c.Phone, c.Address, c.IsActive, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("masterdata: update customer %d: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func filterClause(filters ListFilters) (string, []any) {
	where := ""
	var args []any
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		where = fmt.Sprintf(" WHERE (name ILIKE $%d OR code ILIKE $%d)", len(args), len(args))
	}
	if filters.IsActive != nil {
		args = append(args, *filters.IsActive)
		if where == "" {
			where = fmt.Sprintf(" WHERE is_active=$%d", len(args))
		} else {
			where += fmt.Sprintf(" AND is_active=$%d", len(args))
		}
	}
	return where, args
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
