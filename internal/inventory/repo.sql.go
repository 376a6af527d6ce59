package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// GetProduct reads the current counter triple outside a transaction.
func (r *Repository) GetProduct(ctx context.Context, productID int64) (Product, error) {
	return scanProduct(r.pool.QueryRow(ctx, productQuery+` WHERE id=$1`, productID))
}

// ListExpiredReservations returns active holds whose TTL has lapsed.
func (r *Repository) ListExpiredReservations(ctx context.Context, asOf time.Time, limit int) ([]Reservation, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT token, product_id, qty, status, ref_module, ref_id, expires_at, created_at, closed_at
FROM reservations
WHERE status='ACTIVE' AND expires_at < $1
ORDER BY expires_at ASC
LIMIT $2`, asOf, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	reservations := []Reservation{}
	for rows.Next() {
		var res Reservation
		if err := rows.Scan(&res.Token, &res.ProductID, &res.Qty, &res.Status, &res.RefModule, &res.RefID, &res.ExpiresAt, &res.CreatedAt, &res.ClosedAt); err != nil {
			return nil, err
		}
		reservations = append(reservations, res)
	}
	return reservations, rows.Err()
}

// ListMovements returns the counter journal for a product, newest first.
func (r *Repository) ListMovements(ctx context.Context, productID int64, limit int) ([]Movement, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, movement_type, qty, reason, ref_module, ref_id, occurred_at
FROM inventory_movements
WHERE product_id=$1
ORDER BY occurred_at DESC, id DESC
LIMIT $2`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.Type, &m.Qty, &m.Reason, &m.RefModule, &m.RefID, &m.At); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

const productQuery = `SELECT id, sku, name, batch_id, quantity, reserved, version, created_at, updated_at FROM products`

type txRepository struct {
	tx pgx.Tx
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	// batch_id is NULL for loose stock; see nullInt on the insert side.
	var batchID *int64
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &batchID, &p.Quantity, &p.Reserved, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	if batchID != nil {
		p.BatchID = *batchID
	}
	return p, nil
}

func (r *txRepository) GetProduct(ctx context.Context, productID int64) (Product, error) {
	return scanProduct(r.tx.QueryRow(ctx, productQuery+` WHERE id=$1`, productID))
}

func (r *txRepository) InsertProduct(ctx context.Context, product Product) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO products (sku, name, batch_id, quantity, reserved, version, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		product.SKU, product.Name, nullInt(product.BatchID), product.Quantity, product.Reserved, product.Version, product.CreatedAt, product.UpdatedAt).Scan(&id)
	return id, err
}

// UpdateCounters is the optimistic check-and-update at the heart of the
// reservation manager: the write succeeds only if nobody moved the version
// since it was read.
func (r *txRepository) UpdateCounters(ctx context.Context, productID, quantity, reserved, expectVersion int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE products
SET quantity=$2, reserved=$3, version=version+1, updated_at=NOW()
WHERE id=$1 AND version=$4 AND $2 >= 0 AND $3 >= 0 AND $2 >= $3`,
		productID, quantity, reserved, expectVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (r *txRepository) InsertReservation(ctx context.Context, res Reservation) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO reservations (token, product_id, qty, status, ref_module, ref_id, expires_at, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		res.Token, res.ProductID, res.Qty, string(res.Status), res.RefModule, res.RefID, res.ExpiresAt, res.CreatedAt)
	return err
}

func (r *txRepository) GetReservation(ctx context.Context, token uuid.UUID) (Reservation, error) {
	var res Reservation
	err := r.tx.QueryRow(ctx, `SELECT token, product_id, qty, status, ref_module, ref_id, expires_at, created_at, closed_at
FROM reservations WHERE token=$1 FOR UPDATE`, token).
		Scan(&res.Token, &res.ProductID, &res.Qty, &res.Status, &res.RefModule, &res.RefID, &res.ExpiresAt, &res.CreatedAt, &res.ClosedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Reservation{}, ErrReservationNotFound
		}
		return Reservation{}, err
	}
	return res, nil
}

func (r *txRepository) CloseReservation(ctx context.Context, token uuid.UUID, from, to ReservationStatus, at time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE reservations SET status=$3, closed_at=$4 WHERE token=$1 AND status=$2`,
		token, string(from), string(to), at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (r *txRepository) InsertMovement(ctx context.Context, movement Movement) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO inventory_movements (product_id, movement_type, qty, reason, ref_module, ref_id, occurred_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		movement.ProductID, string(movement.Type), movement.Qty, movement.Reason, movement.RefModule, movement.RefID, movement.At)
	return err
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
