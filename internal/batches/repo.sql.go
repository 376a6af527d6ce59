package batches

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/kiloware/kiloware/internal/money"
)

// Repository persists batches in PostgreSQL. Cost components live as JSONB
// on the batch row: they are loaded and stored as a unit and never queried
// individually.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a Repository backed by pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a batch.
func (r *Repository) Create(ctx context.Context, batch *Batch) error {
	costs, err := json.Marshal(batch.Costs)
	if err != nil {
		return fmt.Errorf("batches: marshal costs: %w", err)
	}
	err = r.pool.QueryRow(ctx, `
		INSERT INTO batches (
			number, supplier_id, status, expected_qty, received_qty, costs,
			total_cost, cost_per_unit, cost_currency, product_id,
			ordered_at, cancellation_reason, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING id`,
		batch.Number, batch.SupplierID, batch.Status, batch.ExpectedQty, batch.ReceivedQty, costs,
		batch.TotalCost.Amount, batch.CostPerUnit.Amount, batch.TotalCost.Currency, nullID(batch.ProductID),
		batch.OrderedAt, batch.CancellationReason, batch.CreatedAt, batch.UpdatedAt,
	).Scan(&batch.ID)
	if err != nil {
		return fmt.Errorf("batches: insert batch: %w", err)
	}
	return nil
}

// Get loads a batch.
func (r *Repository) Get(ctx context.Context, id int64) (*Batch, error) {
	batch := &Batch{}
	var (
		costs                  []byte
		productID              *int64
		totalCost, costPerUnit decimal.Decimal
		costCurrency           *string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, number, supplier_id, status, expected_qty, received_qty, costs,
		       total_cost, cost_per_unit, cost_currency, product_id,
		       ordered_at, received_at, closed_at, cancellation_reason, created_at, updated_at
		FROM batches WHERE id=$1`, id).Scan(
		&batch.ID, &batch.Number, &batch.SupplierID, &batch.Status,
		&batch.ExpectedQty, &batch.ReceivedQty, &costs,
		&totalCost, &costPerUnit, &costCurrency, &productID,
		&batch.OrderedAt, &batch.ReceivedAt, &batch.ClosedAt,
		&batch.CancellationReason, &batch.CreatedAt, &batch.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("batches: get batch %d: %w", id, err)
	}
	if len(costs) > 0 {
		if err := json.Unmarshal(costs, &batch.Costs); err != nil {
			return nil, fmt.Errorf("batches: unmarshal costs: %w", err)
		}
	}
	if costCurrency != nil {
		batch.TotalCost = money.Money{Amount: totalCost, Currency: *costCurrency}
		batch.CostPerUnit = money.Money{Amount: costPerUnit, Currency: *costCurrency}
	}
	if productID != nil {
		batch.ProductID = *productID
	}
	return batch, nil
}

// Update persists status, derived costs, and milestones.
func (r *Repository) Update(ctx context.Context, batch *Batch) error {
	costs, err := json.Marshal(batch.Costs)
	if err != nil {
		return fmt.Errorf("batches: marshal costs: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE batches SET
			status=$2, received_qty=$3, costs=$4,
			total_cost=$5, cost_per_unit=$6, cost_currency=$7, product_id=$8,
			received_at=$9, closed_at=$10, cancellation_reason=$11, updated_at=$12
		WHERE id=$1`,
		batch.ID, batch.Status, batch.ReceivedQty, costs,
		batch.TotalCost.Amount, batch.CostPerUnit.Amount, nullString(batch.TotalCost.Currency),
		nullID(batch.ProductID),
		batch.ReceivedAt, batch.ClosedAt, batch.CancellationReason, batch.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("batches: update batch %d: %w", batch.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns batches, newest first.
func (r *Repository) List(ctx context.Context, limit, offset int) ([]Batch, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, number, supplier_id, status, expected_qty, received_qty,
		       total_cost, cost_per_unit, cost_currency, ordered_at, created_at, updated_at
		FROM batches ORDER BY ordered_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("batches: list: %w", err)
	}
	defer rows.Close()

	var batches []Batch
	for rows.Next() {
		var (
			b                      Batch
			totalCost, costPerUnit decimal.Decimal
			costCurrency           *string
		)
		if err := rows.Scan(&b.ID, &b.Number, &b.SupplierID, &b.Status,
			&b.ExpectedQty, &b.ReceivedQty, &totalCost, &costPerUnit, &costCurrency,
			&b.OrderedAt, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("batches: scan batch: %w", err)
		}
		if costCurrency != nil {
			b.TotalCost = money.Money{Amount: totalCost, Currency: *costCurrency}
			b.CostPerUnit = money.Money{Amount: costPerUnit, Currency: *costCurrency}
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
