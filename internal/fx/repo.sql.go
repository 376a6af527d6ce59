package fx

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists exchange rates in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert appends a rate row. Existing rows are immutable.
func (r *Repository) Insert(ctx context.Context, rate ExchangeRate) (int64, error) {
	if err := rate.Validate(); err != nil {
		return 0, err
	}
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO exchange_rates (from_currency, to_currency, rate, valid_from, valid_to, created_at)
VALUES ($1,$2,$3,$4,$5,NOW()) RETURNING id`, rate.From, rate.To, rate.Rate, rate.ValidFrom, rate.ValidTo).Scan(&id)
	return id, err
}

// RateAt returns the covering rate with the latest valid_from.
func (r *Repository) RateAt(ctx context.Context, from, to string, asOf time.Time) (ExchangeRate, error) {
	var rate ExchangeRate
	err := r.pool.QueryRow(ctx, `SELECT id, from_currency, to_currency, rate, valid_from, valid_to, created_at
FROM exchange_rates
WHERE from_currency=$1 AND to_currency=$2 AND valid_from <= $3 AND (valid_to IS NULL OR valid_to > $3)
ORDER BY valid_from DESC
LIMIT 1`, from, to, asOf).Scan(&rate.ID, &rate.From, &rate.To, &rate.Rate, &rate.ValidFrom, &rate.ValidTo, &rate.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ExchangeRate{}, ErrNoRateFound
		}
		return ExchangeRate{}, err
	}
	return rate, nil
}

// List returns the rate history for a pair, newest first.
func (r *Repository) List(ctx context.Context, from, to string, limit int) ([]ExchangeRate, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id, from_currency, to_currency, rate, valid_from, valid_to, created_at
FROM exchange_rates
WHERE from_currency=$1 AND to_currency=$2
ORDER BY valid_from DESC
LIMIT $3`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	rates := []ExchangeRate{}
	for rows.Next() {
		var rate ExchangeRate
		if err := rows.Scan(&rate.ID, &rate.From, &rate.To, &rate.Rate, &rate.ValidFrom, &rate.ValidTo, &rate.CreatedAt); err != nil {
			return nil, err
		}
		rates = append(rates, rate)
	}
	return rates, rows.Err()
}
