package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/kiloware/kiloware/internal/invoices"
	"github.com/kiloware/kiloware/internal/shared"
)

// overdueScanLimit bounds one scan run.
const overdueScanLimit = 1000

// NewOverdueScanHandler reports unpaid invoices past their due date. The
// stored status is untouched; overdue is a computed overlay and this scan
// only surfaces it for follow-up.
func NewOverdueScanHandler(svc *invoices.Service, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		overdue, err := svc.ListOverdue(ctx, overdueScanLimit)
		if err != nil {
			logger.Error("overdue scan", slog.Any("error", err))
			return err
		}
		for _, inv := range overdue {
			logger.Warn("invoice overdue",
				slog.String("number", inv.Number),
				slog.Int64("customer_id", inv.CustomerID),
				slog.String("balance", inv.Balance.String()),
				slog.Time("due_date", inv.DueDate),
			)
		}
		return nil
	}
}

// idempotencyRetention keeps processed payment-event keys long past any
// realistic webhook redelivery window.
const idempotencyRetention = 30 * 24 * time.Hour

// NewIdempotencyCleanupHandler trims processed keys past retention.
func NewIdempotencyCleanupHandler(store *shared.IdempotencyStore, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		if err := store.Cleanup(ctx, idempotencyRetention); err != nil {
			logger.Error("idempotency cleanup", slog.Any("error", err))
			return err
		}
		return nil
	}
}
