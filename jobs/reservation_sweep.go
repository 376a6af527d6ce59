package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/kiloware/kiloware/internal/inventory"
)

// sweepBatchSize bounds how many stale holds one sweep run releases.
const sweepBatchSize = 500

// NewReservationSweepHandler releases reservations whose hold TTL lapsed
// without a commit or release. Callers of Reserve carry no cleanup
// obligation; this sweep is the only collector of abandoned holds.
func NewReservationSweepHandler(svc *inventory.Service, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		released, err := svc.ExpireStale(ctx, sweepBatchSize)
		if err != nil {
			logger.Error("reservation sweep", slog.Any("error", err), slog.Int("released", released))
			return err
		}
		if released > 0 {
			logger.Info("reservation sweep", slog.Int("released", released))
		}
		return nil
	}
}
