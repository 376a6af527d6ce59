package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/kiloware/kiloware/internal/app"
	"github.com/kiloware/kiloware/internal/billing"
	"github.com/kiloware/kiloware/internal/fx"
	"github.com/kiloware/kiloware/internal/inventory"
	"github.com/kiloware/kiloware/internal/invoices"
	"github.com/kiloware/kiloware/internal/platform/cache"
	"github.com/kiloware/kiloware/internal/platform/db"
	"github.com/kiloware/kiloware/internal/shared"
	"github.com/kiloware/kiloware/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis connect", slog.Any("error", err))
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	clock := shared.RealClock{}

	rates := fx.NewCachedRates(fx.NewRepository(pool), redisClient, cfg.RateCacheTTL)
	ledger := billing.NewLedger(fx.NewConverter(rates))

	inventoryService := inventory.NewService(inventory.NewRepository(pool), auditLogger, clock, inventory.ServiceConfig{
		HoldTTL: cfg.ReservationHoldTTL,
	})
	invoicesService := invoices.NewService(invoices.NewRepository(pool), ledger, idempotencyStore, auditLogger, clock, invoices.ServiceConfig{})

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskReservationSweep, Handler: jobs.NewReservationSweepHandler(inventoryService, logger)},
			{Type: jobs.TaskOverdueScan, Handler: jobs.NewOverdueScanHandler(invoicesService, logger)},
			{Type: jobs.TaskIdempotencyCleanup, Handler: jobs.NewIdempotencyCleanupHandler(idempotencyStore, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "@every 5m", Task: jobs.NewReservationSweepTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 6 * * *", Task: jobs.NewOverdueScanTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 3 * * *", Task: jobs.NewIdempotencyCleanupTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
