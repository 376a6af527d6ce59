package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/kiloware/kiloware/internal/app"
	"github.com/kiloware/kiloware/internal/batches"
	"github.com/kiloware/kiloware/internal/billing"
	"github.com/kiloware/kiloware/internal/fx"
	"github.com/kiloware/kiloware/internal/inventory"
	"github.com/kiloware/kiloware/internal/invoices"
	"github.com/kiloware/kiloware/internal/masterdata"
	"github.com/kiloware/kiloware/internal/orders"
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

	fxRepo := fx.NewRepository(pool)
	rates := fx.NewCachedRates(fxRepo, redisClient, cfg.RateCacheTTL)
	converter := fx.NewConverter(rates)
	ledger := billing.NewLedger(converter)

	inventoryRepo := inventory.NewRepository(pool)
	inventoryService := inventory.NewService(inventoryRepo, auditLogger, clock, inventory.ServiceConfig{
		HoldTTL: cfg.ReservationHoldTTL,
	})

	ordersRepo := orders.NewRepository(pool)
	ordersService := orders.NewService(ordersRepo, inventoryService, ledger, idempotencyStore, auditLogger, clock, orders.ServiceConfig{})

	invoicesRepo := invoices.NewRepository(pool)
	invoicesService := invoices.NewService(invoicesRepo, ledger, idempotencyStore, auditLogger, clock, invoices.ServiceConfig{})

	allocator := batches.NewAllocator(converter, cfg.AccountingCurrency)
	batchesRepo := batches.NewRepository(pool)
	batchesService := batches.NewService(batchesRepo, inventoryService, allocator, auditLogger, clock)

	masterdataRepo := masterdata.NewRepository(pool)
	masterdataService := masterdata.NewService(masterdataRepo, clock)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		OrdersHandler:     orders.NewHandler(logger, ordersService),
		InvoicesHandler:   invoices.NewHandler(logger, invoicesService),
		InventoryHandler:  inventory.NewHandler(logger, inventoryService),
		BatchesHandler:    batches.NewHandler(logger, batchesService),
		MasterDataHandler: masterdata.NewHandler(logger, masterdataService),
		FXHandler:         fx.NewHandler(logger, fxRepo, rates),
		JobsHandler:       jobs.NewHandler(inspector, jobsClient, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
