package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/ledger-core/internal/accounting"
	"github.com/odyssey-erp/ledger-core/internal/accounting/mappings"
	"github.com/odyssey-erp/ledger-core/internal/app"
	"github.com/odyssey-erp/ledger-core/internal/integration"
	"github.com/odyssey-erp/ledger-core/internal/observability"
	"github.com/odyssey-erp/ledger-core/internal/platform/cache"
	"github.com/odyssey-erp/ledger-core/internal/platform/db"
	"github.com/odyssey-erp/ledger-core/internal/rbac"
	"github.com/odyssey-erp/ledger-core/internal/reconciliation"
	"github.com/odyssey-erp/ledger-core/internal/shared"
	"github.com/odyssey-erp/ledger-core/internal/shifts"
	"github.com/odyssey-erp/ledger-core/internal/subledger"
	"github.com/odyssey-erp/ledger-core/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	var projection *cache.Projection
	redisClient, err := cache.New(ctx, cfg.RedisAddr, "ledger-api")
	if err != nil {
		logger.Warn("redis unavailable, projection cache disabled", slog.Any("error", err))
	} else {
		projection = cache.NewProjection(redisClient, "ledger", cfg.ProjectionCacheTTL)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	rbacService := rbac.NewService(dbpool)
	rbacMiddleware := rbac.Middleware{Resolver: rbacService, Header: cfg.AuthPrincipalHeader, Logger: logger}

	accountingRepo := accounting.NewRepository(dbpool)
	ledger := accounting.NewService(accountingRepo, auditLogger)
	ledger.WithObserver(metrics)
	if projection != nil {
		ledger.WithCache(projection)
	}

	mappingService := mappings.NewService(mappings.NewRepository(dbpool), accountingRepo)

	subledgerService := subledger.NewService(subledger.NewRepository(dbpool), ledger)
	depositService := reconciliation.NewService(reconciliation.NewRepository(dbpool), ledger, subledgerService, mappingService, auditLogger)

	shiftService := shifts.NewService(shifts.NewRepository(dbpool), ledger, auditLogger)
	shiftService.WithPolicy(shifts.Policy{
		AutoReconcileZeroVariance: cfg.ShiftAutoReconcileZeroVariance,
		Thresholds: shifts.Thresholds{
			Warning:  cfg.ShiftVarianceWarning,
			Critical: cfg.ShiftVarianceCritical,
		},
	})

	hooks := integration.NewHooks(ledger, subledgerService, shiftService, depositService, mappingService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:                logger,
		Config:                cfg,
		RBACMiddleware:        rbacMiddleware,
		AccountingHandler:     accounting.NewHandler(logger, ledger, idempotencyStore, rbacMiddleware),
		MappingsHandler:       mappings.NewHandler(logger, mappingService, rbacMiddleware),
		SubledgerHandler:      subledger.NewHandler(logger, subledgerService, rbacMiddleware),
		ReconciliationHandler: reconciliation.NewHandler(logger, depositService, rbacMiddleware),
		ShiftsHandler:         shifts.NewHandler(logger, shiftService, rbacMiddleware),
		IntegrationHandler:    integration.NewHandler(logger, hooks, rbacMiddleware),
		PermissionsHandler:    rbac.NewPermissionsHandler(),
		JobHandler:            jobs.NewHandler(inspector, logger),
		Metrics:               metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
