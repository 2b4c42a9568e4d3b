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

	"github.com/meridian-erp/meridian-erp/internal/app"
	"github.com/meridian-erp/meridian-erp/internal/auth"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/masterdata/branches"
	"github.com/meridian-erp/meridian-erp/internal/masterdata/categories"
	"github.com/meridian-erp/meridian-erp/internal/masterdata/products"
	"github.com/meridian-erp/meridian-erp/internal/masterdata/producttypes"
	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/platform/cache"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/purchasing"
	"github.com/meridian-erp/meridian-erp/internal/reporting"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/stockaudit"
	"github.com/meridian-erp/meridian-erp/internal/transformation"
	"github.com/meridian-erp/meridian-erp/internal/waste"
	"github.com/meridian-erp/meridian-erp/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, reporting cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	authMiddleware := auth.Middleware{
		Verifier: auth.NewVerifier(cfg.APIKeyHashes),
		Logger:   logger,
	}

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	reportingCache := reporting.NewCache(redisClient)
	reportingService := reporting.NewService(logger, reporting.NewRepository(pool), reportingCache)
	reportingHandler := reporting.NewHandler(logger, reportingService)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, auditLogger)
	ledgerService.SetReportsCache(reportingCache)
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	purchasingService := purchasing.NewService(purchasing.NewRepository(pool), auditLogger, idempotencyStore)
	purchasingService.SetReportsCache(reportingCache)
	purchasingHandler := purchasing.NewHandler(logger, purchasingService)

	transformationService := transformation.NewService(transformation.NewRepository(pool), auditLogger, idempotencyStore)
	transformationService.SetReportsCache(reportingCache)
	transformationHandler := transformation.NewHandler(logger, transformationService)

	wasteService := waste.NewService(waste.NewRepository(pool), auditLogger)
	wasteService.SetReportsCache(reportingCache)
	wasteHandler := waste.NewHandler(logger, wasteService)

	stockAuditService := stockaudit.NewService(stockaudit.NewRepository(pool), ledgerRepo, auditLogger)
	stockAuditService.SetReportsCache(reportingCache)
	stockAuditHandler := stockaudit.NewHandler(logger, stockAuditService)

	categoriesService := categories.NewService(categories.NewRepository(pool))
	categoriesHandler := categories.NewHandler(logger, categoriesService)

	productTypesService := producttypes.NewService(producttypes.NewRepository(pool))
	productTypesHandler := producttypes.NewHandler(logger, productTypesService)

	branchesService := branches.NewService(branches.NewRepository(pool))
	branchesHandler := branches.NewHandler(logger, branchesService)

	productsService := products.NewService(products.NewRepository(pool), categoriesService, productTypesService)
	productsHandler := products.NewHandler(logger, productsService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:                logger,
		Config:                cfg,
		Auth:                  authMiddleware,
		LedgerHandler:         ledgerHandler,
		PurchasingHandler:     purchasingHandler,
		TransformationHandler: transformationHandler,
		WasteHandler:          wasteHandler,
		StockAuditHandler:     stockAuditHandler,
		ProductsHandler:       productsHandler,
		CategoriesHandler:     categoriesHandler,
		ProductTypesHandler:   productTypesHandler,
		BranchesHandler:       branchesHandler,
		ReportingHandler:      reportingHandler,
		JobHandler:            jobHandler,
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
