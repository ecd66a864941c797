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

	"github.com/dunia-ops/dunia-ops/internal/app"
	"github.com/dunia-ops/dunia-ops/internal/audit"
	"github.com/dunia-ops/dunia-ops/internal/dashboard"
	"github.com/dunia-ops/dunia-ops/internal/finance/clients"
	"github.com/dunia-ops/dunia-ops/internal/finance/groups"
	"github.com/dunia-ops/dunia-ops/internal/finance/loans"
	"github.com/dunia-ops/dunia-ops/internal/platform/cache"
	"github.com/dunia-ops/dunia-ops/internal/platform/db"
	"github.com/dunia-ops/dunia-ops/internal/sales"
	"github.com/dunia-ops/dunia-ops/internal/sales/customers"
	"github.com/dunia-ops/dunia-ops/internal/shared"
	"github.com/dunia-ops/dunia-ops/internal/stock"
	"github.com/dunia-ops/dunia-ops/jobs"
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
		logger.Warn("redis unavailable, dashboard cache disabled", slog.Any("error", err))
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

	jobClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	recorder := audit.NewRecorder(audit.NewRepository(pool), logger, jobClient)
	idempotency := shared.NewIdempotencyStore(pool)

	stockService := stock.NewService(stock.NewRepository(pool), recorder)
	stockHandler := stock.NewHandler(logger, stockService)

	customersService := customers.NewService(customers.NewRepository(pool))
	customersHandler := customers.NewHandler(customersService)

	salesService := sales.NewService(sales.NewRepository(pool), stockService, customersService, recorder)
	salesHandler := sales.NewHandler(logger, salesService)
	salesHandler.UseIdempotency(idempotency)

	clientsService := clients.NewService(clients.NewRepository(pool))
	clientsHandler := clients.NewHandler(clientsService)

	loansService := loans.NewService(loans.NewRepository(pool), clientsService, recorder, cfg.DueSoonDays)
	loansHandler := loans.NewHandler(logger, loansService)

	groupsService := groups.NewService(groups.NewRepository(pool), recorder, cfg.DueSoonDays)
	groupsHandler := groups.NewHandler(logger, groupsService)

	auditHandler := audit.NewHandler(audit.NewService(audit.NewRepository(pool)))

	dashboardService := dashboard.NewService(dashboard.NewRepository(pool), redisClient, logger, cfg.DashboardCacheTTL)
	dashboardHandler := dashboard.NewHandler(dashboardService)

	salesService.UseCacheInvalidation(dashboardService)
	loansService.UseCacheInvalidation(dashboardService)
	groupsService.UseCacheInvalidation(dashboardService)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		StockHandler:     stockHandler,
		SalesHandler:     salesHandler,
		CustomersHandler: customersHandler,
		ClientsHandler:   clientsHandler,
		LoansHandler:     loansHandler,
		GroupsHandler:    groupsHandler,
		AuditHandler:     auditHandler,
		DashboardHandler: dashboardHandler,
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
