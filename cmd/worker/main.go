package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/dunia-ops/dunia-ops/internal/app"
	"github.com/dunia-ops/dunia-ops/internal/audit"
	"github.com/dunia-ops/dunia-ops/internal/platform/db"
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

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	locker := redislock.New(redisClient)

	auditRetry := jobs.NewAuditRetryJob(audit.NewRepository(pool), logger)
	overdueScan := jobs.NewOverdueScanJob(pool, locker, logger)
	lowStockScan := jobs.NewLowStockScanJob(pool, locker, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAuditRetry, Handler: auditRetry.Handle},
			{Type: jobs.TaskOverdueScan, Handler: overdueScan.Handle},
			{Type: jobs.TaskLowStockScan, Handler: lowStockScan.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: every(cfg.OverdueScanInterval), Task: jobs.NewOverdueScanTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: every(cfg.LowStockScanInterval), Task: jobs.NewLowStockScanTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("build worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker",
		slog.Duration("overdue_scan_interval", cfg.OverdueScanInterval),
		slog.Duration("low_stock_scan_interval", cfg.LowStockScanInterval))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker shut down")
}

func every(interval time.Duration) string {
	if interval <= 0 {
		interval = time.Hour
	}
	return fmt.Sprintf("@every %s", interval)
}
