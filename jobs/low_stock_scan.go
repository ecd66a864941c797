package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dunia-ops/dunia-ops/internal/shared"
)

// LowStockScanJob sweeps active items whose quantity has fallen to or below
// the reorder threshold and logs each for restocking.
type LowStockScanJob struct {
	Pool   *pgxpool.Pool
	Locker *redislock.Client
	Logger *slog.Logger
}

// NewLowStockScanJob initialises the low-stock sweep handler.
func NewLowStockScanJob(pool *pgxpool.Pool, locker *redislock.Client, logger *slog.Logger) *LowStockScanJob {
	return &LowStockScanJob{Pool: pool, Locker: locker, Logger: logger}
}

// Handle executes the low-stock sweep.
func (j *LowStockScanJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("low stock scan: handler not configured")
	}
	if j.Locker != nil {
		lock, err := shared.ObtainScanLock(ctx, j.Locker, "low_stock_scan", 5*time.Minute)
		if err != nil {
			if errors.Is(err, redislock.ErrNotObtained) {
				j.logger().Info("low stock scan skipped, another worker holds the lock")
				return nil
			}
			return err
		}
		defer func() { _ = lock.Release(ctx) }()
	}

	rows, err := j.Pool.Query(ctx, `
		SELECT id, unit, name, quantity, low_stock_threshold
		FROM stock_items
		WHERE is_active AND quantity <= low_stock_threshold
		ORDER BY unit, quantity`)
	if err != nil {
		j.logger().Error("low stock sweep failed", slog.Any("error", err))
		return err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var (
			id        int64
			unit      string
			name      string
			quantity  int64
			threshold int64
		)
		if err := rows.Scan(&id, &unit, &name, &quantity, &threshold); err != nil {
			return err
		}
		count++
		j.logger().Warn("item low on stock",
			slog.Int64("item_id", id),
			slog.String("unit", unit),
			slog.String("item", name),
			slog.Int64("quantity", quantity),
			slog.Int64("threshold", threshold))
	}
	if err := rows.Err(); err != nil {
		return err
	}
	j.logger().Info("low stock scan complete", slog.Int("low_items", count))
	return nil
}

func (j *LowStockScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
