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

// OverdueScanJob sweeps loans and group loans whose due date has passed
// while a balance remains, and logs each so staff can follow up. Only one
// worker runs the sweep at a time.
type OverdueScanJob struct {
	Pool   *pgxpool.Pool
	Locker *redislock.Client
	Logger *slog.Logger
	clock  func() time.Time
}

// NewOverdueScanJob initialises the overdue sweep handler.
func NewOverdueScanJob(pool *pgxpool.Pool, locker *redislock.Client, logger *slog.Logger) *OverdueScanJob {
	return &OverdueScanJob{
		Pool:   pool,
		Locker: locker,
		Logger: logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the overdue sweep.
func (j *OverdueScanJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("overdue scan: handler not configured")
	}
	if j.Locker != nil {
		lock, err := shared.ObtainScanLock(ctx, j.Locker, "overdue_scan", 5*time.Minute)
		if err != nil {
			if errors.Is(err, redislock.ErrNotObtained) {
				j.logger().Info("overdue scan skipped, another worker holds the lock")
				return nil
			}
			return err
		}
		defer func() { _ = lock.Release(ctx) }()
	}

	today := j.clock().Truncate(24 * time.Hour)
	logger := j.logger().With(slog.String("as_of", today.Format("2006-01-02")))
	logger.Info("starting overdue scan")

	loanCount, err := j.scanLoans(ctx, today, logger)
	if err != nil {
		logger.Error("loan sweep failed", slog.Any("error", err))
		return err
	}
	groupCount, err := j.scanGroups(ctx, today, logger)
	if err != nil {
		logger.Error("group sweep failed", slog.Any("error", err))
		return err
	}

	logger.Info("overdue scan complete",
		slog.Int("overdue_loans", loanCount),
		slog.Int("overdue_groups", groupCount))
	return nil
}

func (j *OverdueScanJob) scanLoans(ctx context.Context, today time.Time, logger *slog.Logger) (int, error) {
	rows, err := j.Pool.Query(ctx, `
		SELECT l.id, c.name, l.total - l.amount_paid, l.due_date
		FROM loans l JOIN loan_clients c ON c.id = l.client_id
		WHERE l.due_date < $1 AND l.amount_paid < l.total
		ORDER BY l.due_date`, today)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var (
			id      int64
			client  string
			balance string
			dueDate time.Time
		)
		if err := rows.Scan(&id, &client, &balance, &dueDate); err != nil {
			return count, err
		}
		count++
		logger.Warn("loan overdue",
			slog.Int64("loan_id", id),
			slog.String("client", client),
			slog.String("balance", balance),
			slog.String("due_date", dueDate.Format("2006-01-02")))
	}
	return count, rows.Err()
}

func (j *OverdueScanJob) scanGroups(ctx context.Context, today time.Time, logger *slog.Logger) (int, error) {
	rows, err := j.Pool.Query(ctx, `
		SELECT id, name, total - amount_paid, due_date
		FROM group_loans
		WHERE due_date < $1 AND amount_paid < total
		ORDER BY due_date`, today)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var (
			id      int64
			name    string
			balance string
			dueDate time.Time
		)
		if err := rows.Scan(&id, &name, &balance, &dueDate); err != nil {
			return count, err
		}
		count++
		logger.Warn("group loan overdue",
			slog.Int64("group_id", id),
			slog.String("group", name),
			slog.String("balance", balance),
			slog.String("due_date", dueDate.Format("2006-01-02")))
	}
	return count, rows.Err()
}

func (j *OverdueScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
