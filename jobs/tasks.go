package jobs

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/dunia-ops/dunia-ops/internal/audit"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuditRetry re-attempts a failed audit trail write.
	TaskAuditRetry = "audit:retry"
	// TaskOverdueScan sweeps loans and group loans for passed due dates.
	TaskOverdueScan = "finance:overdue_scan"
	// TaskLowStockScan sweeps stock items at or below their threshold.
	TaskLowStockScan = "stock:low_stock_scan"
)

// NewAuditRetryTask constructs a task carrying the entry that failed to
// persist.
func NewAuditRetryTask(entry audit.Entry) (*asynq.Task, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRetry, data, asynq.MaxRetry(10)), nil
}

// NewOverdueScanTask constructs the periodic overdue sweep task.
func NewOverdueScanTask() *asynq.Task {
	return asynq.NewTask(TaskOverdueScan, nil)
}

// NewLowStockScanTask constructs the periodic low-stock sweep task.
func NewLowStockScanTask() *asynq.Task {
	return asynq.NewTask(TaskLowStockScan, nil)
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// EnqueueAuditRetry queues an audit entry for a later persistence attempt.
// It satisfies audit.RetryEnqueuer.
func (c *Client) EnqueueAuditRetry(ctx context.Context, entry audit.Entry) error {
	task, err := NewAuditRetryTask(entry)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	return err
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
