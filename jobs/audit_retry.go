package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/dunia-ops/dunia-ops/internal/audit"
)

// AuditRetryJob replays audit trail writes that failed inline. Entries are
// inserted as-is; the flagging heuristic already ran on first attempt.
type AuditRetryJob struct {
	Repo   audit.RecorderRepository
	Logger *slog.Logger
}

// NewAuditRetryJob initialises the audit retry handler.
func NewAuditRetryJob(repo audit.RecorderRepository, logger *slog.Logger) *AuditRetryJob {
	return &AuditRetryJob{Repo: repo, Logger: logger}
}

// Handle processes TaskAuditRetry tasks.
func (j *AuditRetryJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Repo == nil {
		return errors.New("audit retry: handler not configured")
	}
	var entry audit.Entry
	if err := json.Unmarshal(t.Payload(), &entry); err != nil {
		return asynq.SkipRetry
	}
	if err := j.Repo.InsertEntry(ctx, entry); err != nil {
		if j.Logger != nil {
			j.Logger.Warn("audit retry failed",
				slog.String("entry_id", entry.ID),
				slog.Any("error", err))
		}
		return err
	}
	if j.Logger != nil {
		j.Logger.Info("audit entry persisted on retry", slog.String("entry_id", entry.ID))
	}
	return nil
}
