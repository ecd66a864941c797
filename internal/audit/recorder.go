package audit

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RecorderRepository persists entries.
type RecorderRepository interface {
	InsertEntry(ctx context.Context, entry Entry) error
}

// RetryEnqueuer queues an entry for a later persistence attempt when the
// immediate write fails.
type RetryEnqueuer interface {
	EnqueueAuditRetry(ctx context.Context, entry Entry) error
}

// Recorder appends entries to the audit trail. Recording is best-effort:
// a failed write is logged and queued for retry, never surfaced to the
// business operation that triggered it.
type Recorder struct {
	repo    RecorderRepository
	logger  *slog.Logger
	retries RetryEnqueuer
}

// NewRecorder builds Recorder. retries may be nil; failed writes are then
// only logged.
func NewRecorder(repo RecorderRepository, logger *slog.Logger, retries RetryEnqueuer) *Recorder {
	return &Recorder{repo: repo, logger: logger, retries: retries}
}

// Record appends an entry, applying the suspicion heuristic. It never
// blocks or fails the triggering operation.
func (r *Recorder) Record(ctx context.Context, entry Entry) {
	if r == nil || r.repo == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.Flagged, entry.FlagReason = Flag(entry)

	if err := r.repo.InsertEntry(ctx, entry); err != nil {
		if r.logger != nil {
			r.logger.Error("audit write failed",
				slog.String("entry_id", entry.ID),
				slog.String("entity", entry.Entity),
				slog.Any("error", err))
		}
		if r.retries != nil {
			if qerr := r.retries.EnqueueAuditRetry(ctx, entry); qerr != nil && r.logger != nil {
				r.logger.Error("audit retry enqueue failed",
					slog.String("entry_id", entry.ID),
					slog.Any("error", qerr))
			}
		}
	}
}

// Flag applies the suspicion heuristic: deletions, reduced amounts,
// non-catalog lines, backdated operations and edits by someone other than
// the record's creator are flagged for review.
func Flag(entry Entry) (bool, string) {
	var reasons []string
	if entry.Action == ActionDelete {
		reasons = append(reasons, "delete operation")
	}
	if entry.Flagged && entry.FlagReason != "" {
		reasons = append(reasons, entry.FlagReason)
	}
	if entry.Hints.AmountReduced {
		reasons = append(reasons, "amount reduced")
	}
	if entry.Hints.NonCatalog {
		reasons = append(reasons, "non-catalog item")
	}
	if entry.Hints.Backdated {
		reasons = append(reasons, "backdated entry")
	}
	if entry.Hints.NonOwner {
		reasons = append(reasons, "edited by non-owner")
	}
	if len(reasons) == 0 {
		return false, ""
	}
	return true, strings.Join(reasons, "; ")
}
