package audit

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeRecorderRepo struct {
	entries []Entry
	fail    bool
}

func (f *fakeRecorderRepo) InsertEntry(ctx context.Context, entry Entry) error {
	if f.fail {
		return errors.New("storage unavailable")
	}
	f.entries = append(f.entries, entry)
	return nil
}

type fakeEnqueuer struct {
	queued []Entry
}

func (f *fakeEnqueuer) EnqueueAuditRetry(ctx context.Context, entry Entry) error {
	f.queued = append(f.queued, entry)
	return nil
}

func TestRecordAssignsIDAndTimestamp(t *testing.T) {
	repo := &fakeRecorderRepo{}
	rec := NewRecorder(repo, slog.Default(), nil)

	rec.Record(context.Background(), Entry{Actor: "jane", Action: ActionCreate, Module: "boutique", Entity: "sale", EntityID: "1"})

	require.Len(t, repo.entries, 1)
	require.NotEmpty(t, repo.entries[0].ID)
	require.False(t, repo.entries[0].CreatedAt.IsZero())
	require.False(t, repo.entries[0].Flagged)
}

func TestRecordFailureQueuesRetry(t *testing.T) {
	repo := &fakeRecorderRepo{fail: true}
	queue := &fakeEnqueuer{}
	rec := NewRecorder(repo, slog.Default(), queue)

	// Must not panic or surface the failure.
	rec.Record(context.Background(), Entry{Actor: "jane", Action: ActionDelete, Module: "finance", Entity: "loan", EntityID: "7"})

	require.Len(t, queue.queued, 1)
	require.True(t, queue.queued[0].Flagged)
}

func TestFlagHeuristics(t *testing.T) {
	flagged, reason := Flag(Entry{Action: ActionDelete})
	require.True(t, flagged)
	require.Equal(t, "delete operation", reason)

	flagged, reason = Flag(Entry{Action: ActionUpdate, Hints: Hints{AmountReduced: true}})
	require.True(t, flagged)
	require.Equal(t, "amount reduced", reason)

	flagged, reason = Flag(Entry{Action: ActionCreate, Hints: Hints{NonCatalog: true, Backdated: true}})
	require.True(t, flagged)
	require.Equal(t, "non-catalog item; backdated entry", reason)

	flagged, _ = Flag(Entry{Action: ActionPayment})
	require.False(t, flagged)
}
