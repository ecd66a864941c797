package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeQueryRepo struct {
	entries []Entry
	got     Filters
}

func (f *fakeQueryRepo) Query(ctx context.Context, filters Filters, offset, limit int) ([]Entry, error) {
	f.got = filters
	end := offset + limit
	if offset > len(f.entries) {
		return nil, nil
	}
	if end > len(f.entries) {
		end = len(f.entries)
	}
	return f.entries[offset:end], nil
}

func makeEntries(n int) []Entry {
	entries := make([]Entry, n)
	for i := range entries {
		entries[i] = Entry{ID: string(rune('a' + i)), Action: ActionCreate, CreatedAt: time.Now()}
	}
	return entries
}

func TestQueryPaging(t *testing.T) {
	repo := &fakeQueryRepo{entries: makeEntries(25)}
	svc := NewService(repo)

	res, err := svc.Query(context.Background(), Filters{Page: 1, PageSize: 20})
	require.NoError(t, err)
	require.Len(t, res.Entries, 20)
	require.True(t, res.HasNext)

	res, err = svc.Query(context.Background(), Filters{Page: 2, PageSize: 20})
	require.NoError(t, err)
	require.Len(t, res.Entries, 5)
	require.False(t, res.HasNext)
}

func TestQueryDefaultsPageSize(t *testing.T) {
	repo := &fakeQueryRepo{entries: makeEntries(3)}
	svc := NewService(repo)

	res, err := svc.Query(context.Background(), Filters{})
	require.NoError(t, err)
	require.Equal(t, 1, res.Page)
	require.Equal(t, 20, res.PerPage)
	require.Len(t, res.Entries, 3)
}
