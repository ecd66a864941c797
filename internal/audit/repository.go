package audit

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists audit entries in PostgreSQL. The table is append-only;
// there is no update or delete path by design of the schema privileges.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertEntry appends one entry.
func (r *Repository) InsertEntry(ctx context.Context, entry Entry) error {
	if r == nil {
		return errors.New("audit repository not initialised")
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO audit_entries (id, actor, action, module, entity, entity_id, description, flagged, flag_reason, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		entry.ID, entry.Actor, string(entry.Action), entry.Module, entry.Entity, entry.EntityID,
		entry.Description, entry.Flagged, entry.FlagReason, entry.CreatedAt)
	return err
}

// Query lists entries matching the filters, newest first. It fetches one
// row beyond the page size so the caller can detect a next page.
func (r *Repository) Query(ctx context.Context, filters Filters, offset, limit int) ([]Entry, error) {
	if r == nil {
		return nil, errors.New("audit repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id, actor, action, module, entity, entity_id, description, flagged, flag_reason, created_at
FROM audit_entries
WHERE ($1 = '' OR actor = $1)
  AND ($2 = '' OR action = $2)
  AND ($3 = '' OR module = $3)
  AND ($4::timestamptz IS NULL OR created_at >= $4)
  AND ($5::timestamptz IS NULL OR created_at <= $5)
  AND (NOT $6::bool OR flagged)
ORDER BY created_at DESC, id DESC
OFFSET $7 LIMIT $8`,
		filters.Actor, string(filters.Action), filters.Module,
		nullTime(filters.From), nullTime(filters.To), filters.FlaggedOnly,
		offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var action string
		if err := rows.Scan(&e.ID, &e.Actor, &action, &e.Module, &e.Entity, &e.EntityID, &e.Description, &e.Flagged, &e.FlagReason, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Action = Action(action)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
