package groups

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dunia-ops/dunia-ops/internal/platform/db"
)

// Repository persists group loans in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

const groupColumns = `id, name, member_count, total, amount_per_period, total_periods, period_type, amount_paid, issue_date, due_date, created_by, created_at, updated_at`

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func scanGroup(row pgx.Row) (GroupLoan, error) {
	var g GroupLoan
	var periodType string
	err := row.Scan(&g.ID, &g.Name, &g.MemberCount, &g.Total, &g.AmountPerPeriod, &g.TotalPeriods,
		&periodType, &g.AmountPaid, &g.IssueDate, &g.DueDate, &g.CreatedBy, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GroupLoan{}, ErrGroupNotFound
		}
		return GroupLoan{}, err
	}
	g.PeriodType = PeriodType(periodType)
	return g, nil
}

func (r *Repository) GetGroup(ctx context.Context, id int64) (GroupLoan, error) {
	return scanGroup(r.pool.QueryRow(ctx, `SELECT `+groupColumns+` FROM group_loans WHERE id = $1`, id))
}

func (r *Repository) ListGroups(ctx context.Context, filter ListFilter) ([]GroupLoan, error) {
	query := `SELECT ` + groupColumns + ` FROM group_loans`
	if filter.OpenOnly {
		query += ` WHERE amount_paid < total`
	}
	query += ` ORDER BY due_date, id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []GroupLoan
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	return groups, rows.Err()
}

func (r *Repository) ListPayments(ctx context.Context, groupID int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, group_id, amount, payment_date, balance_after, recorded_by, created_at
		FROM group_payments WHERE group_id = $1 ORDER BY created_at DESC, id DESC`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.GroupID, &p.Amount, &p.Date, &p.BalanceAfter, &p.RecordedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (r *Repository) InsertGroup(ctx context.Context, group GroupLoan) (GroupLoan, error) {
	return scanGroup(r.pool.QueryRow(ctx, `
		INSERT INTO group_loans (name, member_count, total, amount_per_period, total_periods, period_type, amount_paid, issue_date, due_date, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		RETURNING `+groupColumns,
		group.Name, group.MemberCount, group.Total, group.AmountPerPeriod, group.TotalPeriods,
		string(group.PeriodType), group.AmountPaid, group.IssueDate, group.DueDate, group.CreatedBy))
}

func (t *txRepository) GetGroupForUpdate(ctx context.Context, id int64) (GroupLoan, error) {
	return scanGroup(t.tx.QueryRow(ctx, `SELECT `+groupColumns+` FROM group_loans WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepository) CountPayments(ctx context.Context, groupID int64) (int64, error) {
	var count int64
	err := t.tx.QueryRow(ctx, `SELECT count(*) FROM group_payments WHERE group_id = $1`, groupID).Scan(&count)
	return count, err
}

func (t *txRepository) UpdateGroup(ctx context.Context, group GroupLoan) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE group_loans SET name = $2, member_count = $3, total = $4, amount_per_period = $5,
			total_periods = $6, period_type = $7, issue_date = $8, due_date = $9, updated_at = now()
		WHERE id = $1`,
		group.ID, group.Name, group.MemberCount, group.Total, group.AmountPerPeriod,
		group.TotalPeriods, string(group.PeriodType), group.IssueDate, group.DueDate)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrGroupNotFound
	}
	return nil
}

func (t *txRepository) UpdateAmountPaid(ctx context.Context, id int64, paid decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx, `UPDATE group_loans SET amount_paid = $2, updated_at = now() WHERE id = $1`, id, paid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrGroupNotFound
	}
	return nil
}

func (t *txRepository) InsertPayment(ctx context.Context, payment Payment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO group_payments (group_id, amount, payment_date, balance_after, recorded_by, created_at)
		VALUES ($1, $2, $3, $4, $5, now())`,
		payment.GroupID, payment.Amount, payment.Date, payment.BalanceAfter, payment.RecordedBy)
	return err
}

func (t *txRepository) DeleteGroup(ctx context.Context, id int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM group_payments WHERE group_id = $1`, id); err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM group_loans WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrGroupNotFound
	}
	return nil
}
