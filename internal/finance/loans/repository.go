package loans

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dunia-ops/dunia-ops/internal/platform/db"
)

// Repository persists loans in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

const loanColumns = `l.id, l.client_id, c.name, l.principal, l.rate_percent, l.interest, l.total, l.amount_paid, l.duration_weeks, l.issue_date, l.due_date, l.created_by, l.created_at, l.updated_at`

const loanSelect = `SELECT ` + loanColumns + ` FROM loans l JOIN loan_clients c ON c.id = l.client_id`

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func scanLoan(row pgx.Row) (Loan, error) {
	var l Loan
	err := row.Scan(&l.ID, &l.ClientID, &l.ClientName, &l.Principal, &l.RatePercent, &l.Interest,
		&l.Total, &l.AmountPaid, &l.DurationWeeks, &l.IssueDate, &l.DueDate,
		&l.CreatedBy, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Loan{}, ErrLoanNotFound
		}
		return Loan{}, err
	}
	return l, nil
}

func (r *Repository) GetLoan(ctx context.Context, id int64) (Loan, error) {
	return scanLoan(r.pool.QueryRow(ctx, loanSelect+` WHERE l.id = $1`, id))
}

func (r *Repository) ListLoans(ctx context.Context, filter ListFilter) ([]Loan, error) {
	query := loanSelect + ` WHERE 1=1`
	args := []any{}
	if filter.ClientID != 0 {
		args = append(args, filter.ClientID)
		query += ` AND l.client_id = $1`
	}
	if filter.OpenOnly {
		query += ` AND l.amount_paid < l.total`
	}
	query += ` ORDER BY l.due_date, l.id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var loans []Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, loan)
	}
	return loans, rows.Err()
}

func (r *Repository) ListPayments(ctx context.Context, loanID int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, loan_id, amount, payment_date, balance_after, recorded_by, created_at
		FROM loan_payments WHERE loan_id = $1 ORDER BY created_at DESC, id DESC`, loanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.LoanID, &p.Amount, &p.Date, &p.BalanceAfter, &p.RecordedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (r *Repository) InsertLoan(ctx context.Context, loan Loan) (Loan, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO loans (client_id, principal, rate_percent, interest, total, amount_paid, duration_weeks, issue_date, due_date, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		RETURNING id`,
		loan.ClientID, loan.Principal, loan.RatePercent, loan.Interest, loan.Total,
		loan.AmountPaid, loan.DurationWeeks, loan.IssueDate, loan.DueDate, loan.CreatedBy).Scan(&id)
	if err != nil {
		return Loan{}, err
	}
	return r.GetLoan(ctx, id)
}

func (t *txRepository) GetLoanForUpdate(ctx context.Context, id int64) (Loan, error) {
	// Lock the loan row only; the client join happens without FOR UPDATE.
	loan, err := scanLoan(t.tx.QueryRow(ctx, `
		SELECT `+loanColumns+`
		FROM (SELECT * FROM loans WHERE id = $1 FOR UPDATE) l
		JOIN loan_clients c ON c.id = l.client_id`, id))
	if err != nil {
		return Loan{}, err
	}
	return loan, nil
}

func (t *txRepository) CountPayments(ctx context.Context, loanID int64) (int64, error) {
	var count int64
	err := t.tx.QueryRow(ctx, `SELECT count(*) FROM loan_payments WHERE loan_id = $1`, loanID).Scan(&count)
	return count, err
}

func (t *txRepository) UpdateLoan(ctx context.Context, loan Loan) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE loans SET principal = $2, rate_percent = $3, interest = $4, total = $5,
			duration_weeks = $6, issue_date = $7, due_date = $8, updated_at = now()
		WHERE id = $1`,
		loan.ID, loan.Principal, loan.RatePercent, loan.Interest, loan.Total,
		loan.DurationWeeks, loan.IssueDate, loan.DueDate)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLoanNotFound
	}
	return nil
}

func (t *txRepository) UpdateAmountPaid(ctx context.Context, id int64, paid decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx, `UPDATE loans SET amount_paid = $2, updated_at = now() WHERE id = $1`, id, paid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLoanNotFound
	}
	return nil
}

func (t *txRepository) InsertPayment(ctx context.Context, payment Payment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO loan_payments (loan_id, amount, payment_date, balance_after, recorded_by, created_at)
		VALUES ($1, $2, $3, $4, $5, now())`,
		payment.LoanID, payment.Amount, payment.Date, payment.BalanceAfter, payment.RecordedBy)
	return err
}

func (t *txRepository) DeleteLoan(ctx context.Context, id int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM loan_payments WHERE loan_id = $1`, id); err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM loans WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLoanNotFound
	}
	return nil
}
