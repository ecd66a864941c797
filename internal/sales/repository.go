package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dunia-ops/dunia-ops/internal/platform/db"
	"github.com/dunia-ops/dunia-ops/internal/shared"
)

// Repository persists sales in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

const saleColumns = `id, unit, reference, customer_id, customer_name, sale_date, total, amount_paid, payment_type, cleared_at, created_by, created_at, updated_at`

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// AllocateReference hands out the next sale reference for a unit. Sequence
// numbers are consumed even if the sale later fails to persist; gaps in the
// series are acceptable.
func (r *Repository) AllocateReference(ctx context.Context, unit shared.BusinessUnit) (string, error) {
	var prefix string
	switch unit {
	case shared.UnitBoutique:
		prefix = "DNV-B-"
	case shared.UnitHardware:
		prefix = "DNV-H-"
	default:
		return "", fmt.Errorf("no reference series for unit %q", unit)
	}
	var seq int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO ref_sequences (unit, next) VALUES ($1, 2)
		ON CONFLICT (unit) DO UPDATE SET next = ref_sequences.next + 1
		RETURNING next - 1`, string(unit)).Scan(&seq)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%05d", prefix, seq), nil
}

func scanSale(row pgx.Row) (Sale, error) {
	var s Sale
	var unit, paymentType string
	err := row.Scan(&s.ID, &unit, &s.Reference, &s.CustomerID, &s.CustomerName, &s.SaleDate,
		&s.Total, &s.AmountPaid, &paymentType, &s.ClearedAt, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, ErrSaleNotFound
		}
		return Sale{}, err
	}
	s.Unit = shared.BusinessUnit(unit)
	s.PaymentType = PaymentType(paymentType)
	return s, nil
}

// GetSale fetches one sale with its lines.
func (r *Repository) GetSale(ctx context.Context, id int64) (Sale, error) {
	sale, err := scanSale(r.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id))
	if err != nil {
		return Sale{}, err
	}
	lines, err := r.listLines(ctx, id)
	if err != nil {
		return Sale{}, err
	}
	sale.Lines = lines
	return sale, nil
}

func (r *Repository) listLines(ctx context.Context, saleID int64) ([]Line, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, sale_id, item_id, name, quantity, unit_price, subtotal, non_catalog
		FROM sale_lines WHERE sale_id = $1 ORDER BY id`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.SaleID, &line.ItemID, &line.Name,
			&line.Quantity, &line.UnitPrice, &line.Subtotal, &line.NonCatalog); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// ListSales lists sales matching the filter, newest first.
func (r *Repository) ListSales(ctx context.Context, filter ListFilter) ([]Sale, error) {
	query := `SELECT ` + saleColumns + ` FROM sales WHERE 1=1`
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.Unit != "" && filter.Unit != shared.UnitAll {
		query += ` AND unit = ` + arg(string(filter.Unit))
	}
	if !filter.From.IsZero() {
		query += ` AND sale_date >= ` + arg(filter.From)
	}
	if !filter.To.IsZero() {
		query += ` AND sale_date <= ` + arg(filter.To)
	}
	if filter.CreditOnly {
		query += ` AND amount_paid < total`
	}
	if filter.CustomerID != 0 {
		query += ` AND customer_id = ` + arg(filter.CustomerID)
	}
	query += ` ORDER BY sale_date DESC, id DESC`
	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		query += ` LIMIT ` + arg(filter.PageSize) + ` OFFSET ` + arg((page-1)*filter.PageSize)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sales []Sale
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}

// ListPayments lists payments for a sale, newest first.
func (r *Repository) ListPayments(ctx context.Context, saleID int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, sale_id, amount, payment_date, balance_after, recorded_by, created_at
		FROM sale_payments WHERE sale_id = $1 ORDER BY created_at DESC, id DESC`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.SaleID, &p.Amount, &p.Date, &p.BalanceAfter, &p.RecordedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// GetSaleForUpdate fetches a sale with its lines under a row lock.
func (t *txRepository) GetSaleForUpdate(ctx context.Context, id int64) (Sale, error) {
	sale, err := scanSale(t.tx.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return Sale{}, err
	}
	rows, err := t.tx.Query(ctx, `
		SELECT id, sale_id, item_id, name, quantity, unit_price, subtotal, non_catalog
		FROM sale_lines WHERE sale_id = $1 ORDER BY id`, id)
	if err != nil {
		return Sale{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.SaleID, &line.ItemID, &line.Name,
			&line.Quantity, &line.UnitPrice, &line.Subtotal, &line.NonCatalog); err != nil {
			return Sale{}, err
		}
		sale.Lines = append(sale.Lines, line)
	}
	return sale, rows.Err()
}

func (t *txRepository) InsertSale(ctx context.Context, sale Sale) (Sale, error) {
	return scanSale(t.tx.QueryRow(ctx, `
		INSERT INTO sales (unit, reference, customer_id, customer_name, sale_date, total, amount_paid, payment_type, cleared_at, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		RETURNING `+saleColumns,
		string(sale.Unit), sale.Reference, sale.CustomerID, sale.CustomerName, sale.SaleDate,
		sale.Total, sale.AmountPaid, string(sale.PaymentType), sale.ClearedAt, sale.CreatedBy))
}

func (t *txRepository) InsertLines(ctx context.Context, saleID int64, lines []Line) error {
	for _, line := range lines {
		_, err := t.tx.Exec(ctx, `
			INSERT INTO sale_lines (sale_id, item_id, name, quantity, unit_price, subtotal, non_catalog)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			saleID, line.ItemID, line.Name, line.Quantity, line.UnitPrice, line.Subtotal, line.NonCatalog)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepository) InsertPayment(ctx context.Context, payment Payment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO sale_payments (sale_id, amount, payment_date, balance_after, recorded_by, created_at)
		VALUES ($1, $2, $3, $4, $5, now())`,
		payment.SaleID, payment.Amount, payment.Date, payment.BalanceAfter, payment.RecordedBy)
	return err
}

func (t *txRepository) UpdateAmountPaid(ctx context.Context, id int64, paid decimal.Decimal, clearedAt *time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE sales SET amount_paid = $2, cleared_at = $3, updated_at = now() WHERE id = $1`, id, paid, clearedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSaleNotFound
	}
	return nil
}

func (t *txRepository) DeleteSale(ctx context.Context, id int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM sale_payments WHERE sale_id = $1`, id); err != nil {
		return err
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM sale_lines WHERE sale_id = $1`, id); err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSaleNotFound
	}
	return nil
}
