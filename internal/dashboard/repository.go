package dashboard

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository aggregates dashboard figures straight from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Collect runs the aggregate queries for one calendar day.
func (r *Repository) Collect(ctx context.Context, today time.Time) (Overview, error) {
	var o Overview
	o.Date = today

	err := r.pool.QueryRow(ctx, `
		SELECT coalesce(sum(total), 0), count(*)
		FROM sales WHERE sale_date = $1`, today).
		Scan(&o.TodaySalesTotal, &o.TodaySalesCount)
	if err != nil {
		return Overview{}, err
	}

	err = r.pool.QueryRow(ctx, `
		SELECT coalesce(sum(total - amount_paid), 0), count(*)
		FROM sales WHERE amount_paid < total`).
		Scan(&o.PendingCreditTotal, &o.PendingCreditCount)
	if err != nil {
		return Overview{}, err
	}

	err = r.pool.QueryRow(ctx, `
		SELECT count(*) FROM stock_items
		WHERE is_active AND low_stock_threshold > 0 AND quantity <= low_stock_threshold`).
		Scan(&o.LowStockCount)
	if err != nil {
		return Overview{}, err
	}

	err = r.pool.QueryRow(ctx, `
		SELECT coalesce(sum(total - amount_paid), 0),
		       count(*) FILTER (WHERE due_date < $1)
		FROM loans WHERE amount_paid < total`, today).
		Scan(&o.OutstandingLoanTotal, &o.OverdueLoanCount)
	if err != nil {
		return Overview{}, err
	}

	err = r.pool.QueryRow(ctx, `
		SELECT coalesce(sum(total - amount_paid), 0)
		FROM group_loans WHERE amount_paid < total`).
		Scan(&o.OutstandingGroupTotal)
	if err != nil {
		return Overview{}, err
	}

	return o, nil
}
