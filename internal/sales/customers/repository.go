package customers

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgRepository persists customers in PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs PgRepository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const customerColumns = `id, name, phone, notes, created_by, created_at, updated_at`

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Notes, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, ErrCustomerNotFound
		}
		return Customer{}, err
	}
	return c, nil
}

func (r *PgRepository) Get(ctx context.Context, id int64) (Customer, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id)
	return scanCustomer(row)
}

func (r *PgRepository) GetByName(ctx context.Context, name string) (Customer, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE lower(name) = lower($1)`, name)
	return scanCustomer(row)
}

func (r *PgRepository) List(ctx context.Context, search string) ([]Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers`
	args := []any{}
	if search != "" {
		query += ` WHERE name ILIKE $1`
		args = append(args, "%"+search+"%")
	}
	query += ` ORDER BY name`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var customers []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func (r *PgRepository) Insert(ctx context.Context, customer Customer) (Customer, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO customers (name, phone, notes, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		RETURNING `+customerColumns,
		customer.Name, customer.Phone, customer.Notes, customer.CreatedBy)
	return scanCustomer(row)
}

func (r *PgRepository) Update(ctx context.Context, customer Customer) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE customers SET name = $2, phone = $3, notes = $4, updated_at = now()
		WHERE id = $1`,
		customer.ID, customer.Name, customer.Phone, customer.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCustomerNotFound
	}
	return nil
}
