package clients

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgRepository persists loan clients in PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const clientColumns = `id, name, nin, phone, address, created_by, created_at, updated_at`

func scanClient(row pgx.Row) (Client, error) {
	var c Client
	err := row.Scan(&c.ID, &c.Name, &c.NIN, &c.Phone, &c.Address, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Client{}, ErrClientNotFound
		}
		return Client{}, err
	}
	return c, nil
}

func (r *PgRepository) Get(ctx context.Context, id int64) (Client, error) {
	return scanClient(r.pool.QueryRow(ctx, `SELECT `+clientColumns+` FROM loan_clients WHERE id = $1`, id))
}

func (r *PgRepository) List(ctx context.Context, search string) ([]Client, error) {
	query := `SELECT ` + clientColumns + ` FROM loan_clients`
	args := []any{}
	if search != "" {
		query += ` WHERE name ILIKE $1 OR nin ILIKE $1`
		args = append(args, "%"+search+"%")
	}
	query += ` ORDER BY name`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PgRepository) Insert(ctx context.Context, client Client) (Client, error) {
	return scanClient(r.pool.QueryRow(ctx, `
		INSERT INTO loan_clients (name, nin, phone, address, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING `+clientColumns,
		client.Name, client.NIN, client.Phone, client.Address, client.CreatedBy))
}

func (r *PgRepository) Update(ctx context.Context, client Client) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE loan_clients SET name = $2, nin = $3, phone = $4, address = $5, updated_at = now()
		WHERE id = $1`,
		client.ID, client.Name, client.NIN, client.Phone, client.Address)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrClientNotFound
	}
	return nil
}
