package stock

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dunia-ops/dunia-ops/internal/platform/db"
	"github.com/dunia-ops/dunia-ops/internal/shared"
)

// Repository persists stock data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	GetItemForUpdate(ctx context.Context, id int64) (Item, error)
	UpdateQuantity(ctx context.Context, id, quantity int64) error
	InsertMovement(ctx context.Context, movement Movement) error
}

type txRepository struct {
	tx pgx.Tx
}

const itemColumns = `id, unit, name, category_id, quantity, initial_quantity, unit_label, cost_price, min_selling_price, max_selling_price, low_stock_threshold, is_active, created_at, updated_at`

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("stock repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func scanItem(row pgx.Row) (Item, error) {
	var item Item
	var unit string
	err := row.Scan(&item.ID, &unit, &item.Name, &item.CategoryID, &item.Quantity, &item.InitialQuantity,
		&item.UnitLabel, &item.CostPrice, &item.MinSellingPrice, &item.MaxSellingPrice,
		&item.LowStockThreshold, &item.IsActive, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, err
	}
	item.Unit = shared.BusinessUnit(unit)
	return item, nil
}

// GetItem fetches one item by id.
func (r *Repository) GetItem(ctx context.Context, id int64) (Item, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM stock_items WHERE id=$1`, id)
	return scanItem(row)
}

// ListItems lists items matching the filter, ordered by name.
func (r *Repository) ListItems(ctx context.Context, filter ListFilter) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM stock_items
WHERE ($1 = '' OR unit = $1)
  AND ($2 = 0 OR category_id = $2)
  AND ($3::bool OR is_active)
  AND (NOT $4::bool OR quantity <= low_stock_threshold)
ORDER BY name ASC`,
		string(filter.Unit), filter.CategoryID, filter.ShowInactive, filter.LowStockOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// InsertItem stores a new item and returns its id.
func (r *Repository) InsertItem(ctx context.Context, item Item) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO stock_items (unit, name, category_id, quantity, initial_quantity, unit_label, cost_price, min_selling_price, max_selling_price, low_stock_threshold, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW(),NOW()) RETURNING id`,
		string(item.Unit), item.Name, item.CategoryID, item.Quantity, item.InitialQuantity,
		item.UnitLabel, item.CostPrice, item.MinSellingPrice, item.MaxSellingPrice,
		item.LowStockThreshold, item.IsActive).Scan(&id)
	return id, err
}

// UpdateItem edits item attributes other than quantity.
func (r *Repository) UpdateItem(ctx context.Context, id int64, input UpdateItemInput) error {
	tag, err := r.pool.Exec(ctx, `UPDATE stock_items
SET name=$2, category_id=$3, unit_label=$4, cost_price=$5, min_selling_price=$6, max_selling_price=$7, low_stock_threshold=$8, is_active=$9, updated_at=NOW()
WHERE id=$1`,
		id, input.Name, input.CategoryID, input.UnitLabel, input.CostPrice,
		input.MinSellingPrice, input.MaxSellingPrice, input.LowStockThreshold, input.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

// SetItemActive toggles the soft-delete flag.
func (r *Repository) SetItemActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE stock_items SET is_active=$2, updated_at=NOW() WHERE id=$1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

// ListMovements lists recent movements for an item, newest first.
func (r *Repository) ListMovements(ctx context.Context, itemID int64, limit int) ([]Movement, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id, item_id, kind, delta, reason, ref_code, actor, created_at
FROM stock_movements WHERE item_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2`, itemID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		var m Movement
		var kind string
		if err := rows.Scan(&m.ID, &m.ItemID, &kind, &m.Delta, &m.Reason, &m.RefCode, &m.Actor, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Kind = MovementKind(kind)
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// InsertCategory stores a category.
func (r *Repository) InsertCategory(ctx context.Context, cat Category) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO stock_categories (unit, name, created_at) VALUES ($1,$2,NOW()) RETURNING id`,
		string(cat.Unit), cat.Name).Scan(&id)
	return id, err
}

// ListCategories lists categories for a unit ordered by name.
func (r *Repository) ListCategories(ctx context.Context, unit shared.BusinessUnit) ([]Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, unit, name, created_at FROM stock_categories WHERE ($1 = '' OR unit = $1) ORDER BY name ASC`, string(unit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cats := []Category{}
	for rows.Next() {
		var c Category
		var u string
		if err := rows.Scan(&c.ID, &u, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Unit = shared.BusinessUnit(u)
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

func (r *txRepository) GetItemForUpdate(ctx context.Context, id int64) (Item, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM stock_items WHERE id=$1 FOR UPDATE`, id)
	return scanItem(row)
}

func (r *txRepository) UpdateQuantity(ctx context.Context, id, quantity int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE stock_items SET quantity=$2, updated_at=NOW() WHERE id=$1`, id, quantity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (r *txRepository) InsertMovement(ctx context.Context, movement Movement) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_movements (item_id, kind, delta, reason, ref_code, actor, created_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW())`,
		movement.ItemID, string(movement.Kind), movement.Delta, movement.Reason, movement.RefCode, movement.Actor)
	return err
}
