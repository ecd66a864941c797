package stock

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/dunia-ops/dunia-ops/internal/shared"
)

type memoryRepo struct {
	mu        sync.Mutex
	items     map[int64]Item
	movements []Movement
	cats      map[int64]Category
	nextID    int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{items: make(map[int64]Item), cats: make(map[int64]Category)}
}

// WithTx serializes callbacks under one mutex, mirroring the row locks the
// real repository takes.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := make(map[int64]Item, len(r.items))
	for k, v := range r.items {
		snapshot[k] = v
	}
	moves := len(r.movements)
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.items = snapshot
		r.movements = r.movements[:moves]
		return err
	}
	return nil
}

func (r *memoryRepo) GetItem(ctx context.Context, id int64) (Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	return item, nil
}

func (r *memoryRepo) ListItems(ctx context.Context, filter ListFilter) ([]Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := []Item{}
	for _, item := range r.items {
		if filter.LowStockOnly && !item.LowStock() {
			continue
		}
		if !filter.ShowInactive && !item.IsActive {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (r *memoryRepo) InsertItem(ctx context.Context, item Item) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	item.ID = r.nextID
	r.items[item.ID] = item
	return item.ID, nil
}

func (r *memoryRepo) UpdateItem(ctx context.Context, id int64, input UpdateItemInput) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return ErrItemNotFound
	}
	item.Name = input.Name
	item.MinSellingPrice = input.MinSellingPrice
	item.MaxSellingPrice = input.MaxSellingPrice
	item.LowStockThreshold = input.LowStockThreshold
	item.IsActive = input.IsActive
	r.items[id] = item
	return nil
}

func (r *memoryRepo) SetItemActive(ctx context.Context, id int64, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return ErrItemNotFound
	}
	item.IsActive = active
	r.items[id] = item
	return nil
}

func (r *memoryRepo) ListMovements(ctx context.Context, itemID int64, limit int) ([]Movement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Movement{}
	for _, m := range r.movements {
		if m.ItemID == itemID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memoryRepo) InsertCategory(ctx context.Context, cat Category) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	cat.ID = r.nextID
	r.cats[cat.ID] = cat
	return cat.ID, nil
}

func (r *memoryRepo) ListCategories(ctx context.Context, unit shared.BusinessUnit) ([]Category, error) {
	return nil, nil
}

func (tx *memoryTx) GetItemForUpdate(ctx context.Context, id int64) (Item, error) {
	item, ok := tx.repo.items[id]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	return item, nil
}

func (tx *memoryTx) UpdateQuantity(ctx context.Context, id, quantity int64) error {
	item, ok := tx.repo.items[id]
	if !ok {
		return ErrItemNotFound
	}
	item.Quantity = quantity
	tx.repo.items[id] = item
	return nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, movement Movement) error {
	tx.repo.movements = append(tx.repo.movements, movement)
	return nil
}

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func seedItem(t *testing.T, svc *Service, qty int64, minPrice, maxPrice string) Item {
	t.Helper()
	item, err := svc.CreateItem(context.Background(), CreateItemInput{
		Unit:            shared.UnitBoutique,
		Name:            "Gomesi",
		Quantity:        qty,
		UnitLabel:       "pieces",
		CostPrice:       d("60000"),
		MinSellingPrice: d(minPrice),
		MaxSellingPrice: d(maxPrice),
		Actor:           "jane",
	})
	require.NoError(t, err)
	return item
}

func TestReserveDecrementsWithinBand(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	item := seedItem(t, svc, 5, "80000", "95000")

	line, err := svc.Reserve(context.Background(), Reservation{ItemID: item.ID, Quantity: 3, UnitPrice: d("85000")}, "DNV-B-00001", "jane")
	require.NoError(t, err)
	require.Equal(t, "Gomesi", line.Name)
	require.True(t, line.Subtotal.Equal(d("255000")))

	got, err := svc.GetItem(context.Background(), item.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, got.Quantity)

	_, err = svc.Reserve(context.Background(), Reservation{ItemID: item.ID, Quantity: 3, UnitPrice: d("85000")}, "DNV-B-00002", "jane")
	require.ErrorIs(t, err, ErrInsufficientStock)
}

func TestReservePriceBand(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	item := seedItem(t, svc, 5, "80000", "95000")

	_, err := svc.Reserve(context.Background(), Reservation{ItemID: item.ID, Quantity: 1, UnitPrice: d("79999")}, "", "jane")
	require.ErrorIs(t, err, ErrPriceOutOfRange)
	_, err = svc.Reserve(context.Background(), Reservation{ItemID: item.ID, Quantity: 1, UnitPrice: d("95001")}, "", "jane")
	require.ErrorIs(t, err, ErrPriceOutOfRange)

	got, err := svc.GetItem(context.Background(), item.ID)
	require.NoError(t, err)
	require.EqualValues(t, 5, got.Quantity)
}

func TestReserveUnknownItem(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	_, err := svc.Reserve(context.Background(), Reservation{ItemID: 99, Quantity: 1, UnitPrice: d("100")}, "", "jane")
	require.ErrorIs(t, err, ErrItemNotFound)
}

func TestReserveAllIsAtomic(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	a := seedItem(t, svc, 10, "1000", "2000")
	b := seedItem(t, svc, 1, "1000", "2000")

	_, err := svc.ReserveAll(context.Background(), []Reservation{
		{ItemID: a.ID, Quantity: 5, UnitPrice: d("1500")},
		{ItemID: b.ID, Quantity: 2, UnitPrice: d("1500")},
	}, "DNV-B-00003", "jane")
	require.ErrorIs(t, err, ErrInsufficientStock)

	// First line's decrement must have been rolled back.
	got, err := svc.GetItem(context.Background(), a.ID)
	require.NoError(t, err)
	require.EqualValues(t, 10, got.Quantity)
}

func TestReserveAllKeepsDuplicateItemLinesDistinct(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	item := seedItem(t, svc, 5, "80000", "95000")

	// The same item sold on two lines must come back as two lines with
	// their own quantities and subtotals.
	lines, err := svc.ReserveAll(context.Background(), []Reservation{
		{ItemID: item.ID, Quantity: 1, UnitPrice: d("85000")},
		{ItemID: item.ID, Quantity: 3, UnitPrice: d("85000")},
	}, "DNV-B-00007", "jane")
	require.NoError(t, err)
	require.Len(t, lines, 2)
	require.EqualValues(t, 1, lines[0].Quantity)
	require.True(t, lines[0].Subtotal.Equal(d("85000")))
	require.EqualValues(t, 3, lines[1].Quantity)
	require.True(t, lines[1].Subtotal.Equal(d("255000")))

	got, err := svc.GetItem(context.Background(), item.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, got.Quantity)

	// Both lines together must not exceed on-hand stock.
	_, err = svc.ReserveAll(context.Background(), []Reservation{
		{ItemID: item.ID, Quantity: 1, UnitPrice: d("85000")},
		{ItemID: item.ID, Quantity: 1, UnitPrice: d("85000")},
	}, "DNV-B-00008", "jane")
	require.ErrorIs(t, err, ErrInsufficientStock)
}

func TestRestoreReturnsExactQuantity(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	item := seedItem(t, svc, 7, "1000", "2000")

	_, err := svc.Reserve(context.Background(), Reservation{ItemID: item.ID, Quantity: 4, UnitPrice: d("1200")}, "DNV-B-00004", "jane")
	require.NoError(t, err)

	err = svc.RestoreAll(context.Background(), []Restoration{{ItemID: item.ID, Quantity: 4}}, "DNV-B-00004", "jane")
	require.NoError(t, err)

	got, err := svc.GetItem(context.Background(), item.ID)
	require.NoError(t, err)
	require.EqualValues(t, 7, got.Quantity)
}

func TestAdjustRejectsNegativeResult(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	item := seedItem(t, svc, 3, "1000", "2000")

	_, err := svc.Adjust(context.Background(), item.ID, -5, "write-off", "jane")
	require.ErrorIs(t, err, ErrInvalidAdjustment)

	adjusted, err := svc.Adjust(context.Background(), item.ID, -3, "write-off", "jane")
	require.NoError(t, err)
	require.EqualValues(t, 0, adjusted.Quantity)

	adjusted, err = svc.Adjust(context.Background(), item.ID, 12, "restock", "jane")
	require.NoError(t, err)
	require.EqualValues(t, 12, adjusted.Quantity)
}

func TestNoOversellUnderConcurrency(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	item := seedItem(t, svc, 3, "1000", "2000")

	const workers = 10
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Reserve(context.Background(), Reservation{ItemID: item.ID, Quantity: 1, UnitPrice: d("1500")}, "", "jane")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, insufficient int
	for err := range results {
		switch {
		case err == nil:
			ok++
		default:
			require.ErrorIs(t, err, ErrInsufficientStock)
			insufficient++
		}
	}
	require.Equal(t, 3, ok)
	require.Equal(t, workers-3, insufficient)

	got, err := svc.GetItem(context.Background(), item.ID)
	require.NoError(t, err)
	require.EqualValues(t, 0, got.Quantity)
}

func TestCreateItemDefaultsThreshold(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	item, err := svc.CreateItem(context.Background(), CreateItemInput{
		Unit: shared.UnitHardware, Name: "Cement", Quantity: 40, UnitLabel: "bags",
		CostPrice: d("30000"), MinSellingPrice: d("32000"), MaxSellingPrice: d("38000"),
		Actor: "jane",
	})
	require.NoError(t, err)
	require.EqualValues(t, 10, item.LowStockThreshold)

	small, err := svc.CreateItem(context.Background(), CreateItemInput{
		Unit: shared.UnitHardware, Name: "Wheelbarrow", Quantity: 2, UnitLabel: "pieces",
		CostPrice: d("90000"), MinSellingPrice: d("100000"), MaxSellingPrice: d("120000"),
		Actor: "jane",
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, small.LowStockThreshold)
}
