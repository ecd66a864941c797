package sales

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/dunia-ops/dunia-ops/internal/audit"
	"github.com/dunia-ops/dunia-ops/internal/sales/customers"
	"github.com/dunia-ops/dunia-ops/internal/shared"
	"github.com/dunia-ops/dunia-ops/internal/stock"
)

func d(v string) decimal.Decimal {
	dec, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return dec
}

type memoryRepo struct {
	sales    map[int64]Sale
	payments []Payment
	nextID   int64
	nextRef  map[shared.BusinessUnit]int64
	failTx   bool
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{sales: make(map[int64]Sale), nextRef: make(map[shared.BusinessUnit]int64)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r.failTx {
		return errors.New("tx failed")
	}
	snapshot := make(map[int64]Sale, len(r.sales))
	for k, v := range r.sales {
		snapshot[k] = v
	}
	pays := len(r.payments)
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.sales = snapshot
		r.payments = r.payments[:pays]
		return err
	}
	return nil
}

func (r *memoryRepo) AllocateReference(ctx context.Context, unit shared.BusinessUnit) (string, error) {
	r.nextRef[unit]++
	prefix := "DNV-B-"
	if unit == shared.UnitHardware {
		prefix = "DNV-H-"
	}
	return fmt.Sprintf("%s%05d", prefix, r.nextRef[unit]), nil
}

func (r *memoryRepo) GetSale(ctx context.Context, id int64) (Sale, error) {
	sale, ok := r.sales[id]
	if !ok {
		return Sale{}, ErrSaleNotFound
	}
	return sale, nil
}

func (r *memoryRepo) ListSales(ctx context.Context, filter ListFilter) ([]Sale, error) {
	var out []Sale
	for _, sale := range r.sales {
		if filter.Unit != "" && filter.Unit != shared.UnitAll && sale.Unit != filter.Unit {
			continue
		}
		if filter.CreditOnly && sale.Cleared() {
			continue
		}
		out = append(out, sale)
	}
	return out, nil
}

func (r *memoryRepo) ListPayments(ctx context.Context, saleID int64) ([]Payment, error) {
	var out []Payment
	for _, p := range r.payments {
		if p.SaleID == saleID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (t *memoryTx) GetSaleForUpdate(ctx context.Context, id int64) (Sale, error) {
	return t.repo.GetSale(ctx, id)
}

func (t *memoryTx) InsertSale(ctx context.Context, sale Sale) (Sale, error) {
	t.repo.nextID++
	sale.ID = t.repo.nextID
	sale.CreatedAt = time.Now()
	t.repo.sales[sale.ID] = sale
	return sale, nil
}

func (t *memoryTx) InsertLines(ctx context.Context, saleID int64, lines []Line) error {
	sale := t.repo.sales[saleID]
	sale.Lines = append([]Line(nil), lines...)
	t.repo.sales[saleID] = sale
	return nil
}

func (t *memoryTx) InsertPayment(ctx context.Context, payment Payment) error {
	payment.ID = int64(len(t.repo.payments) + 1)
	t.repo.payments = append(t.repo.payments, payment)
	return nil
}

func (t *memoryTx) UpdateAmountPaid(ctx context.Context, id int64, paid decimal.Decimal, clearedAt *time.Time) error {
	sale, ok := t.repo.sales[id]
	if !ok {
		return ErrSaleNotFound
	}
	sale.AmountPaid = paid
	sale.ClearedAt = clearedAt
	t.repo.sales[id] = sale
	return nil
}

func (t *memoryTx) DeleteSale(ctx context.Context, id int64) error {
	if _, ok := t.repo.sales[id]; !ok {
		return ErrSaleNotFound
	}
	delete(t.repo.sales, id)
	return nil
}

type fakeStockItem struct {
	name     string
	quantity int64
	min, max decimal.Decimal
}

type fakeStock struct {
	items       map[int64]*fakeStockItem
	restored    []stock.Restoration
	adjusted    []int64
	failRestore error
}

func newFakeStock() *fakeStock {
	return &fakeStock{items: make(map[int64]*fakeStockItem)}
}

func (f *fakeStock) ReserveAll(ctx context.Context, reservations []stock.Reservation, refCode, actor string) ([]stock.ReservedLine, error) {
	for _, res := range reservations {
		item, ok := f.items[res.ItemID]
		if !ok {
			return nil, stock.ErrItemNotFound
		}
		if res.UnitPrice.LessThan(item.min) || res.UnitPrice.GreaterThan(item.max) {
			return nil, stock.ErrPriceOutOfRange
		}
		if res.Quantity > item.quantity {
			return nil, stock.ErrInsufficientStock
		}
	}
	lines := make([]stock.ReservedLine, 0, len(reservations))
	for _, res := range reservations {
		item := f.items[res.ItemID]
		item.quantity -= res.Quantity
		lines = append(lines, stock.ReservedLine{
			ItemID:    res.ItemID,
			Name:      item.name,
			Quantity:  res.Quantity,
			UnitPrice: res.UnitPrice,
			Subtotal:  res.UnitPrice.Mul(decimal.NewFromInt(res.Quantity)),
		})
	}
	return lines, nil
}

func (f *fakeStock) RestoreAll(ctx context.Context, restorations []stock.Restoration, refCode, actor string) error {
	if f.failRestore != nil {
		return f.failRestore
	}
	for _, res := range restorations {
		if item, ok := f.items[res.ItemID]; ok {
			item.quantity += res.Quantity
		}
	}
	f.restored = append(f.restored, restorations...)
	return nil
}

func (f *fakeStock) Adjust(ctx context.Context, itemID, delta int64, reason, actor string) (stock.Item, error) {
	item, ok := f.items[itemID]
	if !ok {
		return stock.Item{}, stock.ErrItemNotFound
	}
	item.quantity += delta
	f.adjusted = append(f.adjusted, itemID)
	return stock.Item{ID: itemID, Name: item.name, Quantity: item.quantity}, nil
}

type fakeCustomers struct {
	byName map[string]customers.Customer
	nextID int64
}

func newFakeCustomers() *fakeCustomers {
	return &fakeCustomers{byName: make(map[string]customers.Customer)}
}

func (f *fakeCustomers) Ensure(ctx context.Context, name, phone, actor string) (customers.Customer, error) {
	if name == "" {
		return customers.Customer{}, fmt.Errorf("%w: customer name is required for credit sales", shared.ErrValidation)
	}
	if c, ok := f.byName[name]; ok {
		return c, nil
	}
	f.nextID++
	c := customers.Customer{ID: f.nextID, Name: name, CreatedBy: actor}
	f.byName[name] = c
	return c, nil
}

type fakeInvalidator struct {
	calls int
}

func (f *fakeInvalidator) Invalidate(ctx context.Context) {
	f.calls++
}

type capturingAudit struct {
	entries []audit.Entry
}

func (c *capturingAudit) Record(ctx context.Context, entry audit.Entry) {
	entry.Flagged, entry.FlagReason = audit.Flag(entry)
	c.entries = append(c.entries, entry)
}

type fixture struct {
	repo      *memoryRepo
	stock     *fakeStock
	customers *fakeCustomers
	audit     *capturingAudit
	service   *Service
	today     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:      newMemoryRepo(),
		stock:     newFakeStock(),
		customers: newFakeCustomers(),
		audit:     &capturingAudit{},
		today:     time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	f.service = NewService(f.repo, f.stock, f.customers, f.audit)
	f.service.now = func() time.Time { return f.today }
	f.stock.items[1] = &fakeStockItem{name: "Denim Jacket", quantity: 5, min: d("80000"), max: d("95000")}
	f.stock.items[2] = &fakeStockItem{name: "Cement 50kg", quantity: 10, min: d("30000"), max: d("40000")}
	return f
}

func manager() shared.Actor {
	return shared.Actor{Name: "mary", Role: shared.RoleManager, Unit: shared.UnitAll, CanEdit: true, CanDelete: true}
}

func employee() shared.Actor {
	return shared.Actor{Name: "joan", Role: shared.RoleEmployee, Unit: shared.UnitBoutique}
}

func TestCreateSalePartialThenSettle(t *testing.T) {
	f := newFixture(t)
	actor := manager()

	sale, err := f.service.CreateSale(context.Background(), actor, CreateSaleInput{
		Unit:          shared.UnitBoutique,
		SaleDate:      f.today,
		PaymentType:   PaymentPart,
		AmountPaid:    d("50000"),
		CustomerName:  "Okello",
		CustomerPhone: "0700123456",
		Lines: []LineInput{
			{ItemID: 1, Quantity: 2, UnitPrice: d("85000")},
			{ItemID: 0, Name: "Tailoring fee", Quantity: 1, UnitPrice: d("30000")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "DNV-B-00001", sale.Reference)
	require.True(t, sale.Total.Equal(d("200000")))
	require.True(t, sale.Balance().Equal(d("150000")))
	require.Equal(t, int64(1), sale.CustomerID)
	require.Equal(t, int64(3), f.stock.items[1].quantity)

	sale, err = f.service.RecordCreditPayment(context.Background(), actor, sale.ID, d("150000"), time.Time{})
	require.NoError(t, err)
	require.True(t, sale.Cleared())
	require.NotNil(t, sale.ClearedAt)

	_, err = f.service.RecordCreditPayment(context.Background(), actor, sale.ID, d("1"), time.Time{})
	require.ErrorIs(t, err, ErrAlreadyCleared)
}

func TestRecordPaymentRejectsOverpayment(t *testing.T) {
	f := newFixture(t)
	actor := manager()

	sale, err := f.service.CreateSale(context.Background(), actor, CreateSaleInput{
		Unit:          shared.UnitBoutique,
		SaleDate:      f.today,
		PaymentType:   PaymentPart,
		AmountPaid:    d("50000"),
		CustomerName:  "Okello",
		CustomerPhone: "0700123456",
		Lines:         []LineInput{{ItemID: 1, Quantity: 2, UnitPrice: d("85000")}},
	})
	require.NoError(t, err)

	_, err = f.service.RecordCreditPayment(context.Background(), actor, sale.ID, d("170001"), time.Time{})
	require.ErrorIs(t, err, ErrOverpayment)

	got, err := f.service.GetSale(context.Background(), sale.ID)
	require.NoError(t, err)
	require.True(t, got.AmountPaid.Equal(d("50000")), "failed payment must not change the paid amount")
}

func TestCreateSaleFullPaymentSettlesTotal(t *testing.T) {
	f := newFixture(t)

	sale, err := f.service.CreateSale(context.Background(), manager(), CreateSaleInput{
		Unit:        shared.UnitHardware,
		SaleDate:    f.today,
		PaymentType: PaymentFull,
		Lines:       []LineInput{{ItemID: 2, Quantity: 3, UnitPrice: d("35000")}},
	})
	require.NoError(t, err)
	require.Equal(t, "DNV-H-00001", sale.Reference)
	require.True(t, sale.Cleared())
	require.Len(t, f.repo.payments, 1)
}

func TestCreateSaleCompensatesWhenPersistFails(t *testing.T) {
	f := newFixture(t)
	f.repo.failTx = true

	_, err := f.service.CreateSale(context.Background(), manager(), CreateSaleInput{
		Unit:        shared.UnitBoutique,
		SaleDate:    f.today,
		PaymentType: PaymentFull,
		Lines:       []LineInput{{ItemID: 1, Quantity: 2, UnitPrice: d("85000")}},
	})
	require.Error(t, err)
	require.Equal(t, int64(5), f.stock.items[1].quantity, "reserved stock must be restored")
	require.Len(t, f.stock.restored, 1)
}

func TestCreateSaleInsufficientStockFails(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.CreateSale(context.Background(), manager(), CreateSaleInput{
		Unit:        shared.UnitBoutique,
		SaleDate:    f.today,
		PaymentType: PaymentFull,
		Lines:       []LineInput{{ItemID: 1, Quantity: 6, UnitPrice: d("85000")}},
	})
	require.ErrorIs(t, err, stock.ErrInsufficientStock)
	require.Empty(t, f.repo.sales)
}

func TestCreateSaleNonCatalogBypassesStock(t *testing.T) {
	f := newFixture(t)

	sale, err := f.service.CreateSale(context.Background(), manager(), CreateSaleInput{
		Unit:        shared.UnitBoutique,
		SaleDate:    f.today,
		PaymentType: PaymentFull,
		Lines:       []LineInput{{ItemID: 0, Name: "Delivery charge", Quantity: 1, UnitPrice: d("10000")}},
	})
	require.NoError(t, err)
	require.True(t, sale.Lines[0].NonCatalog)

	require.NotEmpty(t, f.audit.entries)
	last := f.audit.entries[len(f.audit.entries)-1]
	require.True(t, last.Flagged)
	require.Contains(t, last.FlagReason, "non-catalog")
}

func TestCreateSalePartialRequiresCustomer(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.CreateSale(context.Background(), manager(), CreateSaleInput{
		Unit:        shared.UnitBoutique,
		SaleDate:    f.today,
		PaymentType: PaymentPart,
		AmountPaid:  d("10000"),
		Lines:       []LineInput{{ItemID: 1, Quantity: 1, UnitPrice: d("85000")}},
	})
	require.ErrorIs(t, err, ErrCustomerRequired)
	require.Equal(t, int64(5), f.stock.items[1].quantity, "reserved stock must be restored")
}

func TestCreateSaleEmployeeDateWindow(t *testing.T) {
	f := newFixture(t)
	actor := employee()

	yesterday := f.today.AddDate(0, 0, -1)
	_, err := f.service.CreateSale(context.Background(), actor, CreateSaleInput{
		Unit:        shared.UnitBoutique,
		SaleDate:    yesterday,
		PaymentType: PaymentFull,
		Lines:       []LineInput{{ItemID: 1, Quantity: 1, UnitPrice: d("85000")}},
	})
	require.NoError(t, err)

	lastWeek := f.today.AddDate(0, 0, -7)
	_, err = f.service.CreateSale(context.Background(), actor, CreateSaleInput{
		Unit:        shared.UnitBoutique,
		SaleDate:    lastWeek,
		PaymentType: PaymentFull,
		Lines:       []LineInput{{ItemID: 1, Quantity: 1, UnitPrice: d("85000")}},
	})
	require.ErrorIs(t, err, shared.ErrInvalidDateWindow)

	tomorrow := f.today.AddDate(0, 0, 1)
	_, err = f.service.CreateSale(context.Background(), manager(), CreateSaleInput{
		Unit:        shared.UnitBoutique,
		SaleDate:    tomorrow,
		PaymentType: PaymentFull,
		Lines:       []LineInput{{ItemID: 1, Quantity: 1, UnitPrice: d("85000")}},
	})
	require.ErrorIs(t, err, shared.ErrInvalidDateWindow, "future dates are rejected for everyone")
}

func TestCreateSaleEmployeeUnitRestriction(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.CreateSale(context.Background(), employee(), CreateSaleInput{
		Unit:        shared.UnitHardware,
		SaleDate:    f.today,
		PaymentType: PaymentFull,
		Lines:       []LineInput{{ItemID: 2, Quantity: 1, UnitPrice: d("35000")}},
	})
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestDeleteSaleRestoresStockAndFlags(t *testing.T) {
	f := newFixture(t)
	actor := manager()

	sale, err := f.service.CreateSale(context.Background(), actor, CreateSaleInput{
		Unit:        shared.UnitBoutique,
		SaleDate:    f.today,
		PaymentType: PaymentFull,
		Lines:       []LineInput{{ItemID: 1, Quantity: 3, UnitPrice: d("85000")}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), f.stock.items[1].quantity)

	require.NoError(t, f.service.DeleteSale(context.Background(), actor, sale.ID))
	require.Equal(t, int64(5), f.stock.items[1].quantity)

	_, err = f.service.GetSale(context.Background(), sale.ID)
	require.ErrorIs(t, err, ErrSaleNotFound)

	last := f.audit.entries[len(f.audit.entries)-1]
	require.Equal(t, audit.ActionDelete, last.Action)
	require.True(t, last.Flagged)
}

func TestDeleteSaleRequiresCapability(t *testing.T) {
	f := newFixture(t)

	sale, err := f.service.CreateSale(context.Background(), manager(), CreateSaleInput{
		Unit:        shared.UnitBoutique,
		SaleDate:    f.today,
		PaymentType: PaymentFull,
		Lines:       []LineInput{{ItemID: 1, Quantity: 1, UnitPrice: d("85000")}},
	})
	require.NoError(t, err)

	err = f.service.DeleteSale(context.Background(), employee(), sale.ID)
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestUpdateSaleReducingPaidIsFlagged(t *testing.T) {
	f := newFixture(t)
	actor := manager()

	sale, err := f.service.CreateSale(context.Background(), actor, CreateSaleInput{
		Unit:          shared.UnitBoutique,
		SaleDate:      f.today,
		PaymentType:   PaymentPart,
		AmountPaid:    d("100000"),
		CustomerName:  "Okello",
		CustomerPhone: "0700123456",
		Lines:         []LineInput{{ItemID: 1, Quantity: 2, UnitPrice: d("85000")}},
	})
	require.NoError(t, err)

	updated, err := f.service.UpdateSale(context.Background(), actor, sale.ID, d("60000"))
	require.NoError(t, err)
	require.True(t, updated.AmountPaid.Equal(d("60000")))

	last := f.audit.entries[len(f.audit.entries)-1]
	require.Equal(t, audit.ActionUpdate, last.Action)
	require.True(t, last.Flagged)
	require.Contains(t, last.FlagReason, "amount reduced")
}

func TestUpdateSaleRejectsPaidAboveTotal(t *testing.T) {
	f := newFixture(t)
	actor := manager()

	sale, err := f.service.CreateSale(context.Background(), actor, CreateSaleInput{
		Unit:          shared.UnitBoutique,
		SaleDate:      f.today,
		PaymentType:   PaymentPart,
		AmountPaid:    d("100000"),
		CustomerName:  "Okello",
		CustomerPhone: "0700123456",
		Lines:         []LineInput{{ItemID: 1, Quantity: 2, UnitPrice: d("85000")}},
	})
	require.NoError(t, err)

	_, err = f.service.UpdateSale(context.Background(), actor, sale.ID, d("170001"))
	require.ErrorIs(t, err, ErrOverpayment)
}

func TestRecordPaymentBackdatedWindow(t *testing.T) {
	f := newFixture(t)

	sale, err := f.service.CreateSale(context.Background(), manager(), CreateSaleInput{
		Unit:          shared.UnitBoutique,
		SaleDate:      f.today,
		PaymentType:   PaymentPart,
		AmountPaid:    d("50000"),
		CustomerName:  "Okello",
		CustomerPhone: "0700123456",
		Lines:         []LineInput{{ItemID: 1, Quantity: 2, UnitPrice: d("85000")}},
	})
	require.NoError(t, err)

	clerk := employee()
	lastWeek := f.today.AddDate(0, 0, -7)
	_, err = f.service.RecordCreditPayment(context.Background(), clerk, sale.ID, d("20000"), lastWeek)
	require.ErrorIs(t, err, shared.ErrInvalidDateWindow)

	yesterday := f.today.AddDate(0, 0, -1)
	_, err = f.service.RecordCreditPayment(context.Background(), clerk, sale.ID, d("20000"), yesterday)
	require.NoError(t, err)

	last := f.audit.entries[len(f.audit.entries)-1]
	require.Equal(t, audit.ActionPayment, last.Action)
	require.True(t, last.Flagged)
	require.Contains(t, last.FlagReason, "backdated")

	payments, err := f.service.ListPayments(context.Background(), sale.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	got := payments[len(payments)-1]
	require.True(t, got.Date.Equal(shared.DateOf(yesterday)), "payment keeps the supplied date")
}

func TestRecordPaymentDefaultsDateToToday(t *testing.T) {
	f := newFixture(t)
	actor := manager()

	sale, err := f.service.CreateSale(context.Background(), actor, CreateSaleInput{
		Unit:          shared.UnitBoutique,
		SaleDate:      f.today,
		PaymentType:   PaymentPart,
		AmountPaid:    d("50000"),
		CustomerName:  "Okello",
		CustomerPhone: "0700123456",
		Lines:         []LineInput{{ItemID: 1, Quantity: 2, UnitPrice: d("85000")}},
	})
	require.NoError(t, err)

	_, err = f.service.RecordCreditPayment(context.Background(), actor, sale.ID, d("20000"), time.Time{})
	require.NoError(t, err)

	last := f.audit.entries[len(f.audit.entries)-1]
	require.False(t, last.Flagged)

	payments, err := f.service.ListPayments(context.Background(), sale.ID)
	require.NoError(t, err)
	got := payments[len(payments)-1]
	require.True(t, got.Date.Equal(shared.DateOf(f.today)))
}

func TestCreateSalePartialRequiresCustomerPhone(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.CreateSale(context.Background(), manager(), CreateSaleInput{
		Unit:         shared.UnitBoutique,
		SaleDate:     f.today,
		PaymentType:  PaymentPart,
		AmountPaid:   d("10000"),
		CustomerName: "Okello",
		Lines:        []LineInput{{ItemID: 1, Quantity: 1, UnitPrice: d("85000")}},
	})
	require.ErrorIs(t, err, ErrCustomerRequired)
	require.Equal(t, int64(5), f.stock.items[1].quantity, "reserved stock must be restored")
}

func TestUpdateSaleByNonOwnerIsFlagged(t *testing.T) {
	f := newFixture(t)

	sale, err := f.service.CreateSale(context.Background(), manager(), CreateSaleInput{
		Unit:          shared.UnitBoutique,
		SaleDate:      f.today,
		PaymentType:   PaymentPart,
		AmountPaid:    d("50000"),
		CustomerName:  "Okello",
		CustomerPhone: "0700123456",
		Lines:         []LineInput{{ItemID: 1, Quantity: 2, UnitPrice: d("85000")}},
	})
	require.NoError(t, err)

	other := shared.Actor{Name: "agnes", Role: shared.RoleManager, Unit: shared.UnitAll, CanEdit: true}
	_, err = f.service.UpdateSale(context.Background(), other, sale.ID, d("90000"))
	require.NoError(t, err)

	last := f.audit.entries[len(f.audit.entries)-1]
	require.True(t, last.Flagged)
	require.Contains(t, last.FlagReason, "non-owner")

	_, err = f.service.UpdateSale(context.Background(), manager(), sale.ID, d("100000"))
	require.NoError(t, err)
	last = f.audit.entries[len(f.audit.entries)-1]
	require.False(t, last.Flagged, "owners raising the paid amount are not flagged")
}

func TestDeleteSaleKeepsSaleWhenRestoreFails(t *testing.T) {
	f := newFixture(t)
	actor := manager()

	sale, err := f.service.CreateSale(context.Background(), actor, CreateSaleInput{
		Unit:        shared.UnitBoutique,
		SaleDate:    f.today,
		PaymentType: PaymentFull,
		Lines:       []LineInput{{ItemID: 1, Quantity: 3, UnitPrice: d("85000")}},
	})
	require.NoError(t, err)

	f.stock.failRestore = errors.New("stock unavailable")
	err = f.service.DeleteSale(context.Background(), actor, sale.ID)
	require.Error(t, err)

	got, err := f.service.GetSale(context.Background(), sale.ID)
	require.NoError(t, err, "sale survives a failed restore")
	require.True(t, got.Total.Equal(sale.Total))
	require.Equal(t, int64(2), f.stock.items[1].quantity, "quantities unchanged")
}

func TestDeleteSaleReappliesStockWhenDeleteFails(t *testing.T) {
	f := newFixture(t)
	actor := manager()

	sale, err := f.service.CreateSale(context.Background(), actor, CreateSaleInput{
		Unit:        shared.UnitBoutique,
		SaleDate:    f.today,
		PaymentType: PaymentFull,
		Lines:       []LineInput{{ItemID: 1, Quantity: 3, UnitPrice: d("85000")}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), f.stock.items[1].quantity)

	f.repo.failTx = true
	err = f.service.DeleteSale(context.Background(), actor, sale.ID)
	require.Error(t, err)

	f.repo.failTx = false
	_, err = f.service.GetSale(context.Background(), sale.ID)
	require.NoError(t, err, "sale still exists")
	require.Equal(t, int64(2), f.stock.items[1].quantity, "restored quantities are taken back out")
	require.Equal(t, []int64{1}, f.stock.adjusted)
}

func TestMutationsDropDashboardCache(t *testing.T) {
	f := newFixture(t)
	inv := &fakeInvalidator{}
	f.service.UseCacheInvalidation(inv)
	actor := manager()

	sale, err := f.service.CreateSale(context.Background(), actor, CreateSaleInput{
		Unit:        shared.UnitBoutique,
		SaleDate:    f.today,
		PaymentType: PaymentFull,
		Lines:       []LineInput{{ItemID: 1, Quantity: 1, UnitPrice: d("85000")}},
	})
	require.NoError(t, err)
	require.Equal(t, 1, inv.calls)

	_, err = f.service.CreateSale(context.Background(), actor, CreateSaleInput{
		Unit:        shared.UnitBoutique,
		SaleDate:    f.today,
		PaymentType: PaymentFull,
		Lines:       []LineInput{{ItemID: 1, Quantity: 100, UnitPrice: d("85000")}},
	})
	require.Error(t, err)
	require.Equal(t, 1, inv.calls, "failed mutations leave the cache alone")

	require.NoError(t, f.service.DeleteSale(context.Background(), actor, sale.ID))
	require.Equal(t, 2, inv.calls)
}

func TestReferencesIncrementPerUnit(t *testing.T) {
	f := newFixture(t)
	actor := manager()

	for i := 0; i < 2; i++ {
		_, err := f.service.CreateSale(context.Background(), actor, CreateSaleInput{
			Unit:        shared.UnitBoutique,
			SaleDate:    f.today,
			PaymentType: PaymentFull,
			Lines:       []LineInput{{ItemID: 1, Quantity: 1, UnitPrice: d("85000")}},
		})
		require.NoError(t, err)
	}
	sale, err := f.service.CreateSale(context.Background(), actor, CreateSaleInput{
		Unit:        shared.UnitHardware,
		SaleDate:    f.today,
		PaymentType: PaymentFull,
		Lines:       []LineInput{{ItemID: 2, Quantity: 1, UnitPrice: d("35000")}},
	})
	require.NoError(t, err)
	require.Equal(t, "DNV-H-00001", sale.Reference)

	sales, err := f.service.ListSales(context.Background(), ListFilter{Unit: shared.UnitBoutique})
	require.NoError(t, err)
	require.Len(t, sales, 2)
}
