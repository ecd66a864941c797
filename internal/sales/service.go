package sales

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dunia-ops/dunia-ops/internal/audit"
	"github.com/dunia-ops/dunia-ops/internal/ledger"
	"github.com/dunia-ops/dunia-ops/internal/sales/customers"
	"github.com/dunia-ops/dunia-ops/internal/shared"
	"github.com/dunia-ops/dunia-ops/internal/stock"
)

// RepositoryPort is the persistence surface the service depends on.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	AllocateReference(ctx context.Context, unit shared.BusinessUnit) (string, error)
	GetSale(ctx context.Context, id int64) (Sale, error)
	ListSales(ctx context.Context, filter ListFilter) ([]Sale, error)
	ListPayments(ctx context.Context, saleID int64) ([]Payment, error)
}

// TxRepository exposes the operations available inside a sale transaction.
type TxRepository interface {
	GetSaleForUpdate(ctx context.Context, id int64) (Sale, error)
	InsertSale(ctx context.Context, sale Sale) (Sale, error)
	InsertLines(ctx context.Context, saleID int64, lines []Line) error
	InsertPayment(ctx context.Context, payment Payment) error
	UpdateAmountPaid(ctx context.Context, id int64, paid decimal.Decimal, clearedAt *time.Time) error
	DeleteSale(ctx context.Context, id int64) error
}

// StockPort is the slice of the stock service a sale needs. ReserveAll is
// atomic across all its lines, so a later persistence failure only needs
// the matching RestoreAll to compensate.
type StockPort interface {
	ReserveAll(ctx context.Context, reservations []stock.Reservation, refCode, actor string) ([]stock.ReservedLine, error)
	RestoreAll(ctx context.Context, restorations []stock.Restoration, refCode, actor string) error
	Adjust(ctx context.Context, itemID, delta int64, reason, actor string) (stock.Item, error)
}

// CustomerPort resolves credit customers by name.
type CustomerPort interface {
	Ensure(ctx context.Context, name, phone, actor string) (customers.Customer, error)
}

// AuditPort records audit entries fire-and-forget.
type AuditPort interface {
	Record(ctx context.Context, entry audit.Entry)
}

// InvalidatorPort drops derived caches after a mutation.
type InvalidatorPort interface {
	Invalidate(ctx context.Context)
}

// Service implements sale creation, credit payments, edits and deletion.
type Service struct {
	repo        RepositoryPort
	stock       StockPort
	customers   CustomerPort
	audit       AuditPort
	invalidator InvalidatorPort
	now         func() time.Time
}

// NewService constructs Service. The audit port may be nil in tests.
func NewService(repo RepositoryPort, stockPort StockPort, customerPort CustomerPort, auditPort AuditPort) *Service {
	return &Service{repo: repo, stock: stockPort, customers: customerPort, audit: auditPort, now: time.Now}
}

// UseCacheInvalidation makes every committed mutation drop the dashboard
// overview cache so totals refresh before the TTL runs out.
func (s *Service) UseCacheInvalidation(inv InvalidatorPort) {
	s.invalidator = inv
}

// CreateSale validates the sale date against the actor's window, reserves
// stock for every catalog line, settles the payment split and persists the
// sale. All lines commit or none do.
func (s *Service) CreateSale(ctx context.Context, actor shared.Actor, input CreateSaleInput) (Sale, error) {
	if len(input.Lines) == 0 {
		return Sale{}, ErrNoLines
	}
	if input.Unit != shared.UnitBoutique && input.Unit != shared.UnitHardware {
		return Sale{}, fmt.Errorf("%w: unknown business unit %q", shared.ErrValidation, input.Unit)
	}
	if !actor.CanAccess(input.Unit) {
		return Sale{}, fmt.Errorf("%w: no access to unit %q", shared.ErrForbidden, input.Unit)
	}
	today := shared.DateOf(s.now())
	saleDate := shared.DateOf(input.SaleDate)
	if err := actor.ValidateDate(saleDate, today); err != nil {
		return Sale{}, err
	}

	reference, err := s.repo.AllocateReference(ctx, input.Unit)
	if err != nil {
		return Sale{}, fmt.Errorf("allocate reference: %w", err)
	}

	lines, reservations, err := buildLines(input.Lines)
	if err != nil {
		return Sale{}, err
	}
	if len(reservations) > 0 {
		reserved, err := s.stock.ReserveAll(ctx, reservations, reference, actor.Name)
		if err != nil {
			return Sale{}, err
		}
		mergeReserved(lines, reserved)
	}

	total := decimal.Zero
	nonCatalog := false
	for _, line := range lines {
		total = total.Add(line.Subtotal)
		if line.NonCatalog {
			nonCatalog = true
		}
	}

	paid := input.AmountPaid
	if input.PaymentType == PaymentFull {
		paid = total
	}
	led, err := ledger.Open(total, paid)
	if err != nil {
		s.compensate(ctx, lines, reference, actor.Name)
		return Sale{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}

	sale := Sale{
		Unit:         input.Unit,
		Reference:    reference,
		SaleDate:     saleDate,
		Total:        total,
		AmountPaid:   led.Paid(),
		PaymentType:  input.PaymentType,
		CreatedBy:    actor.Name,
		CustomerName: input.CustomerName,
	}
	if led.Cleared() {
		now := s.now().UTC()
		sale.ClearedAt = &now
	}
	if input.PaymentType == PaymentPart {
		if led.Cleared() {
			s.compensate(ctx, lines, reference, actor.Name)
			return Sale{}, fmt.Errorf("%w: a fully settled sale must use payment type %q", shared.ErrValidation, PaymentFull)
		}
		if strings.TrimSpace(input.CustomerName) == "" || strings.TrimSpace(input.CustomerPhone) == "" {
			s.compensate(ctx, lines, reference, actor.Name)
			return Sale{}, ErrCustomerRequired
		}
		customer, err := s.customers.Ensure(ctx, input.CustomerName, input.CustomerPhone, actor.Name)
		if err != nil {
			s.compensate(ctx, lines, reference, actor.Name)
			return Sale{}, err
		}
		sale.CustomerID = customer.ID
		sale.CustomerName = customer.Name
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inserted, err := tx.InsertSale(ctx, sale)
		if err != nil {
			return err
		}
		sale = inserted
		if err := tx.InsertLines(ctx, sale.ID, lines); err != nil {
			return err
		}
		if sale.AmountPaid.IsPositive() {
			return tx.InsertPayment(ctx, Payment{SaleID: sale.ID, Amount: sale.AmountPaid, Date: saleDate, BalanceAfter: sale.Balance(), RecordedBy: actor.Name})
		}
		return nil
	})
	if err != nil {
		s.compensate(ctx, lines, reference, actor.Name)
		return Sale{}, fmt.Errorf("persist sale: %w", err)
	}
	sale.Lines = lines

	s.record(ctx, audit.Entry{
		Actor:       actor.Name,
		Action:      audit.ActionCreate,
		Module:      "sales",
		Entity:      "sale",
		EntityID:    sale.Reference,
		Description: fmt.Sprintf("sale %s for %s", sale.Reference, shared.FormatUGX(sale.Total)),
		Hints: audit.Hints{
			NonCatalog: nonCatalog,
			Backdated:  actor.Backdated(saleDate, today),
		},
	})
	s.bustCache(ctx)
	return sale, nil
}

// RecordCreditPayment applies a payment to an open credit sale. A zero date
// means today; anything else falls under the actor's backdating window. The
// sale row is locked for the duration so concurrent payments cannot
// overshoot the balance.
func (s *Service) RecordCreditPayment(ctx context.Context, actor shared.Actor, saleID int64, amount decimal.Decimal, date time.Time) (Sale, error) {
	today := shared.DateOf(s.now())
	if date.IsZero() {
		date = today
	}
	payDate := shared.DateOf(date)
	if err := actor.ValidateDate(payDate, today); err != nil {
		return Sale{}, err
	}
	var sale Sale
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetSaleForUpdate(ctx, saleID)
		if err != nil {
			return err
		}
		if current.Cleared() {
			return ErrAlreadyCleared
		}
		led, err := ledger.Resume(current.Total, current.AmountPaid).Apply(amount)
		if err != nil {
			return mapLedgerErr(err, current)
		}
		clearedAt := current.ClearedAt
		if led.Cleared() {
			now := s.now().UTC()
			clearedAt = &now
		}
		if err := tx.UpdateAmountPaid(ctx, saleID, led.Paid(), clearedAt); err != nil {
			return err
		}
		if err := tx.InsertPayment(ctx, Payment{SaleID: saleID, Amount: amount, Date: payDate, BalanceAfter: led.Balance(), RecordedBy: actor.Name}); err != nil {
			return err
		}
		current.AmountPaid = led.Paid()
		current.ClearedAt = clearedAt
		sale = current
		return nil
	})
	if err != nil {
		return Sale{}, err
	}

	s.record(ctx, audit.Entry{
		Actor:       actor.Name,
		Action:      audit.ActionPayment,
		Module:      "sales",
		Entity:      "sale",
		EntityID:    sale.Reference,
		Description: fmt.Sprintf("payment of %s on %s, balance %s", shared.FormatUGX(amount), sale.Reference, shared.FormatUGX(sale.Balance())),
		Hints:       audit.Hints{Backdated: actor.Backdated(payDate, today)},
	})
	s.bustCache(ctx)
	return sale, nil
}

// UpdateSale corrects the amount paid on an existing sale. Edits that lower
// the paid amount, and edits by anyone other than the sale's creator, leave
// a flagged audit trail.
func (s *Service) UpdateSale(ctx context.Context, actor shared.Actor, saleID int64, amountPaid decimal.Decimal) (Sale, error) {
	if !actor.CanEdit && !actor.IsManager() {
		return Sale{}, fmt.Errorf("%w: edit capability required", shared.ErrForbidden)
	}
	var sale Sale
	var reduced, nonOwner bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetSaleForUpdate(ctx, saleID)
		if err != nil {
			return err
		}
		if amountPaid.IsNegative() {
			return fmt.Errorf("%w: amount paid cannot be negative", shared.ErrValidation)
		}
		nonOwner = current.CreatedBy != actor.Name
		if amountPaid.GreaterThan(current.Total) {
			return mapLedgerErr(ledger.ErrOverpayment, current)
		}
		reduced = amountPaid.LessThan(current.AmountPaid)
		var clearedAt *time.Time
		if amountPaid.Equal(current.Total) {
			now := s.now().UTC()
			clearedAt = &now
		}
		if err := tx.UpdateAmountPaid(ctx, saleID, amountPaid, clearedAt); err != nil {
			return err
		}
		current.AmountPaid = amountPaid
		current.ClearedAt = clearedAt
		sale = current
		return nil
	})
	if err != nil {
		return Sale{}, err
	}

	s.record(ctx, audit.Entry{
		Actor:       actor.Name,
		Action:      audit.ActionUpdate,
		Module:      "sales",
		Entity:      "sale",
		EntityID:    sale.Reference,
		Description: fmt.Sprintf("amount paid on %s set to %s", sale.Reference, shared.FormatUGX(sale.AmountPaid)),
		Hints:       audit.Hints{AmountReduced: reduced, NonOwner: nonOwner},
	})
	s.bustCache(ctx)
	return sale, nil
}

// DeleteSale returns every catalog line's quantity to stock, then removes
// the sale. Restoring before deleting means a failure at either step leaves
// the sale row in place; a failed delete re-applies the decrements so stock
// cannot drift. Deletions are always flagged in the audit trail.
func (s *Service) DeleteSale(ctx context.Context, actor shared.Actor, saleID int64) error {
	if !actor.CanDelete && !actor.IsManager() {
		return fmt.Errorf("%w: delete capability required", shared.ErrForbidden)
	}
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return err
	}

	restorations := restorationsOf(sale.Lines)
	if len(restorations) > 0 {
		if err := s.stock.RestoreAll(ctx, restorations, sale.Reference, actor.Name); err != nil {
			return fmt.Errorf("restore stock for sale %s: %w", sale.Reference, err)
		}
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetSaleForUpdate(ctx, saleID); err != nil {
			return err
		}
		return tx.DeleteSale(ctx, saleID)
	})
	if err != nil {
		reason := fmt.Sprintf("delete of sale %s failed after restore", sale.Reference)
		for _, r := range restorations {
			// Best effort: the sale still exists, so its lines must stay
			// deducted from stock.
			_, _ = s.stock.Adjust(ctx, r.ItemID, -r.Quantity, reason, actor.Name)
		}
		return fmt.Errorf("delete sale %s: %w", sale.Reference, err)
	}

	s.record(ctx, audit.Entry{
		Actor:       actor.Name,
		Action:      audit.ActionDelete,
		Module:      "sales",
		Entity:      "sale",
		EntityID:    sale.Reference,
		Description: fmt.Sprintf("deleted sale %s for %s", sale.Reference, shared.FormatUGX(sale.Total)),
	})
	s.bustCache(ctx)
	return nil
}

// GetSale fetches one sale with its lines.
func (s *Service) GetSale(ctx context.Context, id int64) (Sale, error) {
	return s.repo.GetSale(ctx, id)
}

// ListSales lists sales matching the filter.
func (s *Service) ListSales(ctx context.Context, filter ListFilter) ([]Sale, error) {
	return s.repo.ListSales(ctx, filter)
}

// ListPayments lists the payment history of a sale, newest first.
func (s *Service) ListPayments(ctx context.Context, saleID int64) ([]Payment, error) {
	if _, err := s.repo.GetSale(ctx, saleID); err != nil {
		return nil, err
	}
	return s.repo.ListPayments(ctx, saleID)
}

func (s *Service) record(ctx context.Context, entry audit.Entry) {
	if s.audit != nil {
		s.audit.Record(ctx, entry)
	}
}

func (s *Service) bustCache(ctx context.Context) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx)
	}
}

// compensate returns reserved catalog quantities after a failure past the
// reservation step.
func (s *Service) compensate(ctx context.Context, lines []Line, reference, actor string) {
	restorations := restorationsOf(lines)
	if len(restorations) == 0 {
		return
	}
	_ = s.stock.RestoreAll(ctx, restorations, reference, actor)
}

func restorationsOf(lines []Line) []stock.Restoration {
	var restorations []stock.Restoration
	for _, line := range lines {
		if line.NonCatalog {
			continue
		}
		restorations = append(restorations, stock.Restoration{ItemID: line.ItemID, Quantity: line.Quantity})
	}
	return restorations
}

// buildLines validates raw line inputs and splits off the catalog
// reservations. Non-catalog lines skip stock entirely but still need a
// name, a positive quantity and a non-negative price.
func buildLines(inputs []LineInput) ([]Line, []stock.Reservation, error) {
	lines := make([]Line, 0, len(inputs))
	var reservations []stock.Reservation
	for i, in := range inputs {
		if in.Quantity <= 0 {
			return nil, nil, fmt.Errorf("%w: line %d: quantity must be positive", shared.ErrValidation, i+1)
		}
		if in.UnitPrice.IsNegative() {
			return nil, nil, fmt.Errorf("%w: line %d: unit price cannot be negative", shared.ErrValidation, i+1)
		}
		line := Line{
			ItemID:    in.ItemID,
			Name:      in.Name,
			Quantity:  in.Quantity,
			UnitPrice: in.UnitPrice,
			Subtotal:  in.UnitPrice.Mul(decimal.NewFromInt(in.Quantity)),
		}
		if in.ItemID == 0 {
			if in.Name == "" {
				return nil, nil, fmt.Errorf("%w: line %d: non-catalog lines need a name", shared.ErrValidation, i+1)
			}
			line.NonCatalog = true
		} else {
			reservations = append(reservations, stock.Reservation{ItemID: in.ItemID, Quantity: in.Quantity, UnitPrice: in.UnitPrice})
		}
		lines = append(lines, line)
	}
	return lines, reservations, nil
}

// mergeReserved copies the denormalized names and subtotals from committed
// reservations back onto the catalog lines, in order.
func mergeReserved(lines []Line, reserved []stock.ReservedLine) {
	j := 0
	for i := range lines {
		if lines[i].NonCatalog {
			continue
		}
		lines[i].Name = reserved[j].Name
		lines[i].Subtotal = reserved[j].Subtotal
		j++
	}
}

func mapLedgerErr(err error, sale Sale) error {
	if errors.Is(err, ledger.ErrOverpayment) {
		return fmt.Errorf("%w: sale %s has balance %s", ErrOverpayment, sale.Reference, shared.FormatUGX(sale.Balance()))
	}
	if errors.Is(err, ledger.ErrNonPositiveAmount) {
		return fmt.Errorf("%w: payment amount must be positive", shared.ErrValidation)
	}
	return err
}

// parseSaleID is shared by handlers.
func parseSaleID(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}
