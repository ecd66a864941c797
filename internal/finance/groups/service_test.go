package groups

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/dunia-ops/dunia-ops/internal/audit"
	"github.com/dunia-ops/dunia-ops/internal/finance/loans"
	"github.com/dunia-ops/dunia-ops/internal/shared"
)

func d(v string) decimal.Decimal {
	dec, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return dec
}

type memoryRepo struct {
	groups   map[int64]GroupLoan
	payments []Payment
	nextID   int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{groups: make(map[int64]GroupLoan)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := make(map[int64]GroupLoan, len(r.groups))
	for k, v := range r.groups {
		snapshot[k] = v
	}
	pays := len(r.payments)
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.groups = snapshot
		r.payments = r.payments[:pays]
		return err
	}
	return nil
}

func (r *memoryRepo) GetGroup(ctx context.Context, id int64) (GroupLoan, error) {
	group, ok := r.groups[id]
	if !ok {
		return GroupLoan{}, ErrGroupNotFound
	}
	return group, nil
}

func (r *memoryRepo) ListGroups(ctx context.Context, filter ListFilter) ([]GroupLoan, error) {
	var out []GroupLoan
	for _, group := range r.groups {
		if filter.OpenOnly && !group.Balance().IsPositive() {
			continue
		}
		out = append(out, group)
	}
	return out, nil
}

func (r *memoryRepo) ListPayments(ctx context.Context, groupID int64) ([]Payment, error) {
	var out []Payment
	for _, p := range r.payments {
		if p.GroupID == groupID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryRepo) InsertGroup(ctx context.Context, group GroupLoan) (GroupLoan, error) {
	r.nextID++
	group.ID = r.nextID
	group.CreatedAt = time.Now()
	r.groups[group.ID] = group
	return group, nil
}

func (t *memoryTx) GetGroupForUpdate(ctx context.Context, id int64) (GroupLoan, error) {
	return t.repo.GetGroup(ctx, id)
}

func (t *memoryTx) CountPayments(ctx context.Context, groupID int64) (int64, error) {
	var count int64
	for _, p := range t.repo.payments {
		if p.GroupID == groupID {
			count++
		}
	}
	return count, nil
}

func (t *memoryTx) UpdateGroup(ctx context.Context, group GroupLoan) error {
	if _, ok := t.repo.groups[group.ID]; !ok {
		return ErrGroupNotFound
	}
	t.repo.groups[group.ID] = group
	return nil
}

func (t *memoryTx) UpdateAmountPaid(ctx context.Context, id int64, paid decimal.Decimal) error {
	group, ok := t.repo.groups[id]
	if !ok {
		return ErrGroupNotFound
	}
	group.AmountPaid = paid
	t.repo.groups[id] = group
	return nil
}

func (t *memoryTx) InsertPayment(ctx context.Context, payment Payment) error {
	payment.ID = int64(len(t.repo.payments) + 1)
	t.repo.payments = append(t.repo.payments, payment)
	return nil
}

func (t *memoryTx) DeleteGroup(ctx context.Context, id int64) error {
	if _, ok := t.repo.groups[id]; !ok {
		return ErrGroupNotFound
	}
	delete(t.repo.groups, id)
	return nil
}

type capturingAudit struct {
	entries []audit.Entry
}

func (c *capturingAudit) Record(ctx context.Context, entry audit.Entry) {
	entry.Flagged, entry.FlagReason = audit.Flag(entry)
	c.entries = append(c.entries, entry)
}

type fixture struct {
	repo    *memoryRepo
	audit   *capturingAudit
	service *Service
	today   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:  newMemoryRepo(),
		audit: &capturingAudit{},
		today: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	f.service = NewService(f.repo, f.audit, 7)
	f.service.now = func() time.Time { return f.today }
	return f
}

func manager() shared.Actor {
	return shared.Actor{Name: "mary", Role: shared.RoleManager, Unit: shared.UnitAll, CanEdit: true, CanDelete: true}
}

func (f *fixture) createGroup(t *testing.T) GroupLoan {
	t.Helper()
	group, err := f.service.Create(context.Background(), manager(), CreateGroupInput{
		Name:            "Twekembe",
		MemberCount:     12,
		Total:           d("1200000"),
		AmountPerPeriod: d("100000"),
		TotalPeriods:    12,
		PeriodType:      PeriodWeekly,
		IssueDate:       f.today,
	})
	require.NoError(t, err)
	return group
}

func TestCreateGroupDerivesDueDateAndPeriods(t *testing.T) {
	f := newFixture(t)

	group := f.createGroup(t)
	require.Equal(t, f.today.AddDate(0, 0, 84), group.DueDate)
	require.Equal(t, 12, group.PeriodsLeft)
	require.Equal(t, loans.StatusActive, group.Status)
}

func TestCreateGroupRejectsUnknownPeriodType(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Create(context.Background(), manager(), CreateGroupInput{
		Name: "Twekembe", MemberCount: 12, Total: d("1200000"),
		AmountPerPeriod: d("100000"), TotalPeriods: 12, PeriodType: "quarterly",
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestPeriodsLeftCeilingAndClamp(t *testing.T) {
	f := newFixture(t)
	group := f.createGroup(t)

	// A partial period's worth of payment still leaves the whole period owed.
	group, err := f.service.RecordPayment(context.Background(), manager(), group.ID, d("150000"), time.Time{})
	require.NoError(t, err)
	require.Equal(t, 11, group.PeriodsLeft)

	group, err = f.service.RecordPayment(context.Background(), manager(), group.ID, d("50000"), time.Time{})
	require.NoError(t, err)
	require.Equal(t, 10, group.PeriodsLeft)
}

func TestRecordPaymentBackdatedWindow(t *testing.T) {
	f := newFixture(t)
	group := f.createGroup(t)
	clerk := shared.Actor{Name: "joan", Role: shared.RoleEmployee, Unit: shared.UnitAll}

	lastWeek := f.today.AddDate(0, 0, -7)
	_, err := f.service.RecordPayment(context.Background(), clerk, group.ID, d("100000"), lastWeek)
	require.ErrorIs(t, err, shared.ErrInvalidDateWindow)

	yesterday := f.today.AddDate(0, 0, -1)
	_, err = f.service.RecordPayment(context.Background(), clerk, group.ID, d("100000"), yesterday)
	require.NoError(t, err)

	last := f.audit.entries[len(f.audit.entries)-1]
	require.Equal(t, audit.ActionPayment, last.Action)
	require.True(t, last.Flagged)
	require.Contains(t, last.FlagReason, "backdated")

	payments, err := f.service.ListPayments(context.Background(), group.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	require.True(t, payments[0].Date.Equal(shared.DateOf(yesterday)))
}

func TestRecordPaymentAcceptsAnyAmountUpToBalance(t *testing.T) {
	f := newFixture(t)
	group := f.createGroup(t)

	group, err := f.service.RecordPayment(context.Background(), manager(), group.ID, d("1"), time.Time{})
	require.NoError(t, err)
	require.True(t, group.Balance().Equal(d("1199999")))

	group, err = f.service.RecordPayment(context.Background(), manager(), group.ID, d("1199999"), time.Time{})
	require.NoError(t, err)
	require.Equal(t, loans.StatusPaid, group.Status)
	require.Equal(t, 0, group.PeriodsLeft)

	_, err = f.service.RecordPayment(context.Background(), manager(), group.ID, d("1"), time.Time{})
	require.ErrorIs(t, err, ErrOverpayment)
}

func TestPastDueDateIsOverdue(t *testing.T) {
	f := newFixture(t)

	group, err := f.service.Create(context.Background(), manager(), CreateGroupInput{
		Name:            "Agali Awamu",
		MemberCount:     5,
		Total:           d("500000"),
		AmountPerPeriod: d("500000"),
		TotalPeriods:    1,
		PeriodType:      PeriodMonthly,
		IssueDate:       f.today.AddDate(0, 0, -90),
	})
	require.NoError(t, err)
	require.Equal(t, loans.StatusOverdue, group.Status)
	require.Equal(t, 1, group.PeriodsLeft)
}

func TestUpdateLocksAfterFirstPayment(t *testing.T) {
	f := newFixture(t)
	group := f.createGroup(t)

	_, err := f.service.Update(context.Background(), manager(), group.ID, CreateGroupInput{
		Name: "Twekembe", MemberCount: 12, Total: d("1300000"),
		AmountPerPeriod: d("100000"), TotalPeriods: 13, PeriodType: PeriodWeekly,
	})
	require.NoError(t, err)

	_, err = f.service.RecordPayment(context.Background(), manager(), group.ID, d("100000"), time.Time{})
	require.NoError(t, err)

	_, err = f.service.Update(context.Background(), manager(), group.ID, CreateGroupInput{
		Name: "Twekembe", MemberCount: 12, Total: d("1400000"),
		AmountPerPeriod: d("100000"), TotalPeriods: 14, PeriodType: PeriodWeekly,
	})
	require.ErrorIs(t, err, ErrGroupLocked)
}

func TestDeleteGroupWithBalanceIsFlagged(t *testing.T) {
	f := newFixture(t)
	group := f.createGroup(t)

	require.NoError(t, f.service.Delete(context.Background(), manager(), group.ID))

	last := f.audit.entries[len(f.audit.entries)-1]
	require.Equal(t, audit.ActionDelete, last.Action)
	require.True(t, last.Flagged)
	require.Contains(t, last.FlagReason, "outstanding balance")
}
