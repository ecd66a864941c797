package groups

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dunia-ops/dunia-ops/internal/audit"
	"github.com/dunia-ops/dunia-ops/internal/finance/loans"
	"github.com/dunia-ops/dunia-ops/internal/ledger"
	"github.com/dunia-ops/dunia-ops/internal/shared"
)

// RepositoryPort is the persistence surface the service depends on.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetGroup(ctx context.Context, id int64) (GroupLoan, error)
	ListGroups(ctx context.Context, filter ListFilter) ([]GroupLoan, error)
	ListPayments(ctx context.Context, groupID int64) ([]Payment, error)
	InsertGroup(ctx context.Context, group GroupLoan) (GroupLoan, error)
}

// TxRepository exposes the operations available inside a group transaction.
type TxRepository interface {
	GetGroupForUpdate(ctx context.Context, id int64) (GroupLoan, error)
	CountPayments(ctx context.Context, groupID int64) (int64, error)
	UpdateGroup(ctx context.Context, group GroupLoan) error
	UpdateAmountPaid(ctx context.Context, id int64, paid decimal.Decimal) error
	InsertPayment(ctx context.Context, payment Payment) error
	DeleteGroup(ctx context.Context, id int64) error
}

// AuditPort records audit entries fire-and-forget.
type AuditPort interface {
	Record(ctx context.Context, entry audit.Entry)
}

// InvalidatorPort drops derived caches after a mutation.
type InvalidatorPort interface {
	Invalidate(ctx context.Context)
}

// Service implements the group loan lifecycle.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	invalidator InvalidatorPort
	dueSoonDays int
	now         func() time.Time
}

// NewService constructs Service.
func NewService(repo RepositoryPort, auditPort AuditPort, dueSoonDays int) *Service {
	return &Service{repo: repo, audit: auditPort, dueSoonDays: dueSoonDays, now: time.Now}
}

// UseCacheInvalidation makes every committed mutation drop the dashboard
// overview cache so totals refresh before the TTL runs out.
func (s *Service) UseCacheInvalidation(inv InvalidatorPort) {
	s.invalidator = inv
}

// Create validates the terms and persists a group loan with nothing paid.
// The due date is derived from the cadence: issue + period_days × periods.
func (s *Service) Create(ctx context.Context, actor shared.Actor, input CreateGroupInput) (GroupLoan, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return GroupLoan{}, fmt.Errorf("%w: group name is required", shared.ErrValidation)
	}
	if input.MemberCount <= 0 {
		return GroupLoan{}, fmt.Errorf("%w: member count must be positive", shared.ErrValidation)
	}
	if !input.Total.IsPositive() {
		return GroupLoan{}, fmt.Errorf("%w: total amount must be positive", shared.ErrValidation)
	}
	if !input.AmountPerPeriod.IsPositive() {
		return GroupLoan{}, fmt.Errorf("%w: amount per period must be positive", shared.ErrValidation)
	}
	if input.TotalPeriods <= 0 {
		return GroupLoan{}, fmt.Errorf("%w: total periods must be positive", shared.ErrValidation)
	}
	days, err := input.PeriodType.Days()
	if err != nil {
		return GroupLoan{}, fmt.Errorf("%w: %q", shared.ErrValidation, input.PeriodType)
	}
	issue := shared.DateOf(input.IssueDate)
	if issue.IsZero() {
		issue = shared.DateOf(s.now())
	}

	group := GroupLoan{
		Name:            name,
		MemberCount:     input.MemberCount,
		Total:           input.Total,
		AmountPerPeriod: input.AmountPerPeriod,
		TotalPeriods:    input.TotalPeriods,
		PeriodType:      input.PeriodType,
		AmountPaid:      decimal.Zero,
		IssueDate:       issue,
		DueDate:         issue.AddDate(0, 0, days*input.TotalPeriods),
		CreatedBy:       actor.Name,
	}
	group, err = s.repo.InsertGroup(ctx, group)
	if err != nil {
		return GroupLoan{}, fmt.Errorf("insert group loan: %w", err)
	}
	s.derive(&group)

	s.record(ctx, audit.Entry{
		Actor:       actor.Name,
		Action:      audit.ActionCreate,
		Module:      "groups",
		Entity:      "group_loan",
		EntityID:    strconv.FormatInt(group.ID, 10),
		Description: fmt.Sprintf("group loan of %s to %s over %d %s periods", shared.FormatUGX(group.Total), group.Name, group.TotalPeriods, group.PeriodType),
	})
	s.bustCache(ctx)
	return group, nil
}

// RecordPayment applies a contribution. Any amount up to the balance is
// valid; it does not have to match the per-period amount. A zero date means
// today; anything else falls under the actor's backdating window.
func (s *Service) RecordPayment(ctx context.Context, actor shared.Actor, groupID int64, amount decimal.Decimal, date time.Time) (GroupLoan, error) {
	today := shared.DateOf(s.now())
	if date.IsZero() {
		date = today
	}
	payDate := shared.DateOf(date)
	if err := actor.ValidateDate(payDate, today); err != nil {
		return GroupLoan{}, err
	}
	var group GroupLoan
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetGroupForUpdate(ctx, groupID)
		if err != nil {
			return err
		}
		led, err := ledger.Resume(current.Total, current.AmountPaid).Apply(amount)
		if err != nil {
			return mapLedgerErr(err, current)
		}
		if err := tx.UpdateAmountPaid(ctx, groupID, led.Paid()); err != nil {
			return err
		}
		if err := tx.InsertPayment(ctx, Payment{GroupID: groupID, Amount: amount, Date: payDate, BalanceAfter: led.Balance(), RecordedBy: actor.Name}); err != nil {
			return err
		}
		current.AmountPaid = led.Paid()
		group = current
		return nil
	})
	if err != nil {
		return GroupLoan{}, err
	}
	s.derive(&group)

	s.record(ctx, audit.Entry{
		Actor:       actor.Name,
		Action:      audit.ActionPayment,
		Module:      "groups",
		Entity:      "group_loan",
		EntityID:    strconv.FormatInt(groupID, 10),
		Description: fmt.Sprintf("group payment of %s from %s, %d periods left", shared.FormatUGX(amount), group.Name, group.PeriodsLeft),
		Hints:       audit.Hints{Backdated: actor.Backdated(payDate, today)},
	})
	s.bustCache(ctx)
	return group, nil
}

// Update corrects the group terms. Refused once any contribution exists.
func (s *Service) Update(ctx context.Context, actor shared.Actor, groupID int64, input CreateGroupInput) (GroupLoan, error) {
	if !actor.CanEdit && !actor.IsManager() {
		return GroupLoan{}, fmt.Errorf("%w: edit capability required", shared.ErrForbidden)
	}
	if !input.Total.IsPositive() || !input.AmountPerPeriod.IsPositive() || input.TotalPeriods <= 0 {
		return GroupLoan{}, fmt.Errorf("%w: total, amount per period and periods must be positive", shared.ErrValidation)
	}
	days, err := input.PeriodType.Days()
	if err != nil {
		return GroupLoan{}, fmt.Errorf("%w: %q", shared.ErrValidation, input.PeriodType)
	}
	var group GroupLoan
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetGroupForUpdate(ctx, groupID)
		if err != nil {
			return err
		}
		paymentCount, err := tx.CountPayments(ctx, groupID)
		if err != nil {
			return err
		}
		if paymentCount > 0 {
			return ErrGroupLocked
		}
		if name := strings.TrimSpace(input.Name); name != "" {
			current.Name = name
		}
		if input.MemberCount > 0 {
			current.MemberCount = input.MemberCount
		}
		issue := shared.DateOf(input.IssueDate)
		if issue.IsZero() {
			issue = current.IssueDate
		}
		current.Total = input.Total
		current.AmountPerPeriod = input.AmountPerPeriod
		current.TotalPeriods = input.TotalPeriods
		current.PeriodType = input.PeriodType
		current.IssueDate = issue
		current.DueDate = issue.AddDate(0, 0, days*input.TotalPeriods)
		if err := tx.UpdateGroup(ctx, current); err != nil {
			return err
		}
		group = current
		return nil
	})
	if err != nil {
		return GroupLoan{}, err
	}
	s.derive(&group)

	s.record(ctx, audit.Entry{
		Actor:       actor.Name,
		Action:      audit.ActionUpdate,
		Module:      "groups",
		Entity:      "group_loan",
		EntityID:    strconv.FormatInt(groupID, 10),
		Description: fmt.Sprintf("group loan terms for %s corrected, total now %s", group.Name, shared.FormatUGX(group.Total)),
	})
	s.bustCache(ctx)
	return group, nil
}

// Delete removes a group loan. Always flagged.
func (s *Service) Delete(ctx context.Context, actor shared.Actor, groupID int64) error {
	if !actor.CanDelete && !actor.IsManager() {
		return fmt.Errorf("%w: delete capability required", shared.ErrForbidden)
	}
	var group GroupLoan
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetGroupForUpdate(ctx, groupID)
		if err != nil {
			return err
		}
		group = current
		return tx.DeleteGroup(ctx, groupID)
	})
	if err != nil {
		return err
	}

	entry := audit.Entry{
		Actor:       actor.Name,
		Action:      audit.ActionDelete,
		Module:      "groups",
		Entity:      "group_loan",
		EntityID:    strconv.FormatInt(groupID, 10),
		Description: fmt.Sprintf("deleted group loan of %s to %s", shared.FormatUGX(group.Total), group.Name),
	}
	if group.Balance().IsPositive() {
		entry.FlagReason = fmt.Sprintf("outstanding balance %s written off", shared.FormatUGX(group.Balance()))
	}
	s.record(ctx, entry)
	s.bustCache(ctx)
	return nil
}

// Get fetches one group loan with derived status and periods-left.
func (s *Service) Get(ctx context.Context, id int64) (GroupLoan, error) {
	group, err := s.repo.GetGroup(ctx, id)
	if err != nil {
		return GroupLoan{}, err
	}
	s.derive(&group)
	return group, nil
}

// List lists group loans with derived fields.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]GroupLoan, error) {
	groups, err := s.repo.ListGroups(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := groups[:0]
	for _, group := range groups {
		s.derive(&group)
		if filter.Status != "" && group.Status != filter.Status {
			continue
		}
		out = append(out, group)
	}
	return out, nil
}

// ListPayments lists a group's contribution history, newest first.
func (s *Service) ListPayments(ctx context.Context, groupID int64) ([]Payment, error) {
	if _, err := s.repo.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	return s.repo.ListPayments(ctx, groupID)
}

// derive fills the read-time fields. A group with exhausted periods but an
// open balance is overdue even when the calendar due date has not passed.
func (s *Service) derive(group *GroupLoan) {
	group.PeriodsLeft = group.RemainingPeriods()
	group.Status = loans.StatusOf(group.Balance(), group.DueDate, s.now(), s.dueSoonDays)
	if group.Status != loans.StatusPaid && group.PeriodsLeft == 0 && group.Balance().IsPositive() {
		group.Status = loans.StatusOverdue
	}
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

func mapLedgerErr(err error, group GroupLoan) error {
	if errors.Is(err, ledger.ErrOverpayment) {
		return fmt.Errorf("%w: group %d has balance %s", ErrOverpayment, group.ID, shared.FormatUGX(group.Balance()))
	}
	if errors.Is(err, ledger.ErrNonPositiveAmount) {
		return fmt.Errorf("%w: payment amount must be positive", shared.ErrValidation)
	}
	return err
}
