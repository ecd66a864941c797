package loans

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dunia-ops/dunia-ops/internal/audit"
	"github.com/dunia-ops/dunia-ops/internal/finance/clients"
	"github.com/dunia-ops/dunia-ops/internal/ledger"
	"github.com/dunia-ops/dunia-ops/internal/shared"
)

// RepositoryPort is the persistence surface the service depends on.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetLoan(ctx context.Context, id int64) (Loan, error)
	ListLoans(ctx context.Context, filter ListFilter) ([]Loan, error)
	ListPayments(ctx context.Context, loanID int64) ([]Payment, error)
	InsertLoan(ctx context.Context, loan Loan) (Loan, error)
}

// TxRepository exposes the operations available inside a loan transaction.
type TxRepository interface {
	GetLoanForUpdate(ctx context.Context, id int64) (Loan, error)
	CountPayments(ctx context.Context, loanID int64) (int64, error)
	UpdateLoan(ctx context.Context, loan Loan) error
	UpdateAmountPaid(ctx context.Context, id int64, paid decimal.Decimal) error
	InsertPayment(ctx context.Context, payment Payment) error
	DeleteLoan(ctx context.Context, id int64) error
}

// ClientPort resolves borrower records.
type ClientPort interface {
	Get(ctx context.Context, id int64) (clients.Client, error)
}

// AuditPort records audit entries fire-and-forget.
type AuditPort interface {
	Record(ctx context.Context, entry audit.Entry)
}

// InvalidatorPort drops derived caches after a mutation.
type InvalidatorPort interface {
	Invalidate(ctx context.Context)
}

// Service implements the individual loan lifecycle.
type Service struct {
	repo        RepositoryPort
	clients     ClientPort
	audit       AuditPort
	invalidator InvalidatorPort
	dueSoonDays int
	now         func() time.Time
}

// NewService constructs Service. dueSoonDays is the due-soon warning window;
// zero disables it.
func NewService(repo RepositoryPort, clientPort ClientPort, auditPort AuditPort, dueSoonDays int) *Service {
	return &Service{repo: repo, clients: clientPort, audit: auditPort, dueSoonDays: dueSoonDays, now: time.Now}
}

// UseCacheInvalidation makes every committed mutation drop the dashboard
// overview cache so totals refresh before the TTL runs out.
func (s *Service) UseCacheInvalidation(inv InvalidatorPort) {
	s.invalidator = inv
}

// Create validates the terms, computes interest, total and due date, and
// persists the loan with nothing paid yet.
func (s *Service) Create(ctx context.Context, actor shared.Actor, input CreateLoanInput) (Loan, error) {
	if !input.Principal.IsPositive() {
		return Loan{}, fmt.Errorf("%w: principal must be positive", shared.ErrValidation)
	}
	if input.RatePercent.IsNegative() {
		return Loan{}, fmt.Errorf("%w: rate cannot be negative", shared.ErrValidation)
	}
	if input.DurationWeeks <= 0 {
		return Loan{}, fmt.Errorf("%w: duration must be at least one week", shared.ErrValidation)
	}
	client, err := s.clients.Get(ctx, input.ClientID)
	if err != nil {
		return Loan{}, err
	}
	issue := shared.DateOf(input.IssueDate)
	if issue.IsZero() {
		issue = shared.DateOf(s.now())
	}

	interest, total := deriveAmounts(input.Principal, input.RatePercent)
	loan := Loan{
		ClientID:      client.ID,
		ClientName:    client.Name,
		Principal:     input.Principal,
		RatePercent:   input.RatePercent,
		Interest:      interest,
		Total:         total,
		AmountPaid:    decimal.Zero,
		DurationWeeks: input.DurationWeeks,
		IssueDate:     issue,
		DueDate:       issue.AddDate(0, 0, input.DurationWeeks*7),
		CreatedBy:     actor.Name,
	}
	loan, err = s.repo.InsertLoan(ctx, loan)
	if err != nil {
		return Loan{}, fmt.Errorf("insert loan: %w", err)
	}
	loan.Status = s.statusOf(loan)

	s.record(ctx, audit.Entry{
		Actor:       actor.Name,
		Action:      audit.ActionCreate,
		Module:      "loans",
		Entity:      "loan",
		EntityID:    strconv.FormatInt(loan.ID, 10),
		Description: fmt.Sprintf("loan of %s to %s, due %s", shared.FormatUGX(loan.Total), loan.ClientName, loan.DueDate.Format("2006-01-02")),
	})
	s.bustCache(ctx)
	return loan, nil
}

// RecordPayment applies a repayment under a row lock so concurrent payments
// serialize and overpayment cannot slip through. A zero date means today;
// anything else falls under the actor's backdating window.
func (s *Service) RecordPayment(ctx context.Context, actor shared.Actor, loanID int64, amount decimal.Decimal, date time.Time) (Loan, error) {
	today := shared.DateOf(s.now())
	if date.IsZero() {
		date = today
	}
	payDate := shared.DateOf(date)
	if err := actor.ValidateDate(payDate, today); err != nil {
		return Loan{}, err
	}
	var loan Loan
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetLoanForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		led, err := ledger.Resume(current.Total, current.AmountPaid).Apply(amount)
		if err != nil {
			return mapLedgerErr(err, current)
		}
		if err := tx.UpdateAmountPaid(ctx, loanID, led.Paid()); err != nil {
			return err
		}
		if err := tx.InsertPayment(ctx, Payment{LoanID: loanID, Amount: amount, Date: payDate, BalanceAfter: led.Balance(), RecordedBy: actor.Name}); err != nil {
			return err
		}
		current.AmountPaid = led.Paid()
		loan = current
		return nil
	})
	if err != nil {
		return Loan{}, err
	}
	loan.Status = s.statusOf(loan)

	s.record(ctx, audit.Entry{
		Actor:       actor.Name,
		Action:      audit.ActionPayment,
		Module:      "loans",
		Entity:      "loan",
		EntityID:    strconv.FormatInt(loanID, 10),
		Description: fmt.Sprintf("loan payment of %s from %s, balance %s", shared.FormatUGX(amount), loan.ClientName, shared.FormatUGX(loan.Balance())),
		Hints:       audit.Hints{Backdated: actor.Backdated(payDate, today)},
	})
	s.bustCache(ctx)
	return loan, nil
}

// Update corrects the loan terms. Refused once any payment exists so the
// ledger a payment was applied against can never shift under it.
func (s *Service) Update(ctx context.Context, actor shared.Actor, loanID int64, input UpdateLoanInput) (Loan, error) {
	if !actor.CanEdit && !actor.IsManager() {
		return Loan{}, fmt.Errorf("%w: edit capability required", shared.ErrForbidden)
	}
	if !input.Principal.IsPositive() {
		return Loan{}, fmt.Errorf("%w: principal must be positive", shared.ErrValidation)
	}
	if input.RatePercent.IsNegative() {
		return Loan{}, fmt.Errorf("%w: rate cannot be negative", shared.ErrValidation)
	}
	if input.DurationWeeks <= 0 {
		return Loan{}, fmt.Errorf("%w: duration must be at least one week", shared.ErrValidation)
	}
	var loan Loan
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetLoanForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		paymentCount, err := tx.CountPayments(ctx, loanID)
		if err != nil {
			return err
		}
		if paymentCount > 0 {
			return ErrLoanLocked
		}
		issue := shared.DateOf(input.IssueDate)
		if issue.IsZero() {
			issue = current.IssueDate
		}
		current.Principal = input.Principal
		current.RatePercent = input.RatePercent
		current.Interest, current.Total = deriveAmounts(input.Principal, input.RatePercent)
		current.DurationWeeks = input.DurationWeeks
		current.IssueDate = issue
		current.DueDate = issue.AddDate(0, 0, input.DurationWeeks*7)
		if err := tx.UpdateLoan(ctx, current); err != nil {
			return err
		}
		loan = current
		return nil
	})
	if err != nil {
		return Loan{}, err
	}
	loan.Status = s.statusOf(loan)

	s.record(ctx, audit.Entry{
		Actor:       actor.Name,
		Action:      audit.ActionUpdate,
		Module:      "loans",
		Entity:      "loan",
		EntityID:    strconv.FormatInt(loanID, 10),
		Description: fmt.Sprintf("loan terms for %s corrected, total now %s", loan.ClientName, shared.FormatUGX(loan.Total)),
	})
	s.bustCache(ctx)
	return loan, nil
}

// Delete removes a loan. Always flagged; deleting a loan with an outstanding
// balance is the audit trail's most suspicious event.
func (s *Service) Delete(ctx context.Context, actor shared.Actor, loanID int64) error {
	if !actor.CanDelete && !actor.IsManager() {
		return fmt.Errorf("%w: delete capability required", shared.ErrForbidden)
	}
	var loan Loan
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetLoanForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		loan = current
		return tx.DeleteLoan(ctx, loanID)
	})
	if err != nil {
		return err
	}

	entry := audit.Entry{
		Actor:       actor.Name,
		Action:      audit.ActionDelete,
		Module:      "loans",
		Entity:      "loan",
		EntityID:    strconv.FormatInt(loanID, 10),
		Description: fmt.Sprintf("deleted loan of %s to %s", shared.FormatUGX(loan.Total), loan.ClientName),
	}
	if loan.Balance().IsPositive() {
		entry.FlagReason = fmt.Sprintf("outstanding balance %s written off", shared.FormatUGX(loan.Balance()))
	}
	s.record(ctx, entry)
	s.bustCache(ctx)
	return nil
}

// Get fetches one loan with its derived status.
func (s *Service) Get(ctx context.Context, id int64) (Loan, error) {
	loan, err := s.repo.GetLoan(ctx, id)
	if err != nil {
		return Loan{}, err
	}
	loan.Status = s.statusOf(loan)
	return loan, nil
}

// List lists loans matching the filter with derived statuses.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Loan, error) {
	loans, err := s.repo.ListLoans(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := loans[:0]
	for _, loan := range loans {
		loan.Status = s.statusOf(loan)
		if filter.Status != "" && loan.Status != filter.Status {
			continue
		}
		out = append(out, loan)
	}
	return out, nil
}

// ListPayments lists a loan's repayment history, newest first.
func (s *Service) ListPayments(ctx context.Context, loanID int64) ([]Payment, error) {
	if _, err := s.repo.GetLoan(ctx, loanID); err != nil {
		return nil, err
	}
	return s.repo.ListPayments(ctx, loanID)
}

func (s *Service) statusOf(loan Loan) Status {
	return StatusOf(loan.Balance(), loan.DueDate, s.now(), s.dueSoonDays)
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

func deriveAmounts(principal, ratePercent decimal.Decimal) (interest, total decimal.Decimal) {
	interest = principal.Mul(ratePercent).Div(decimal.NewFromInt(100)).Round(2)
	return interest, principal.Add(interest)
}

func mapLedgerErr(err error, loan Loan) error {
	if errors.Is(err, ledger.ErrOverpayment) {
		return fmt.Errorf("%w: loan %d has balance %s", ErrOverpayment, loan.ID, shared.FormatUGX(loan.Balance()))
	}
	if errors.Is(err, ledger.ErrNonPositiveAmount) {
		return fmt.Errorf("%w: payment amount must be positive", shared.ErrValidation)
	}
	return err
}
