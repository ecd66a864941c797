package groups

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dunia-ops/dunia-ops/internal/finance/loans"
	"github.com/dunia-ops/dunia-ops/internal/ledger"
)

var (
	// ErrGroupNotFound indicates no group loan matches the lookup.
	ErrGroupNotFound = errors.New("groups: group loan not found")
	// ErrGroupLocked indicates an edit after the first contribution.
	ErrGroupLocked = errors.New("groups: group loan terms are locked once a payment exists")
	// ErrOverpayment indicates a contribution beyond the outstanding balance.
	ErrOverpayment = errors.New("groups: payment exceeds outstanding balance")
	// ErrUnknownPeriodType indicates an unrecognised installment cadence.
	ErrUnknownPeriodType = errors.New("groups: unknown period type")
)

// PeriodType is the installment cadence of a group loan.
type PeriodType string

const (
	PeriodWeekly    PeriodType = "weekly"
	PeriodBiWeekly  PeriodType = "bi-weekly"
	PeriodMonthly   PeriodType = "monthly"
	PeriodBiMonthly PeriodType = "bi-monthly"
)

// periodDays maps each cadence to its calendar length.
var periodDays = map[PeriodType]int{
	PeriodWeekly:    7,
	PeriodBiWeekly:  14,
	PeriodMonthly:   30,
	PeriodBiMonthly: 60,
}

// Days returns the calendar length of one period.
func (p PeriodType) Days() (int, error) {
	days, ok := periodDays[p]
	if !ok {
		return 0, ErrUnknownPeriodType
	}
	return days, nil
}

// GroupLoan is a period-based group loan. Periods-left and status are both
// derived, never stored.
type GroupLoan struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	MemberCount     int             `json:"member_count"`
	Total           decimal.Decimal `json:"total"`
	AmountPerPeriod decimal.Decimal `json:"amount_per_period"`
	TotalPeriods    int             `json:"total_periods"`
	PeriodType      PeriodType      `json:"period_type"`
	AmountPaid      decimal.Decimal `json:"amount_paid"`
	IssueDate       time.Time       `json:"issue_date"`
	DueDate         time.Time       `json:"due_date"`
	CreatedBy       string          `json:"created_by"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`

	// Derived fields filled by the service on read.
	Status      loans.Status `json:"status"`
	PeriodsLeft int          `json:"periods_left"`
}

// Balance is the outstanding amount on the group loan.
func (g GroupLoan) Balance() decimal.Decimal {
	return g.Total.Sub(g.AmountPaid)
}

// RemainingPeriods derives the installment count still owed.
func (g GroupLoan) RemainingPeriods() int {
	return ledger.PeriodsLeft(g.Balance(), g.AmountPerPeriod, g.TotalPeriods)
}

// Payment is one append-only group contribution.
type Payment struct {
	ID           int64           `json:"id"`
	GroupID      int64           `json:"group_id"`
	Amount       decimal.Decimal `json:"amount"`
	Date         time.Time       `json:"date"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	RecordedBy   string          `json:"recorded_by"`
	CreatedAt    time.Time       `json:"created_at"`
}

// CreateGroupInput describes a requested group loan.
type CreateGroupInput struct {
	Name            string
	MemberCount     int
	Total           decimal.Decimal
	AmountPerPeriod decimal.Decimal
	TotalPeriods    int
	PeriodType      PeriodType
	IssueDate       time.Time
}

// ListFilter narrows group listings.
type ListFilter struct {
	Status   loans.Status
	OpenOnly bool
}
