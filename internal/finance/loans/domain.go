package loans

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrLoanNotFound indicates no loan matches the lookup.
	ErrLoanNotFound = errors.New("loans: loan not found")
	// ErrLoanLocked indicates an edit after the first payment was recorded.
	ErrLoanLocked = errors.New("loans: loan terms are locked once a payment exists")
	// ErrOverpayment indicates a payment beyond the outstanding balance.
	ErrOverpayment = errors.New("loans: payment exceeds outstanding balance")
)

// Status is derived at read time from balance, due date and today. It is
// never stored as authoritative state.
type Status string

const (
	StatusActive  Status = "active"
	StatusDueSoon Status = "due_soon"
	StatusOverdue Status = "overdue"
	StatusPaid    Status = "paid"
)

// Loan is one individual loan. Interest, total and due date are computed at
// creation and fixed until terms change, which is only allowed before the
// first payment.
type Loan struct {
	ID            int64           `json:"id"`
	ClientID      int64           `json:"client_id"`
	ClientName    string          `json:"client_name"`
	Principal     decimal.Decimal `json:"principal"`
	RatePercent   decimal.Decimal `json:"rate_percent"`
	Interest      decimal.Decimal `json:"interest"`
	Total         decimal.Decimal `json:"total"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	DurationWeeks int             `json:"duration_weeks"`
	IssueDate     time.Time       `json:"issue_date"`
	DueDate       time.Time       `json:"due_date"`
	CreatedBy     string          `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`

	// Status is filled by the service on read.
	Status Status `json:"status"`
}

// Balance is the outstanding amount on the loan.
func (l Loan) Balance() decimal.Decimal {
	return l.Total.Sub(l.AmountPaid)
}

// Payment is one append-only loan repayment.
type Payment struct {
	ID           int64           `json:"id"`
	LoanID       int64           `json:"loan_id"`
	Amount       decimal.Decimal `json:"amount"`
	Date         time.Time       `json:"date"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	RecordedBy   string          `json:"recorded_by"`
	CreatedAt    time.Time       `json:"created_at"`
}

// CreateLoanInput describes a requested loan.
type CreateLoanInput struct {
	ClientID      int64
	Principal     decimal.Decimal
	RatePercent   decimal.Decimal
	DurationWeeks int
	IssueDate     time.Time
}

// UpdateLoanInput corrects loan terms. Only honoured before any payment.
type UpdateLoanInput struct {
	Principal     decimal.Decimal
	RatePercent   decimal.Decimal
	DurationWeeks int
	IssueDate     time.Time
}

// ListFilter narrows loan listings. Status filtering happens after the
// derived status is computed.
type ListFilter struct {
	ClientID int64
	Status   Status
	OpenOnly bool
}
