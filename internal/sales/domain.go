package sales

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dunia-ops/dunia-ops/internal/shared"
)

var (
	// ErrSaleNotFound indicates no sale matches the lookup.
	ErrSaleNotFound = errors.New("sales: sale not found")
	// ErrOverpayment indicates a payment would push the paid amount past the total.
	ErrOverpayment = errors.New("sales: payment exceeds outstanding balance")
	// ErrNoLines indicates a sale with an empty line set.
	ErrNoLines = errors.New("sales: a sale needs at least one line")
	// ErrAlreadyCleared indicates a payment against a sale with zero balance.
	ErrAlreadyCleared = errors.New("sales: sale is already fully paid")
	// ErrCustomerRequired indicates a partial-payment sale missing the
	// customer name or phone.
	ErrCustomerRequired = errors.New("sales: partial payment requires a customer name and phone")
)

// PaymentType records how a sale was settled at creation time.
type PaymentType string

const (
	// PaymentFull settles the whole total at the counter.
	PaymentFull PaymentType = "full"
	// PaymentPart leaves a credit balance owed by a named customer.
	PaymentPart PaymentType = "part"
)

// Sale is one committed sale with its denormalized lines. AmountPaid only
// grows; the balance is always derived, never stored on its own.
type Sale struct {
	ID           int64               `json:"id"`
	Unit         shared.BusinessUnit `json:"unit"`
	Reference    string              `json:"reference"`
	CustomerID   int64               `json:"customer_id,omitempty"`
	CustomerName string              `json:"customer_name,omitempty"`
	SaleDate     time.Time           `json:"sale_date"`
	Total        decimal.Decimal     `json:"total"`
	AmountPaid   decimal.Decimal     `json:"amount_paid"`
	PaymentType  PaymentType         `json:"payment_type"`
	ClearedAt    *time.Time          `json:"cleared_at,omitempty"`
	CreatedBy    string              `json:"created_by"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
	Lines        []Line              `json:"lines"`
}

// Balance is the outstanding credit on the sale.
func (s Sale) Balance() decimal.Decimal {
	return s.Total.Sub(s.AmountPaid)
}

// Cleared reports whether nothing is owed.
func (s Sale) Cleared() bool {
	return !s.Balance().IsPositive()
}

// Line is one sale line. Catalog lines carry the item id they decremented;
// non-catalog ("other") lines have ItemID zero and a free-text name.
type Line struct {
	ID         int64           `json:"id"`
	SaleID     int64           `json:"sale_id"`
	ItemID     int64           `json:"item_id,omitempty"`
	Name       string          `json:"name"`
	Quantity   int64           `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	NonCatalog bool            `json:"non_catalog"`
}

// Payment is one append-only credit payment against a sale. Date is the
// business day the money changed hands, which may trail CreatedAt when the
// payment is entered late.
type Payment struct {
	ID           int64           `json:"id"`
	SaleID       int64           `json:"sale_id"`
	Amount       decimal.Decimal `json:"amount"`
	Date         time.Time       `json:"date"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	RecordedBy   string          `json:"recorded_by"`
	CreatedAt    time.Time       `json:"created_at"`
}

// LineInput describes one requested sale line. ItemID zero marks a
// non-catalog line, which skips the price-band and quantity checks.
type LineInput struct {
	ItemID    int64
	Name      string
	Quantity  int64
	UnitPrice decimal.Decimal
}

// CreateSaleInput describes a requested sale.
type CreateSaleInput struct {
	Unit          shared.BusinessUnit
	SaleDate      time.Time
	PaymentType   PaymentType
	AmountPaid    decimal.Decimal
	CustomerName  string
	CustomerPhone string
	Lines         []LineInput
}

// ListFilter narrows sale listings. Zero values mean "any".
type ListFilter struct {
	Unit        shared.BusinessUnit
	From        time.Time
	To          time.Time
	CreditOnly  bool
	CustomerID  int64
	Page        int
	PageSize    int
}
