package dashboard

import (
	"time"

	"github.com/shopspring/decimal"
)

// Overview is the read-only aggregate snapshot served to the home screen.
// It is assembled from committed state and never mutates anything.
type Overview struct {
	Date                  time.Time       `json:"date"`
	TodaySalesTotal       decimal.Decimal `json:"today_sales_total"`
	TodaySalesCount       int64           `json:"today_sales_count"`
	PendingCreditTotal    decimal.Decimal `json:"pending_credit_total"`
	PendingCreditCount    int64           `json:"pending_credit_count"`
	LowStockCount         int64           `json:"low_stock_count"`
	OutstandingLoanTotal  decimal.Decimal `json:"outstanding_loan_total"`
	OverdueLoanCount      int64           `json:"overdue_loan_count"`
	OutstandingGroupTotal decimal.Decimal `json:"outstanding_group_total"`
	GeneratedAt           time.Time       `json:"generated_at"`
}
