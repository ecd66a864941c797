// Package ledger provides the balance ledger primitive shared by credit
// sales and loans: a total owed, payments applied against it, and the
// derived balance and cleared state. Balance is always computed, never
// stored independently, so it cannot drift from the underlying amounts.
package ledger

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrOverpayment indicates a payment exceeding the outstanding balance.
	// Excess is rejected outright rather than clamped.
	ErrOverpayment = errors.New("ledger: payment exceeds outstanding balance")
	// ErrNonPositiveAmount indicates a zero or negative payment.
	ErrNonPositiveAmount = errors.New("ledger: payment amount must be positive")
	// ErrInvalidTotal indicates a negative total owed.
	ErrInvalidTotal = errors.New("ledger: total amount must not be negative")
)

// Ledger is an immutable value representing an amount owed and the sum of
// payments applied against it. Apply returns a new Ledger; the receiver is
// never mutated.
type Ledger struct {
	total decimal.Decimal
	paid  decimal.Decimal
}

// Open creates a ledger for the given total with an optional amount already
// paid at opening (a sale's amount paid at creation, zero for loans).
func Open(total, paidAtOpen decimal.Decimal) (Ledger, error) {
	if total.IsNegative() {
		return Ledger{}, ErrInvalidTotal
	}
	if paidAtOpen.IsNegative() {
		return Ledger{}, ErrNonPositiveAmount
	}
	if paidAtOpen.GreaterThan(total) {
		return Ledger{}, ErrOverpayment
	}
	return Ledger{total: total, paid: paidAtOpen}, nil
}

// Resume reconstructs a ledger from persisted totals. It trusts the stored
// invariant 0 <= paid <= total and is meant for repository hydration only.
func Resume(total, paid decimal.Decimal) Ledger {
	return Ledger{total: total, paid: paid}
}

// Total returns the amount owed. Immutable after opening.
func (l Ledger) Total() decimal.Decimal {
	return l.total
}

// Paid returns the sum of payments applied, including any amount paid at
// opening.
func (l Ledger) Paid() decimal.Decimal {
	return l.paid
}

// Balance returns the outstanding amount. Never negative.
func (l Ledger) Balance() decimal.Decimal {
	return l.total.Sub(l.paid)
}

// Cleared reports whether the ledger is fully settled.
func (l Ledger) Cleared() bool {
	return l.Balance().IsZero()
}

// Apply records a payment and returns the resulting ledger. A payment that
// exceeds the outstanding balance fails with ErrOverpayment and leaves the
// receiver usable.
func (l Ledger) Apply(amount decimal.Decimal) (Ledger, error) {
	if !amount.IsPositive() {
		return l, ErrNonPositiveAmount
	}
	if amount.GreaterThan(l.Balance()) {
		return l, ErrOverpayment
	}
	return Ledger{total: l.total, paid: l.paid.Add(amount)}, nil
}

// PeriodsLeft derives the remaining installment count for period-based
// ledgers: ceil(balance / perPeriod), clamped to [0, totalPeriods].
func PeriodsLeft(balance, perPeriod decimal.Decimal, totalPeriods int) int {
	if !perPeriod.IsPositive() || totalPeriods <= 0 {
		return 0
	}
	left := int(balance.Div(perPeriod).Ceil().IntPart())
	if left < 0 {
		left = 0
	}
	if left > totalPeriods {
		left = totalPeriods
	}
	return left
}
