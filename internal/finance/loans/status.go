package loans

import (
	"time"

	"github.com/shopspring/decimal"
)

// StatusOf derives a loan status from its balance, due date and the current
// date. windowDays is the due-soon warning window. Pure: same inputs always
// give the same status.
func StatusOf(balance decimal.Decimal, dueDate, today time.Time, windowDays int) Status {
	if !balance.IsPositive() {
		return StatusPaid
	}
	due := dateOnly(dueDate)
	now := dateOnly(today)
	if due.Before(now) {
		return StatusOverdue
	}
	if windowDays > 0 && !due.After(now.AddDate(0, 0, windowDays)) {
		return StatusDueSoon
	}
	return StatusActive
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
