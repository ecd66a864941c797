package shared

import (
	"fmt"
	"time"
)

// Role enumerates actor roles recognised by the core.
type Role string

const (
	// RoleManager may operate on any business unit and any past date.
	RoleManager Role = "manager"
	// RoleEmployee is restricted to an assigned unit and a short date window.
	RoleEmployee Role = "employee"
)

// BusinessUnit identifies one of the operated businesses.
type BusinessUnit string

const (
	UnitBoutique BusinessUnit = "boutique"
	UnitHardware BusinessUnit = "hardware"
	UnitFinance  BusinessUnit = "finance"
	// UnitAll grants access to every unit.
	UnitAll BusinessUnit = "all"
)

// Actor is the authenticated identity and capability set supplied by the
// surrounding API layer. The core never stores actors; it only consumes them.
type Actor struct {
	Name         string
	Role         Role
	Unit         BusinessUnit
	CanBackdate  bool
	BackdateDays int
	CanEdit      bool
	CanDelete    bool
}

// IsManager reports whether the actor holds the manager role.
func (a Actor) IsManager() bool {
	return a.Role == RoleManager
}

// CanAccess reports whether the actor may operate on the given unit.
func (a Actor) CanAccess(unit BusinessUnit) bool {
	if a.IsManager() || a.Unit == UnitAll {
		return true
	}
	return a.Unit == unit
}

// backdateLimit returns how many days back the actor may date an operation.
// Employees get yesterday by default; CanBackdate may widen the window.
func (a Actor) backdateLimit() int {
	limit := 1
	if a.CanBackdate && a.BackdateDays > limit {
		limit = a.BackdateDays
	}
	return limit
}

// ValidateDate checks target against the actor's permitted date window.
// Managers may use any date up to today. Future dates are never allowed.
func (a Actor) ValidateDate(target, today time.Time) error {
	target = DateOf(target)
	today = DateOf(today)
	if target.After(today) {
		return fmt.Errorf("%w: future dates are not allowed", ErrInvalidDateWindow)
	}
	if a.IsManager() {
		return nil
	}
	days := int(today.Sub(target).Hours() / 24)
	if days > a.backdateLimit() {
		return fmt.Errorf("%w: backdating limited to %d day(s)", ErrInvalidDateWindow, a.backdateLimit())
	}
	return nil
}

// Backdated reports whether target falls before today. Used by audit flagging.
func (a Actor) Backdated(target, today time.Time) bool {
	return DateOf(target).Before(DateOf(today))
}

// DateOf truncates a timestamp to its calendar date in UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the current calendar date in UTC.
func Today() time.Time {
	return DateOf(time.Now())
}
