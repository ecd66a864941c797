package audit

import "time"

// Action enumerates mutating operations captured in the trail.
type Action string

const (
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionPayment Action = "payment"
)

// Hints carry facts the recorder cannot derive on its own; the flagging
// heuristic turns them into a flag reason.
type Hints struct {
	// AmountReduced is set when an update lowered a paid or balance amount.
	AmountReduced bool
	// NonCatalog is set when the operation involves an "OTHER" sale line.
	NonCatalog bool
	// Backdated is set when the operation is dated before today.
	Backdated bool
	// NonOwner is set when someone edits a record they did not create.
	NonOwner bool
}

// Entry is one append-only audit record. Entries are never updated or
// deleted once written.
type Entry struct {
	ID          string    `json:"id"`
	Actor       string    `json:"actor"`
	Action      Action    `json:"action"`
	Module      string    `json:"module"`
	Entity      string    `json:"entity"`
	EntityID    string    `json:"entity_id"`
	Description string    `json:"description"`
	Flagged     bool      `json:"flagged"`
	FlagReason  string    `json:"flag_reason,omitempty"`
	Hints       Hints     `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// Filters narrows audit queries. Zero values mean "any".
type Filters struct {
	Actor       string
	Action      Action
	Module      string
	From        time.Time
	To          time.Time
	FlaggedOnly bool
	Page        int
	PageSize    int
}

// Result wraps a page of entries with paging information.
type Result struct {
	Entries []Entry `json:"entries"`
	Page    int     `json:"page"`
	PerPage int     `json:"per_page"`
	HasNext bool    `json:"has_next"`
}
