package stock

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dunia-ops/dunia-ops/internal/shared"
)

// Item models a catalog stock item owned by a business unit.
type Item struct {
	ID                int64               `json:"id"`
	Unit              shared.BusinessUnit `json:"unit"`
	Name              string              `json:"name"`
	CategoryID        int64               `json:"category_id,omitempty"`
	Quantity          int64               `json:"quantity"`
	InitialQuantity   int64               `json:"initial_quantity"`
	UnitLabel         string              `json:"unit_label"`
	CostPrice         decimal.Decimal     `json:"cost_price"`
	MinSellingPrice   decimal.Decimal     `json:"min_selling_price"`
	MaxSellingPrice   decimal.Decimal     `json:"max_selling_price"`
	LowStockThreshold int64               `json:"low_stock_threshold"`
	IsActive          bool                `json:"is_active"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// LowStock reports whether on-hand quantity has reached the threshold.
func (i Item) LowStock() bool {
	return i.LowStockThreshold > 0 && i.Quantity <= i.LowStockThreshold
}

// Category groups catalog items within a unit.
type Category struct {
	ID        int64               `json:"id"`
	Unit      shared.BusinessUnit `json:"unit"`
	Name      string              `json:"name"`
	CreatedAt time.Time           `json:"created_at"`
}

// MovementKind enumerates stock quantity changes.
type MovementKind string

const (
	// MovementReserve is an outbound decrement committed by a sale.
	MovementReserve MovementKind = "RESERVE"
	// MovementRestore reverses a reservation (sale deleted or edited down).
	MovementRestore MovementKind = "RESTORE"
	// MovementAdjust is a manual correction (receiving stock, write-off).
	MovementAdjust MovementKind = "ADJUST"
)

// Movement is an append-only record of a quantity change on an item.
type Movement struct {
	ID        int64        `json:"id"`
	ItemID    int64        `json:"item_id"`
	Kind      MovementKind `json:"kind"`
	Delta     int64        `json:"delta"`
	Reason    string       `json:"reason,omitempty"`
	RefCode   string       `json:"ref_code,omitempty"`
	Actor     string       `json:"actor"`
	CreatedAt time.Time    `json:"created_at"`
}

// Reservation requests quantity of an item at a proposed unit price.
type Reservation struct {
	ItemID    int64
	Quantity  int64
	UnitPrice decimal.Decimal
}

// ReservedLine is the committed result of a reservation, carrying the
// denormalized item name so sale lines survive later item deletion.
type ReservedLine struct {
	ItemID    int64
	Name      string
	Quantity  int64
	UnitPrice decimal.Decimal
	Subtotal  decimal.Decimal
}

// Restoration returns quantity to an item.
type Restoration struct {
	ItemID   int64
	Quantity int64
}

// CreateItemInput describes a new catalog item.
type CreateItemInput struct {
	Unit              shared.BusinessUnit
	Name              string
	CategoryID        int64
	Quantity          int64
	UnitLabel         string
	CostPrice         decimal.Decimal
	MinSellingPrice   decimal.Decimal
	MaxSellingPrice   decimal.Decimal
	LowStockThreshold int64
	Actor             string
}

// UpdateItemInput describes an item edit. Quantity is deliberately absent;
// quantity only changes through reserve/restore/adjust.
type UpdateItemInput struct {
	Name              string
	CategoryID        int64
	UnitLabel         string
	CostPrice         decimal.Decimal
	MinSellingPrice   decimal.Decimal
	MaxSellingPrice   decimal.Decimal
	LowStockThreshold int64
	IsActive          bool
	Actor             string
}

// ListFilter filters item listings.
type ListFilter struct {
	Unit         shared.BusinessUnit
	CategoryID   int64
	ShowInactive bool
	LowStockOnly bool
}

var (
	// ErrItemNotFound indicates an unknown item id.
	ErrItemNotFound = errors.New("stock: item not found")
	// ErrPriceOutOfRange indicates a unit price outside the item's selling band.
	ErrPriceOutOfRange = errors.New("stock: unit price outside selling price band")
	// ErrInsufficientStock indicates a reservation exceeding on-hand quantity.
	ErrInsufficientStock = errors.New("stock: insufficient quantity on hand")
	// ErrInvalidAdjustment indicates an adjustment that would drive quantity negative.
	ErrInvalidAdjustment = errors.New("stock: adjustment would make quantity negative")
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = errors.New("stock: quantity must be positive")
	// ErrInvalidPriceBand indicates min selling price above max.
	ErrInvalidPriceBand = errors.New("stock: min selling price exceeds max")
)
