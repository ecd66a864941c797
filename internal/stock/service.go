package stock

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/dunia-ops/dunia-ops/internal/audit"
	"github.com/dunia-ops/dunia-ops/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetItem(ctx context.Context, id int64) (Item, error)
	ListItems(ctx context.Context, filter ListFilter) ([]Item, error)
	InsertItem(ctx context.Context, item Item) (int64, error)
	UpdateItem(ctx context.Context, id int64, input UpdateItemInput) error
	SetItemActive(ctx context.Context, id int64, active bool) error
	ListMovements(ctx context.Context, itemID int64, limit int) ([]Movement, error)
	InsertCategory(ctx context.Context, cat Category) (int64, error)
	ListCategories(ctx context.Context, unit shared.BusinessUnit) ([]Category, error)
}

// AuditPort records mutations to the audit trail.
type AuditPort interface {
	Record(ctx context.Context, entry audit.Entry)
}

// Service coordinates catalog and reservation operations.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, auditor AuditPort) *Service {
	return &Service{repo: repo, audit: auditor}
}

// CreateItem registers a catalog item. A missing low-stock threshold
// defaults to a quarter of the initial quantity, minimum one.
func (s *Service) CreateItem(ctx context.Context, input CreateItemInput) (Item, error) {
	if input.Name == "" {
		return Item{}, fmt.Errorf("%w: item name required", shared.ErrValidation)
	}
	if input.Quantity < 0 {
		return Item{}, fmt.Errorf("%w: quantity must not be negative", shared.ErrValidation)
	}
	if input.MinSellingPrice.GreaterThan(input.MaxSellingPrice) {
		return Item{}, ErrInvalidPriceBand
	}
	threshold := input.LowStockThreshold
	if threshold <= 0 {
		threshold = input.Quantity / 4
		if threshold < 1 {
			threshold = 1
		}
	}
	item := Item{
		Unit:              input.Unit,
		Name:              input.Name,
		CategoryID:        input.CategoryID,
		Quantity:          input.Quantity,
		InitialQuantity:   input.Quantity,
		UnitLabel:         input.UnitLabel,
		CostPrice:         input.CostPrice,
		MinSellingPrice:   input.MinSellingPrice,
		MaxSellingPrice:   input.MaxSellingPrice,
		LowStockThreshold: threshold,
		IsActive:          true,
	}
	id, err := s.repo.InsertItem(ctx, item)
	if err != nil {
		return Item{}, err
	}
	item.ID = id
	s.record(ctx, audit.Entry{
		Actor:       input.Actor,
		Action:      audit.ActionCreate,
		Module:      string(input.Unit),
		Entity:      "stock_item",
		EntityID:    fmt.Sprintf("%d", id),
		Description: fmt.Sprintf("added stock item %q (%d %s)", item.Name, item.Quantity, item.UnitLabel),
	})
	return item, nil
}

// UpdateItem edits item attributes other than quantity.
func (s *Service) UpdateItem(ctx context.Context, id int64, input UpdateItemInput) (Item, error) {
	if input.MinSellingPrice.GreaterThan(input.MaxSellingPrice) {
		return Item{}, ErrInvalidPriceBand
	}
	if _, err := s.repo.GetItem(ctx, id); err != nil {
		return Item{}, err
	}
	if err := s.repo.UpdateItem(ctx, id, input); err != nil {
		return Item{}, err
	}
	item, err := s.repo.GetItem(ctx, id)
	if err != nil {
		return Item{}, err
	}
	s.record(ctx, audit.Entry{
		Actor:       input.Actor,
		Action:      audit.ActionUpdate,
		Module:      string(item.Unit),
		Entity:      "stock_item",
		EntityID:    fmt.Sprintf("%d", id),
		Description: fmt.Sprintf("updated stock item %q", item.Name),
	})
	return item, nil
}

// DeactivateItem soft-deletes an item. Historical sale lines keep their
// denormalized name and price snapshots.
func (s *Service) DeactivateItem(ctx context.Context, id int64, actor string) error {
	item, err := s.repo.GetItem(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.SetItemActive(ctx, id, false); err != nil {
		return err
	}
	s.record(ctx, audit.Entry{
		Actor:       actor,
		Action:      audit.ActionDelete,
		Module:      string(item.Unit),
		Entity:      "stock_item",
		EntityID:    fmt.Sprintf("%d", id),
		Description: fmt.Sprintf("deactivated stock item %q", item.Name),
	})
	return nil
}

// Reserve atomically checks price band and quantity for a single item and
// decrements on-hand. It is the single-line form of ReserveAll.
func (s *Service) Reserve(ctx context.Context, res Reservation, refCode, actor string) (ReservedLine, error) {
	lines, err := s.ReserveAll(ctx, []Reservation{res}, refCode, actor)
	if err != nil {
		return ReservedLine{}, err
	}
	return lines[0], nil
}

// ReserveAll commits a multi-line reservation as one transactional unit:
// every line's price band and quantity are checked under row locks and all
// decrements commit together or not at all.
func (s *Service) ReserveAll(ctx context.Context, reservations []Reservation, refCode, actor string) ([]ReservedLine, error) {
	if len(reservations) == 0 {
		return nil, fmt.Errorf("%w: at least one reservation required", shared.ErrValidation)
	}
	for _, res := range reservations {
		if res.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
	}
	// Lock items in id order so concurrent multi-line sales cannot deadlock.
	// Results keep the caller's input positions: the same item may appear on
	// several lines, so item id is not a usable key.
	order := make([]int, len(reservations))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		return reservations[order[i]].ItemID < reservations[order[j]].ItemID
	})

	lines := make([]ReservedLine, len(reservations))
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, pos := range order {
			res := reservations[pos]
			item, err := tx.GetItemForUpdate(ctx, res.ItemID)
			if err != nil {
				return err
			}
			if res.UnitPrice.LessThan(item.MinSellingPrice) || res.UnitPrice.GreaterThan(item.MaxSellingPrice) {
				return fmt.Errorf("%w: %s %s-%s, got %s", ErrPriceOutOfRange,
					item.Name, item.MinSellingPrice, item.MaxSellingPrice, res.UnitPrice)
			}
			if res.Quantity > item.Quantity {
				return fmt.Errorf("%w: only %d x %s available", ErrInsufficientStock, item.Quantity, item.Name)
			}
			if err := tx.UpdateQuantity(ctx, item.ID, item.Quantity-res.Quantity); err != nil {
				return err
			}
			if err := tx.InsertMovement(ctx, Movement{
				ItemID:  item.ID,
				Kind:    MovementReserve,
				Delta:   -res.Quantity,
				RefCode: refCode,
				Actor:   actor,
			}); err != nil {
				return err
			}
			lines[pos] = ReservedLine{
				ItemID:    item.ID,
				Name:      item.Name,
				Quantity:  res.Quantity,
				UnitPrice: res.UnitPrice,
				Subtotal:  res.UnitPrice.Mul(decimal.NewFromInt(res.Quantity)),
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lines, nil
}

// RestoreAll reverses reservations, incrementing quantities. Unknown items
// fail with ErrItemNotFound; restorations never fail otherwise.
func (s *Service) RestoreAll(ctx context.Context, restorations []Restoration, refCode, actor string) error {
	if len(restorations) == 0 {
		return nil
	}
	ordered := make([]Restoration, len(restorations))
	copy(ordered, restorations)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ItemID < ordered[j].ItemID })

	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, res := range ordered {
			if res.Quantity <= 0 {
				return ErrInvalidQuantity
			}
			item, err := tx.GetItemForUpdate(ctx, res.ItemID)
			if err != nil {
				return err
			}
			if err := tx.UpdateQuantity(ctx, item.ID, item.Quantity+res.Quantity); err != nil {
				return err
			}
			if err := tx.InsertMovement(ctx, Movement{
				ItemID:  item.ID,
				Kind:    MovementRestore,
				Delta:   res.Quantity,
				RefCode: refCode,
				Actor:   actor,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// Adjust applies a manual correction. Delta may be negative but the result
// must stay non-negative.
func (s *Service) Adjust(ctx context.Context, itemID, delta int64, reason, actor string) (Item, error) {
	if delta == 0 {
		return Item{}, ErrInvalidQuantity
	}
	var adjusted Item
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := tx.GetItemForUpdate(ctx, itemID)
		if err != nil {
			return err
		}
		next := item.Quantity + delta
		if next < 0 {
			return fmt.Errorf("%w: have %d, delta %d", ErrInvalidAdjustment, item.Quantity, delta)
		}
		if err := tx.UpdateQuantity(ctx, item.ID, next); err != nil {
			return err
		}
		if err := tx.InsertMovement(ctx, Movement{
			ItemID: item.ID,
			Kind:   MovementAdjust,
			Delta:  delta,
			Reason: reason,
			Actor:  actor,
		}); err != nil {
			return err
		}
		item.Quantity = next
		adjusted = item
		return nil
	})
	if err != nil {
		return Item{}, err
	}
	s.record(ctx, audit.Entry{
		Actor:       actor,
		Action:      audit.ActionUpdate,
		Module:      string(adjusted.Unit),
		Entity:      "stock_item",
		EntityID:    fmt.Sprintf("%d", itemID),
		Description: fmt.Sprintf("adjusted %q by %+d (%s)", adjusted.Name, delta, reason),
		Hints:       audit.Hints{AmountReduced: delta < 0},
	})
	return adjusted, nil
}

// GetItem fetches a single item.
func (s *Service) GetItem(ctx context.Context, id int64) (Item, error) {
	return s.repo.GetItem(ctx, id)
}

// ListItems lists catalog items.
func (s *Service) ListItems(ctx context.Context, filter ListFilter) ([]Item, error) {
	return s.repo.ListItems(ctx, filter)
}

// ListMovements lists recent quantity changes for an item.
func (s *Service) ListMovements(ctx context.Context, itemID int64, limit int) ([]Movement, error) {
	if _, err := s.repo.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	return s.repo.ListMovements(ctx, itemID, limit)
}

// CreateCategory registers a category for a unit.
func (s *Service) CreateCategory(ctx context.Context, unit shared.BusinessUnit, name, actor string) (Category, error) {
	if name == "" {
		return Category{}, fmt.Errorf("%w: category name required", shared.ErrValidation)
	}
	cat := Category{Unit: unit, Name: name}
	id, err := s.repo.InsertCategory(ctx, cat)
	if err != nil {
		return Category{}, err
	}
	cat.ID = id
	s.record(ctx, audit.Entry{
		Actor:       actor,
		Action:      audit.ActionCreate,
		Module:      string(unit),
		Entity:      "category",
		EntityID:    fmt.Sprintf("%d", id),
		Description: fmt.Sprintf("added category %q", name),
	})
	return cat, nil
}

// ListCategories lists categories for a unit.
func (s *Service) ListCategories(ctx context.Context, unit shared.BusinessUnit) ([]Category, error) {
	return s.repo.ListCategories(ctx, unit)
}

func (s *Service) record(ctx context.Context, entry audit.Entry) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, entry)
}
