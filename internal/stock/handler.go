package stock

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/dunia-ops/dunia-ops/internal/platform/httpx"
	"github.com/dunia-ops/dunia-ops/internal/shared"
)

// Handler exposes stock operations over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

type createItemRequest struct {
	Unit              string `json:"unit" validate:"required,oneof=boutique hardware"`
	Name              string `json:"name" validate:"required,max=100"`
	CategoryID        int64  `json:"category_id" validate:"gte=0"`
	Quantity          int64  `json:"quantity" validate:"gte=0"`
	UnitLabel         string `json:"unit_label" validate:"max=20"`
	CostPrice         string `json:"cost_price" validate:"required"`
	MinSellingPrice   string `json:"min_selling_price" validate:"required"`
	MaxSellingPrice   string `json:"max_selling_price" validate:"required"`
	LowStockThreshold int64  `json:"low_stock_threshold" validate:"gte=0"`
}

type updateItemRequest struct {
	Name              string `json:"name" validate:"required,max=100"`
	CategoryID        int64  `json:"category_id" validate:"gte=0"`
	UnitLabel         string `json:"unit_label" validate:"max=20"`
	CostPrice         string `json:"cost_price" validate:"required"`
	MinSellingPrice   string `json:"min_selling_price" validate:"required"`
	MaxSellingPrice   string `json:"max_selling_price" validate:"required"`
	LowStockThreshold int64  `json:"low_stock_threshold" validate:"gte=0"`
	IsActive          bool   `json:"is_active"`
}

type adjustRequest struct {
	Delta  int64  `json:"delta" validate:"required"`
	Reason string `json:"reason" validate:"required,max=200"`
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	cost, minPrice, maxPrice, err := parsePrices(req.CostPrice, req.MinSellingPrice, req.MaxSellingPrice)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if !actor.CanAccess(shared.BusinessUnit(req.Unit)) {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "no access to this business unit")
		return
	}
	unitLabel := req.UnitLabel
	if unitLabel == "" {
		unitLabel = "pieces"
	}
	item, err := h.service.CreateItem(r.Context(), CreateItemInput{
		Unit:              shared.BusinessUnit(req.Unit),
		Name:              req.Name,
		CategoryID:        req.CategoryID,
		Quantity:          req.Quantity,
		UnitLabel:         unitLabel,
		CostPrice:         cost,
		MinSellingPrice:   minPrice,
		MaxSellingPrice:   maxPrice,
		LowStockThreshold: req.LowStockThreshold,
		Actor:             actor.Name,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Unit:         shared.BusinessUnit(q.Get("unit")),
		ShowInactive: q.Get("show_inactive") == "true",
		LowStockOnly: q.Get("low_stock") == "true",
	}
	if v := q.Get("category_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "category_id must be an integer")
			return
		}
		filter.CategoryID = id
	}
	items, err := h.service.ListItems(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid item id")
		return
	}
	item, err := h.service.GetItem(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid item id")
		return
	}
	var req updateItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	cost, minPrice, maxPrice, err := parsePrices(req.CostPrice, req.MinSellingPrice, req.MaxSellingPrice)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if !actor.CanEdit && !actor.IsManager() {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "edit capability required")
		return
	}
	item, err := h.service.UpdateItem(r.Context(), id, UpdateItemInput{
		Name:              req.Name,
		CategoryID:        req.CategoryID,
		UnitLabel:         req.UnitLabel,
		CostPrice:         cost,
		MinSellingPrice:   minPrice,
		MaxSellingPrice:   maxPrice,
		LowStockThreshold: req.LowStockThreshold,
		IsActive:          req.IsActive,
		Actor:             actor.Name,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) adjustItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid item id")
		return
	}
	var req adjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := shared.ActorFromContext(r.Context())
	item, err := h.service.Adjust(r.Context(), id, req.Delta, req.Reason, actor.Name)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) deactivateItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid item id")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if !actor.CanDelete && !actor.IsManager() {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "delete capability required")
		return
	}
	if err := h.service.DeactivateItem(r.Context(), id, actor.Name); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid item id")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	movements, err := h.service.ListMovements(r.Context(), id, limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, movements)
}

type createCategoryRequest struct {
	Unit string `json:"unit" validate:"required,oneof=boutique hardware"`
	Name string `json:"name" validate:"required,max=50"`
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := shared.ActorFromContext(r.Context())
	cat, err := h.service.CreateCategory(r.Context(), shared.BusinessUnit(req.Unit), req.Name, actor.Name)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, cat)
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.service.ListCategories(r.Context(), shared.BusinessUnit(r.URL.Query().Get("unit")))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cats)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrItemNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrPriceOutOfRange), errors.Is(err, ErrInvalidPriceBand):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Price Out Of Range", err.Error())
	case errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrInvalidAdjustment), errors.Is(err, ErrInvalidQuantity):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Adjustment", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}

func parsePrices(cost, minPrice, maxPrice string) (decimal.Decimal, decimal.Decimal, decimal.Decimal, error) {
	c, err := decimal.NewFromString(cost)
	if err != nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, errors.New("cost_price must be a decimal")
	}
	lo, err := decimal.NewFromString(minPrice)
	if err != nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, errors.New("min_selling_price must be a decimal")
	}
	hi, err := decimal.NewFromString(maxPrice)
	if err != nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, errors.New("max_selling_price must be a decimal")
	}
	return c, lo, hi, nil
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
