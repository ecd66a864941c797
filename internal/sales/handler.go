package sales

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/dunia-ops/dunia-ops/internal/platform/httpx"
	"github.com/dunia-ops/dunia-ops/internal/shared"
	"github.com/dunia-ops/dunia-ops/internal/stock"
)

// Handler exposes sale operations over HTTP.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	validate    *validator.Validate
	idempotency *shared.IdempotencyStore
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// UseIdempotency enables duplicate-submission protection on sale creation
// via the Idempotency-Key header.
func (h *Handler) UseIdempotency(store *shared.IdempotencyStore) {
	h.idempotency = store
}

type lineRequest struct {
	ItemID    int64  `json:"item_id" validate:"gte=0"`
	Name      string `json:"name" validate:"max=100"`
	Quantity  int64  `json:"quantity" validate:"required,gt=0"`
	UnitPrice string `json:"unit_price" validate:"required"`
}

type createSaleRequest struct {
	Unit          string        `json:"unit" validate:"required,oneof=boutique hardware"`
	SaleDate      string        `json:"sale_date" validate:"required"`
	PaymentType   string        `json:"payment_type" validate:"required,oneof=full part"`
	AmountPaid    string        `json:"amount_paid"`
	CustomerName  string        `json:"customer_name" validate:"max=100"`
	CustomerPhone string        `json:"customer_phone" validate:"max=20"`
	Lines         []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

type paymentRequest struct {
	Amount string `json:"amount" validate:"required"`
	Date   string `json:"date"`
}

type updateSaleRequest struct {
	AmountPaid string `json:"amount_paid" validate:"required"`
}

func (h *Handler) createSale(w http.ResponseWriter, r *http.Request) {
	var req createSaleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	saleDate, err := time.Parse("2006-01-02", req.SaleDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "sale_date must be YYYY-MM-DD")
		return
	}
	amountPaid := decimal.Zero
	if req.AmountPaid != "" {
		amountPaid, err = decimal.NewFromString(req.AmountPaid)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "amount_paid must be a decimal")
			return
		}
	}
	input := CreateSaleInput{
		Unit:          shared.BusinessUnit(req.Unit),
		SaleDate:      saleDate,
		PaymentType:   PaymentType(req.PaymentType),
		AmountPaid:    amountPaid,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
	}
	for _, line := range req.Lines {
		price, err := decimal.NewFromString(line.UnitPrice)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unit_price must be a decimal")
			return
		}
		input.Lines = append(input.Lines, LineInput{
			ItemID:    line.ItemID,
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: price,
		})
	}
	actor := shared.ActorFromContext(r.Context())

	idemKey := r.Header.Get("Idempotency-Key")
	if h.idempotency != nil && idemKey != "" {
		if err := h.idempotency.CheckAndInsert(r.Context(), idemKey, "sales"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				httpx.Problem(w, http.StatusConflict, "Duplicate Request", "this sale was already submitted")
				return
			}
			httpx.RespondError(w, err)
			return
		}
	}

	sale, err := h.service.CreateSale(r.Context(), actor, input)
	if err != nil {
		if h.idempotency != nil && idemKey != "" {
			if derr := h.idempotency.Delete(r.Context(), idemKey); derr != nil {
				h.logger.Warn("release idempotency key", slog.String("key", idemKey), slog.Any("error", derr))
			}
		}
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sale)
}

func (h *Handler) getSale(w http.ResponseWriter, r *http.Request) {
	id, err := parseSaleID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid sale id")
		return
	}
	sale, err := h.service.GetSale(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Unit:       shared.BusinessUnit(q.Get("unit")),
		CreditOnly: q.Get("credit_only") == "true",
	}
	if v := q.Get("from"); v != "" {
		from, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be YYYY-MM-DD")
			return
		}
		filter.From = from
	}
	if v := q.Get("to"); v != "" {
		to, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be YYYY-MM-DD")
			return
		}
		filter.To = to
	}
	sales, err := h.service.ListSales(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sales)
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	id, err := parseSaleID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid sale id")
		return
	}
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "amount must be a decimal")
		return
	}
	var date time.Time
	if req.Date != "" {
		date, err = time.Parse("2006-01-02", req.Date)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
			return
		}
	}
	actor := shared.ActorFromContext(r.Context())
	sale, err := h.service.RecordCreditPayment(r.Context(), actor, id, amount, date)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) updateSale(w http.ResponseWriter, r *http.Request) {
	id, err := parseSaleID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid sale id")
		return
	}
	var req updateSaleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.AmountPaid)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "amount_paid must be a decimal")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	sale, err := h.service.UpdateSale(r.Context(), actor, id, amount)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) deleteSale(w http.ResponseWriter, r *http.Request) {
	id, err := parseSaleID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid sale id")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if err := h.service.DeleteSale(r.Context(), actor, id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	id, err := parseSaleID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid sale id")
		return
	}
	payments, err := h.service.ListPayments(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payments)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSaleNotFound), errors.Is(err, stock.ErrItemNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrOverpayment):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Overpayment", err.Error())
	case errors.Is(err, ErrAlreadyCleared), errors.Is(err, stock.ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, stock.ErrPriceOutOfRange):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Price Out Of Range", err.Error())
	case errors.Is(err, ErrNoLines), errors.Is(err, ErrCustomerRequired):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/sales", h.listSales)
	r.Post("/sales", h.createSale)
	r.Get("/sales/{id}", h.getSale)
	r.Put("/sales/{id}", h.updateSale)
	r.Delete("/sales/{id}", h.deleteSale)
	r.Get("/sales/{id}/payments", h.listPayments)
	r.Post("/sales/{id}/payments", h.recordPayment)
}
