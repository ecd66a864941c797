package groups

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/dunia-ops/dunia-ops/internal/finance/loans"
	"github.com/dunia-ops/dunia-ops/internal/platform/httpx"
	"github.com/dunia-ops/dunia-ops/internal/shared"
)

// Handler exposes group loan operations over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

type groupRequest struct {
	Name            string `json:"name" validate:"required,max=100"`
	MemberCount     int    `json:"member_count" validate:"required,gt=0"`
	Total           string `json:"total" validate:"required"`
	AmountPerPeriod string `json:"amount_per_period" validate:"required"`
	TotalPeriods    int    `json:"total_periods" validate:"required,gt=0"`
	PeriodType      string `json:"period_type" validate:"required,oneof=weekly bi-weekly monthly bi-monthly"`
	IssueDate       string `json:"issue_date"`
}

type paymentRequest struct {
	Amount string `json:"amount" validate:"required"`
	Date   string `json:"date"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input, err := groupInputFrom(req)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := shared.ActorFromContext(r.Context())
	group, err := h.service.Create(r.Context(), actor, input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, group)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid group id")
		return
	}
	group, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, group)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	groups, err := h.service.List(r.Context(), ListFilter{
		Status:   loans.Status(q.Get("status")),
		OpenOnly: q.Get("open_only") == "true",
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, groups)
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid group id")
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
	group, err := h.service.RecordPayment(r.Context(), actor, id, amount, date)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, group)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid group id")
		return
	}
	var req groupRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	input, err := groupInputFrom(req)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := shared.ActorFromContext(r.Context())
	group, err := h.service.Update(r.Context(), actor, id, input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, group)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid group id")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid group id")
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
	case errors.Is(err, ErrGroupNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrGroupLocked):
		httpx.Problem(w, http.StatusConflict, "Group Loan Locked", err.Error())
	case errors.Is(err, ErrOverpayment):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Overpayment", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/groups", h.list)
	r.Post("/groups", h.create)
	r.Get("/groups/{id}", h.get)
	r.Put("/groups/{id}", h.update)
	r.Delete("/groups/{id}", h.delete)
	r.Get("/groups/{id}/payments", h.listPayments)
	r.Post("/groups/{id}/payments", h.recordPayment)
}

func groupInputFrom(req groupRequest) (CreateGroupInput, error) {
	total, err := decimal.NewFromString(req.Total)
	if err != nil {
		return CreateGroupInput{}, errors.New("total must be a decimal")
	}
	perPeriod, err := decimal.NewFromString(req.AmountPerPeriod)
	if err != nil {
		return CreateGroupInput{}, errors.New("amount_per_period must be a decimal")
	}
	input := CreateGroupInput{
		Name:            req.Name,
		MemberCount:     req.MemberCount,
		Total:           total,
		AmountPerPeriod: perPeriod,
		TotalPeriods:    req.TotalPeriods,
		PeriodType:      PeriodType(req.PeriodType),
	}
	if req.IssueDate != "" {
		issue, err := time.Parse("2006-01-02", req.IssueDate)
		if err != nil {
			return CreateGroupInput{}, errors.New("issue_date must be YYYY-MM-DD")
		}
		input.IssueDate = issue
	}
	return input, nil
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
