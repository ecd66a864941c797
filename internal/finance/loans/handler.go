package loans

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/dunia-ops/dunia-ops/internal/finance/clients"
	"github.com/dunia-ops/dunia-ops/internal/platform/httpx"
	"github.com/dunia-ops/dunia-ops/internal/shared"
)

// Handler exposes loan operations over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

type loanRequest struct {
	ClientID      int64  `json:"client_id" validate:"required,gt=0"`
	Principal     string `json:"principal" validate:"required"`
	RatePercent   string `json:"rate_percent" validate:"required"`
	DurationWeeks int    `json:"duration_weeks" validate:"required,gt=0"`
	IssueDate     string `json:"issue_date"`
}

type paymentRequest struct {
	Amount string `json:"amount" validate:"required"`
	Date   string `json:"date"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req loanRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input, err := loanInputFrom(req)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := shared.ActorFromContext(r.Context())
	loan, err := h.service.Create(r.Context(), actor, input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, loan)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid loan id")
		return
	}
	loan, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, loan)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Status:   Status(q.Get("status")),
		OpenOnly: q.Get("open_only") == "true",
	}
	if v := q.Get("client_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "client_id must be an integer")
			return
		}
		filter.ClientID = id
	}
	loans, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, loans)
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid loan id")
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
	loan, err := h.service.RecordPayment(r.Context(), actor, id, amount, date)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, loan)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid loan id")
		return
	}
	var req loanRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	input, err := loanInputFrom(req)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := shared.ActorFromContext(r.Context())
	loan, err := h.service.Update(r.Context(), actor, id, UpdateLoanInput{
		Principal:     input.Principal,
		RatePercent:   input.RatePercent,
		DurationWeeks: input.DurationWeeks,
		IssueDate:     input.IssueDate,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, loan)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid loan id")
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
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid loan id")
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
	case errors.Is(err, ErrLoanNotFound), errors.Is(err, clients.ErrClientNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrLoanLocked):
		httpx.Problem(w, http.StatusConflict, "Loan Locked", err.Error())
	case errors.Is(err, ErrOverpayment):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Overpayment", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/loans", h.list)
	r.Post("/loans", h.create)
	r.Get("/loans/{id}", h.get)
	r.Put("/loans/{id}", h.update)
	r.Delete("/loans/{id}", h.delete)
	r.Get("/loans/{id}/payments", h.listPayments)
	r.Post("/loans/{id}/payments", h.recordPayment)
}

func loanInputFrom(req loanRequest) (CreateLoanInput, error) {
	principal, err := decimal.NewFromString(req.Principal)
	if err != nil {
		return CreateLoanInput{}, errors.New("principal must be a decimal")
	}
	rate, err := decimal.NewFromString(req.RatePercent)
	if err != nil {
		return CreateLoanInput{}, errors.New("rate_percent must be a decimal")
	}
	input := CreateLoanInput{
		ClientID:      req.ClientID,
		Principal:     principal,
		RatePercent:   rate,
		DurationWeeks: req.DurationWeeks,
	}
	if req.IssueDate != "" {
		issue, err := time.Parse("2006-01-02", req.IssueDate)
		if err != nil {
			return CreateLoanInput{}, errors.New("issue_date must be YYYY-MM-DD")
		}
		input.IssueDate = issue
	}
	return input, nil
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
