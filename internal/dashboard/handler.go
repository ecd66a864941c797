package dashboard

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dunia-ops/dunia-ops/internal/platform/httpx"
)

// Handler exposes the dashboard overview.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) overview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.service.Overview(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, overview)
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/dashboard", h.overview)
}
