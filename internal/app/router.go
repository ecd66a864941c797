package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dunia-ops/dunia-ops/internal/audit"
	"github.com/dunia-ops/dunia-ops/internal/dashboard"
	"github.com/dunia-ops/dunia-ops/internal/finance/clients"
	"github.com/dunia-ops/dunia-ops/internal/finance/groups"
	"github.com/dunia-ops/dunia-ops/internal/finance/loans"
	"github.com/dunia-ops/dunia-ops/internal/sales"
	"github.com/dunia-ops/dunia-ops/internal/sales/customers"
	"github.com/dunia-ops/dunia-ops/internal/stock"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	StockHandler     *stock.Handler
	SalesHandler     *sales.Handler
	CustomersHandler *customers.Handler
	ClientsHandler   *clients.Handler
	LoansHandler     *loans.Handler
	GroupsHandler    *groups.Handler
	AuditHandler     *audit.Handler
	DashboardHandler *dashboard.Handler
}

// NewRouter constructs the chi.Router with the service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ActorMiddleware(params.Config))
		params.StockHandler.MountRoutes(r)
		params.SalesHandler.MountRoutes(r)
		params.CustomersHandler.MountRoutes(r)
		params.ClientsHandler.MountRoutes(r)
		params.LoansHandler.MountRoutes(r)
		params.GroupsHandler.MountRoutes(r)
		params.AuditHandler.MountRoutes(r)
		params.DashboardHandler.MountRoutes(r)
	})

	return r
}
