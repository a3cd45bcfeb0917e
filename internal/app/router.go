package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/ledger-core/internal/accounting"
	"github.com/odyssey-erp/ledger-core/internal/accounting/mappings"
	"github.com/odyssey-erp/ledger-core/internal/integration"
	"github.com/odyssey-erp/ledger-core/internal/observability"
	"github.com/odyssey-erp/ledger-core/internal/platform/httpx"
	"github.com/odyssey-erp/ledger-core/internal/rbac"
	"github.com/odyssey-erp/ledger-core/internal/reconciliation"
	"github.com/odyssey-erp/ledger-core/internal/shifts"
	"github.com/odyssey-erp/ledger-core/internal/subledger"
	"github.com/odyssey-erp/ledger-core/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger                *slog.Logger
	Config                *Config
	RBACMiddleware        rbac.Middleware
	AccountingHandler     *accounting.Handler
	MappingsHandler       *mappings.Handler
	SubledgerHandler      *subledger.Handler
	ReconciliationHandler *reconciliation.Handler
	ShiftsHandler         *shifts.Handler
	IntegrationHandler    *integration.Handler
	PermissionsHandler    *rbac.PermissionsHandler
	JobHandler            *jobs.Handler
	Metrics               *observability.Metrics
}

// NewRouter constructs the chi.Router with ledger defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		RBAC:    params.RBACMiddleware,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, "Method Not Allowed", "")
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if params.AccountingHandler != nil {
		params.AccountingHandler.MountRoutes(r)
	}
	if params.MappingsHandler != nil {
		params.MappingsHandler.MountRoutes(r)
	}
	if params.SubledgerHandler != nil {
		params.SubledgerHandler.MountRoutes(r)
	}
	if params.ReconciliationHandler != nil {
		params.ReconciliationHandler.MountRoutes(r)
	}
	if params.ShiftsHandler != nil {
		params.ShiftsHandler.MountRoutes(r)
	}
	if params.IntegrationHandler != nil {
		params.IntegrationHandler.MountRoutes(r)
	}
	if params.PermissionsHandler != nil {
		r.Route("/api/permissions", params.PermissionsHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
