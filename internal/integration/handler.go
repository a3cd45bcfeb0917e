package integration

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/ledger-core/internal/platform/httpx"
	"github.com/odyssey-erp/ledger-core/internal/rbac"
	"github.com/odyssey-erp/ledger-core/internal/shared"
)

// Handler accepts domain events over HTTP.
type Handler struct {
	logger *slog.Logger
	hooks  *Hooks
	rbac   rbac.Middleware
}

// NewHandler builds the integration handler.
func NewHandler(logger *slog.Logger, hooks *Hooks, rbacMW rbac.Middleware) *Handler {
	return &Handler{logger: logger, hooks: hooks, rbac: rbacMW}
}

// MountRoutes registers /api/integrations.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/api/integrations", func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermFinanceIntegrations))
		r.Post("/expenses/disbursed", accept(h, h.hooks.HandleExpenseDisbursed))
		r.Post("/sales/invoices", accept(h, h.hooks.HandleSalesInvoiceIssued))
		r.Post("/purchases/bills", accept(h, h.hooks.HandleVendorBillReceived))
		r.Post("/pos/sales", accept(h, h.hooks.HandlePOSSale))
		r.Post("/pos/refunds", accept(h, h.hooks.HandlePOSRefund))
		r.Post("/payroll/runs", accept(h, h.hooks.HandlePayrollRun))
		r.Post("/wallet/topups", h.walletTopUp)
	})
}

func accept[E any](h *Handler, fn func(context.Context, rbac.Principal, E) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var evt E
		if err := httpx.Bind(r, &evt); err != nil {
			httpx.RespondError(w, err)
			return
		}
		p, _ := rbac.PrincipalFromContext(r.Context())
		if err := fn(r.Context(), p, evt); err != nil {
			h.fail(w, err)
			return
		}
		httpx.JSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	}
}

func (h *Handler) walletTopUp(w http.ResponseWriter, r *http.Request) {
	var evt WalletTopUpRequestedEvent
	if err := httpx.Bind(r, &evt); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, _ := rbac.PrincipalFromContext(r.Context())
	d, err := h.hooks.HandleWalletTopUpRequested(r.Context(), p, evt)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, d)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if shared.KindOf(err) == nil {
		h.logger.Error("integration event", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
