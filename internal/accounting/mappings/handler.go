package mappings

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/ledger-core/internal/platform/httpx"
	"github.com/odyssey-erp/ledger-core/internal/rbac"
	"github.com/odyssey-erp/ledger-core/internal/shared"
)

// Handler exposes mapping administration.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds the mapping handler.
func NewHandler(logger *slog.Logger, service *Service, rbacMW rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbacMW}
}

// MountRoutes registers /api/mappings.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/api/mappings", func(r chi.Router) {
		r.With(h.rbac.RequireAny(shared.PermFinanceGLView, shared.PermFinanceMappingsManage)).Get("/", h.list)
		r.Post("/", h.create)
		r.Put("/{id}", h.reassign)
	})
}

type createRequest struct {
	Module      string `json:"module" validate:"required,max=32"`
	Key         string `json:"key" validate:"required,max=64"`
	AccountID   int64  `json:"account_id" validate:"required,gt=0"`
	Description string `json:"description" validate:"max=255"`
}

type reassignRequest struct {
	AccountID int64 `json:"account_id" validate:"required,gt=0"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context(), r.URL.Query().Get("module"))
	if err != nil {
		h.fail(w, err)
		return
	}
	if items == nil {
		items = []AccountMapping{}
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, _ := rbac.PrincipalFromContext(r.Context())
	m, err := h.service.Create(r.Context(), p, CreateInput(req))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, m)
}

func (h *Handler) reassign(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req reassignRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, _ := rbac.PrincipalFromContext(r.Context())
	m, err := h.service.Reassign(r.Context(), p, id, req.AccountID)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if shared.KindOf(err) == nil {
		h.logger.Error("mappings request", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
