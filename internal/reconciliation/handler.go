package reconciliation

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger-core/internal/platform/httpx"
	"github.com/odyssey-erp/ledger-core/internal/rbac"
	"github.com/odyssey-erp/ledger-core/internal/shared"
)

// Handler exposes deposit reconciliation.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds the deposit handler.
func NewHandler(logger *slog.Logger, service *Service, rbacMW rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbacMW}
}

// MountRoutes registers /api/deposits.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/api/deposits", func(r chi.Router) {
		view := h.rbac.RequireAny(shared.PermFinanceDepositRecord, shared.PermFinanceDepositConfirm, shared.PermFinanceGLView)
		r.With(view).Get("/", h.list)
		r.Post("/", h.record)
		r.With(view).Get("/{id}", h.get)
		r.Post("/{id}/confirm", h.confirm)
		r.Post("/{id}/reject", h.reject)
	})
}

type recordRequest struct {
	Kind        string          `json:"kind" validate:"required,oneof=SHIFT_CASH WALLET_TOPUP SIMULATED shift_cash wallet_topup simulated"`
	ShiftID     *int64          `json:"shift_id" validate:"omitempty,gt=0"`
	ContactID   *int64          `json:"contact_id" validate:"omitempty,gt=0"`
	Amount      decimal.Decimal `json:"amount"`
	Reference   string          `json:"reference" validate:"max=64"`
	EvidenceRef string          `json:"evidence_ref" validate:"max=255"`
	TargetKey   string          `json:"target_key" validate:"max=64"`
}

type confirmRequest struct {
	TargetKey string `json:"target_key" validate:"max=64"`
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required,max=255"`
}

func (h *Handler) record(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	kind, err := ParseKind(req.Kind)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, _ := rbac.PrincipalFromContext(r.Context())
	d, err := h.service.Record(r.Context(), p, RecordInput{
		Kind:        kind,
		ShiftID:     req.ShiftID,
		ContactID:   req.ContactID,
		Amount:      req.Amount,
		Reference:   req.Reference,
		EvidenceRef: req.EvidenceRef,
		TargetKey:   req.TargetKey,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, d)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := h.service.List(r.Context(), ListFilter{
		Status:  Status(strings.ToUpper(q.Get("status"))),
		Kind:    Kind(strings.ToUpper(q.Get("kind"))),
		ShiftID: httpx.QueryInt64(r, "shift_id"),
		Page:    httpx.QueryInt(r, "page", 1),
		PerPage: httpx.QueryInt(r, "per_page", 20),
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	d, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req confirmRequest
	if r.ContentLength > 0 {
		if err := httpx.Bind(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	p, _ := rbac.PrincipalFromContext(r.Context())
	d, err := h.service.Confirm(r.Context(), p, id, req.TargetKey)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req rejectRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, _ := rbac.PrincipalFromContext(r.Context())
	d, err := h.service.Reject(r.Context(), p, id, req.Reason)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if shared.KindOf(err) == nil {
		h.logger.Error("deposit request", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
