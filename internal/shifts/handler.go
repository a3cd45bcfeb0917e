package shifts

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger-core/internal/accounting"
	"github.com/odyssey-erp/ledger-core/internal/platform/httpx"
	"github.com/odyssey-erp/ledger-core/internal/rbac"
	"github.com/odyssey-erp/ledger-core/internal/shared"
)

// Handler exposes the shift lifecycle over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds the shift handler.
func NewHandler(logger *slog.Logger, service *Service, rbacMW rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbacMW}
}

// MountRoutes registers /api/shifts.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/api/shifts", func(r chi.Router) {
		view := h.rbac.RequireAny(shared.PermPOSShiftView, shared.PermPOSShiftOperate, shared.PermPOSShiftReconcile)
		r.With(view).Get("/", h.list)
		r.Post("/", h.open)
		r.With(view).Get("/{id}", h.get)
		r.With(view).Get("/{id}/payments", h.payments)
		r.With(view).Get("/{id}/variance", h.variance)
		r.Post("/{id}/sales", h.sale)
		r.Post("/{id}/refunds", h.refund)
		r.Post("/{id}/close", h.close)
		r.Post("/{id}/reconcile", h.reconcile)
	})
}

type openRequest struct {
	OutletID  int64 `json:"outlet_id" validate:"required,gt=0"`
	CashierID int64 `json:"cashier_id" validate:"omitempty,gt=0"`
}

type saleRequest struct {
	Date        time.Time                     `json:"date" validate:"required"`
	Description string                        `json:"description" validate:"required,max=255"`
	Reference   string                        `json:"reference" validate:"max=64"`
	SourceID    *uuid.UUID                    `json:"source_id"`
	Payments    []PaymentInput                `json:"payments" validate:"required,min=1"`
	Lines       []accounting.PostingLineInput `json:"lines" validate:"required,min=2"`
}

type closeRequest struct {
	DeclaredCash     decimal.Decimal `json:"declared_cash"`
	DeclaredCard     decimal.Decimal `json:"declared_card"`
	DeclaredTransfer decimal.Decimal `json:"declared_transfer"`
	Note             string          `json:"note" validate:"max=500"`
}

type reconcileRequest struct {
	Note string `json:"note" validate:"max=500"`
}

func (h *Handler) open(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, _ := rbac.PrincipalFromContext(r.Context())
	if req.CashierID == 0 {
		req.CashierID = p.ID
	}
	shift, err := h.service.OpenShift(r.Context(), p, OpenInput{OutletID: req.OutletID, CashierID: req.CashierID})
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, shift)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.List(r.Context(), ListFilter{
		OutletID:  httpx.QueryInt64(r, "outlet_id"),
		CashierID: httpx.QueryInt64(r, "cashier_id"),
		Status:    Status(strings.ToUpper(r.URL.Query().Get("status"))),
		Page:      httpx.QueryInt(r, "page", 1),
		PerPage:   httpx.QueryInt(r, "per_page", 20),
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
	shift, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, shift)
}

func (h *Handler) payments(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := h.service.Payments(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	if items == nil {
		items = []Payment{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) variance(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	summary, err := h.service.VarianceSummary(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) sale(w http.ResponseWriter, r *http.Request) {
	h.recordPayment(w, r, h.service.RecordSale)
}

func (h *Handler) refund(w http.ResponseWriter, r *http.Request) {
	h.recordPayment(w, r, h.service.RecordRefund)
}

type recordFunc func(ctx context.Context, actor rbac.Principal, in SaleInput) (Sale, error)

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request, fn recordFunc) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req saleRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := SaleInput{
		ShiftID:     id,
		Date:        req.Date,
		Description: req.Description,
		Reference:   req.Reference,
		Payments:    req.Payments,
		Lines:       req.Lines,
	}
	for i := range in.Payments {
		in.Payments[i].Method = Method(strings.ToUpper(string(in.Payments[i].Method)))
	}
	if req.SourceID != nil {
		in.SourceID = *req.SourceID
	}
	p, _ := rbac.PrincipalFromContext(r.Context())
	sale, err := fn(r.Context(), p, in)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sale)
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req closeRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, _ := rbac.PrincipalFromContext(r.Context())
	declared := Channels{Cash: req.DeclaredCash, Card: req.DeclaredCard, Transfer: req.DeclaredTransfer}
	shift, err := h.service.CloseShift(r.Context(), p, id, declared, req.Note)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, shift)
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req reconcileRequest
	if r.ContentLength > 0 {
		if err := httpx.Bind(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	p, _ := rbac.PrincipalFromContext(r.Context())
	shift, err := h.service.Reconcile(r.Context(), p, id, req.Note)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, shift)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if shared.KindOf(err) == nil {
		h.logger.Error("shift request", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
