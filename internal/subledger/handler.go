package subledger

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger-core/internal/accounting"
	"github.com/odyssey-erp/ledger-core/internal/platform/httpx"
	"github.com/odyssey-erp/ledger-core/internal/rbac"
	"github.com/odyssey-erp/ledger-core/internal/shared"
)

// Handler exposes counterparty ledgers.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds the sub-ledger handler.
func NewHandler(logger *slog.Logger, service *Service, rbacMW rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbacMW}
}

// MountRoutes registers /api/contacts routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/api/contacts", func(r chi.Router) {
		r.With(h.rbac.RequireAny(shared.PermFinanceContactLedger, shared.PermFinanceGLView)).Get("/{kind}/{id}/ledger", h.ledger)
		r.Post("/{kind}/{id}/entries", h.appendEntry)
		r.Post("/entries/{entryID}/confirm", h.confirmEntry)
	})
}

type lineRequest struct {
	AccountID   int64           `json:"account_id" validate:"required,gt=0"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description"`
}

type postingRequest struct {
	Reference string        `json:"reference" validate:"max=64"`
	Lines     []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

type appendRequest struct {
	Date        string          `json:"date" validate:"required,datetime=2006-01-02"`
	Description string          `json:"description" validate:"required,max=255"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Posting     *postingRequest `json:"posting"`
}

type confirmRequest struct {
	Date        string         `json:"date" validate:"required,datetime=2006-01-02"`
	Description string         `json:"description" validate:"required,max=255"`
	Posting     postingRequest `json:"posting"`
}

func (p postingRequest) toInput(date time.Time, description string) accounting.PostingInput {
	in := accounting.PostingInput{
		Date:         date,
		Description:  description,
		Reference:    p.Reference,
		SourceModule: accounting.SourceContact,
	}
	for _, l := range p.Lines {
		in.Lines = append(in.Lines, accounting.PostingLineInput(l))
	}
	return in
}

func (h *Handler) ledger(w http.ResponseWriter, r *http.Request) {
	kind, err := ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	contactID, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	view, err := h.service.Ledger(r.Context(), kind, contactID, httpx.QueryInt(r, "page", 1), httpx.QueryInt(r, "per_page", 50))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) appendEntry(w http.ResponseWriter, r *http.Request) {
	kind, err := ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	contactID, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req appendRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	date, _ := time.Parse("2006-01-02", req.Date)
	in := AppendInput{
		ContactID:   contactID,
		Date:        date,
		Description: req.Description,
		Debit:       req.Debit,
		Credit:      req.Credit,
	}
	if req.Posting != nil {
		posting := req.Posting.toInput(date, req.Description)
		in.Posting = &posting
	}
	p, _ := rbac.PrincipalFromContext(r.Context())
	var entry Entry
	if kind == KindCustomer {
		entry, err = h.service.AppendCustomerEntry(r.Context(), p, in)
	} else {
		entry, err = h.service.AppendVendorEntry(r.Context(), p, in)
	}
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) confirmEntry(w http.ResponseWriter, r *http.Request) {
	entryID, err := httpx.URLParamInt64(r, "entryID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req confirmRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	date, _ := time.Parse("2006-01-02", req.Date)
	p, _ := rbac.PrincipalFromContext(r.Context())
	entry, err := h.service.ConfirmEntry(r.Context(), p, entryID, req.Posting.toInput(date, req.Description))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if shared.KindOf(err) == nil {
		h.logger.Error("subledger request", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
