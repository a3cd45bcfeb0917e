package accounting

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger-core/internal/platform/httpx"
	"github.com/odyssey-erp/ledger-core/internal/rbac"
	"github.com/odyssey-erp/ledger-core/internal/shared"
)

// IdempotencyHeader lets clients retry a manual posting safely.
const IdempotencyHeader = "Idempotency-Key"

const idempotencyModule = "ledger.post"

// IdempotencyPort claims request keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// Handler wires ledger endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	idem    IdempotencyPort
	rbac    rbac.Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, idem IdempotencyPort, rbacMW rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, idem: idem, rbac: rbacMW}
}

// MountRoutes registers HTTP routes for the ledger module.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/api/accounts", func(r chi.Router) {
		r.With(h.rbac.RequireAny(shared.PermFinanceGLView)).Get("/", h.listAccounts)
		r.Post("/", h.createAccount)
		r.With(h.rbac.RequireAny(shared.PermFinanceGLView)).Get("/{id}", h.getAccount)
		r.With(h.rbac.RequireAny(shared.PermFinanceGLView)).Get("/{id}/balance", h.accountBalance)
		r.Post("/{id}/disable", h.disableAccount)
		r.Post("/{id}/enable", h.enableAccount)
	})
	r.Route("/api/transactions", func(r chi.Router) {
		r.With(h.rbac.RequireAny(shared.PermFinanceGLView)).Get("/", h.listTransactions)
		r.Post("/", h.postTransaction)
		r.With(h.rbac.RequireAny(shared.PermFinanceGLView)).Get("/{id}", h.getTransaction)
		r.Post("/{id}/reverse", h.reverseTransaction)
	})
	r.With(h.rbac.RequireAny(shared.PermFinanceGLView)).Get("/api/reports/trial-balance", h.trialBalance)
	r.Get("/api/ledger/integrity", h.verifyLedger)
}

type createAccountRequest struct {
	Code     string       `json:"code" validate:"required,max=32"`
	Name     string       `json:"name" validate:"required,max=128"`
	Type     string       `json:"type" validate:"required"`
	Currency string       `json:"currency" validate:"required,len=3"`
	Bank     *BankDetails `json:"bank,omitempty"`
}

type postingLineRequest struct {
	AccountID   int64           `json:"account_id" validate:"required,gt=0"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description"`
}

type postTransactionRequest struct {
	Date        string               `json:"date" validate:"required,datetime=2006-01-02"`
	Description string               `json:"description" validate:"required,max=255"`
	Reference   string               `json:"reference" validate:"max=64"`
	SourceID    *uuid.UUID           `json:"source_id"`
	Lines       []postingLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type reverseRequest struct {
	Memo string `json:"memo" validate:"max=255"`
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	typ, err := ParseAccountType(req.Type)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	acc, err := h.service.CreateAccount(r.Context(), principal(r), CreateAccountInput{
		Code:     req.Code,
		Name:     req.Name,
		Type:     typ,
		Currency: req.Currency,
		Bank:     req.Bank,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, acc)
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	filter := AccountFilter{Type: AccountType(strings.ToUpper(r.URL.Query().Get("type")))}
	if raw := r.URL.Query().Get("enabled"); raw != "" {
		enabled := raw == "true" || raw == "1"
		filter.Enabled = &enabled
	}
	accounts, err := h.service.ListAccounts(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if accounts == nil {
		accounts = []Account{}
	}
	httpx.JSON(w, http.StatusOK, accounts)
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	acc, err := h.service.GetAccount(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, acc)
}

func (h *Handler) accountBalance(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	bal, err := h.service.AccountBalance(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bal)
}

func (h *Handler) disableAccount(w http.ResponseWriter, r *http.Request) {
	h.toggleAccount(w, r, h.service.DisableAccount)
}

func (h *Handler) enableAccount(w http.ResponseWriter, r *http.Request) {
	h.toggleAccount(w, r, h.service.EnableAccount)
}

func (h *Handler) toggleAccount(w http.ResponseWriter, r *http.Request, fn func(context.Context, rbac.Principal, int64) (Account, error)) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	acc, err := fn(r.Context(), principal(r), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, acc)
}

func (h *Handler) postTransaction(w http.ResponseWriter, r *http.Request) {
	var req postTransactionRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	date, _ := time.Parse("2006-01-02", req.Date)
	in := PostingInput{
		Date:         date,
		Description:  req.Description,
		Reference:    req.Reference,
		SourceModule: SourceManual,
		Lines:        make([]PostingLineInput, 0, len(req.Lines)),
	}
	if req.SourceID != nil {
		in.SourceID = *req.SourceID
	}
	for _, line := range req.Lines {
		in.Lines = append(in.Lines, PostingLineInput(line))
	}

	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	if key != "" && h.idem != nil {
		if err := h.idem.CheckAndInsert(r.Context(), key, idempotencyModule); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	txn, err := h.service.PostTransaction(r.Context(), principal(r), in)
	if err != nil {
		if key != "" && h.idem != nil {
			_ = h.idem.Delete(r.Context(), key, idempotencyModule)
		}
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, txn)
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.ListTransactions(r.Context(), TransactionFilter{
		Page:         httpx.QueryInt(r, "page", 1),
		PerPage:      httpx.QueryInt(r, "per_page", 20),
		AccountID:    httpx.QueryInt64(r, "account_id"),
		SourceModule: r.URL.Query().Get("source_module"),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) getTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	txn, err := h.service.GetTransaction(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txn)
}

func (h *Handler) reverseTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req reverseRequest
	if r.ContentLength > 0 {
		if err := httpx.Bind(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	txn, err := h.service.ReverseTransaction(r.Context(), principal(r), id, req.Memo)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, txn)
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	tb, err := h.service.TrialBalance(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tb)
}

func (h *Handler) verifyLedger(w http.ResponseWriter, r *http.Request) {
	if err := rbac.RequireAdmin(principal(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	report, err := h.service.VerifyLedger(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	if shared.KindOf(err) == nil && h.logger != nil {
		h.logger.Error("ledger request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func principal(r *http.Request) rbac.Principal {
	p, _ := rbac.PrincipalFromContext(r.Context())
	return p
}
