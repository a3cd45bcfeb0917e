package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger-core/internal/accounting"
	"github.com/odyssey-erp/ledger-core/internal/accounting/accountingtest"
	"github.com/odyssey-erp/ledger-core/internal/observability"
	"github.com/odyssey-erp/ledger-core/internal/rbac"
	"github.com/odyssey-erp/ledger-core/internal/shared"
)

type staticResolver map[int64]rbac.Principal

func (s staticResolver) ResolvePrincipal(_ context.Context, id int64) (rbac.Principal, error) {
	p, ok := s[id]
	if !ok {
		return rbac.Principal{}, rbac.ErrNotFound
	}
	return p, nil
}

func newTestRouter(t *testing.T) (http.Handler, *accountingtest.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := accountingtest.NewStore()
	metrics := observability.NewMetrics()
	svc := accounting.NewService(store, nil)
	svc.WithObserver(metrics)
	mw := rbac.Middleware{
		Resolver: staticResolver{
			1: {ID: 1, Role: "FINANCE", Permissions: []string{shared.PermFinanceGLView, shared.PermFinanceAccountsManage, shared.PermFinanceCreate}},
			2: {ID: 2, Role: "CASHIER", Permissions: []string{shared.PermPOSShiftOperate}},
		},
		Header: rbac.DefaultPrincipalHeader,
		Logger: logger,
	}
	router := NewRouter(RouterParams{
		Logger:             logger,
		Config:             &Config{AppEnv: "test"},
		RBACMiddleware:     mw,
		AccountingHandler:  accounting.NewHandler(logger, svc, nil, mw),
		PermissionsHandler: rbac.NewPermissionsHandler(),
		Metrics:            metrics,
	})
	return router, store
}

func do(t *testing.T, h http.Handler, method, path string, user int64, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user > 0 {
		req.Header.Set(rbac.DefaultPrincipalHeader, fmt.Sprint(user))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouterHealthAndMetrics(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := do(t, router, http.MethodGet, "/healthz", 0, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	rr = do(t, router, http.MethodGet, "/metrics", 0, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "odyssey_http_requests_total")

	rr = do(t, router, http.MethodGet, "/nope", 0, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouterAuthenticatesPrincipal(t *testing.T) {
	router, _ := newTestRouter(t)

	require.Equal(t, http.StatusUnauthorized, do(t, router, http.MethodGet, "/api/accounts", 0, nil).Code)
	require.Equal(t, http.StatusUnauthorized, do(t, router, http.MethodGet, "/api/accounts", 99, nil).Code)
	require.Equal(t, http.StatusForbidden, do(t, router, http.MethodGet, "/api/accounts", 2, nil).Code)
	require.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/api/accounts", 1, nil).Code)

	rr := do(t, router, http.MethodGet, "/api/permissions/me", 2, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), shared.PermPOSShiftOperate)
}

func TestRouterManualPostingFlow(t *testing.T) {
	router, store := newTestRouter(t)

	create := func(code, typ string) accounting.Account {
		rr := do(t, router, http.MethodPost, "/api/accounts", 1, map[string]string{
			"code": code, "name": code, "type": typ, "currency": "IDR",
		})
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		var acc accounting.Account
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &acc))
		return acc
	}
	cash := create("1100", "ASSET")
	revenue := create("4100", "INCOME")

	rr := do(t, router, http.MethodPost, "/api/transactions", 2, map[string]any{
		"date": "2024-07-01", "description": "cash sale",
		"lines": []map[string]any{
			{"account_id": cash.ID, "debit": "1000"},
			{"account_id": revenue.ID, "credit": "1000"},
		},
	})
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(t, router, http.MethodPost, "/api/transactions", 2, map[string]any{
		"date": "2024-07-01", "description": "payroll", "source_module": "PAYROLL",
		"lines": []map[string]any{
			{"account_id": cash.ID, "debit": "999"},
			{"account_id": revenue.ID, "credit": "999"},
		},
	})
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Zero(t, store.TransactionCount())

	rr = do(t, router, http.MethodPost, "/api/transactions", 1, map[string]any{
		"date": "2024-07-01", "description": "cash sale",
		"lines": []map[string]any{
			{"account_id": cash.ID, "debit": "1000"},
			{"account_id": revenue.ID, "credit": "1000"},
		},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.Equal(t, "1000", store.Balance(cash.ID).String())
	require.Equal(t, "1000", store.Balance(revenue.ID).String())
	var posted accounting.Transaction
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &posted))
	require.Equal(t, accounting.SourceManual, posted.SourceModule)

	rr = do(t, router, http.MethodPost, "/api/transactions", 1, map[string]any{
		"date": "2024-07-01", "description": "lopsided",
		"lines": []map[string]any{
			{"account_id": cash.ID, "debit": "1000"},
			{"account_id": revenue.ID, "credit": "900"},
		},
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, 1, store.TransactionCount())
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{PGDSN: "postgres://x", AuthPrincipalHeader: "X-User-ID"}
	require.NoError(t, cfg.Validate())

	cfg.AuthPrincipalHeader = ""
	require.Error(t, cfg.Validate())
}
