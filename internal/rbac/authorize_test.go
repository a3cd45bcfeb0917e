package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger-core/internal/shared"
)

func TestRequireAnyGrantsAdminAndMatchingPermission(t *testing.T) {
	admin := Principal{ID: 1, Role: "admin"}
	require.NoError(t, RequireAny(admin, shared.PermFinanceCreate))

	clerk := Principal{ID: 2, Role: "FINANCE", Permissions: []string{"Finance.Create"}}
	require.NoError(t, RequireAny(clerk, shared.PermFinanceCreate))

	cashier := Principal{ID: 3, Role: "CASHIER", Permissions: []string{shared.PermPOSShiftOperate}}
	err := RequireAny(cashier, shared.PermFinanceCreate)
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestRequireAdminRejectsAnonymousAndNonAdmin(t *testing.T) {
	require.ErrorIs(t, RequireAdmin(Principal{}), ErrUnauthenticated)
	require.ErrorIs(t, RequireAdmin(Principal{ID: 9, Role: "FINANCE"}), shared.ErrForbidden)
	require.NoError(t, RequireAdmin(System()))
}

type stubResolver struct {
	principal Principal
	err       error
}

func (s stubResolver) ResolvePrincipal(ctx context.Context, userID int64) (Principal, error) {
	if s.err != nil {
		return Principal{}, s.err
	}
	p := s.principal
	p.ID = userID
	return p, nil
}

func TestMiddlewareAuthenticateAndRequireAny(t *testing.T) {
	mw := Middleware{Resolver: stubResolver{principal: Principal{Role: "FINANCE", Permissions: []string{shared.PermFinanceGLView}}}}
	var seen Principal
	handler := mw.Authenticate(mw.RequireAny(shared.PermFinanceGLView)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(DefaultPrincipalHeader, "42")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, int64(42), seen.ID)

	anonymous := httptest.NewRecorder()
	handler.ServeHTTP(anonymous, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, anonymous.Code)

	unknown := Middleware{Resolver: stubResolver{err: ErrNotFound}}
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(DefaultPrincipalHeader, "7")
	rr = httptest.NewRecorder()
	unknown.Authenticate(http.NotFoundHandler()).ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}
