package rbac

import (
	"fmt"
	"strings"

	"github.com/odyssey-erp/ledger-core/internal/shared"
)

// ErrUnauthenticated is returned for principals without an identity.
var ErrUnauthenticated = shared.Forbidden("rbac: principal not authenticated")

// RequireAny fails with a forbidden error unless p holds one of perms.
func RequireAny(p Principal, perms ...string) error {
	if !p.Authenticated() {
		return ErrUnauthenticated
	}
	if len(perms) == 0 || p.HasAny(perms...) {
		return nil
	}
	return shared.Forbidden(fmt.Sprintf("rbac: requires one of [%s]", strings.Join(perms, ", ")))
}

// RequireAdmin fails with a forbidden error unless p holds the ADMIN role.
func RequireAdmin(p Principal) error {
	if !p.Authenticated() {
		return ErrUnauthenticated
	}
	if p.IsAdmin() {
		return nil
	}
	return shared.Forbidden("rbac: requires ADMIN role")
}
