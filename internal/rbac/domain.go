package rbac

import "strings"

// RoleAdmin is the role that bypasses permission checks.
const RoleAdmin = "ADMIN"

// Role represents a high-level permission grouping.
type Role struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Principal describes the authenticated actor. Ledger operations receive it
// explicitly; nothing in the core reads it from ambient state.
type Principal struct {
	ID          int64    `json:"id"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

// System returns the principal used by background jobs and migrations.
func System() Principal {
	return Principal{ID: 0, Role: RoleAdmin}
}

// Authenticated reports whether the principal carries an identity or the
// system role.
func (p Principal) Authenticated() bool {
	return p.ID > 0 || p.IsAdmin()
}

// IsAdmin reports whether the principal holds the ADMIN role.
func (p Principal) IsAdmin() bool {
	return strings.EqualFold(strings.TrimSpace(p.Role), RoleAdmin)
}

// Has reports whether the principal was granted perm. Admins hold every permission.
func (p Principal) Has(perm string) bool {
	if p.IsAdmin() {
		return true
	}
	return hasAnyPermission(p.Permissions, normalizePermissions([]string{perm}))
}

// HasAny reports whether at least one of perms was granted.
func (p Principal) HasAny(perms ...string) bool {
	if p.IsAdmin() {
		return true
	}
	return hasAnyPermission(p.Permissions, normalizePermissions(perms))
}
