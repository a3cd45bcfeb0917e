package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/ledger-core/internal/shared"
)

// ErrNotFound indicates that the requested record does not exist.
var ErrNotFound = shared.NotFound("rbac: not found")

// Service resolves principals from the role and permission tables.
type Service struct {
	pool *pgxpool.Pool
}

// NewService constructs a Service backed by the provided pool.
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// ResolvePrincipal loads the role and effective permissions of userID.
func (s *Service) ResolvePrincipal(ctx context.Context, userID int64) (Principal, error) {
	if s == nil || s.pool == nil {
		return Principal{}, errors.New("rbac: service not initialised")
	}
	roles, err := s.UserRoles(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	if len(roles) == 0 {
		return Principal{}, ErrNotFound
	}
	perms, err := s.EffectivePermissions(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	p := Principal{ID: userID, Role: roles[0].Name, Permissions: perms}
	for _, role := range roles {
		if role.Name == RoleAdmin {
			p.Role = RoleAdmin
			break
		}
	}
	return p, nil
}

// UserRoles lists roles assigned to userID ordered by name.
func (s *Service) UserRoles(ctx context.Context, userID int64) ([]Role, error) {
	rows, err := s.pool.Query(ctx, `SELECT r.id, r.name, r.description
FROM user_roles ur JOIN roles r ON r.id = ur.role_id
WHERE ur.user_id = $1 ORDER BY r.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("rbac: user roles: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Role, error) {
		var r Role
		err := row.Scan(&r.ID, &r.Name, &r.Description)
		return r, err
	})
}

// EffectivePermissions returns deduplicated permission names for a user.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT p.name
FROM user_roles ur
JOIN role_permissions rp ON rp.role_id = ur.role_id
JOIN permissions p ON p.id = rp.permission_id
WHERE ur.user_id = $1 ORDER BY p.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("rbac: effective permissions: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
