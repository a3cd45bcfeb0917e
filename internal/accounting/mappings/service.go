package mappings

import (
	"context"
	"fmt"
	"strings"

	"github.com/odyssey-erp/ledger-core/internal/accounting"
	"github.com/odyssey-erp/ledger-core/internal/rbac"
	"github.com/odyssey-erp/ledger-core/internal/shared"
)

// AccountLookup verifies mapping targets.
type AccountLookup interface {
	GetAccount(ctx context.Context, id int64) (accounting.Account, error)
}

// Service manages mappings from operational sub-accounts and integration keys
// to GL accounts.
type Service struct {
	repo     Repository
	accounts AccountLookup
}

// NewService constructs the mapping service.
func NewService(repo Repository, accounts AccountLookup) *Service {
	return &Service{repo: repo, accounts: accounts}
}

// Resolve returns the GL account id mapped to module/key.
func (s *Service) Resolve(ctx context.Context, module, key string) (int64, error) {
	m, err := s.repo.Get(ctx, strings.ToUpper(strings.TrimSpace(module)), strings.TrimSpace(key))
	if err != nil {
		return 0, fmt.Errorf("%w: %s/%s", err, module, key)
	}
	return m.AccountID, nil
}

// List returns mappings, optionally narrowed to one module.
func (s *Service) List(ctx context.Context, module string) ([]AccountMapping, error) {
	return s.repo.List(ctx, strings.ToUpper(strings.TrimSpace(module)))
}

// Create registers a mapping. Treasury sub-accounts must point at an asset
// account that no other treasury sub-account uses.
func (s *Service) Create(ctx context.Context, actor rbac.Principal, in CreateInput) (AccountMapping, error) {
	if err := rbac.RequireAny(actor, shared.PermFinanceMappingsManage); err != nil {
		return AccountMapping{}, ErrManageForbidden
	}
	in.Module = strings.ToUpper(strings.TrimSpace(in.Module))
	in.Key = strings.TrimSpace(in.Key)
	in.Description = strings.TrimSpace(in.Description)
	if in.Module == "" || in.Key == "" || in.AccountID <= 0 {
		return AccountMapping{}, ErrInvalidMapping
	}
	if err := s.checkTarget(ctx, in.Module, 0, in.AccountID); err != nil {
		return AccountMapping{}, err
	}
	return s.repo.Insert(ctx, in)
}

// Reassign points an existing mapping at another GL account.
func (s *Service) Reassign(ctx context.Context, actor rbac.Principal, id, accountID int64) (AccountMapping, error) {
	if err := rbac.RequireAny(actor, shared.PermFinanceMappingsManage); err != nil {
		return AccountMapping{}, ErrManageForbidden
	}
	if accountID <= 0 {
		return AccountMapping{}, ErrInvalidMapping
	}
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return AccountMapping{}, err
	}
	if err := s.checkTarget(ctx, current.Module, current.ID, accountID); err != nil {
		return AccountMapping{}, err
	}
	return s.repo.UpdateAccount(ctx, id, accountID)
}

func (s *Service) checkTarget(ctx context.Context, module string, selfID, accountID int64) error {
	acc, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if module != ModuleTreasury {
		return nil
	}
	if acc.Type != accounting.AccountTypeAsset {
		return ErrTreasuryType
	}
	existing, err := s.repo.FindByAccount(ctx, ModuleTreasury, accountID)
	if err != nil {
		return err
	}
	for _, m := range existing {
		if m.ID != selfID {
			return fmt.Errorf("%w: %s", ErrSharedAccount, m.Key)
		}
	}
	return nil
}
