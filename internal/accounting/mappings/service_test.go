package mappings_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger-core/internal/accounting"
	"github.com/odyssey-erp/ledger-core/internal/accounting/accountingtest"
	"github.com/odyssey-erp/ledger-core/internal/accounting/mappings"
	"github.com/odyssey-erp/ledger-core/internal/accounting/mappings/mappingstest"
	"github.com/odyssey-erp/ledger-core/internal/rbac"
	"github.com/odyssey-erp/ledger-core/internal/shared"
)

func TestTreasurySubAccountsNeedDistinctGLAccounts(t *testing.T) {
	ctx := context.Background()
	ledger := accountingtest.NewStore()
	bank := ledger.Seed("1110", accounting.AccountTypeAsset, "IDR")
	wallet := ledger.Seed("1120", accounting.AccountTypeAsset, "IDR")
	equity := ledger.Seed("3100", accounting.AccountTypeEquity, "IDR")
	svc := mappings.NewService(mappingstest.NewRepository(), ledger)
	admin := rbac.System()

	bca, err := svc.Create(ctx, admin, mappings.CreateInput{Module: "treasury", Key: "bank.bca", AccountID: bank.ID})
	require.NoError(t, err)
	require.Equal(t, mappings.ModuleTreasury, bca.Module)

	_, err = svc.Create(ctx, admin, mappings.CreateInput{Module: mappings.ModuleTreasury, Key: "bank.mandiri", AccountID: bank.ID})
	require.ErrorIs(t, err, mappings.ErrSharedAccount)
	require.ErrorIs(t, err, shared.ErrConflict)

	_, err = svc.Create(ctx, admin, mappings.CreateInput{Module: mappings.ModuleTreasury, Key: "owner.capital", AccountID: equity.ID})
	require.ErrorIs(t, err, mappings.ErrTreasuryType)

	// Non-treasury keys may share targets.
	_, err = svc.Create(ctx, admin, mappings.CreateInput{Module: mappings.ModuleDeposit, Key: "deposit.simulated", AccountID: equity.ID})
	require.NoError(t, err)
	_, err = svc.Create(ctx, admin, mappings.CreateInput{Module: mappings.ModuleSales, Key: "sales.equity", AccountID: equity.ID})
	require.NoError(t, err)

	ovo, err := svc.Create(ctx, admin, mappings.CreateInput{Module: mappings.ModuleTreasury, Key: "wallet.ovo", AccountID: wallet.ID})
	require.NoError(t, err)
	_, err = svc.Reassign(ctx, admin, ovo.ID, bank.ID)
	require.ErrorIs(t, err, mappings.ErrSharedAccount)
	_, err = svc.Reassign(ctx, admin, bca.ID, bank.ID)
	require.NoError(t, err)

	id, err := svc.Resolve(ctx, "TREASURY", "wallet.ovo")
	require.NoError(t, err)
	require.Equal(t, wallet.ID, id)

	_, err = svc.Resolve(ctx, mappings.ModuleTreasury, "bank.bri")
	require.ErrorIs(t, err, mappings.ErrMappingNotFound)

	items, err := svc.List(ctx, mappings.ModuleTreasury)
	require.NoError(t, err)
	require.Len(t, items, 2)
}

func TestCreateMappingValidation(t *testing.T) {
	ctx := context.Background()
	ledger := accountingtest.NewStore()
	cash := ledger.Seed("1100", accounting.AccountTypeAsset, "IDR")
	svc := mappings.NewService(mappingstest.NewRepository(), ledger)

	_, err := svc.Create(ctx, rbac.Principal{ID: 4, Role: "CASHIER"}, mappings.CreateInput{Module: "POS", Key: "pos.cash", AccountID: cash.ID})
	require.ErrorIs(t, err, mappings.ErrManageForbidden)

	_, err = svc.Create(ctx, rbac.System(), mappings.CreateInput{Module: "POS", Key: " ", AccountID: cash.ID})
	require.ErrorIs(t, err, mappings.ErrInvalidMapping)

	_, err = svc.Create(ctx, rbac.System(), mappings.CreateInput{Module: "POS", Key: "pos.cash", AccountID: 404})
	require.ErrorIs(t, err, accounting.ErrUnknownAccount)

	_, err = svc.Create(ctx, rbac.System(), mappings.CreateInput{Module: "POS", Key: "pos.cash", AccountID: cash.ID})
	require.NoError(t, err)
	_, err = svc.Create(ctx, rbac.System(), mappings.CreateInput{Module: "pos", Key: "pos.cash", AccountID: cash.ID})
	require.ErrorIs(t, err, mappings.ErrDuplicateKey)
}
