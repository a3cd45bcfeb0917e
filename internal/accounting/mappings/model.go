package mappings

import (
	"time"

	"github.com/odyssey-erp/ledger-core/internal/shared"
)

// Mapping modules. TREASURY holds operational sub-accounts (cash drawers,
// bank accounts, wallets); every other module maps integration keys.
const (
	ModuleTreasury = "TREASURY"
	ModuleDeposit  = "DEPOSIT"
	ModuleSales    = "SALES"
	ModulePurchase = "PURCHASE"
	ModuleExpense  = "EXPENSE"
	ModulePOS      = "POS"
	ModulePayroll  = "PAYROLL"
)

// AccountMapping links integration keys to ledger accounts.
type AccountMapping struct {
	ID          int64     `json:"id"`
	Module      string    `json:"module"`
	Key         string    `json:"key"`
	AccountID   int64     `json:"account_id"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateInput registers a new mapping.
type CreateInput struct {
	Module      string
	Key         string
	AccountID   int64
	Description string
}

var (
	ErrMappingNotFound = shared.NotFound("mappings: account mapping not found")
	ErrDuplicateKey    = shared.Conflict("mappings: module and key already mapped")
	// ErrSharedAccount rejects two operational sub-accounts pointing at one GL account.
	ErrSharedAccount   = shared.Conflict("mappings: GL account already backs another treasury sub-account")
	ErrInvalidMapping  = shared.Validation("mappings: module, key and account required")
	ErrTreasuryType    = shared.Validation("mappings: treasury sub-accounts must map to an asset account")
	ErrManageForbidden = shared.Forbidden("mappings: requires finance.mappings.manage")
)
