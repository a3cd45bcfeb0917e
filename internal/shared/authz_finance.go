package shared

// Finance permissions declared for RBAC.
const (
	PermFinanceGLView         = "finance.gl.view"
	PermFinanceCreate         = "finance.create"
	PermFinanceAccountsManage = "finance.accounts.manage"
	PermFinanceMappingsManage = "finance.mappings.manage"
	PermFinanceContactLedger  = "finance.contact_ledger.edit"
	PermFinanceDepositRecord  = "finance.deposit.record"
	PermFinanceDepositConfirm = "finance.deposit.confirm"
	PermFinanceIntegrations   = "finance.integrations.post"
)

// FinanceScopes lists all permissions related to the finance module.
func FinanceScopes() []string {
	return []string{
		PermFinanceGLView,
		PermFinanceCreate,
		PermFinanceAccountsManage,
		PermFinanceMappingsManage,
		PermFinanceContactLedger,
		PermFinanceDepositRecord,
		PermFinanceDepositConfirm,
		PermFinanceIntegrations,
	}
}
