package integration

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger-core/internal/accounting"
)

// Mapping keys resolved by the hooks. Expense categories, treasury accounts and
// purchase expense keys arrive on the event itself.
const (
	KeySalesReceivable = "sales.receivable"
	KeySalesRevenue    = "sales.revenue"
	KeySalesTaxOutput  = "sales.tax_output"

	KeyPurchasePayable = "purchase.payable"

	KeyPOSUndeposited = "pos.undeposited_funds"
	KeyPOSRevenue     = "pos.revenue"
	KeyPOSTaxOutput   = "pos.tax_output"

	KeyPayrollSalaryExpense = "payroll.salary_expense"
	KeyPayrollNetPayable    = "payroll.net_payable"
	keyPayrollWithholding   = "payroll.withholding."
)

// Event kinds used to derive deterministic source ids.
const (
	kindExpense     = "EXPENSE"
	kindSalesInv    = "SALESINV"
	kindVendorBill  = "VENDORBILL"
	kindPOSSale     = "POS_SALE"
	kindPOSRefund   = "POS_REFUND"
	kindPayrollRun  = "PAYROLL"
	kindWalletTopUp = "TOPUP"
)

// SourceID returns the deterministic ledger source id for an event.
func SourceID(kind string, id int64) uuid.UUID {
	return uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("%s:%d", kind, id)))
}

// WithholdingKey is the PAYROLL mapping key for a withholding code.
func WithholdingKey(code string) string {
	return keyPayrollWithholding + code
}

func round2(value decimal.Decimal) decimal.Decimal {
	return value.Round(accounting.AmountScale)
}
