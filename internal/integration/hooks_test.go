package integration_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger-core/internal/accounting"
	"github.com/odyssey-erp/ledger-core/internal/accounting/accountingtest"
	"github.com/odyssey-erp/ledger-core/internal/accounting/mappings"
	"github.com/odyssey-erp/ledger-core/internal/accounting/mappings/mappingstest"
	"github.com/odyssey-erp/ledger-core/internal/integration"
	"github.com/odyssey-erp/ledger-core/internal/rbac"
	"github.com/odyssey-erp/ledger-core/internal/reconciliation"
	"github.com/odyssey-erp/ledger-core/internal/reconciliation/reconciliationtest"
	"github.com/odyssey-erp/ledger-core/internal/shifts"
	"github.com/odyssey-erp/ledger-core/internal/shifts/shiftstest"
	"github.com/odyssey-erp/ledger-core/internal/subledger"
	"github.com/odyssey-erp/ledger-core/internal/subledger/subledgertest"
)

var day = time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)

func amt(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type env struct {
	ledger   *accountingtest.Store
	sub      *subledgertest.Store
	shiftSvc *shifts.Service
	deposits *reconciliation.Service
	hooks    *integration.Hooks
	accounts map[string]accounting.Account
}

func newEnv() env {
	ledger := accountingtest.NewStore()
	gl := accounting.NewService(ledger, nil)
	sub := subledgertest.NewStore(ledger)
	subSvc := subledger.NewService(sub, gl)
	shiftSvc := shifts.NewService(shiftstest.NewStore(ledger), gl, nil)
	repo := mappingstest.NewRepository()
	resolver := mappings.NewService(repo, ledger)
	deposits := reconciliation.NewService(reconciliationtest.NewStore(sub), gl, subSvc, resolver, nil)

	e := env{ledger: ledger, sub: sub, shiftSvc: shiftSvc, deposits: deposits, accounts: map[string]accounting.Account{}}
	seed := func(name, code string, typ accounting.AccountType) accounting.Account {
		a := ledger.Seed(code, typ, "IDR")
		e.accounts[name] = a
		return a
	}
	repo.Put(mappings.ModuleTreasury, "bank.bca", seed("bank", "1110", accounting.AccountTypeAsset).ID)
	repo.Put(mappings.ModuleExpense, "expense.travel", seed("travel", "6200", accounting.AccountTypeExpense).ID)
	repo.Put(mappings.ModuleSales, integration.KeySalesReceivable, seed("ar", "1300", accounting.AccountTypeAsset).ID)
	repo.Put(mappings.ModuleSales, integration.KeySalesRevenue, seed("revenue", "4100", accounting.AccountTypeIncome).ID)
	repo.Put(mappings.ModuleSales, integration.KeySalesTaxOutput, seed("vat", "2200", accounting.AccountTypeLiability).ID)
	repo.Put(mappings.ModulePurchase, "purchase.supplies", seed("supplies", "6300", accounting.AccountTypeExpense).ID)
	repo.Put(mappings.ModulePurchase, integration.KeyPurchasePayable, seed("ap", "2100", accounting.AccountTypeLiability).ID)
	repo.Put(mappings.ModulePOS, integration.KeyPOSUndeposited, seed("undeposited", "1150", accounting.AccountTypeAsset).ID)
	repo.Put(mappings.ModulePOS, integration.KeyPOSRevenue, e.accounts["revenue"].ID)
	repo.Put(mappings.ModulePOS, integration.KeyPOSTaxOutput, e.accounts["vat"].ID)
	repo.Put(mappings.ModulePayroll, integration.KeyPayrollSalaryExpense, seed("salary", "6100", accounting.AccountTypeExpense).ID)
	repo.Put(mappings.ModulePayroll, integration.KeyPayrollNetPayable, seed("netpay", "2400", accounting.AccountTypeLiability).ID)
	repo.Put(mappings.ModulePayroll, integration.WithholdingKey("pph21"), seed("pph21", "2410", accounting.AccountTypeLiability).ID)
	repo.Put(mappings.ModulePayroll, integration.WithholdingKey("bpjs"), seed("bpjs", "2420", accounting.AccountTypeLiability).ID)

	e.hooks = integration.NewHooks(gl, subSvc, shiftSvc, deposits, resolver)
	return e
}

func (e env) balance(name string) string {
	return e.ledger.Balance(e.accounts[name].ID).String()
}

func TestExpenseRedeliveryPostsOnce(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	evt := integration.ExpenseDisbursedEvent{
		ID: 41, Number: "EXP-41", CategoryKey: "expense.travel", TreasuryKey: "bank.bca", Amount: amt("250000"), PaidAt: day,
	}
	require.NoError(t, e.hooks.HandleExpenseDisbursed(ctx, rbac.System(), evt))
	require.NoError(t, e.hooks.HandleExpenseDisbursed(ctx, rbac.System(), evt))

	require.Equal(t, 1, e.ledger.TransactionCount())
	require.Equal(t, "250000", e.balance("travel"))
	require.Equal(t, "-250000", e.balance("bank"))
}

func TestSalesInvoiceUpdatesCustomerSubledger(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	evt := integration.SalesInvoiceIssuedEvent{ID: 7, Number: "INV-7", CustomerID: 900, IssuedAt: day, Subtotal: amt("1000"), Tax: amt("110")}
	require.NoError(t, e.hooks.HandleSalesInvoiceIssued(ctx, rbac.System(), evt))
	require.NoError(t, e.hooks.HandleSalesInvoiceIssued(ctx, rbac.System(), evt))

	require.Equal(t, "1110", e.balance("ar"))
	require.Equal(t, "1000", e.balance("revenue"))
	require.Equal(t, "110", e.balance("vat"))
	require.Equal(t, 1, e.sub.EntryCount(subledger.KindCustomer, 900))

	bal, err := e.sub.ContactBalance(ctx, subledger.KindCustomer, 900)
	require.NoError(t, err)
	require.Equal(t, "1110", bal.String())
}

func TestVendorBillCreditsVendor(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	evt := integration.VendorBillReceivedEvent{ID: 3, Number: "BILL-3", VendorID: 12, ExpenseKey: "purchase.supplies", ReceivedAt: day, Amount: amt("480.255")}
	require.NoError(t, e.hooks.HandleVendorBillReceived(ctx, rbac.System(), evt))

	require.Equal(t, "480.26", e.balance("ap"))
	bal, err := e.sub.ContactBalance(ctx, subledger.KindVendor, 12)
	require.NoError(t, err)
	require.Equal(t, "-480.26", bal.String())
}

func TestPOSSaleAndRefundFlowThroughShift(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	shift, err := e.shiftSvc.OpenShift(ctx, rbac.System(), shifts.OpenInput{OutletID: 1, CashierID: 5})
	require.NoError(t, err)

	sale := integration.POSSaleEvent{
		ID: 100, ShiftID: shift.ID, Number: "T-100", SoldAt: day, Subtotal: amt("1000"), Tax: amt("100"),
		Payments: []shifts.PaymentInput{{Method: "cash", Amount: amt("600")}, {Method: shifts.MethodCard, Amount: amt("500")}},
	}
	require.NoError(t, e.hooks.HandlePOSSale(ctx, rbac.System(), sale))
	require.NoError(t, e.hooks.HandlePOSSale(ctx, rbac.System(), sale))

	refund := integration.POSSaleEvent{
		ID: 100, ShiftID: shift.ID, Number: "T-100", SoldAt: day, Subtotal: amt("100"), Tax: amt("10"),
		Payments: []shifts.PaymentInput{{Method: shifts.MethodCash, Amount: amt("110")}},
	}
	require.NoError(t, e.hooks.HandlePOSRefund(ctx, rbac.System(), refund))

	require.Equal(t, 2, e.ledger.TransactionCount())
	require.Equal(t, "990", e.balance("undeposited"))
	require.Equal(t, "900", e.balance("revenue"))
	require.Equal(t, "90", e.balance("vat"))

	summary, err := e.shiftSvc.VarianceSummary(ctx, shift.ID)
	require.NoError(t, err)
	require.Equal(t, "490", summary.Channels[0].Expected.String())
	require.Equal(t, "500", summary.Channels[1].Expected.String())
}

func TestWalletTopUpRequestIsPending(t *testing.T) {
	e := newEnv()
	d, err := e.hooks.HandleWalletTopUpRequested(context.Background(), rbac.System(), integration.WalletTopUpRequestedEvent{
		ID: 5, ContactID: 77, Amount: amt("5000"), TargetKey: "bank.bca",
	})
	require.NoError(t, err)
	require.Equal(t, reconciliation.StatusPending, d.Status)
	require.Equal(t, "TOPUP:5", d.Reference)
	require.Zero(t, e.ledger.TransactionCount())
}

func TestPayrollFormatsPostIdentically(t *testing.T) {
	legacy := json.RawMessage(`{"gross": 10000000, "pph21": 500000, "bpjs": "200000", "net": 9300000}`)
	structured := json.RawMessage(`{"version": 2,
		"earnings": [{"code": "BASE", "amount": "9000000"}, {"code": "ALLOWANCE", "amount": "1000000"}],
		"deductions": [{"code": "PPH21", "amount": "500000"}, {"code": "BPJS", "amount": "200000"}],
		"net": "9300000"}`)

	for name, raw := range map[string]json.RawMessage{"legacy": legacy, "structured": structured} {
		t.Run(name, func(t *testing.T) {
			e := newEnv()
			err := e.hooks.HandlePayrollRun(context.Background(), rbac.System(), integration.PayrollRunEvent{
				ID: 2024, Period: "2024-06", PaidAt: day, Breakdown: raw,
			})
			require.NoError(t, err)
			require.Equal(t, "10000000", e.balance("salary"))
			require.Equal(t, "500000", e.balance("pph21"))
			require.Equal(t, "200000", e.balance("bpjs"))
			require.Equal(t, "9300000", e.balance("netpay"))
		})
	}
}

func TestUnmappedKeyFailsBeforePosting(t *testing.T) {
	e := newEnv()
	err := e.hooks.HandleExpenseDisbursed(context.Background(), rbac.System(), integration.ExpenseDisbursedEvent{
		ID: 1, Number: "EXP-1", CategoryKey: "expense.unknown", TreasuryKey: "bank.bca", Amount: amt("10"), PaidAt: day,
	})
	require.ErrorIs(t, err, mappings.ErrMappingNotFound)
	require.Zero(t, e.ledger.TransactionCount())
}
