package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/odyssey-erp/ledger-core/internal/accounting"
	"github.com/odyssey-erp/ledger-core/internal/accounting/mappings"
	"github.com/odyssey-erp/ledger-core/internal/rbac"
	"github.com/odyssey-erp/ledger-core/internal/reconciliation"
	"github.com/odyssey-erp/ledger-core/internal/shared"
	"github.com/odyssey-erp/ledger-core/internal/shifts"
	"github.com/odyssey-erp/ledger-core/internal/subledger"
)

// Ledger exposes posting operations required by integrations.
type Ledger interface {
	PostTransaction(ctx context.Context, actor rbac.Principal, in accounting.PostingInput) (accounting.Transaction, error)
}

// Subledger appends counterparty entries together with their GL posting.
type Subledger interface {
	AppendCustomerEntry(ctx context.Context, actor rbac.Principal, in subledger.AppendInput) (subledger.Entry, error)
	AppendVendorEntry(ctx context.Context, actor rbac.Principal, in subledger.AppendInput) (subledger.Entry, error)
}

// Shifts records point-of-sale tenders against a shift.
type Shifts interface {
	RecordSale(ctx context.Context, actor rbac.Principal, in shifts.SaleInput) (shifts.Sale, error)
	RecordRefund(ctx context.Context, actor rbac.Principal, in shifts.SaleInput) (shifts.Sale, error)
}

// Deposits registers inflows awaiting verification.
type Deposits interface {
	Record(ctx context.Context, actor rbac.Principal, in reconciliation.RecordInput) (reconciliation.Deposit, error)
}

// AccountResolver provides mapping lookups.
type AccountResolver interface {
	Resolve(ctx context.Context, module, key string) (int64, error)
}

// Hooks wires domain events from operational modules into the general ledger.
// Every posting carries a source id derived from the event, so redelivered
// events are acknowledged without posting twice.
type Hooks struct {
	ledger    Ledger
	subledger Subledger
	shifts    Shifts
	deposits  Deposits
	mappings  AccountResolver
}

// NewHooks constructs integration hooks.
func NewHooks(ledger Ledger, sub Subledger, shiftSvc Shifts, deposits Deposits, resolver AccountResolver) *Hooks {
	return &Hooks{ledger: ledger, subledger: sub, shifts: shiftSvc, deposits: deposits, mappings: resolver}
}

func (h *Hooks) resolve(ctx context.Context, module string, keys ...string) ([]int64, error) {
	ids := make([]int64, len(keys))
	for i, key := range keys {
		id, err := h.mappings.Resolve(ctx, module, key)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

// ErrEventDateRequired rejects events without a business date.
var ErrEventDateRequired = shared.Validation("integration: event date required")

func ignoreDuplicate(err error) error {
	if errors.Is(err, accounting.ErrSourceAlreadyLinked) {
		return nil
	}
	return err
}

// HandleExpenseDisbursed debits the expense category and credits the paying
// treasury account.
func (h *Hooks) HandleExpenseDisbursed(ctx context.Context, actor rbac.Principal, evt ExpenseDisbursedEvent) error {
	amount := round2(evt.Amount)
	if amount.IsZero() {
		return nil
	}
	if evt.PaidAt.IsZero() {
		return ErrEventDateRequired
	}
	expense, err := h.mappings.Resolve(ctx, mappings.ModuleExpense, evt.CategoryKey)
	if err != nil {
		return err
	}
	treasury, err := h.mappings.Resolve(ctx, mappings.ModuleTreasury, evt.TreasuryKey)
	if err != nil {
		return err
	}
	memo := evt.Memo
	if memo == "" {
		memo = fmt.Sprintf("Expense %s", evt.Number)
	}
	_, err = h.ledger.PostTransaction(ctx, actor, accounting.PostingInput{
		Date:         evt.PaidAt,
		Description:  memo,
		Reference:    evt.Number,
		SourceModule: accounting.SourceExpense,
		SourceID:     SourceID(kindExpense, evt.ID),
		Lines: []accounting.PostingLineInput{
			accounting.Debit(expense, amount, evt.CategoryKey),
			accounting.Credit(treasury, amount, evt.TreasuryKey),
		},
	})
	return ignoreDuplicate(err)
}

// HandleSalesInvoiceIssued books receivable against revenue and output tax and
// debits the customer's sub-ledger in the same transaction.
func (h *Hooks) HandleSalesInvoiceIssued(ctx context.Context, actor rbac.Principal, evt SalesInvoiceIssuedEvent) error {
	subtotal, tax := round2(evt.Subtotal), round2(evt.Tax)
	total := subtotal.Add(tax)
	if total.IsZero() {
		return nil
	}
	if evt.IssuedAt.IsZero() {
		return ErrEventDateRequired
	}
	ids, err := h.resolve(ctx, mappings.ModuleSales, KeySalesReceivable, KeySalesRevenue, KeySalesTaxOutput)
	if err != nil {
		return err
	}
	lines := []accounting.PostingLineInput{accounting.Debit(ids[0], total, "")}
	if subtotal.IsPositive() {
		lines = append(lines, accounting.Credit(ids[1], subtotal, ""))
	}
	if tax.IsPositive() {
		lines = append(lines, accounting.Credit(ids[2], tax, "VAT output"))
	}
	memo := fmt.Sprintf("Sales Invoice %s", evt.Number)
	_, err = h.subledger.AppendCustomerEntry(ctx, actor, subledger.AppendInput{
		ContactID:   evt.CustomerID,
		Date:        evt.IssuedAt,
		Description: memo,
		Debit:       total,
		Posting: &accounting.PostingInput{
			Date:         evt.IssuedAt,
			Description:  memo,
			Reference:    evt.Number,
			SourceModule: accounting.SourceSales,
			SourceID:     SourceID(kindSalesInv, evt.ID),
			Lines:        lines,
		},
	})
	return ignoreDuplicate(err)
}

// HandleVendorBillReceived books expense against payable and credits the
// vendor's sub-ledger in the same transaction.
func (h *Hooks) HandleVendorBillReceived(ctx context.Context, actor rbac.Principal, evt VendorBillReceivedEvent) error {
	amount := round2(evt.Amount)
	if amount.IsZero() {
		return nil
	}
	if evt.ReceivedAt.IsZero() {
		return ErrEventDateRequired
	}
	ids, err := h.resolve(ctx, mappings.ModulePurchase, evt.ExpenseKey, KeyPurchasePayable)
	if err != nil {
		return err
	}
	memo := fmt.Sprintf("Vendor Bill %s", evt.Number)
	_, err = h.subledger.AppendVendorEntry(ctx, actor, subledger.AppendInput{
		ContactID:   evt.VendorID,
		Date:        evt.ReceivedAt,
		Description: memo,
		Credit:      amount,
		Posting: &accounting.PostingInput{
			Date:         evt.ReceivedAt,
			Description:  memo,
			Reference:    evt.Number,
			SourceModule: accounting.SourcePurchase,
			SourceID:     SourceID(kindVendorBill, evt.ID),
			Lines: []accounting.PostingLineInput{
				accounting.Debit(ids[0], amount, evt.ExpenseKey),
				accounting.Credit(ids[1], amount, ""),
			},
		},
	})
	return ignoreDuplicate(err)
}

// HandlePOSSale debits Undeposited Funds for every tender and credits revenue
// and output tax, recording the tenders against the shift.
func (h *Hooks) HandlePOSSale(ctx context.Context, actor rbac.Principal, evt POSSaleEvent) error {
	in, ok, err := h.posInput(ctx, evt, false)
	if err != nil || !ok {
		return err
	}
	_, err = h.shifts.RecordSale(ctx, actor, in)
	return ignoreDuplicate(err)
}

// HandlePOSRefund reverses the sale-time clearing entry for refunded tenders.
func (h *Hooks) HandlePOSRefund(ctx context.Context, actor rbac.Principal, evt POSSaleEvent) error {
	in, ok, err := h.posInput(ctx, evt, true)
	if err != nil || !ok {
		return err
	}
	_, err = h.shifts.RecordRefund(ctx, actor, in)
	return ignoreDuplicate(err)
}

func (h *Hooks) posInput(ctx context.Context, evt POSSaleEvent, refund bool) (shifts.SaleInput, bool, error) {
	subtotal, tax := round2(evt.Subtotal), round2(evt.Tax)
	total := subtotal.Add(tax)
	if total.IsZero() {
		return shifts.SaleInput{}, false, nil
	}
	if evt.SoldAt.IsZero() {
		return shifts.SaleInput{}, false, ErrEventDateRequired
	}
	ids, err := h.resolve(ctx, mappings.ModulePOS, KeyPOSUndeposited, KeyPOSRevenue, KeyPOSTaxOutput)
	if err != nil {
		return shifts.SaleInput{}, false, err
	}
	clearing := accounting.Debit(ids[0], total, "")
	var income []accounting.PostingLineInput
	if subtotal.IsPositive() {
		income = append(income, accounting.Credit(ids[1], subtotal, ""))
	}
	if tax.IsPositive() {
		income = append(income, accounting.Credit(ids[2], tax, "VAT output"))
	}
	kind, memo := kindPOSSale, fmt.Sprintf("POS Sale %s", evt.Number)
	lines := append([]accounting.PostingLineInput{clearing}, income...)
	if refund {
		kind, memo = kindPOSRefund, fmt.Sprintf("POS Refund %s", evt.Number)
		lines = make([]accounting.PostingLineInput, 0, len(income)+1)
		for _, l := range income {
			lines = append(lines, accounting.Debit(l.AccountID, l.Credit, l.Description))
		}
		lines = append(lines, accounting.Credit(ids[0], total, ""))
	}
	payments := make([]shifts.PaymentInput, len(evt.Payments))
	for i, p := range evt.Payments {
		payments[i] = shifts.PaymentInput{Method: shifts.Method(strings.ToUpper(string(p.Method))), Amount: round2(p.Amount)}
	}
	return shifts.SaleInput{
		ShiftID:     evt.ShiftID,
		Date:        evt.SoldAt,
		Description: memo,
		Reference:   evt.Number,
		SourceID:    SourceID(kind, evt.ID),
		Payments:    payments,
		Lines:       lines,
	}, true, nil
}

// HandleWalletTopUpRequested records a PENDING wallet top-up. Nothing posts
// until a human confirms the deposit.
func (h *Hooks) HandleWalletTopUpRequested(ctx context.Context, actor rbac.Principal, evt WalletTopUpRequestedEvent) (reconciliation.Deposit, error) {
	contactID := evt.ContactID
	return h.deposits.Record(ctx, actor, reconciliation.RecordInput{
		Kind:        reconciliation.KindWalletTopUp,
		ContactID:   &contactID,
		Amount:      round2(evt.Amount),
		Reference:   fmt.Sprintf("%s:%d", kindWalletTopUp, evt.ID),
		EvidenceRef: evt.EvidenceRef,
		TargetKey:   evt.TargetKey,
	})
}

// HandlePayrollRun debits salary expense for gross pay and credits each
// withholding and the net payable.
func (h *Hooks) HandlePayrollRun(ctx context.Context, actor rbac.Principal, evt PayrollRunEvent) error {
	breakdown, err := DecodePayrollBreakdown(evt.Breakdown)
	if err != nil {
		return err
	}
	if evt.PaidAt.IsZero() {
		return ErrEventDateRequired
	}
	ids, err := h.resolve(ctx, mappings.ModulePayroll, KeyPayrollSalaryExpense, KeyPayrollNetPayable)
	if err != nil {
		return err
	}
	lines := []accounting.PostingLineInput{accounting.Debit(ids[0], breakdown.Gross, "gross pay")}
	for _, w := range breakdown.Withholdings {
		if w.Amount.IsZero() {
			continue
		}
		account, err := h.mappings.Resolve(ctx, mappings.ModulePayroll, WithholdingKey(w.Code))
		if err != nil {
			return err
		}
		lines = append(lines, accounting.Credit(account, w.Amount, w.Code))
	}
	if breakdown.Net.IsPositive() {
		lines = append(lines, accounting.Credit(ids[1], breakdown.Net, "net pay"))
	}
	_, err = h.ledger.PostTransaction(ctx, actor, accounting.PostingInput{
		Date:         evt.PaidAt,
		Description:  fmt.Sprintf("Payroll %s", evt.Period),
		Reference:    evt.Period,
		SourceModule: accounting.SourcePayroll,
		SourceID:     SourceID(kindPayrollRun, evt.ID),
		Lines:        lines,
	})
	return ignoreDuplicate(err)
}
