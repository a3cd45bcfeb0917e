package subledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger-core/internal/accounting"
	"github.com/odyssey-erp/ledger-core/internal/accounting/accountingtest"
	"github.com/odyssey-erp/ledger-core/internal/rbac"
	"github.com/odyssey-erp/ledger-core/internal/shared"
	"github.com/odyssey-erp/ledger-core/internal/subledger"
	"github.com/odyssey-erp/ledger-core/internal/subledger/subledgertest"
)

var day = time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)

func amt(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type env struct {
	ledger     *accountingtest.Store
	store      *subledgertest.Store
	gl         *accounting.Service
	svc        *subledger.Service
	receivable accounting.Account
	payable    accounting.Account
	revenue    accounting.Account
	expense    accounting.Account
}

func newEnv() env {
	ledger := accountingtest.NewStore()
	gl := accounting.NewService(ledger, nil)
	store := subledgertest.NewStore(ledger)
	return env{
		ledger:     ledger,
		store:      store,
		gl:         gl,
		svc:        subledger.NewService(store, gl),
		receivable: ledger.Seed("1300", accounting.AccountTypeAsset, "IDR"),
		payable:    ledger.Seed("2100", accounting.AccountTypeLiability, "IDR"),
		revenue:    ledger.Seed("4100", accounting.AccountTypeIncome, "IDR"),
		expense:    ledger.Seed("6100", accounting.AccountTypeExpense, "IDR"),
	}
}

func posting(source string, lines ...accounting.PostingLineInput) *accounting.PostingInput {
	return &accounting.PostingInput{Date: day, Description: "invoice", SourceModule: source, Lines: lines}
}

func TestCustomerEntryCommitsWithGLPosting(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	entry, err := e.svc.AppendCustomerEntry(ctx, rbac.System(), subledger.AppendInput{
		ContactID:   11,
		Date:        day,
		Description: "INV-001",
		Debit:       amt("1100"),
		Posting: posting(accounting.SourceSales,
			accounting.Debit(e.receivable.ID, amt("1100"), ""),
			accounting.Credit(e.revenue.ID, amt("1100"), ""),
		),
	})
	require.NoError(t, err)
	require.Equal(t, subledger.StatusConfirmed, entry.Status)
	require.NotNil(t, entry.TransactionID)
	require.Equal(t, "1100", entry.BalanceAfter.String())
	require.Equal(t, "1100", e.ledger.Balance(e.receivable.ID).String())

	view, err := e.svc.Ledger(ctx, subledger.KindCustomer, 11, 1, 20)
	require.NoError(t, err)
	require.Equal(t, "1100", view.Balance.String())
	require.Len(t, view.Entries, 1)
}

func TestPendingEntryHasNoEffectUntilConfirmed(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	pending, err := e.svc.AppendCustomerEntry(ctx, rbac.System(), subledger.AppendInput{
		ContactID: 12, Date: day, Description: "credit note", Credit: amt("400"),
	})
	require.NoError(t, err)
	require.Equal(t, subledger.StatusPending, pending.Status)
	require.True(t, pending.BalanceAfter.IsZero())
	require.Zero(t, e.ledger.TransactionCount())

	view, err := e.svc.Ledger(ctx, subledger.KindCustomer, 12, 1, 20)
	require.NoError(t, err)
	require.True(t, view.Balance.IsZero())

	confirmed, err := e.svc.ConfirmEntry(ctx, rbac.System(), pending.ID, *posting(accounting.SourceContact,
		accounting.Debit(e.revenue.ID, amt("400"), ""),
		accounting.Credit(e.receivable.ID, amt("400"), ""),
	))
	require.NoError(t, err)
	require.Equal(t, subledger.StatusConfirmed, confirmed.Status)
	require.Equal(t, "-400", confirmed.BalanceAfter.String())
	require.Equal(t, 1, e.ledger.TransactionCount())

	_, err = e.svc.ConfirmEntry(ctx, rbac.System(), pending.ID, *posting(accounting.SourceContact,
		accounting.Debit(e.revenue.ID, amt("400"), ""),
		accounting.Credit(e.receivable.ID, amt("400"), ""),
	))
	require.ErrorIs(t, err, subledger.ErrAlreadyConfirmed)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Equal(t, 1, e.ledger.TransactionCount())
}

func TestFailedPostingLeavesNoSubledgerEntry(t *testing.T) {
	e := newEnv()
	_, err := e.svc.AppendCustomerEntry(context.Background(), rbac.System(), subledger.AppendInput{
		ContactID: 13, Date: day, Description: "INV-404", Debit: amt("50"),
		Posting: posting(accounting.SourceSales,
			accounting.Debit(e.receivable.ID, amt("50"), ""),
			accounting.Credit(777, amt("50"), ""),
		),
	})
	require.ErrorIs(t, err, accounting.ErrUnknownAccount)
	require.Zero(t, e.store.EntryCount(subledger.KindCustomer, 13))
	require.Zero(t, e.ledger.TransactionCount())
	require.True(t, e.ledger.Balance(e.receivable.ID).IsZero())
}

func TestVendorBalanceIsInverseOfPayable(t *testing.T) {
	e := newEnv()
	entry, err := e.svc.AppendVendorEntry(context.Background(), rbac.System(), subledger.AppendInput{
		ContactID: 21, Date: day, Description: "BILL-9", Credit: amt("500"),
		Posting: posting(accounting.SourcePurchase,
			accounting.Debit(e.expense.ID, amt("500"), ""),
			accounting.Credit(e.payable.ID, amt("500"), ""),
		),
	})
	require.NoError(t, err)
	require.Equal(t, "-500", entry.BalanceAfter.String())
	require.Equal(t, "500", e.ledger.Balance(e.payable.ID).String())
}

func TestLedgerIsChronologicalWithSnapshots(t *testing.T) {
	e := newEnv()
	ctx := context.Background()
	for i, debit := range []string{"100", "250.25"} {
		_, err := e.svc.AppendCustomerEntry(ctx, rbac.System(), subledger.AppendInput{
			ContactID: 30, Date: day.AddDate(0, 0, i), Description: "sale", Debit: amt(debit),
			Posting: posting(accounting.SourceSales,
				accounting.Debit(e.receivable.ID, amt(debit), ""),
				accounting.Credit(e.revenue.ID, amt(debit), ""),
			),
		})
		require.NoError(t, err)
	}
	view, err := e.svc.Ledger(ctx, subledger.KindCustomer, 30, 1, 20)
	require.NoError(t, err)
	require.Equal(t, "100", view.Entries[0].BalanceAfter.String())
	require.Equal(t, "350.25", view.Entries[1].BalanceAfter.String())
	require.Equal(t, 2, view.Pagination.Total)
}

func TestAppendValidationAndAuthorization(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	_, err := e.svc.AppendCustomerEntry(ctx, rbac.System(), subledger.AppendInput{ContactID: 1, Date: day, Description: "x", Debit: amt("1"), Credit: amt("1")})
	require.ErrorIs(t, err, subledger.ErrInvalidAmounts)

	_, err = e.svc.AppendCustomerEntry(ctx, rbac.System(), subledger.AppendInput{Date: day, Description: "x", Debit: amt("1")})
	require.ErrorIs(t, err, subledger.ErrContactRequired)

	_, err = e.svc.AppendCustomerEntry(ctx, rbac.Principal{ID: 4, Role: "CASHIER"}, subledger.AppendInput{ContactID: 1, Date: day, Description: "x", Debit: amt("1")})
	require.ErrorIs(t, err, shared.ErrForbidden)

	_, err = e.svc.Ledger(ctx, subledger.Kind("SUPPLIER"), 1, 1, 10)
	require.ErrorIs(t, err, subledger.ErrInvalidKind)
}

func TestPostingMustMatchEntryAmount(t *testing.T) {
	e := newEnv()
	ctx := context.Background()

	pending, err := e.svc.AppendCustomerEntry(ctx, rbac.System(), subledger.AppendInput{
		ContactID: 40, Date: day, Description: "INV-040", Debit: amt("100"),
	})
	require.NoError(t, err)

	_, err = e.svc.ConfirmEntry(ctx, rbac.System(), pending.ID, *posting(accounting.SourceContact,
		accounting.Debit(e.receivable.ID, amt("5"), ""),
		accounting.Credit(e.revenue.ID, amt("5"), ""),
	))
	require.ErrorIs(t, err, subledger.ErrPostingMismatch)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Zero(t, e.ledger.TransactionCount())
	bal, err := e.store.ContactBalance(ctx, subledger.KindCustomer, 40)
	require.NoError(t, err)
	require.True(t, bal.IsZero())

	_, err = e.svc.AppendVendorEntry(ctx, rbac.System(), subledger.AppendInput{
		ContactID: 41, Date: day, Description: "BILL-041", Credit: amt("300"),
		Posting: posting(accounting.SourcePurchase,
			accounting.Debit(e.expense.ID, amt("299.99"), ""),
			accounting.Credit(e.payable.ID, amt("299.99"), ""),
		),
	})
	require.ErrorIs(t, err, subledger.ErrPostingMismatch)
	require.Zero(t, e.store.EntryCount(subledger.KindVendor, 41))
	require.Zero(t, e.ledger.TransactionCount())

	confirmed, err := e.svc.ConfirmEntry(ctx, rbac.System(), pending.ID, *posting(accounting.SourceContact,
		accounting.Debit(e.receivable.ID, amt("100"), ""),
		accounting.Credit(e.revenue.ID, amt("100"), ""),
	))
	require.NoError(t, err)
	require.Equal(t, "100", confirmed.BalanceAfter.String())
	require.Equal(t, "100", e.ledger.Balance(e.receivable.ID).String())
}
