package accounting_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger-core/internal/accounting"
	"github.com/odyssey-erp/ledger-core/internal/accounting/accountingtest"
	"github.com/odyssey-erp/ledger-core/internal/platform/cache"
	"github.com/odyssey-erp/ledger-core/internal/rbac"
	"github.com/odyssey-erp/ledger-core/internal/shared"
)

var postedOn = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixture struct {
	store   *accountingtest.Store
	audit   *accountingtest.AuditRecorder
	svc     *accounting.Service
	cash    accounting.Account
	revenue accounting.Account
	expense accounting.Account
	payable accounting.Account
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := accountingtest.NewStore()
	audit := &accountingtest.AuditRecorder{}
	svc := accounting.NewService(store, audit)
	svc.WithNow(func() time.Time { return postedOn })
	return fixture{
		store:   store,
		audit:   audit,
		svc:     svc,
		cash:    store.Seed("1100", accounting.AccountTypeAsset, "IDR"),
		revenue: store.Seed("4100", accounting.AccountTypeIncome, "IDR"),
		expense: store.Seed("6100", accounting.AccountTypeExpense, "IDR"),
		payable: store.Seed("2100", accounting.AccountTypeLiability, "IDR"),
	}
}

func (f fixture) post(t *testing.T, source string, lines ...accounting.PostingLineInput) accounting.Transaction {
	t.Helper()
	txn, err := f.svc.PostTransaction(context.Background(), rbac.System(), accounting.PostingInput{
		Date:         postedOn,
		Description:  "test posting",
		SourceModule: source,
		Lines:        lines,
	})
	require.NoError(t, err)
	return txn
}

func requireReaggregated(t *testing.T, svc *accounting.Service) {
	t.Helper()
	report, err := svc.VerifyLedger(context.Background())
	require.NoError(t, err)
	require.True(t, report.Clean(), "drifts=%v unbalanced=%v", report.Drifts, report.Unbalanced)
}

func TestPostCashSaleUpdatesBothNormalBalances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	txn := f.post(t, accounting.SourceManual,
		accounting.Debit(f.cash.ID, amount("100000"), "cash in"),
		accounting.Credit(f.revenue.ID, amount("100000"), "sale"),
	)
	require.Len(t, txn.Entries, 2)
	require.Equal(t, accounting.TransactionStatusPosted, txn.Status)

	cash, err := f.svc.AccountBalance(ctx, f.cash.ID)
	require.NoError(t, err)
	require.Equal(t, "100000", cash.Balance.String())
	require.Equal(t, accounting.DirectionDebit, cash.NormalBalance)

	revenue, err := f.svc.AccountBalance(ctx, f.revenue.ID)
	require.NoError(t, err)
	require.Equal(t, "100000", revenue.Balance.String())

	second := f.post(t, accounting.SourceManual,
		accounting.Debit(f.expense.ID, amount("250.50"), ""),
		accounting.Credit(f.cash.ID, amount("250.50"), ""),
	)

	page, err := f.svc.ListTransactions(ctx, accounting.TransactionFilter{})
	require.NoError(t, err)
	require.Equal(t, 2, page.Pagination.Total)
	require.Equal(t, second.ID, page.Items[0].ID)
	require.Equal(t, txn.ID, page.Items[1].ID)

	byAccount, err := f.svc.ListTransactions(ctx, accounting.TransactionFilter{AccountID: &f.revenue.ID})
	require.NoError(t, err)
	require.Len(t, byAccount.Items, 1)

	requireReaggregated(t, f.svc)
	require.Contains(t, f.audit.Actions(), "transaction.post")
}

func TestBalancesMatchReaggregationAfterEveryPosting(t *testing.T) {
	f := newFixture(t)
	postings := [][]accounting.PostingLineInput{
		{accounting.Debit(f.cash.ID, amount("500"), ""), accounting.Credit(f.revenue.ID, amount("500"), "")},
		{accounting.Debit(f.expense.ID, amount("120.25"), ""), accounting.Credit(f.payable.ID, amount("120.25"), "")},
		{accounting.Debit(f.payable.ID, amount("100"), ""), accounting.Credit(f.cash.ID, amount("100"), "")},
		{
			accounting.Debit(f.cash.ID, amount("10"), ""),
			accounting.Debit(f.cash.ID, amount("5"), ""),
			accounting.Credit(f.revenue.ID, amount("15"), ""),
		},
	}
	for _, lines := range postings {
		f.post(t, accounting.SourceExpense, lines...)
		requireReaggregated(t, f.svc)
	}
	require.Equal(t, "415", f.store.Balance(f.cash.ID).String())
	require.Equal(t, "20.25", f.store.Balance(f.payable.ID).String())
}

func TestReverseRestoresPriorBalances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.post(t, accounting.SourceManual,
		accounting.Debit(f.cash.ID, amount("1000"), ""),
		accounting.Credit(f.revenue.ID, amount("1000"), ""),
	)
	before := map[int64]decimal.Decimal{
		f.cash.ID:    f.store.Balance(f.cash.ID),
		f.expense.ID: f.store.Balance(f.expense.ID),
	}
	original := f.post(t, accounting.SourceManual,
		accounting.Debit(f.expense.ID, amount("300"), ""),
		accounting.Credit(f.cash.ID, amount("300"), ""),
	)

	reversal, err := f.svc.ReverseTransaction(ctx, rbac.System(), original.ID, "")
	require.NoError(t, err)
	require.Equal(t, original.ID, *reversal.ReversalOf)
	require.Equal(t, "MANUAL:REVERSAL", reversal.SourceModule)
	for id, bal := range before {
		require.True(t, f.store.Balance(id).Equal(bal), "account %d", id)
	}

	_, err = f.svc.ReverseTransaction(ctx, rbac.System(), original.ID, "again")
	require.ErrorIs(t, err, accounting.ErrAlreadyReversed)
	require.ErrorIs(t, err, shared.ErrConflict)

	_, err = f.svc.ReverseTransaction(ctx, rbac.System(), reversal.ID, "")
	require.ErrorIs(t, err, accounting.ErrReversalOfReversal)

	requireReaggregated(t, f.svc)
}

func TestPostingBoundaries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := accounting.PostingInput{Date: postedOn, Description: "boundary", SourceModule: accounting.SourceManual}

	onlyDebits := base
	onlyDebits.Lines = []accounting.PostingLineInput{
		accounting.Debit(f.cash.ID, amount("10"), ""),
		accounting.Debit(f.expense.ID, amount("10"), ""),
	}
	_, err := f.svc.PostTransaction(ctx, rbac.System(), onlyDebits)
	require.ErrorIs(t, err, accounting.ErrUnbalanced)
	require.ErrorIs(t, err, shared.ErrValidation)

	zero := base
	zero.Lines = []accounting.PostingLineInput{{AccountID: f.cash.ID}, {AccountID: f.revenue.ID}}
	_, err = f.svc.PostTransaction(ctx, rbac.System(), zero)
	require.ErrorIs(t, err, accounting.ErrZeroAmount)

	unknown := base
	unknown.Lines = []accounting.PostingLineInput{
		accounting.Debit(f.cash.ID, amount("10"), ""),
		accounting.Credit(9999, amount("10"), ""),
	}
	_, err = f.svc.PostTransaction(ctx, rbac.System(), unknown)
	require.ErrorIs(t, err, accounting.ErrUnknownAccount)
	require.ErrorIs(t, err, shared.ErrNotFound)

	require.Zero(t, f.store.TransactionCount())
	require.True(t, f.store.Balance(f.cash.ID).IsZero())
}

func TestPostingRejectsDisabledAndMixedCurrency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	usd := f.store.Seed("1200", accounting.AccountTypeAsset, "USD")

	_, err := f.svc.PostTransaction(ctx, rbac.System(), accounting.PostingInput{
		Date: postedOn, Description: "fx", SourceModule: accounting.SourceManual,
		Lines: []accounting.PostingLineInput{accounting.Debit(usd.ID, amount("1"), ""), accounting.Credit(f.revenue.ID, amount("1"), "")},
	})
	require.ErrorIs(t, err, accounting.ErrCurrencyMismatch)

	_, err = f.svc.DisableAccount(ctx, rbac.System(), f.revenue.ID)
	require.NoError(t, err)
	_, err = f.svc.PostTransaction(ctx, rbac.System(), accounting.PostingInput{
		Date: postedOn, Description: "closed", SourceModule: accounting.SourceManual,
		Lines: []accounting.PostingLineInput{accounting.Debit(f.cash.ID, amount("1"), ""), accounting.Credit(f.revenue.ID, amount("1"), "")},
	})
	require.ErrorIs(t, err, accounting.ErrAccountDisabled)
	require.Zero(t, f.store.TransactionCount())
}

func TestSourceIdempotency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := accounting.PostingInput{
		Date: postedOn, Description: "expense", SourceModule: accounting.SourceExpense,
		SourceID: uuid.NewSHA1(uuid.Nil, []byte("EXPENSE:42")),
		Lines:    []accounting.PostingLineInput{accounting.Debit(f.expense.ID, amount("75"), ""), accounting.Credit(f.cash.ID, amount("75"), "")},
	}
	_, err := f.svc.PostTransaction(ctx, rbac.System(), in)
	require.NoError(t, err)
	_, err = f.svc.PostTransaction(ctx, rbac.System(), in)
	require.ErrorIs(t, err, accounting.ErrSourceAlreadyLinked)
	require.Equal(t, 1, f.store.TransactionCount())
	require.Equal(t, "75", f.store.Balance(f.expense.ID).String())
}

func TestManualPostingAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := accounting.PostingInput{
		Date: postedOn, Description: "journal", SourceModule: accounting.SourceManual,
		Lines: []accounting.PostingLineInput{accounting.Debit(f.cash.ID, amount("5"), ""), accounting.Credit(f.revenue.ID, amount("5"), "")},
	}
	clerk := rbac.Principal{ID: 7, Role: "FINANCE", Permissions: []string{shared.PermFinanceCreate}}
	cashier := rbac.Principal{ID: 8, Role: "CASHIER", Permissions: []string{shared.PermPOSShiftOperate}}

	_, err := f.svc.PostTransaction(ctx, cashier, in)
	require.ErrorIs(t, err, shared.ErrForbidden)

	txn, err := f.svc.PostTransaction(ctx, clerk, in)
	require.NoError(t, err)
	require.Equal(t, int64(7), txn.PostedBy)
}

func TestCreateAccountRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := rbac.System()

	acc, err := f.svc.CreateAccount(ctx, admin, accounting.CreateAccountInput{
		Code: " 1300 ", Name: "BCA Operating", Type: accounting.AccountTypeAsset, Currency: "idr",
		Bank: &accounting.BankDetails{BankName: "BCA", AccountNumber: "123", AccountHolder: "Odyssey"},
	})
	require.NoError(t, err)
	require.Equal(t, "1300", acc.Code)
	require.Equal(t, "IDR", acc.Currency)
	require.True(t, acc.Enabled)

	_, err = f.svc.CreateAccount(ctx, admin, accounting.CreateAccountInput{Code: "1300", Name: "dup", Type: accounting.AccountTypeAsset, Currency: "IDR"})
	require.ErrorIs(t, err, accounting.ErrDuplicateCode)
	require.ErrorIs(t, err, shared.ErrConflict)

	_, err = f.svc.CreateAccount(ctx, admin, accounting.CreateAccountInput{Code: "1400", Name: "bad", Type: accounting.AccountTypeAsset, Currency: "ZZZ"})
	require.ErrorIs(t, err, accounting.ErrInvalidCurrency)

	_, err = f.svc.CreateAccount(ctx, rbac.Principal{ID: 3, Role: "CASHIER"}, accounting.CreateAccountInput{Code: "1500", Name: "x", Type: accounting.AccountTypeAsset, Currency: "IDR"})
	require.ErrorIs(t, err, accounting.ErrAccountsManageDenied)

	found, err := f.svc.GetAccountByCode(ctx, "1300")
	require.NoError(t, err)
	require.Equal(t, acc.ID, found.ID)

	assets, err := f.svc.ListAccounts(ctx, accounting.AccountFilter{Type: accounting.AccountTypeAsset})
	require.NoError(t, err)
	require.Len(t, assets, 2)
}

func TestVerifyLedgerReportsDriftWithoutCorrecting(t *testing.T) {
	f := newFixture(t)
	txn := f.post(t, accounting.SourceManual,
		accounting.Debit(f.cash.ID, amount("40"), ""),
		accounting.Credit(f.revenue.ID, amount("40"), ""),
	)
	f.store.ForceBalance(f.cash.ID, amount("41"))
	f.store.AppendRawEntry(txn.ID, accounting.LedgerEntry{AccountID: f.expense.ID, Amount: amount("1"), Direction: accounting.DirectionDebit})

	report, err := f.svc.VerifyLedger(context.Background())
	require.NoError(t, err)
	require.False(t, report.Clean())
	require.Len(t, report.Unbalanced, 1)
	require.Equal(t, txn.ID, report.Unbalanced[0].TransactionID)

	drifted := map[string]string{}
	for _, d := range report.Drifts {
		drifted[d.Code] = d.Drift().String()
	}
	require.Equal(t, "1", drifted["1100"])
	require.Equal(t, "-1", drifted["6100"])
	require.Equal(t, "41", f.store.Balance(f.cash.ID).String())
}

func TestTrialBalanceCachedUntilNextPosting(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t)
	f.svc.WithCache(cache.NewProjection(client, "ledger-test", time.Minute))
	ctx := context.Background()

	f.post(t, accounting.SourceManual,
		accounting.Debit(f.cash.ID, amount("700"), ""),
		accounting.Credit(f.revenue.ID, amount("700"), ""),
	)
	tb, err := f.svc.TrialBalance(ctx)
	require.NoError(t, err)
	require.Len(t, tb.Totals, 1)
	require.True(t, tb.Totals[0].Balanced)
	require.Equal(t, "700", tb.Totals[0].Debit.String())

	f.post(t, accounting.SourceManual,
		accounting.Debit(f.expense.ID, amount("200"), ""),
		accounting.Credit(f.cash.ID, amount("200"), ""),
	)
	tb, err = f.svc.TrialBalance(ctx)
	require.NoError(t, err)
	require.Equal(t, "700", tb.Totals[0].Debit.String())
	require.Equal(t, "700", tb.Totals[0].Credit.String())
	for _, row := range tb.Rows {
		if row.Code == "6100" {
			require.Equal(t, "200", row.Debit.String())
		}
	}
}
