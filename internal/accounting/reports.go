package accounting

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// AccountTotals carries raw debit and credit sums for an account alongside
// its cached balance.
type AccountTotals struct {
	Account Account
	Debit   decimal.Decimal
	Credit  decimal.Decimal
}

// UnbalancedTransaction is a posted transaction whose sides differ.
type UnbalancedTransaction struct {
	TransactionID int64           `json:"transaction_id"`
	Debit         decimal.Decimal `json:"debit"`
	Credit        decimal.Decimal `json:"credit"`
}

// BalanceDrift reports an account whose cached balance disagrees with its entries.
type BalanceDrift struct {
	AccountID  int64           `json:"account_id"`
	Code       string          `json:"code"`
	Cached     decimal.Decimal `json:"cached"`
	Recomputed decimal.Decimal `json:"recomputed"`
}

// Drift is the signed difference between cached and recomputed balance.
func (d BalanceDrift) Drift() decimal.Decimal {
	return d.Cached.Sub(d.Recomputed)
}

// IntegrityReport summarises a full ledger verification run. It never repairs.
type IntegrityReport struct {
	CheckedAt  time.Time               `json:"checked_at"`
	Accounts   int                     `json:"accounts"`
	Drifts     []BalanceDrift          `json:"drifts"`
	Unbalanced []UnbalancedTransaction `json:"unbalanced"`
}

// Clean reports whether no drift or imbalance was found.
func (r IntegrityReport) Clean() bool {
	return len(r.Drifts) == 0 && len(r.Unbalanced) == 0
}

// TrialBalanceRow shows an account balance on its debit or credit column.
type TrialBalanceRow struct {
	AccountID int64           `json:"account_id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Type      AccountType     `json:"type"`
	Currency  string          `json:"currency"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
}

// CurrencyTotals sums trial balance columns per currency.
type CurrencyTotals struct {
	Currency string          `json:"currency"`
	Debit    decimal.Decimal `json:"debit"`
	Credit   decimal.Decimal `json:"credit"`
	Balanced bool            `json:"balanced"`
}

// TrialBalance lists every account balance with per-currency totals.
type TrialBalance struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Rows        []TrialBalanceRow `json:"rows"`
	Totals      []CurrencyTotals  `json:"totals"`
}

// TrialBalance returns the cached trial balance, rebuilding it after any posting.
func (s *Service) TrialBalance(ctx context.Context) (TrialBalance, error) {
	if s.cache == nil {
		return s.buildTrialBalance(ctx)
	}
	key, err := s.cache.BuildKey(ctx, "trial-balance")
	if err != nil {
		return s.buildTrialBalance(ctx)
	}
	var tb TrialBalance
	err = s.cache.FetchJSON(ctx, key, &tb, func(ctx context.Context) (any, error) {
		return s.buildTrialBalance(ctx)
	})
	if err != nil {
		return TrialBalance{}, err
	}
	return tb, nil
}

func (s *Service) buildTrialBalance(ctx context.Context) (TrialBalance, error) {
	accounts, err := s.repo.ListAccounts(ctx, AccountFilter{})
	if err != nil {
		return TrialBalance{}, err
	}
	tb := TrialBalance{GeneratedAt: s.now(), Rows: make([]TrialBalanceRow, 0, len(accounts))}
	totals := map[string]*CurrencyTotals{}
	for _, acc := range accounts {
		row := TrialBalanceRow{
			AccountID: acc.ID,
			Code:      acc.Code,
			Name:      acc.Name,
			Type:      acc.Type,
			Currency:  acc.Currency,
			Debit:     decimal.Zero,
			Credit:    decimal.Zero,
		}
		side := acc.Type.NormalBalance()
		amount := acc.Balance
		if amount.IsNegative() {
			amount = amount.Neg()
			side = opposite(side)
		}
		if side == DirectionDebit {
			row.Debit = amount
		} else {
			row.Credit = amount
		}
		tb.Rows = append(tb.Rows, row)

		t, ok := totals[acc.Currency]
		if !ok {
			t = &CurrencyTotals{Currency: acc.Currency, Debit: decimal.Zero, Credit: decimal.Zero}
			totals[acc.Currency] = t
		}
		t.Debit = t.Debit.Add(row.Debit)
		t.Credit = t.Credit.Add(row.Credit)
	}
	for _, t := range totals {
		t.Balanced = t.Debit.Equal(t.Credit)
		tb.Totals = append(tb.Totals, *t)
	}
	sort.Slice(tb.Totals, func(i, j int) bool { return tb.Totals[i].Currency < tb.Totals[j].Currency })
	return tb, nil
}

// VerifyLedger re-aggregates every account from its entries and lists
// transactions whose sides do not balance. It reports and never corrects.
func (s *Service) VerifyLedger(ctx context.Context) (IntegrityReport, error) {
	totals, err := s.repo.AccountTotals(ctx)
	if err != nil {
		return IntegrityReport{}, err
	}
	report := IntegrityReport{CheckedAt: s.now(), Accounts: len(totals)}
	for _, t := range totals {
		recomputed := BalanceFromTotals(t.Account.Type, t.Debit, t.Credit)
		if !recomputed.Equal(t.Account.Balance) {
			report.Drifts = append(report.Drifts, BalanceDrift{
				AccountID:  t.Account.ID,
				Code:       t.Account.Code,
				Cached:     t.Account.Balance,
				Recomputed: recomputed,
			})
		}
	}
	unbalanced, err := s.repo.UnbalancedTransactions(ctx)
	if err != nil {
		return IntegrityReport{}, err
	}
	report.Unbalanced = unbalanced
	return report, nil
}

func opposite(d Direction) Direction {
	if d == DirectionDebit {
		return DirectionCredit
	}
	return DirectionDebit
}
