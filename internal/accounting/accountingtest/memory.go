// Package accountingtest provides an in-memory ledger store for tests of the
// ledger and of the modules that post through it.
package accountingtest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger-core/internal/accounting"
	"github.com/odyssey-erp/ledger-core/internal/shared"
)

// Participant is state that joins a Store transaction. Snapshot returns a
// function restoring the state captured at call time.
type Participant interface {
	Snapshot() (restore func())
}

// Store implements accounting.RepositoryPort on maps. Transactions are
// serialised by one mutex and rolled back by restoring snapshots.
type Store struct {
	mu          sync.Mutex
	accounts    map[int64]accounting.Account
	txns        map[int64]accounting.Transaction
	sources     map[string]int64
	nextAccount int64
	nextTxn     int64
	nextEntry   int64
	now         func() time.Time
}

// NewStore returns an empty ledger store.
func NewStore() *Store {
	return &Store{
		accounts: make(map[int64]accounting.Account),
		txns:     make(map[int64]accounting.Transaction),
		sources:  make(map[string]int64),
		now:      time.Now,
	}
}

// Seed inserts an enabled account with zero balance.
func (s *Store) Seed(code string, typ accounting.AccountType, currency string) accounting.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	if currency == "" {
		currency = "IDR"
	}
	acc, _ := (&memTx{s: s}).InsertAccount(context.Background(), accounting.CreateAccountInput{
		Code:     code,
		Name:     code,
		Type:     typ,
		Currency: currency,
	})
	return acc
}

// ForceBalance overwrites a cached balance, simulating drift.
func (s *Store) ForceBalance(id int64, balance decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.accounts[id]
	acc.Balance = balance
	s.accounts[id] = acc
}

// Balance returns the cached balance of an account.
func (s *Store) Balance(id int64) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[id].Balance
}

// TransactionCount returns how many transactions were committed.
func (s *Store) TransactionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.txns)
}

// Snapshot implements Participant for the ledger state itself.
func (s *Store) Snapshot() func() {
	accounts := make(map[int64]accounting.Account, len(s.accounts))
	for k, v := range s.accounts {
		accounts[k] = v
	}
	txns := make(map[int64]accounting.Transaction, len(s.txns))
	for k, v := range s.txns {
		txns[k] = v
	}
	sources := make(map[string]int64, len(s.sources))
	for k, v := range s.sources {
		sources[k] = v
	}
	nextAccount, nextTxn, nextEntry := s.nextAccount, s.nextTxn, s.nextEntry
	return func() {
		s.accounts, s.txns, s.sources = accounts, txns, sources
		s.nextAccount, s.nextTxn, s.nextEntry = nextAccount, nextTxn, nextEntry
	}
}

// Atomic runs fn under the store lock. If fn fails, the ledger and every
// participant are restored.
func (s *Store) Atomic(fn func(accounting.TxRepository) error, participants ...Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	restores := []func(){s.Snapshot()}
	for _, p := range participants {
		restores = append(restores, p.Snapshot())
	}
	if err := fn(&memTx{s: s}); err != nil {
		for _, restore := range restores {
			restore()
		}
		return err
	}
	return nil
}

// Locked runs fn under the store lock, for participants reading their own state.
func (s *Store) Locked(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// WithTx implements accounting.RepositoryPort.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, accounting.TxRepository) error) error {
	return s.Atomic(func(tx accounting.TxRepository) error {
		return fn(ctx, tx)
	})
}

func (s *Store) GetAccount(ctx context.Context, id int64) (accounting.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[id]
	if !ok {
		return accounting.Account{}, accounting.ErrUnknownAccount
	}
	return acc, nil
}

func (s *Store) GetAccountByCode(ctx context.Context, code string) (accounting.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range s.accounts {
		if acc.Code == code {
			return acc, nil
		}
	}
	return accounting.Account{}, accounting.ErrUnknownAccount
}

func (s *Store) ListAccounts(ctx context.Context, filter accounting.AccountFilter) ([]accounting.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []accounting.Account
	for _, acc := range s.accounts {
		if filter.Type != "" && acc.Type != filter.Type {
			continue
		}
		if filter.Enabled != nil && acc.Enabled != *filter.Enabled {
			continue
		}
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *Store) GetTransaction(ctx context.Context, id int64) (accounting.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{s: s}).LoadTransaction(ctx, id)
}

func (s *Store) ListTransactions(ctx context.Context, filter accounting.TransactionFilter) ([]accounting.Transaction, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []accounting.Transaction
	for _, txn := range s.txns {
		if filter.SourceModule != "" && txn.SourceModule != filter.SourceModule {
			continue
		}
		if filter.AccountID != nil && !touches(txn, *filter.AccountID) {
			continue
		}
		matched = append(matched, txn)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })
	total := len(matched)
	start := shared.Offset(filter.Page, filter.PerPage)
	if start >= total {
		return []accounting.Transaction{}, total, nil
	}
	end := start + filter.PerPage
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (s *Store) AccountTotals(ctx context.Context) ([]accounting.AccountTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sums := make(map[int64]*accounting.AccountTotals, len(s.accounts))
	for id, acc := range s.accounts {
		sums[id] = &accounting.AccountTotals{Account: acc, Debit: decimal.Zero, Credit: decimal.Zero}
	}
	for _, txn := range s.txns {
		for _, e := range txn.Entries {
			t := sums[e.AccountID]
			if e.Direction == accounting.DirectionDebit {
				t.Debit = t.Debit.Add(e.Amount)
			} else {
				t.Credit = t.Credit.Add(e.Amount)
			}
		}
	}
	out := make([]accounting.AccountTotals, 0, len(sums))
	for _, t := range sums {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Account.Code < out[j].Account.Code })
	return out, nil
}

func (s *Store) UnbalancedTransactions(ctx context.Context) ([]accounting.UnbalancedTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []accounting.UnbalancedTransaction
	for _, txn := range s.txns {
		debit, credit := decimal.Zero, decimal.Zero
		for _, e := range txn.Entries {
			if e.Direction == accounting.DirectionDebit {
				debit = debit.Add(e.Amount)
			} else {
				credit = credit.Add(e.Amount)
			}
		}
		if !debit.Equal(credit) {
			out = append(out, accounting.UnbalancedTransaction{TransactionID: txn.ID, Debit: debit, Credit: credit})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TransactionID < out[j].TransactionID })
	return out, nil
}

// AppendRawEntry attaches an entry to a committed transaction without
// touching balances, simulating out-of-band corruption.
func (s *Store) AppendRawEntry(transactionID int64, entry accounting.LedgerEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn := s.txns[transactionID]
	s.nextEntry++
	entry.ID = s.nextEntry
	entry.TransactionID = transactionID
	txn.Entries = append(append([]accounting.LedgerEntry(nil), txn.Entries...), entry)
	s.txns[transactionID] = txn
}

type memTx struct {
	s *Store
}

func (tx *memTx) InsertAccount(ctx context.Context, in accounting.CreateAccountInput) (accounting.Account, error) {
	for _, acc := range tx.s.accounts {
		if strings.EqualFold(acc.Code, in.Code) {
			return accounting.Account{}, fmt.Errorf("%w: %s", accounting.ErrDuplicateCode, in.Code)
		}
	}
	tx.s.nextAccount++
	now := tx.s.now()
	acc := accounting.Account{
		ID:        tx.s.nextAccount,
		Code:      in.Code,
		Name:      in.Name,
		Type:      in.Type,
		Currency:  in.Currency,
		Balance:   decimal.Zero,
		Bank:      in.Bank,
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	tx.s.accounts[acc.ID] = acc
	return acc, nil
}

func (tx *memTx) SetAccountEnabled(ctx context.Context, id int64, enabled bool) (accounting.Account, error) {
	acc, ok := tx.s.accounts[id]
	if !ok {
		return accounting.Account{}, accounting.ErrUnknownAccount
	}
	acc.Enabled = enabled
	acc.UpdatedAt = tx.s.now()
	tx.s.accounts[id] = acc
	return acc, nil
}

func (tx *memTx) LockAccounts(ctx context.Context, ids []int64) ([]accounting.Account, error) {
	out := make([]accounting.Account, 0, len(ids))
	for _, id := range ids {
		if acc, ok := tx.s.accounts[id]; ok {
			out = append(out, acc)
		}
	}
	return out, nil
}

func (tx *memTx) InsertTransaction(ctx context.Context, txn accounting.Transaction) (accounting.Transaction, error) {
	key := txn.SourceModule + "/" + txn.SourceID.String()
	if _, ok := tx.s.sources[key]; ok {
		return accounting.Transaction{}, fmt.Errorf("%w: %s", accounting.ErrSourceAlreadyLinked, key)
	}
	tx.s.nextTxn++
	txn.ID = tx.s.nextTxn
	tx.s.sources[key] = txn.ID
	tx.s.txns[txn.ID] = txn
	return txn, nil
}

func (tx *memTx) InsertEntries(ctx context.Context, transactionID int64, entries []accounting.LedgerEntry) ([]accounting.LedgerEntry, error) {
	txn, ok := tx.s.txns[transactionID]
	if !ok {
		return nil, accounting.ErrTransactionNotFound
	}
	out := make([]accounting.LedgerEntry, 0, len(entries))
	for _, e := range entries {
		tx.s.nextEntry++
		e.ID = tx.s.nextEntry
		e.TransactionID = transactionID
		out = append(out, e)
	}
	txn.Entries = append(append([]accounting.LedgerEntry(nil), txn.Entries...), out...)
	tx.s.txns[transactionID] = txn
	return out, nil
}

func (tx *memTx) ApplyBalanceDelta(ctx context.Context, accountID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	acc, ok := tx.s.accounts[accountID]
	if !ok {
		return decimal.Zero, accounting.ErrUnknownAccount
	}
	acc.Balance = acc.Balance.Add(delta)
	tx.s.accounts[accountID] = acc
	return acc.Balance, nil
}

func (tx *memTx) LoadTransaction(ctx context.Context, id int64) (accounting.Transaction, error) {
	txn, ok := tx.s.txns[id]
	if !ok {
		return accounting.Transaction{}, accounting.ErrTransactionNotFound
	}
	return txn, nil
}

func touches(txn accounting.Transaction, accountID int64) bool {
	for _, e := range txn.Entries {
		if e.AccountID == accountID {
			return true
		}
	}
	return false
}

// AuditRecorder collects audit logs in memory.
type AuditRecorder struct {
	mu   sync.Mutex
	Logs []shared.AuditLog
}

// Record implements accounting.AuditPort.
func (a *AuditRecorder) Record(ctx context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Logs = append(a.Logs, log)
	return nil
}

// Actions lists recorded actions in order.
func (a *AuditRecorder) Actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.Logs))
	for _, l := range a.Logs {
		out = append(out, l.Action)
	}
	return out
}
