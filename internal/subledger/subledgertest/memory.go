// Package subledgertest provides an in-memory sub-ledger store sharing the
// transaction boundary of accountingtest.Store.
package subledgertest

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger-core/internal/accounting"
	"github.com/odyssey-erp/ledger-core/internal/accounting/accountingtest"
	"github.com/odyssey-erp/ledger-core/internal/shared"
	"github.com/odyssey-erp/ledger-core/internal/subledger"
)

type contactKey struct {
	kind subledger.Kind
	id   int64
}

// Store implements subledger.RepositoryPort.
type Store struct {
	Ledger   *accountingtest.Store
	balances map[contactKey]decimal.Decimal
	entries  map[int64]subledger.Entry
	nextID   int64
}

// NewStore wraps a ledger store.
func NewStore(ledger *accountingtest.Store) *Store {
	return &Store{
		Ledger:   ledger,
		balances: make(map[contactKey]decimal.Decimal),
		entries:  make(map[int64]subledger.Entry),
	}
}

// Snapshot implements accountingtest.Participant.
func (s *Store) Snapshot() func() {
	balances := make(map[contactKey]decimal.Decimal, len(s.balances))
	for k, v := range s.balances {
		balances[k] = v
	}
	entries := make(map[int64]subledger.Entry, len(s.entries))
	for k, v := range s.entries {
		entries[k] = v
	}
	nextID := s.nextID
	return func() {
		s.balances, s.entries, s.nextID = balances, entries, nextID
	}
}

// Bind combines a ledger transaction with the sub-ledger state. Callers must
// hold the ledger lock, as Atomic does.
func (s *Store) Bind(tx accounting.TxRepository) subledger.TxRepository {
	return &memTx{TxRepository: tx, s: s}
}

// WithTx implements subledger.RepositoryPort.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, subledger.TxRepository) error) error {
	return s.Ledger.Atomic(func(tx accounting.TxRepository) error {
		return fn(ctx, s.Bind(tx))
	}, s)
}

func (s *Store) ContactBalance(ctx context.Context, kind subledger.Kind, contactID int64) (decimal.Decimal, error) {
	var bal decimal.Decimal
	s.Ledger.Locked(func() { bal = s.balances[contactKey{kind, contactID}] })
	return bal, nil
}

func (s *Store) ListEntries(ctx context.Context, kind subledger.Kind, contactID int64, page, perPage int) ([]subledger.Entry, int, error) {
	var matched []subledger.Entry
	s.Ledger.Locked(func() {
		for _, e := range s.entries {
			if e.Kind == kind && e.ContactID == contactID {
				matched = append(matched, e)
			}
		}
	})
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Date.Equal(matched[j].Date) {
			return matched[i].Date.Before(matched[j].Date)
		}
		return matched[i].ID < matched[j].ID
	})
	total := len(matched)
	start := shared.Offset(page, perPage)
	if start >= total {
		return nil, total, nil
	}
	end := start + perPage
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// EntryCount returns how many entries exist for a contact.
func (s *Store) EntryCount(kind subledger.Kind, contactID int64) int {
	n := 0
	s.Ledger.Locked(func() {
		for _, e := range s.entries {
			if e.Kind == kind && e.ContactID == contactID {
				n++
			}
		}
	})
	return n
}

type memTx struct {
	accounting.TxRepository
	s *Store
}

func (tx *memTx) LockContactBalance(ctx context.Context, kind subledger.Kind, contactID int64) (decimal.Decimal, error) {
	return tx.s.balances[contactKey{kind, contactID}], nil
}

func (tx *memTx) SetContactBalance(ctx context.Context, kind subledger.Kind, contactID int64, balance decimal.Decimal) error {
	tx.s.balances[contactKey{kind, contactID}] = balance
	return nil
}

func (tx *memTx) InsertEntry(ctx context.Context, e subledger.Entry) (subledger.Entry, error) {
	tx.s.nextID++
	e.ID = tx.s.nextID
	tx.s.entries[e.ID] = e
	return e, nil
}

func (tx *memTx) LockEntry(ctx context.Context, id int64) (subledger.Entry, error) {
	e, ok := tx.s.entries[id]
	if !ok {
		return subledger.Entry{}, subledger.ErrEntryNotFound
	}
	return e, nil
}

func (tx *memTx) MarkEntryConfirmed(ctx context.Context, id, transactionID int64, balanceAfter decimal.Decimal, at time.Time) (subledger.Entry, error) {
	e, ok := tx.s.entries[id]
	if !ok || e.Status != subledger.StatusPending {
		return subledger.Entry{}, subledger.ErrAlreadyConfirmed
	}
	e.Status = subledger.StatusConfirmed
	e.TransactionID = &transactionID
	e.BalanceAfter = balanceAfter
	e.ConfirmedAt = &at
	tx.s.entries[id] = e
	return e, nil
}
