// Package reconciliationtest provides an in-memory deposit store joined to the
// in-memory ledger and sub-ledger transaction boundary.
package reconciliationtest

import (
	"context"
	"sort"

	"github.com/odyssey-erp/ledger-core/internal/accounting"
	"github.com/odyssey-erp/ledger-core/internal/reconciliation"
	"github.com/odyssey-erp/ledger-core/internal/shared"
	"github.com/odyssey-erp/ledger-core/internal/subledger"
	"github.com/odyssey-erp/ledger-core/internal/subledger/subledgertest"
)

// Store implements reconciliation.RepositoryPort.
type Store struct {
	Sub      *subledgertest.Store
	deposits map[int64]reconciliation.Deposit
	nextID   int64
}

// NewStore wraps a sub-ledger store.
func NewStore(sub *subledgertest.Store) *Store {
	return &Store{Sub: sub, deposits: make(map[int64]reconciliation.Deposit)}
}

// Snapshot implements accountingtest.Participant.
func (s *Store) Snapshot() func() {
	deposits := make(map[int64]reconciliation.Deposit, len(s.deposits))
	for k, v := range s.deposits {
		deposits[k] = v
	}
	nextID := s.nextID
	return func() { s.deposits, s.nextID = deposits, nextID }
}

// WithTx implements reconciliation.RepositoryPort.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, reconciliation.TxRepository) error) error {
	return s.Sub.Ledger.Atomic(func(tx accounting.TxRepository) error {
		return fn(ctx, &memTx{TxRepository: s.Sub.Bind(tx), s: s})
	}, s.Sub, s)
}

func (s *Store) GetDeposit(ctx context.Context, id int64) (reconciliation.Deposit, error) {
	var (
		d  reconciliation.Deposit
		ok bool
	)
	s.Sub.Ledger.Locked(func() { d, ok = s.deposits[id] })
	if !ok {
		return reconciliation.Deposit{}, reconciliation.ErrDepositNotFound
	}
	return d, nil
}

func (s *Store) ListDeposits(ctx context.Context, filter reconciliation.ListFilter) ([]reconciliation.Deposit, int, error) {
	var matched []reconciliation.Deposit
	s.Sub.Ledger.Locked(func() {
		for _, d := range s.deposits {
			if filter.Status != "" && d.Status != filter.Status {
				continue
			}
			if filter.Kind != "" && d.Kind != filter.Kind {
				continue
			}
			if filter.ShiftID != nil && (d.ShiftID == nil || *d.ShiftID != *filter.ShiftID) {
				continue
			}
			matched = append(matched, d)
		}
	})
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })
	total := len(matched)
	start := shared.Offset(filter.Page, filter.PerPage)
	if start >= total {
		return nil, total, nil
	}
	end := start + filter.PerPage
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

type memTx struct {
	subledger.TxRepository
	s *Store
}

func (tx *memTx) InsertDeposit(ctx context.Context, d reconciliation.Deposit) (reconciliation.Deposit, error) {
	tx.s.nextID++
	d.ID = tx.s.nextID
	tx.s.deposits[d.ID] = d
	return d, nil
}

func (tx *memTx) LockDeposit(ctx context.Context, id int64) (reconciliation.Deposit, error) {
	d, ok := tx.s.deposits[id]
	if !ok {
		return reconciliation.Deposit{}, reconciliation.ErrDepositNotFound
	}
	return d, nil
}

func (tx *memTx) MarkConfirmed(ctx context.Context, d reconciliation.Deposit) (reconciliation.Deposit, error) {
	current, ok := tx.s.deposits[d.ID]
	if !ok || current.Status != reconciliation.StatusPending || current.Version != d.Version {
		return reconciliation.Deposit{}, reconciliation.ErrAlreadyConfirmed
	}
	d.Version++
	tx.s.deposits[d.ID] = d
	return d, nil
}

func (tx *memTx) MarkRejected(ctx context.Context, d reconciliation.Deposit) (reconciliation.Deposit, error) {
	current, ok := tx.s.deposits[d.ID]
	if !ok || current.Status != reconciliation.StatusPending || current.Version != d.Version {
		return reconciliation.Deposit{}, reconciliation.ErrAlreadyRejected
	}
	d.Version++
	tx.s.deposits[d.ID] = d
	return d, nil
}
