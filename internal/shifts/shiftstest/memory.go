// Package shiftstest provides an in-memory shift store sharing the in-memory
// ledger's transaction boundary.
package shiftstest

import (
	"context"
	"sort"

	"github.com/odyssey-erp/ledger-core/internal/accounting"
	"github.com/odyssey-erp/ledger-core/internal/accounting/accountingtest"
	"github.com/odyssey-erp/ledger-core/internal/shared"
	"github.com/odyssey-erp/ledger-core/internal/shifts"
)

// Store implements shifts.RepositoryPort.
type Store struct {
	Ledger        *accountingtest.Store
	shifts        map[int64]shifts.Shift
	payments      []shifts.Payment
	nextID        int64
	nextPaymentID int64
}

// NewStore wraps a ledger store.
func NewStore(ledger *accountingtest.Store) *Store {
	return &Store{Ledger: ledger, shifts: make(map[int64]shifts.Shift)}
}

// Snapshot implements accountingtest.Participant.
func (s *Store) Snapshot() func() {
	saved := make(map[int64]shifts.Shift, len(s.shifts))
	for k, v := range s.shifts {
		saved[k] = v
	}
	payments := append([]shifts.Payment(nil), s.payments...)
	nextID, nextPaymentID := s.nextID, s.nextPaymentID
	return func() {
		s.shifts, s.payments, s.nextID, s.nextPaymentID = saved, payments, nextID, nextPaymentID
	}
}

// WithTx implements shifts.RepositoryPort.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, shifts.TxRepository) error) error {
	return s.Ledger.Atomic(func(tx accounting.TxRepository) error {
		return fn(ctx, &memTx{TxRepository: tx, s: s})
	}, s)
}

func (s *Store) GetShift(ctx context.Context, id int64) (shifts.Shift, error) {
	var (
		shift shifts.Shift
		ok    bool
	)
	s.Ledger.Locked(func() { shift, ok = s.shifts[id] })
	if !ok {
		return shifts.Shift{}, shifts.ErrShiftNotFound
	}
	return shift, nil
}

func (s *Store) ListShifts(ctx context.Context, filter shifts.ListFilter) ([]shifts.Shift, int, error) {
	var matched []shifts.Shift
	s.Ledger.Locked(func() {
		for _, sh := range s.shifts {
			if filter.OutletID != nil && sh.OutletID != *filter.OutletID {
				continue
			}
			if filter.CashierID != nil && sh.CashierID != *filter.CashierID {
				continue
			}
			if filter.Status != "" && sh.Status != filter.Status {
				continue
			}
			matched = append(matched, sh)
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

func (s *Store) ListPayments(ctx context.Context, shiftID int64) ([]shifts.Payment, error) {
	var out []shifts.Payment
	s.Ledger.Locked(func() { out = s.paymentsOf(shiftID) })
	return out, nil
}

func (s *Store) paymentsOf(shiftID int64) []shifts.Payment {
	var out []shifts.Payment
	for _, p := range s.payments {
		if p.ShiftID == shiftID {
			out = append(out, p)
		}
	}
	return out
}

type memTx struct {
	accounting.TxRepository
	s *Store
}

func (tx *memTx) InsertShift(ctx context.Context, sh shifts.Shift) (shifts.Shift, error) {
	for _, existing := range tx.s.shifts {
		if existing.Status == shifts.StatusOpen && existing.OutletID == sh.OutletID && existing.CashierID == sh.CashierID {
			return shifts.Shift{}, shifts.ErrShiftAlreadyOpen
		}
	}
	tx.s.nextID++
	sh.ID = tx.s.nextID
	tx.s.shifts[sh.ID] = sh
	return sh, nil
}

func (tx *memTx) LockShift(ctx context.Context, id int64) (shifts.Shift, error) {
	sh, ok := tx.s.shifts[id]
	if !ok {
		return shifts.Shift{}, shifts.ErrShiftNotFound
	}
	return sh, nil
}

func (tx *memTx) InsertPayments(ctx context.Context, payments []shifts.Payment) ([]shifts.Payment, error) {
	out := make([]shifts.Payment, 0, len(payments))
	for _, p := range payments {
		tx.s.nextPaymentID++
		p.ID = tx.s.nextPaymentID
		tx.s.payments = append(tx.s.payments, p)
		out = append(out, p)
	}
	return out, nil
}

func (tx *memTx) ShiftPayments(ctx context.Context, shiftID int64) ([]shifts.Payment, error) {
	return tx.s.paymentsOf(shiftID), nil
}

func (tx *memTx) MarkClosed(ctx context.Context, sh shifts.Shift) (shifts.Shift, error) {
	current, ok := tx.s.shifts[sh.ID]
	if !ok || current.Status != shifts.StatusOpen || current.Version != sh.Version {
		return shifts.Shift{}, shifts.ErrAlreadyClosed
	}
	sh.Version++
	tx.s.shifts[sh.ID] = sh
	return sh, nil
}

func (tx *memTx) MarkReconciled(ctx context.Context, sh shifts.Shift) (shifts.Shift, error) {
	current, ok := tx.s.shifts[sh.ID]
	if !ok || current.Status != shifts.StatusClosed || current.IsReconciled || current.Version != sh.Version {
		return shifts.Shift{}, shifts.ErrAlreadyReconciled
	}
	sh.Version++
	tx.s.shifts[sh.ID] = sh
	return sh, nil
}
