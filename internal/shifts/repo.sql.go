package shifts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/ledger-core/internal/accounting"
	"github.com/odyssey-erp/ledger-core/internal/platform/db"
)

const constraintOpenShift = "uq_shifts_open_cashier"

const shiftColumns = `id, outlet_id, cashier_id, opened_at, closed_at, status,
expected_cash, expected_card, expected_transfer, declared_cash, declared_card, declared_transfer,
variance_cash, variance_card, variance_transfer, is_reconciled, reconciled_by, reconciled_at, COALESCE(note,''), version`

const paymentColumns = `id, shift_id, transaction_id, method, kind, amount, created_at`

// Repository persists shifts and their payments.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	accounting.TxRepository
	tx pgx.Tx
}

// NewTxRepository binds shift and GL writes to tx.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{TxRepository: accounting.NewTxRepository(tx), tx: tx}
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("shifts repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

func (r *txRepository) InsertShift(ctx context.Context, s Shift) (Shift, error) {
	out, err := scanShift(r.tx.QueryRow(ctx, `INSERT INTO shifts (outlet_id, cashier_id, opened_at, status, version)
VALUES ($1,$2,$3,$4,$5) RETURNING `+shiftColumns, s.OutletID, s.CashierID, s.OpenedAt, s.Status, s.Version))
	if db.IsUniqueViolation(err, constraintOpenShift) {
		return Shift{}, ErrShiftAlreadyOpen
	}
	return out, err
}

func (r *txRepository) LockShift(ctx context.Context, id int64) (Shift, error) {
	return scanShift(r.tx.QueryRow(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) InsertPayments(ctx context.Context, payments []Payment) ([]Payment, error) {
	out := make([]Payment, 0, len(payments))
	for _, p := range payments {
		saved, err := scanPayment(r.tx.QueryRow(ctx, `INSERT INTO shift_payments (shift_id, transaction_id, method, kind, amount, created_at)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING `+paymentColumns, p.ShiftID, p.TransactionID, p.Method, p.Kind, p.Amount, p.CreatedAt))
		if err != nil {
			return nil, fmt.Errorf("insert shift payment: %w", err)
		}
		out = append(out, saved)
	}
	return out, nil
}

func (r *txRepository) ShiftPayments(ctx context.Context, shiftID int64) ([]Payment, error) {
	return listPayments(ctx, r.tx, shiftID)
}

func (r *txRepository) MarkClosed(ctx context.Context, s Shift) (Shift, error) {
	out, err := scanShift(r.tx.QueryRow(ctx, `UPDATE shifts
SET status='CLOSED', closed_at=$3,
    expected_cash=$4, expected_card=$5, expected_transfer=$6,
    declared_cash=$7, declared_card=$8, declared_transfer=$9,
    variance_cash=$10, variance_card=$11, variance_transfer=$12,
    is_reconciled=$13, reconciled_by=$14, reconciled_at=$15, note=NULLIF($16,''), version=version+1
WHERE id=$1 AND version=$2 AND status='OPEN' RETURNING `+shiftColumns,
		s.ID, s.Version, s.ClosedAt,
		s.Expected.Cash, s.Expected.Card, s.Expected.Transfer,
		s.Declared.Cash, s.Declared.Card, s.Declared.Transfer,
		s.Variance.Cash, s.Variance.Card, s.Variance.Transfer,
		s.IsReconciled, s.ReconciledBy, s.ReconciledAt, s.Note))
	if errors.Is(err, ErrShiftNotFound) {
		return Shift{}, ErrAlreadyClosed
	}
	return out, err
}

func (r *txRepository) MarkReconciled(ctx context.Context, s Shift) (Shift, error) {
	out, err := scanShift(r.tx.QueryRow(ctx, `UPDATE shifts
SET is_reconciled=TRUE, reconciled_by=$3, reconciled_at=$4, note=NULLIF($5,''), version=version+1
WHERE id=$1 AND version=$2 AND status='CLOSED' AND NOT is_reconciled RETURNING `+shiftColumns,
		s.ID, s.Version, s.ReconciledBy, s.ReconciledAt, s.Note))
	if errors.Is(err, ErrShiftNotFound) {
		return Shift{}, ErrAlreadyReconciled
	}
	return out, err
}

// GetShift loads a shift by id.
func (r *Repository) GetShift(ctx context.Context, id int64) (Shift, error) {
	return scanShift(r.pool.QueryRow(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE id=$1`, id))
}

// ListShifts returns shifts newest first with the total count.
func (r *Repository) ListShifts(ctx context.Context, filter ListFilter) ([]Shift, int, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.OutletID != nil {
		args = append(args, *filter.OutletID)
		clauses = append(clauses, fmt.Sprintf("outlet_id=$%d", len(args)))
	}
	if filter.CashierID != nil {
		args = append(args, *filter.CashierID)
		clauses = append(clauses, fmt.Sprintf("cashier_id=$%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM shifts`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, filter.PerPage, (filter.Page-1)*filter.PerPage)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM shifts%s ORDER BY opened_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		shiftColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Shift, error) {
		return scanShift(row)
	})
	return items, total, err
}

// ListPayments returns a shift's tenders in recording order.
func (r *Repository) ListPayments(ctx context.Context, shiftID int64) ([]Payment, error) {
	return listPayments(ctx, r.pool, shiftID)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listPayments(ctx context.Context, q querier, shiftID int64) ([]Payment, error) {
	rows, err := q.Query(ctx, `SELECT `+paymentColumns+` FROM shift_payments WHERE shift_id=$1 ORDER BY id`, shiftID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Payment, error) {
		return scanPayment(row)
	})
}

func scanShift(row pgx.Row) (Shift, error) {
	var s Shift
	err := row.Scan(&s.ID, &s.OutletID, &s.CashierID, &s.OpenedAt, &s.ClosedAt, &s.Status,
		&s.Expected.Cash, &s.Expected.Card, &s.Expected.Transfer,
		&s.Declared.Cash, &s.Declared.Card, &s.Declared.Transfer,
		&s.Variance.Cash, &s.Variance.Card, &s.Variance.Transfer,
		&s.IsReconciled, &s.ReconciledBy, &s.ReconciledAt, &s.Note, &s.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Shift{}, ErrShiftNotFound
		}
		return Shift{}, err
	}
	return s, nil
}

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	if err := row.Scan(&p.ID, &p.ShiftID, &p.TransactionID, &p.Method, &p.Kind, &p.Amount, &p.CreatedAt); err != nil {
		return Payment{}, err
	}
	return p, nil
}
