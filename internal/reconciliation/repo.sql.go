package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/ledger-core/internal/platform/db"
	"github.com/odyssey-erp/ledger-core/internal/subledger"
)

const depositColumns = `id, kind, shift_id, contact_id, amount, COALESCE(reference,''), COALESCE(evidence_ref,''), COALESCE(target_key,''),
status, transaction_id, subledger_entry_id, COALESCE(reject_reason,''), recorded_by, recorded_at, decided_by, decided_at, version`

// Repository persists deposits.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	subledger.TxRepository
	tx pgx.Tx
}

// NewTxRepository binds deposit, sub-ledger and GL writes to tx.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{TxRepository: subledger.NewTxRepository(tx), tx: tx}
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("reconciliation repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

func (r *txRepository) InsertDeposit(ctx context.Context, d Deposit) (Deposit, error) {
	return scanDeposit(r.tx.QueryRow(ctx, `INSERT INTO deposits (kind, shift_id, contact_id, amount, reference, evidence_ref, target_key, status, recorded_by, recorded_at, version)
VALUES ($1,$2,$3,$4,NULLIF($5,''),NULLIF($6,''),NULLIF($7,''),$8,$9,$10,$11) RETURNING `+depositColumns,
		d.Kind, d.ShiftID, d.ContactID, d.Amount, d.Reference, d.EvidenceRef, d.TargetKey, d.Status, d.RecordedBy, d.RecordedAt, d.Version))
}

func (r *txRepository) LockDeposit(ctx context.Context, id int64) (Deposit, error) {
	return scanDeposit(r.tx.QueryRow(ctx, `SELECT `+depositColumns+` FROM deposits WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) MarkConfirmed(ctx context.Context, d Deposit) (Deposit, error) {
	out, err := scanDeposit(r.tx.QueryRow(ctx, `UPDATE deposits
SET status='CONFIRMED', target_key=$3, transaction_id=$4, subledger_entry_id=$5, decided_by=$6, decided_at=$7, version=version+1
WHERE id=$1 AND version=$2 AND status='PENDING' RETURNING `+depositColumns,
		d.ID, d.Version, d.TargetKey, d.TransactionID, d.SubledgerEntryID, d.DecidedBy, d.DecidedAt))
	if errors.Is(err, ErrDepositNotFound) {
		return Deposit{}, ErrAlreadyConfirmed
	}
	return out, err
}

func (r *txRepository) MarkRejected(ctx context.Context, d Deposit) (Deposit, error) {
	out, err := scanDeposit(r.tx.QueryRow(ctx, `UPDATE deposits
SET status='REJECTED', reject_reason=$3, decided_by=$4, decided_at=$5, version=version+1
WHERE id=$1 AND version=$2 AND status='PENDING' RETURNING `+depositColumns,
		d.ID, d.Version, d.RejectReason, d.DecidedBy, d.DecidedAt))
	if errors.Is(err, ErrDepositNotFound) {
		return Deposit{}, ErrAlreadyRejected
	}
	return out, err
}

// GetDeposit loads a deposit by id.
func (r *Repository) GetDeposit(ctx context.Context, id int64) (Deposit, error) {
	return scanDeposit(r.pool.QueryRow(ctx, `SELECT `+depositColumns+` FROM deposits WHERE id=$1`, id))
}

// ListDeposits returns deposits newest first with the total count.
func (r *Repository) ListDeposits(ctx context.Context, filter ListFilter) ([]Deposit, int, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		clauses = append(clauses, fmt.Sprintf("kind=$%d", len(args)))
	}
	if filter.ShiftID != nil {
		args = append(args, *filter.ShiftID)
		clauses = append(clauses, fmt.Sprintf("shift_id=$%d", len(args)))
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM deposits`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, filter.PerPage, (filter.Page-1)*filter.PerPage)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM deposits%s ORDER BY recorded_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		depositColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Deposit, error) {
		return scanDeposit(row)
	})
	return items, total, err
}

func scanDeposit(row pgx.Row) (Deposit, error) {
	var d Deposit
	err := row.Scan(&d.ID, &d.Kind, &d.ShiftID, &d.ContactID, &d.Amount, &d.Reference, &d.EvidenceRef, &d.TargetKey,
		&d.Status, &d.TransactionID, &d.SubledgerEntryID, &d.RejectReason, &d.RecordedBy, &d.RecordedAt, &d.DecidedBy, &d.DecidedAt, &d.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Deposit{}, ErrDepositNotFound
		}
		return Deposit{}, err
	}
	return d, nil
}
