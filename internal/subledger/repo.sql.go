package subledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger-core/internal/accounting"
	"github.com/odyssey-erp/ledger-core/internal/platform/db"
)

const entryColumns = `id, kind, contact_id, transaction_id, entry_date, description, debit, credit, balance_after, status, created_by, created_at, confirmed_at`

// Repository persists sub-ledger state in Postgres.
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

// NewTxRepository binds sub-ledger and GL writes to tx.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{TxRepository: accounting.NewTxRepository(tx), tx: tx}
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("subledger repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

func (r *txRepository) LockContactBalance(ctx context.Context, kind Kind, contactID int64) (decimal.Decimal, error) {
	if _, err := r.tx.Exec(ctx, `INSERT INTO contact_balances (kind, contact_id, balance) VALUES ($1,$2,0)
ON CONFLICT (kind, contact_id) DO NOTHING`, kind, contactID); err != nil {
		return decimal.Zero, err
	}
	var balance decimal.Decimal
	err := r.tx.QueryRow(ctx, `SELECT balance FROM contact_balances WHERE kind=$1 AND contact_id=$2 FOR UPDATE`, kind, contactID).Scan(&balance)
	return balance, err
}

func (r *txRepository) SetContactBalance(ctx context.Context, kind Kind, contactID int64, balance decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE contact_balances SET balance=$3, updated_at=NOW() WHERE kind=$1 AND contact_id=$2`, kind, contactID, balance)
	return err
}

func (r *txRepository) InsertEntry(ctx context.Context, e Entry) (Entry, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO contact_ledger_entries (kind, contact_id, transaction_id, entry_date, description, debit, credit, balance_after, status, created_by, created_at, confirmed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING id`,
		e.Kind, e.ContactID, e.TransactionID, e.Date, e.Description, e.Debit, e.Credit, e.BalanceAfter, e.Status, e.CreatedBy, e.CreatedAt, e.ConfirmedAt).
		Scan(&e.ID)
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}

func (r *txRepository) LockEntry(ctx context.Context, id int64) (Entry, error) {
	e, err := scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM contact_ledger_entries WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrEntryNotFound
	}
	return e, err
}

func (r *txRepository) MarkEntryConfirmed(ctx context.Context, id, transactionID int64, balanceAfter decimal.Decimal, at time.Time) (Entry, error) {
	e, err := scanEntry(r.tx.QueryRow(ctx, `UPDATE contact_ledger_entries
SET status='CONFIRMED', transaction_id=$2, balance_after=$3, confirmed_at=$4
WHERE id=$1 AND status='PENDING' RETURNING `+entryColumns, id, transactionID, balanceAfter, at))
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrAlreadyConfirmed
	}
	return e, err
}

// ContactBalance returns the confirmed balance, zero for unknown contacts.
func (r *Repository) ContactBalance(ctx context.Context, kind Kind, contactID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT balance FROM contact_balances WHERE kind=$1 AND contact_id=$2`, kind, contactID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	return balance, err
}

// ListEntries returns a chronological page of entries and the total count.
func (r *Repository) ListEntries(ctx context.Context, kind Kind, contactID int64, page, perPage int) ([]Entry, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM contact_ledger_entries WHERE kind=$1 AND contact_id=$2`, kind, contactID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM contact_ledger_entries
WHERE kind=$1 AND contact_id=$2 ORDER BY entry_date, id LIMIT $3 OFFSET $4`, kind, contactID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		return scanEntry(row)
	})
	return entries, total, err
}

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.Kind, &e.ContactID, &e.TransactionID, &e.Date, &e.Description, &e.Debit, &e.Credit,
		&e.BalanceAfter, &e.Status, &e.CreatedBy, &e.CreatedAt, &e.ConfirmedAt)
	return e, err
}
