package accounting

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger-core/internal/platform/db"
)

const (
	accountColumns = `id, code, name, type, currency, balance, bank_name, bank_account_number, bank_account_holder, enabled, created_at, updated_at`
	txnColumns     = `id, txn_date, description, reference, status, source_module, source_id, posted_by, posted_at, reversal_of`

	constraintAccountCode = "uq_accounts_code"
	constraintSource      = "uq_ledger_transactions_source"
)

// Repository persists accounting entities.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository binds the ledger writes to a transaction opened by another
// module, letting it post and persist its own rows atomically.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes fn within a repeatable-read transaction, retrying on
// serialization failures.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("accounting repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

func (r *txRepository) InsertAccount(ctx context.Context, in CreateAccountInput) (Account, error) {
	var bankName, bankNumber, bankHolder *string
	if in.Bank != nil {
		bankName, bankNumber, bankHolder = &in.Bank.BankName, &in.Bank.AccountNumber, &in.Bank.AccountHolder
	}
	row := r.tx.QueryRow(ctx, `INSERT INTO accounts (code, name, type, currency, balance, bank_name, bank_account_number, bank_account_holder, enabled)
VALUES ($1,$2,$3,$4,0,$5,$6,$7,TRUE) RETURNING `+accountColumns, in.Code, in.Name, in.Type, in.Currency, bankName, bankNumber, bankHolder)
	acc, err := scanAccount(row)
	if err != nil {
		if db.IsUniqueViolation(err, constraintAccountCode) {
			return Account{}, fmt.Errorf("%w: %s", ErrDuplicateCode, in.Code)
		}
		return Account{}, err
	}
	return acc, nil
}

func (r *txRepository) SetAccountEnabled(ctx context.Context, id int64, enabled bool) (Account, error) {
	row := r.tx.QueryRow(ctx, `UPDATE accounts SET enabled=$2, updated_at=NOW() WHERE id=$1 RETURNING `+accountColumns, id, enabled)
	acc, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrUnknownAccount
		}
		return Account{}, err
	}
	return acc, nil
}

func (r *txRepository) LockAccounts(ctx context.Context, ids []int64) ([]Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAccounts(rows)
}

func (r *txRepository) InsertTransaction(ctx context.Context, txn Transaction) (Transaction, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO ledger_transactions (txn_date, description, reference, status, source_module, source_id, posted_by, posted_at, reversal_of)
VALUES ($1,$2,NULLIF($3,''),$4,$5,$6,$7,$8,$9) RETURNING id`,
		txn.Date, txn.Description, txn.Reference, txn.Status, txn.SourceModule, txn.SourceID, nullInt(txn.PostedBy), txn.PostedAt, txn.ReversalOf).
		Scan(&txn.ID)
	if err != nil {
		if db.IsUniqueViolation(err, constraintSource) {
			return Transaction{}, fmt.Errorf("%w: %s/%s", ErrSourceAlreadyLinked, txn.SourceModule, txn.SourceID)
		}
		return Transaction{}, err
	}
	return txn, nil
}

func (r *txRepository) InsertEntries(ctx context.Context, transactionID int64, entries []LedgerEntry) ([]LedgerEntry, error) {
	out := make([]LedgerEntry, 0, len(entries))
	for _, e := range entries {
		e.TransactionID = transactionID
		err := r.tx.QueryRow(ctx, `INSERT INTO ledger_entries (transaction_id, account_id, amount, direction, description)
VALUES ($1,$2,$3,$4,NULLIF($5,'')) RETURNING id`, transactionID, e.AccountID, e.Amount, e.Direction, e.Description).Scan(&e.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *txRepository) ApplyBalanceDelta(ctx context.Context, accountID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.tx.QueryRow(ctx, `UPDATE accounts SET balance = balance + $2, updated_at=NOW() WHERE id=$1 RETURNING balance`, accountID, delta).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrUnknownAccount
		}
		return decimal.Zero, err
	}
	return balance, nil
}

func (r *txRepository) LoadTransaction(ctx context.Context, id int64) (Transaction, error) {
	return loadTransaction(ctx, r.tx, id)
}

// GetAccount fetches an account by id.
func (r *Repository) GetAccount(ctx context.Context, id int64) (Account, error) {
	acc, err := scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrUnknownAccount
	}
	return acc, err
}

// GetAccountByCode fetches an account by code.
func (r *Repository) GetAccountByCode(ctx context.Context, code string) (Account, error) {
	acc, err := scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE code=$1`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrUnknownAccount
	}
	return acc, err
}

// ListAccounts lists accounts ordered by code.
func (r *Repository) ListAccounts(ctx context.Context, filter AccountFilter) ([]Account, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.Type != "" {
		args = append(args, filter.Type)
		clauses = append(clauses, fmt.Sprintf("type=$%d", len(args)))
	}
	if filter.Enabled != nil {
		args = append(args, *filter.Enabled)
		clauses = append(clauses, fmt.Sprintf("enabled=$%d", len(args)))
	}
	query := `SELECT ` + accountColumns + ` FROM accounts`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.pool.Query(ctx, query+" ORDER BY code", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAccounts(rows)
}

// GetTransaction returns a transaction with its entries.
func (r *Repository) GetTransaction(ctx context.Context, id int64) (Transaction, error) {
	return loadTransaction(ctx, r.pool, id)
}

// ListTransactions returns a newest-first page plus the total row count.
func (r *Repository) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, int, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.SourceModule != "" {
		args = append(args, filter.SourceModule)
		clauses = append(clauses, fmt.Sprintf("source_module=$%d", len(args)))
	}
	if filter.AccountID != nil {
		args = append(args, *filter.AccountID)
		clauses = append(clauses, fmt.Sprintf("EXISTS (SELECT 1 FROM ledger_entries le WHERE le.transaction_id = t.id AND le.account_id=$%d)", len(args)))
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_transactions t`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, filter.PerPage, (filter.Page-1)*filter.PerPage)
	query := fmt.Sprintf(`SELECT %s FROM ledger_transactions t%s ORDER BY posted_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		txnColumns, where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Transaction, error) {
		return scanTransaction(row)
	})
	if err != nil {
		return nil, 0, err
	}
	if len(items) == 0 {
		return items, total, nil
	}
	ids := make([]int64, len(items))
	index := make(map[int64]int, len(items))
	for i, item := range items {
		ids[i] = item.ID
		index[item.ID] = i
	}
	entryRows, err := r.pool.Query(ctx, `SELECT id, transaction_id, account_id, amount, direction, COALESCE(description,'')
FROM ledger_entries WHERE transaction_id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, 0, err
	}
	entries, err := pgx.CollectRows(entryRows, scanEntry)
	if err != nil {
		return nil, 0, err
	}
	for _, e := range entries {
		i := index[e.TransactionID]
		items[i].Entries = append(items[i].Entries, e)
	}
	return items, total, nil
}

// AccountTotals aggregates every account's entries by side.
func (r *Repository) AccountTotals(ctx context.Context) ([]AccountTotals, error) {
	rows, err := r.pool.Query(ctx, `SELECT a.id, a.code, a.name, a.type, a.currency, a.balance, a.bank_name, a.bank_account_number, a.bank_account_holder, a.enabled, a.created_at, a.updated_at,
       COALESCE(SUM(e.amount) FILTER (WHERE e.direction='DEBIT'), 0),
       COALESCE(SUM(e.amount) FILTER (WHERE e.direction='CREDIT'), 0)
FROM accounts a
LEFT JOIN ledger_entries e ON e.account_id = a.id
GROUP BY a.id
ORDER BY a.code`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (AccountTotals, error) {
		var t AccountTotals
		a, err := scanAccountWith(row, &t.Debit, &t.Credit)
		if err != nil {
			return AccountTotals{}, err
		}
		t.Account = a
		return t, nil
	})
}

// UnbalancedTransactions lists transactions whose debit and credit sums differ.
func (r *Repository) UnbalancedTransactions(ctx context.Context) ([]UnbalancedTransaction, error) {
	rows, err := r.pool.Query(ctx, `SELECT transaction_id,
       COALESCE(SUM(amount) FILTER (WHERE direction='DEBIT'), 0) AS debit,
       COALESCE(SUM(amount) FILTER (WHERE direction='CREDIT'), 0) AS credit
FROM ledger_entries
GROUP BY transaction_id
HAVING COALESCE(SUM(amount) FILTER (WHERE direction='DEBIT'), 0) <> COALESCE(SUM(amount) FILTER (WHERE direction='CREDIT'), 0)
ORDER BY transaction_id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (UnbalancedTransaction, error) {
		var u UnbalancedTransaction
		err := row.Scan(&u.TransactionID, &u.Debit, &u.Credit)
		return u, err
	})
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadTransaction(ctx context.Context, q querier, id int64) (Transaction, error) {
	txn, err := scanTransaction(q.QueryRow(ctx, `SELECT `+txnColumns+` FROM ledger_transactions WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrTransactionNotFound
		}
		return Transaction{}, err
	}
	rows, err := q.Query(ctx, `SELECT id, transaction_id, account_id, amount, direction, COALESCE(description,'')
FROM ledger_entries WHERE transaction_id=$1 ORDER BY id`, id)
	if err != nil {
		return Transaction{}, err
	}
	txn.Entries, err = pgx.CollectRows(rows, scanEntry)
	if err != nil {
		return Transaction{}, err
	}
	return txn, nil
}

func scanAccount(row pgx.Row) (Account, error) {
	return scanAccountWith(row)
}

func scanAccountWith(row pgx.Row, extra ...any) (Account, error) {
	var (
		a                              Account
		bankName, bankNumber, bankHold *string
	)
	dest := []any{&a.ID, &a.Code, &a.Name, &a.Type, &a.Currency, &a.Balance, &bankName, &bankNumber, &bankHold, &a.Enabled, &a.CreatedAt, &a.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return Account{}, err
	}
	if bankName != nil || bankNumber != nil {
		a.Bank = &BankDetails{BankName: deref(bankName), AccountNumber: deref(bankNumber), AccountHolder: deref(bankHold)}
	}
	return a, nil
}

func collectAccounts(rows pgx.Rows) ([]Account, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Account, error) {
		return scanAccount(row)
	})
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		t         Transaction
		reference *string
		postedBy  *int64
	)
	err := row.Scan(&t.ID, &t.Date, &t.Description, &reference, &t.Status, &t.SourceModule, &t.SourceID, &postedBy, &t.PostedAt, &t.ReversalOf)
	if err != nil {
		return Transaction{}, err
	}
	t.Reference = deref(reference)
	if postedBy != nil {
		t.PostedBy = *postedBy
	}
	return t, nil
}

func scanEntry(row pgx.CollectableRow) (LedgerEntry, error) {
	var e LedgerEntry
	err := row.Scan(&e.ID, &e.TransactionID, &e.AccountID, &e.Amount, &e.Direction, &e.Description)
	return e, err
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullInt(val int64) any {
	if val == 0 {
		return nil
	}
	return val
}
