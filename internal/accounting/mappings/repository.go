package mappings

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/ledger-core/internal/platform/db"
)

const (
	constraintModuleKey      = "uq_account_mappings_module_key"
	constraintTreasuryTarget = "uq_account_mappings_treasury_account"

	mappingColumns = `id, module, key, account_id, COALESCE(description,''), created_at, updated_at`
)

// Repository persists account mappings.
type Repository interface {
	Get(ctx context.Context, module, key string) (AccountMapping, error)
	GetByID(ctx context.Context, id int64) (AccountMapping, error)
	List(ctx context.Context, module string) ([]AccountMapping, error)
	FindByAccount(ctx context.Context, module string, accountID int64) ([]AccountMapping, error)
	Insert(ctx context.Context, in CreateInput) (AccountMapping, error)
	UpdateAccount(ctx context.Context, id, accountID int64) (AccountMapping, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the Postgres-backed mapping repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// Get resolves an account mapping for the specified key.
func (r *repository) Get(ctx context.Context, module, key string) (AccountMapping, error) {
	if module == "" || key == "" {
		return AccountMapping{}, ErrInvalidMapping
	}
	return scanMapping(r.db.QueryRow(ctx, `SELECT `+mappingColumns+` FROM account_mappings WHERE module=$1 AND key=$2`,
		strings.ToUpper(module), key))
}

func (r *repository) GetByID(ctx context.Context, id int64) (AccountMapping, error) {
	return scanMapping(r.db.QueryRow(ctx, `SELECT `+mappingColumns+` FROM account_mappings WHERE id=$1`, id))
}

func (r *repository) List(ctx context.Context, module string) ([]AccountMapping, error) {
	query := `SELECT ` + mappingColumns + ` FROM account_mappings`
	var args []any
	if module != "" {
		query += ` WHERE module=$1`
		args = append(args, strings.ToUpper(module))
	}
	rows, err := r.db.Query(ctx, query+` ORDER BY module, key`, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (AccountMapping, error) {
		return scanMapping(row)
	})
}

func (r *repository) FindByAccount(ctx context.Context, module string, accountID int64) ([]AccountMapping, error) {
	rows, err := r.db.Query(ctx, `SELECT `+mappingColumns+` FROM account_mappings WHERE module=$1 AND account_id=$2 ORDER BY key`,
		strings.ToUpper(module), accountID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (AccountMapping, error) {
		return scanMapping(row)
	})
}

func (r *repository) Insert(ctx context.Context, in CreateInput) (AccountMapping, error) {
	m, err := scanMapping(r.db.QueryRow(ctx, `INSERT INTO account_mappings (module, key, account_id, description)
VALUES ($1,$2,$3,NULLIF($4,'')) RETURNING `+mappingColumns, in.Module, in.Key, in.AccountID, in.Description))
	return m, translate(err)
}

func (r *repository) UpdateAccount(ctx context.Context, id, accountID int64) (AccountMapping, error) {
	m, err := scanMapping(r.db.QueryRow(ctx, `UPDATE account_mappings SET account_id=$2, updated_at=NOW() WHERE id=$1 RETURNING `+mappingColumns,
		id, accountID))
	return m, translate(err)
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err, constraintModuleKey):
		return ErrDuplicateKey
	case db.IsUniqueViolation(err, constraintTreasuryTarget):
		return ErrSharedAccount
	}
	return err
}

func scanMapping(row pgx.Row) (AccountMapping, error) {
	var m AccountMapping
	err := row.Scan(&m.ID, &m.Module, &m.Key, &m.AccountID, &m.Description, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountMapping{}, ErrMappingNotFound
		}
		return AccountMapping{}, err
	}
	return m, nil
}
