package main

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger-core/migrations"
)

func TestPgx5URL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@db:5432/ledger?sslmode=disable", pgx5URL("postgres://u:p@db:5432/ledger?sslmode=disable"))
	require.Equal(t, "pgx5://db/ledger", pgx5URL("postgresql://db/ledger"))
	require.Equal(t, "pgx5://db/ledger", pgx5URL("pgx5://db/ledger"))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	names, err := fs.Glob(migrations.FS, "*.sql")
	require.NoError(t, err)
	ups, downs := 0, 0
	for _, n := range names {
		switch {
		case strings.HasSuffix(n, ".up.sql"):
			ups++
		case strings.HasSuffix(n, ".down.sql"):
			downs++
		}
	}
	require.NotZero(t, ups)
	require.Equal(t, ups, downs)

	schema, err := fs.ReadFile(migrations.FS, "0001_ledger_core.up.sql")
	require.NoError(t, err)
	for _, name := range []string{"uq_ledger_transactions_source", "uq_shifts_open_cashier", "uq_account_mappings_treasury_account", "ledger_entries_balanced"} {
		require.Contains(t, string(schema), name)
	}
	require.Contains(t, string(schema), "uq_shifts_open_cashier ON shifts (outlet_id, cashier_id) WHERE status = 'OPEN'")
}
