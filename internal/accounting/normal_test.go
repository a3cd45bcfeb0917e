package accounting

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestNormalBalanceTable(t *testing.T) {
	require.Equal(t, DirectionDebit, AccountTypeAsset.NormalBalance())
	require.Equal(t, DirectionDebit, AccountTypeExpense.NormalBalance())
	require.Equal(t, DirectionCredit, AccountTypeLiability.NormalBalance())
	require.Equal(t, DirectionCredit, AccountTypeEquity.NormalBalance())
	require.Equal(t, DirectionCredit, AccountTypeIncome.NormalBalance())
	require.False(t, AccountType("CONTRA").Valid())
}

func TestSignedDeltaAndTotals(t *testing.T) {
	hundred := decimal.RequireFromString("100")
	require.True(t, SignedDelta(AccountTypeAsset, DirectionDebit, hundred).Equal(hundred))
	require.True(t, SignedDelta(AccountTypeAsset, DirectionCredit, hundred).Equal(hundred.Neg()))
	require.True(t, SignedDelta(AccountTypeIncome, DirectionCredit, hundred).Equal(hundred))

	bal := BalanceFromTotals(AccountTypeLiability, decimal.RequireFromString("30"), decimal.RequireFromString("130"))
	require.Equal(t, "100", bal.String())
}

func TestNormalizeCurrency(t *testing.T) {
	code, err := NormalizeCurrency(" idr ")
	require.NoError(t, err)
	require.Equal(t, "IDR", code)

	_, err = NormalizeCurrency("XXQ")
	require.ErrorIs(t, err, ErrInvalidCurrency)
}

func TestParseAccountType(t *testing.T) {
	typ, err := ParseAccountType("income")
	require.NoError(t, err)
	require.Equal(t, AccountTypeIncome, typ)

	_, err = ParseAccountType("other")
	require.ErrorIs(t, err, ErrInvalidAccountType)
}
