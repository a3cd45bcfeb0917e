package accounting

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// normalBalances is the single rule table mapping account types to the side
// that increases them. Every balance computation goes through it.
var normalBalances = map[AccountType]Direction{
	AccountTypeAsset:     DirectionDebit,
	AccountTypeExpense:   DirectionDebit,
	AccountTypeLiability: DirectionCredit,
	AccountTypeEquity:    DirectionCredit,
	AccountTypeIncome:    DirectionCredit,
}

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	_, ok := normalBalances[t]
	return ok
}

// NormalBalance returns the side that increases accounts of type t.
func (t AccountType) NormalBalance() Direction {
	return normalBalances[t]
}

// ParseAccountType normalises user input into an AccountType.
func ParseAccountType(raw string) (AccountType, error) {
	t := AccountType(strings.ToUpper(strings.TrimSpace(raw)))
	if !t.Valid() {
		return "", ErrInvalidAccountType
	}
	return t, nil
}

// SignedDelta converts an unsigned entry into the change it applies to the
// cached balance of an account of type t.
func SignedDelta(t AccountType, dir Direction, amount decimal.Decimal) decimal.Decimal {
	if dir == t.NormalBalance() {
		return amount
	}
	return amount.Neg()
}

// BalanceFromTotals re-derives a balance from raw debit and credit sums.
func BalanceFromTotals(t AccountType, debit, credit decimal.Decimal) decimal.Decimal {
	return SignedDelta(t, DirectionDebit, debit).Add(SignedDelta(t, DirectionCredit, credit))
}

// NormalizeCurrency validates an ISO-4217 code and returns it upper-cased.
func NormalizeCurrency(raw string) (string, error) {
	unit, err := currency.ParseISO(strings.TrimSpace(raw))
	if err != nil {
		return "", ErrInvalidCurrency
	}
	return unit.String(), nil
}
