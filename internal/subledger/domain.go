// Package subledger keeps per-counterparty running balances and entry logs.
//
// Sub-ledger balances are receivable-normal: balanceAfter = prior + debit - credit.
// A positive customer balance is money the customer owes the business. A
// negative vendor balance is money the business owes the vendor, which is the
// inverse of the credit-normal payable account in the GL.
package subledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger-core/internal/accounting"
	"github.com/odyssey-erp/ledger-core/internal/shared"
)

// Kind distinguishes customer and vendor ledgers.
type Kind string

const (
	KindCustomer Kind = "CUSTOMER"
	KindVendor   Kind = "VENDOR"
)

// ParseKind normalises a path or query value.
func ParseKind(raw string) (Kind, error) {
	k := Kind(strings.ToUpper(strings.TrimSpace(raw)))
	if k != KindCustomer && k != KindVendor {
		return "", ErrInvalidKind
	}
	return k, nil
}

// Status of a sub-ledger entry. Only CONFIRMED entries move the balance.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
)

// Entry is one line of a counterparty ledger. BalanceAfter is a snapshot of
// the balance immediately after the entry took effect; it is never re-derived.
type Entry struct {
	ID            int64           `json:"id"`
	Kind          Kind            `json:"kind"`
	ContactID     int64           `json:"contact_id"`
	TransactionID *int64          `json:"transaction_id,omitempty"`
	Date          time.Time       `json:"date"`
	Description   string          `json:"description"`
	Debit         decimal.Decimal `json:"debit"`
	Credit        decimal.Decimal `json:"credit"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	Status        Status          `json:"status"`
	CreatedBy     int64           `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
	ConfirmedAt   *time.Time      `json:"confirmed_at,omitempty"`
}

// AppendInput describes a counterparty movement. With a Posting the entry is
// confirmed together with its GL transaction; without one it stays PENDING.
type AppendInput struct {
	ContactID   int64
	Date        time.Time
	Description string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Posting     *accounting.PostingInput
}

// LedgerView is the per-counterparty read projection.
type LedgerView struct {
	Kind       Kind              `json:"kind"`
	ContactID  int64             `json:"contact_id"`
	Balance    decimal.Decimal   `json:"balance"`
	Entries    []Entry           `json:"entries"`
	Pagination shared.Pagination `json:"pagination"`
}

var (
	ErrInvalidKind      = shared.Validation("subledger: kind must be CUSTOMER or VENDOR")
	ErrContactRequired  = shared.Validation("subledger: contact id required")
	ErrInvalidAmounts   = shared.Validation("subledger: entry must carry exactly one positive side")
	ErrDescription      = shared.Validation("subledger: description required")
	ErrDateRequired     = shared.Validation("subledger: date required")
	ErrPostingRequired  = shared.Validation("subledger: confirmation requires a GL posting")
	ErrPostingMismatch  = shared.Validation("subledger: GL posting total must equal the entry amount")
	ErrEntryNotFound    = shared.NotFound("subledger: entry not found")
	ErrAlreadyConfirmed = shared.AlreadyProcessed("subledger: entry already confirmed")
	ErrForbidden        = shared.Forbidden("subledger: requires finance.contact_ledger.edit")
)

// Validate checks structural rules before any write.
func (in AppendInput) Validate() error {
	if in.ContactID <= 0 {
		return ErrContactRequired
	}
	if in.Date.IsZero() {
		return ErrDateRequired
	}
	if strings.TrimSpace(in.Description) == "" {
		return ErrDescription
	}
	if in.Debit.IsNegative() || in.Credit.IsNegative() {
		return ErrInvalidAmounts
	}
	if in.Debit.IsPositive() == in.Credit.IsPositive() {
		return ErrInvalidAmounts
	}
	if !in.Debit.Equal(in.Debit.Truncate(accounting.AmountScale)) || !in.Credit.Equal(in.Credit.Truncate(accounting.AmountScale)) {
		return accounting.ErrAmountPrecision
	}
	return nil
}

// Delta is the receivable-normal change the entry applies once confirmed.
func (e Entry) Delta() decimal.Decimal {
	return e.Debit.Sub(e.Credit)
}
