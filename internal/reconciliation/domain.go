// Package reconciliation turns verified deposits into posted GL transactions.
// A deposit has no balance effect until a human confirms it.
package reconciliation

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger-core/internal/accounting"
	"github.com/odyssey-erp/ledger-core/internal/shared"
)

// Kind of inflow being deposited.
type Kind string

const (
	KindShiftCash   Kind = "SHIFT_CASH"
	KindWalletTopUp Kind = "WALLET_TOPUP"
	KindSimulated   Kind = "SIMULATED"
)

// Status of a deposit. CONFIRMED and REJECTED are terminal.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusRejected  Status = "REJECTED"
)

// DEPOSIT mapping keys naming the account credited on confirmation.
const (
	CreditKeyShiftCash   = "deposit.shift_cash"
	CreditKeyWalletTopUp = "deposit.wallet_topup"
	CreditKeySimulated   = "deposit.simulated"
)

var creditKeys = map[Kind]string{
	KindShiftCash:   CreditKeyShiftCash,
	KindWalletTopUp: CreditKeyWalletTopUp,
	KindSimulated:   CreditKeySimulated,
}

// CreditKey returns the DEPOSIT mapping key for k.
func (k Kind) CreditKey() string {
	return creditKeys[k]
}

// Valid reports whether k is known.
func (k Kind) Valid() bool {
	_, ok := creditKeys[k]
	return ok
}

// Deposit is a pending or decided inflow.
type Deposit struct {
	ID               int64           `json:"id"`
	Kind             Kind            `json:"kind"`
	ShiftID          *int64          `json:"shift_id,omitempty"`
	ContactID        *int64          `json:"contact_id,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	Reference        string          `json:"reference,omitempty"`
	EvidenceRef      string          `json:"evidence_ref,omitempty"`
	TargetKey        string          `json:"target_key,omitempty"`
	Status           Status          `json:"status"`
	TransactionID    *int64          `json:"transaction_id,omitempty"`
	SubledgerEntryID *int64          `json:"subledger_entry_id,omitempty"`
	RejectReason     string          `json:"reject_reason,omitempty"`
	RecordedBy       int64           `json:"recorded_by"`
	RecordedAt       time.Time       `json:"recorded_at"`
	DecidedBy        *int64          `json:"decided_by,omitempty"`
	DecidedAt        *time.Time      `json:"decided_at,omitempty"`
	Version          int             `json:"version"`
}

// RecordInput registers a deposit awaiting verification.
type RecordInput struct {
	Kind        Kind
	ShiftID     *int64
	ContactID   *int64
	Amount      decimal.Decimal
	Reference   string
	EvidenceRef string
	TargetKey   string
}

// ListFilter narrows deposit listings.
type ListFilter struct {
	Status  Status
	Kind    Kind
	ShiftID *int64
	Page    int
	PerPage int
}

// DepositPage is a page of deposits.
type DepositPage struct {
	Items      []Deposit         `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

var (
	ErrDepositNotFound  = shared.NotFound("reconciliation: deposit not found")
	ErrAlreadyConfirmed = shared.AlreadyProcessed("reconciliation: deposit already confirmed")
	ErrAlreadyRejected  = shared.AlreadyProcessed("reconciliation: deposit already rejected")
	ErrInvalidKind      = shared.Validation("reconciliation: unknown deposit kind")
	ErrInvalidAmount    = shared.Validation("reconciliation: amount must be positive with at most two decimals")
	ErrShiftRequired    = shared.Validation("reconciliation: shift cash deposits require a shift id")
	ErrContactRequired  = shared.Validation("reconciliation: wallet top-ups require a contact id")
	ErrTargetRequired   = shared.Validation("reconciliation: target account key required")
	ErrReasonRequired   = shared.Validation("reconciliation: rejection reason required")
	ErrSimulatedAdmin   = shared.Forbidden("reconciliation: simulated inflows require ADMIN")
	ErrRecordForbidden  = shared.Forbidden("reconciliation: requires finance.deposit.record or pos.shift.operate")
	ErrConfirmForbidden = shared.Forbidden("reconciliation: requires finance.deposit.confirm")
)

// Validate checks structural rules.
func (in RecordInput) Validate() error {
	if !in.Kind.Valid() {
		return ErrInvalidKind
	}
	if !in.Amount.IsPositive() || !in.Amount.Equal(in.Amount.Truncate(accounting.AmountScale)) {
		return ErrInvalidAmount
	}
	if in.Kind == KindShiftCash && (in.ShiftID == nil || *in.ShiftID <= 0) {
		return ErrShiftRequired
	}
	if in.Kind == KindWalletTopUp && (in.ContactID == nil || *in.ContactID <= 0) {
		return ErrContactRequired
	}
	return nil
}

// ParseKind normalises user input.
func ParseKind(raw string) (Kind, error) {
	k := Kind(strings.ToUpper(strings.TrimSpace(raw)))
	if !k.Valid() {
		return "", ErrInvalidKind
	}
	return k, nil
}

// SourceID is the deterministic GL source id of a deposit confirmation, so a
// deposit can be posted at most once.
func SourceID(depositID int64) uuid.UUID {
	return uuid.NewSHA1(uuid.Nil, []byte("DEPOSIT:"+strconv.FormatInt(depositID, 10)))
}
