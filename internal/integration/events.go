package integration

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger-core/internal/shifts"
)

// ExpenseDisbursedEvent is raised when an approved expense is paid out.
type ExpenseDisbursedEvent struct {
	ID          int64           `json:"id" validate:"required,gt=0"`
	Number      string          `json:"number" validate:"required,max=64"`
	CategoryKey string          `json:"category_key" validate:"required,max=64"`
	TreasuryKey string          `json:"treasury_key" validate:"required,max=64"`
	Amount      decimal.Decimal `json:"amount"`
	PaidAt      time.Time       `json:"paid_at" validate:"required"`
	Memo        string          `json:"memo" validate:"max=255"`
}

// SalesInvoiceIssuedEvent is raised when a customer invoice is issued.
type SalesInvoiceIssuedEvent struct {
	ID         int64           `json:"id" validate:"required,gt=0"`
	Number     string          `json:"number" validate:"required,max=64"`
	CustomerID int64           `json:"customer_id" validate:"required,gt=0"`
	IssuedAt   time.Time       `json:"issued_at" validate:"required"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Tax        decimal.Decimal `json:"tax"`
}

// VendorBillReceivedEvent is raised when a supplier bill is booked.
type VendorBillReceivedEvent struct {
	ID         int64           `json:"id" validate:"required,gt=0"`
	Number     string          `json:"number" validate:"required,max=64"`
	VendorID   int64           `json:"vendor_id" validate:"required,gt=0"`
	ExpenseKey string          `json:"expense_key" validate:"required,max=64"`
	ReceivedAt time.Time       `json:"received_at" validate:"required"`
	Amount     decimal.Decimal `json:"amount"`
}

// POSSaleEvent is a settled point-of-sale ticket. Refunds reuse the shape.
type POSSaleEvent struct {
	ID       int64                 `json:"id" validate:"required,gt=0"`
	ShiftID  int64                 `json:"shift_id" validate:"required,gt=0"`
	Number   string                `json:"number" validate:"required,max=64"`
	SoldAt   time.Time             `json:"sold_at" validate:"required"`
	Subtotal decimal.Decimal       `json:"subtotal"`
	Tax      decimal.Decimal       `json:"tax"`
	Payments []shifts.PaymentInput `json:"payments" validate:"required,min=1"`
}

// WalletTopUpRequestedEvent is a customer asking to credit their wallet.
type WalletTopUpRequestedEvent struct {
	ID          int64           `json:"id" validate:"required,gt=0"`
	ContactID   int64           `json:"contact_id" validate:"required,gt=0"`
	Amount      decimal.Decimal `json:"amount"`
	TargetKey   string          `json:"target_key" validate:"max=64"`
	EvidenceRef string          `json:"evidence_ref" validate:"max=255"`
}

// PayrollRunEvent is a finalised payroll run with its raw breakdown.
type PayrollRunEvent struct {
	ID        int64           `json:"id" validate:"required,gt=0"`
	Period    string          `json:"period" validate:"required,max=16"`
	PaidAt    time.Time       `json:"paid_at" validate:"required"`
	Breakdown json.RawMessage `json:"breakdown" validate:"required"`
}
