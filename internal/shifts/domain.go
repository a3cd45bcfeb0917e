// Package shifts tracks point-of-sale cashier shifts and reconciles what was
// collected against what the cashier declares at close.
package shifts

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger-core/internal/accounting"
	"github.com/odyssey-erp/ledger-core/internal/shared"
)

// Status of a shift.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// Method is a payment channel.
type Method string

const (
	MethodCash     Method = "CASH"
	MethodCard     Method = "CARD"
	MethodTransfer Method = "TRANSFER"
)

// Methods lists channels in reporting order.
var Methods = []Method{MethodCash, MethodCard, MethodTransfer}

// Valid reports whether m is a known channel.
func (m Method) Valid() bool {
	return m == MethodCash || m == MethodCard || m == MethodTransfer
}

// PaymentKind separates sales from refunds.
type PaymentKind string

const (
	PaymentSale   PaymentKind = "SALE"
	PaymentRefund PaymentKind = "REFUND"
)

// Severity grades a channel variance.
type Severity string

const (
	SeverityNormal   Severity = "normal"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Channels holds one amount per payment channel.
type Channels struct {
	Cash     decimal.Decimal `json:"cash"`
	Card     decimal.Decimal `json:"card"`
	Transfer decimal.Decimal `json:"transfer"`
}

// Get returns the amount for m.
func (c Channels) Get(m Method) decimal.Decimal {
	switch m {
	case MethodCash:
		return c.Cash
	case MethodCard:
		return c.Card
	case MethodTransfer:
		return c.Transfer
	}
	return decimal.Zero
}

func (c *Channels) add(m Method, amount decimal.Decimal) {
	switch m {
	case MethodCash:
		c.Cash = c.Cash.Add(amount)
	case MethodCard:
		c.Card = c.Card.Add(amount)
	case MethodTransfer:
		c.Transfer = c.Transfer.Add(amount)
	}
}

// Sub returns c minus o per channel.
func (c Channels) Sub(o Channels) Channels {
	return Channels{Cash: c.Cash.Sub(o.Cash), Card: c.Card.Sub(o.Card), Transfer: c.Transfer.Sub(o.Transfer)}
}

// IsZero reports whether every channel is zero.
func (c Channels) IsZero() bool {
	return c.Cash.IsZero() && c.Card.IsZero() && c.Transfer.IsZero()
}

// Total sums every channel.
func (c Channels) Total() decimal.Decimal {
	return c.Cash.Add(c.Card).Add(c.Transfer)
}

// Shift is a cashier session at an outlet.
type Shift struct {
	ID           int64      `json:"id"`
	OutletID     int64      `json:"outlet_id"`
	CashierID    int64      `json:"cashier_id"`
	OpenedAt     time.Time  `json:"opened_at"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
	Status       Status     `json:"status"`
	Expected     Channels   `json:"expected"`
	Declared     Channels   `json:"declared"`
	Variance     Channels   `json:"variance"`
	IsReconciled bool       `json:"is_reconciled"`
	ReconciledBy *int64     `json:"reconciled_by,omitempty"`
	ReconciledAt *time.Time `json:"reconciled_at,omitempty"`
	Note         string     `json:"note,omitempty"`
	Version      int        `json:"version"`
}

// Payment is a tender recorded against a shift transaction.
type Payment struct {
	ID            int64           `json:"id"`
	ShiftID       int64           `json:"shift_id"`
	TransactionID int64           `json:"transaction_id"`
	Method        Method          `json:"method"`
	Kind          PaymentKind     `json:"kind"`
	Amount        decimal.Decimal `json:"amount"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Expected nets sales against refunds per channel.
func Expected(payments []Payment) Channels {
	var out Channels
	for _, p := range payments {
		switch p.Kind {
		case PaymentSale:
			out.add(p.Method, p.Amount)
		case PaymentRefund:
			out.add(p.Method, p.Amount.Neg())
		}
	}
	return out
}

// OpenInput starts a shift.
type OpenInput struct {
	OutletID  int64
	CashierID int64
}

// PaymentInput is one tender of a sale or refund.
type PaymentInput struct {
	Method Method          `json:"method"`
	Amount decimal.Decimal `json:"amount"`
}

// SaleInput carries a pre-computed entry set and the tenders that settled it.
type SaleInput struct {
	ShiftID     int64
	Date        time.Time
	Description string
	Reference   string
	SourceID    uuid.UUID
	Payments    []PaymentInput
	Lines       []accounting.PostingLineInput
}

// Sale is the result of a recorded sale or refund.
type Sale struct {
	Transaction accounting.Transaction `json:"transaction"`
	Payments    []Payment              `json:"payments"`
}

// ChannelVariance is one row of a variance summary.
type ChannelVariance struct {
	Method   Method          `json:"method"`
	Expected decimal.Decimal `json:"expected"`
	Declared decimal.Decimal `json:"declared"`
	Variance decimal.Decimal `json:"variance"`
	Severity Severity        `json:"severity,omitempty"`
}

// VarianceSummary reports expected, declared and variance per channel.
type VarianceSummary struct {
	ShiftID      int64             `json:"shift_id"`
	Status       Status            `json:"status"`
	IsReconciled bool              `json:"is_reconciled"`
	Channels     []ChannelVariance `json:"channels"`
	Severity     Severity          `json:"severity,omitempty"`
}

// Thresholds grade variances by absolute amount. A non-positive threshold is disabled.
type Thresholds struct {
	Warning  decimal.Decimal
	Critical decimal.Decimal
}

// Classify grades v.
func (t Thresholds) Classify(v decimal.Decimal) Severity {
	abs := v.Abs()
	switch {
	case abs.IsZero():
		return SeverityNormal
	case t.Critical.IsPositive() && abs.GreaterThanOrEqual(t.Critical):
		return SeverityCritical
	case t.Warning.IsPositive() && abs.GreaterThanOrEqual(t.Warning):
		return SeverityWarning
	}
	return SeverityNormal
}

func worst(a, b Severity) Severity {
	rank := map[Severity]int{"": 0, SeverityNormal: 1, SeverityWarning: 2, SeverityCritical: 3}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// ListFilter narrows shift listings.
type ListFilter struct {
	OutletID  *int64
	CashierID *int64
	Status    Status
	Page      int
	PerPage   int
}

// ShiftPage is a page of shifts.
type ShiftPage struct {
	Items      []Shift           `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

var (
	ErrShiftNotFound      = shared.NotFound("shifts: shift not found")
	ErrShiftAlreadyOpen   = shared.Conflict("shifts: cashier already has an open shift at this outlet")
	ErrShiftClosed        = shared.Conflict("shifts: shift is closed")
	ErrShiftOpen          = shared.Conflict("shifts: shift is still open")
	ErrAlreadyClosed      = shared.AlreadyProcessed("shifts: shift already closed")
	ErrAlreadyReconciled  = shared.AlreadyProcessed("shifts: shift already reconciled")
	ErrOutletRequired     = shared.Validation("shifts: outlet and cashier required")
	ErrPaymentsRequired   = shared.Validation("shifts: at least one payment required")
	ErrInvalidMethod      = shared.Validation("shifts: unknown payment method")
	ErrInvalidPayment     = shared.Validation("shifts: payment amount must be positive with at most two decimals")
	ErrPaymentMismatch    = shared.Validation("shifts: payments must equal the posted total")
	ErrInvalidDeclared    = shared.Validation("shifts: declared amounts must be non-negative with at most two decimals")
	ErrOperateForbidden   = shared.Forbidden("shifts: requires pos.shift.operate")
	ErrReconcileForbidden = shared.Forbidden("shifts: requires pos.shift.reconcile")
)

// Validate checks tenders against the entry set.
func (in SaleInput) Validate() error {
	if in.ShiftID <= 0 {
		return ErrShiftNotFound
	}
	if len(in.Payments) == 0 {
		return ErrPaymentsRequired
	}
	total := decimal.Zero
	for _, p := range in.Payments {
		if !p.Method.Valid() {
			return ErrInvalidMethod
		}
		if !p.Amount.IsPositive() || !p.Amount.Equal(p.Amount.Truncate(accounting.AmountScale)) {
			return ErrInvalidPayment
		}
		total = total.Add(p.Amount)
	}
	debit, _, err := accounting.Totals(in.Lines)
	if err != nil {
		return err
	}
	if !debit.Equal(total) {
		return ErrPaymentMismatch
	}
	return nil
}

func validDeclared(c Channels) bool {
	for _, m := range Methods {
		v := c.Get(m)
		if v.IsNegative() || !v.Equal(v.Truncate(accounting.AmountScale)) {
			return false
		}
	}
	return true
}
