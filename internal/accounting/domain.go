package accounting

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger-core/internal/shared"
)

// AmountScale is the number of fractional digits ledger amounts may carry.
const AmountScale = 2

// AccountType enumerates supported account classifications.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeIncome    AccountType = "INCOME"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Direction is the side of an entry.
type Direction string

const (
	DirectionDebit  Direction = "DEBIT"
	DirectionCredit Direction = "CREDIT"
)

// TransactionStatus captures ledger-level lifecycle. Only POSTED exists; provisional
// states live in reconciliation.
type TransactionStatus string

// TransactionStatusPosted marks a committed transaction.
const TransactionStatusPosted TransactionStatus = "POSTED"

// Source modules recognised by the posting gate.
const (
	SourceManual   = "MANUAL"
	SourceExpense  = "EXPENSE"
	SourceSales    = "SALES"
	SourcePurchase = "PURCHASE"
	SourcePayroll  = "PAYROLL"
	SourcePOS      = "POS"
	SourceDeposit  = "DEPOSIT"
	SourceContact  = "CONTACT"

	reversalSuffix = ":REVERSAL"
)

// BankDetails is optional metadata for accounts mirroring an external bank account.
type BankDetails struct {
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
	AccountHolder string `json:"account_holder"`
}

// Account represents a chart of accounts entry. Balance is a cached projection
// of every entry posted to it, signed per the type's normal balance.
type Account struct {
	ID        int64           `json:"id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Type      AccountType     `json:"type"`
	Currency  string          `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	Bank      *BankDetails    `json:"bank,omitempty"`
	Enabled   bool            `json:"enabled"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Transaction is an immutable posted set of balanced entries.
type Transaction struct {
	ID           int64             `json:"id"`
	Date         time.Time         `json:"date"`
	Description  string            `json:"description"`
	Reference    string            `json:"reference,omitempty"`
	Status       TransactionStatus `json:"status"`
	SourceModule string            `json:"source_module"`
	SourceID     uuid.UUID         `json:"source_id"`
	PostedBy     int64             `json:"posted_by"`
	PostedAt     time.Time         `json:"posted_at"`
	ReversalOf   *int64            `json:"reversal_of,omitempty"`
	Entries      []LedgerEntry     `json:"entries,omitempty"`
}

// LedgerEntry is one side of a transaction. Amount is unsigned.
type LedgerEntry struct {
	ID            int64           `json:"id"`
	TransactionID int64           `json:"transaction_id"`
	AccountID     int64           `json:"account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Direction     Direction       `json:"direction"`
	Description   string          `json:"description,omitempty"`
}

// CreateAccountInput registers a chart of accounts entry.
type CreateAccountInput struct {
	Code     string
	Name     string
	Type     AccountType
	Currency string
	Bank     *BankDetails
}

// PostingLineInput is a single debit or credit line. Exactly one side is positive.
type PostingLineInput struct {
	AccountID   int64           `json:"account_id"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description,omitempty"`
}

// PostingInput captures a balanced entry set handed to the posting gate.
type PostingInput struct {
	Date         time.Time
	Description  string
	Reference    string
	SourceModule string
	SourceID     uuid.UUID
	ReversalOf   *int64
	Lines        []PostingLineInput
}

// AccountFilter narrows account listings.
type AccountFilter struct {
	Type    AccountType
	Enabled *bool
}

// TransactionFilter narrows the transaction feed.
type TransactionFilter struct {
	Page         int
	PerPage      int
	AccountID    *int64
	SourceModule string
}

// TransactionPage is one page of the newest-first transaction feed.
type TransactionPage struct {
	Items      []Transaction     `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

// AccountBalance is the balance projection of a single account.
type AccountBalance struct {
	AccountID     int64           `json:"account_id"`
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	Type          AccountType     `json:"type"`
	NormalBalance Direction       `json:"normal_balance"`
	Currency      string          `json:"currency"`
	Balance       decimal.Decimal `json:"balance"`
}

// Errors returned by the ledger.
var (
	ErrNoLines            = shared.Validation("accounting: at least one line required")
	ErrUnbalanced         = shared.Validation("accounting: journal lines must balance")
	ErrZeroAmount         = shared.Validation("accounting: amount must be greater than zero")
	ErrInvalidLine        = shared.Validation("accounting: line must carry exactly one of debit or credit")
	ErrNegativeAmount     = shared.Validation("accounting: amounts cannot be negative")
	ErrAmountPrecision    = shared.Validation(fmt.Sprintf("accounting: amounts support at most %d decimal places", AmountScale))
	ErrMissingAccount     = shared.Validation("accounting: line account id required")
	ErrDescriptionMissing = shared.Validation("accounting: description required")
	ErrDateMissing        = shared.Validation("accounting: transaction date required")
	ErrSourceMissing      = shared.Validation("accounting: source module required")
	ErrCurrencyMismatch   = shared.Validation("accounting: lines must share one currency")
	ErrAccountDisabled    = shared.Validation("accounting: account disabled")
	ErrInvalidAccountType = shared.Validation("accounting: invalid account type")
	ErrInvalidCurrency    = shared.Validation("accounting: invalid ISO currency code")
	ErrAccountCode        = shared.Validation("accounting: account code and name required")

	ErrUnknownAccount       = shared.NotFound("accounting: unknown account")
	ErrTransactionNotFound  = shared.NotFound("accounting: transaction not found")
	ErrDuplicateCode        = shared.Conflict("accounting: account code already exists")
	ErrSourceAlreadyLinked  = shared.AlreadyProcessed("accounting: source already posted")
	ErrAlreadyReversed      = shared.AlreadyProcessed("accounting: transaction already reversed")
	ErrReversalOfReversal   = shared.Validation("accounting: reversal transactions cannot be reversed")
	ErrManualPostForbidden  = shared.Forbidden("accounting: manual journals require ADMIN or finance.create")
	ErrPostForbidden        = shared.Forbidden("accounting: principal may not post for this source module")
	ErrAccountsManageDenied = shared.Forbidden("accounting: account management requires finance.accounts.manage")
)

// Validate performs basic structural validation on input.
func (in CreateAccountInput) Validate() error {
	if strings.TrimSpace(in.Code) == "" || strings.TrimSpace(in.Name) == "" {
		return ErrAccountCode
	}
	if !in.Type.Valid() {
		return ErrInvalidAccountType
	}
	if _, err := NormalizeCurrency(in.Currency); err != nil {
		return err
	}
	return nil
}

// Validate performs structural validation of the posting. It never touches storage,
// so every failure happens before any write.
func (in PostingInput) Validate() error {
	if in.Date.IsZero() {
		return ErrDateMissing
	}
	if strings.TrimSpace(in.Description) == "" {
		return ErrDescriptionMissing
	}
	if strings.TrimSpace(in.SourceModule) == "" {
		return ErrSourceMissing
	}
	if len(in.Lines) == 0 {
		return ErrNoLines
	}
	debit, credit, err := Totals(in.Lines)
	if err != nil {
		return err
	}
	if !debit.Equal(credit) {
		return fmt.Errorf("%w: debit %s credit %s", ErrUnbalanced, debit.StringFixed(AmountScale), credit.StringFixed(AmountScale))
	}
	if !debit.IsPositive() {
		return ErrZeroAmount
	}
	return nil
}

// Totals sums debit and credit sides after validating each line.
func Totals(lines []PostingLineInput) (decimal.Decimal, decimal.Decimal, error) {
	debit, credit := decimal.Zero, decimal.Zero
	for idx, line := range lines {
		if err := line.validate(); err != nil {
			return decimal.Zero, decimal.Zero, fmt.Errorf("line %d: %w", idx+1, err)
		}
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return debit, credit, nil
}

func (l PostingLineInput) validate() error {
	if l.AccountID == 0 {
		return ErrMissingAccount
	}
	if l.Debit.IsNegative() || l.Credit.IsNegative() {
		return ErrNegativeAmount
	}
	if !fitsScale(l.Debit) || !fitsScale(l.Credit) {
		return ErrAmountPrecision
	}
	switch {
	case l.Debit.IsZero() && l.Credit.IsZero():
		return ErrZeroAmount
	case l.Debit.IsPositive() && l.Credit.IsPositive():
		return ErrInvalidLine
	}
	return nil
}

// entry converts the line to its unsigned amount and direction.
func (l PostingLineInput) entry() LedgerEntry {
	if l.Debit.IsPositive() {
		return LedgerEntry{AccountID: l.AccountID, Amount: l.Debit, Direction: DirectionDebit, Description: l.Description}
	}
	return LedgerEntry{AccountID: l.AccountID, Amount: l.Credit, Direction: DirectionCredit, Description: l.Description}
}

func fitsScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(AmountScale))
}

// Debit builds a debit line.
func Debit(accountID int64, amount decimal.Decimal, description string) PostingLineInput {
	return PostingLineInput{AccountID: accountID, Debit: amount, Description: description}
}

// Credit builds a credit line.
func Credit(accountID int64, amount decimal.Decimal, description string) PostingLineInput {
	return PostingLineInput{AccountID: accountID, Credit: amount, Description: description}
}
