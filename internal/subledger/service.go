package subledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger-core/internal/accounting"
	"github.com/odyssey-erp/ledger-core/internal/rbac"
	"github.com/odyssey-erp/ledger-core/internal/shared"
)

// ContactStore holds the sub-ledger writes performed inside a ledger transaction.
type ContactStore interface {
	// LockContactBalance row-locks the balance, creating a zero row when missing.
	LockContactBalance(ctx context.Context, kind Kind, contactID int64) (decimal.Decimal, error)
	SetContactBalance(ctx context.Context, kind Kind, contactID int64, balance decimal.Decimal) error
	InsertEntry(ctx context.Context, entry Entry) (Entry, error)
	LockEntry(ctx context.Context, id int64) (Entry, error)
	// MarkEntryConfirmed flips a PENDING entry; it returns ErrAlreadyConfirmed when no row matched.
	MarkEntryConfirmed(ctx context.Context, id, transactionID int64, balanceAfter decimal.Decimal, at time.Time) (Entry, error)
}

// TxRepository joins the GL and sub-ledger writes in one atomic unit.
type TxRepository interface {
	accounting.TxRepository
	ContactStore
}

// RepositoryPort abstracts storage.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ContactBalance(ctx context.Context, kind Kind, contactID int64) (decimal.Decimal, error)
	ListEntries(ctx context.Context, kind Kind, contactID int64, page, perPage int) ([]Entry, int, error)
}

// Poster is the posting gate the sub-ledger commits GL transactions through.
type Poster interface {
	PostInTx(ctx context.Context, tx accounting.TxRepository, actor rbac.Principal, in accounting.PostingInput) (accounting.Transaction, error)
	AfterCommit(ctx context.Context, actor rbac.Principal, txn accounting.Transaction)
}

// Service maintains customer and vendor ledgers.
type Service struct {
	repo   RepositoryPort
	ledger Poster
	now    func() time.Time
}

// NewService constructs the sub-ledger service.
func NewService(repo RepositoryPort, ledger Poster) *Service {
	return &Service{repo: repo, ledger: ledger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// AppendCustomerEntry appends to a customer ledger.
func (s *Service) AppendCustomerEntry(ctx context.Context, actor rbac.Principal, in AppendInput) (Entry, error) {
	return s.append(ctx, actor, KindCustomer, in)
}

// AppendVendorEntry appends to a vendor ledger.
func (s *Service) AppendVendorEntry(ctx context.Context, actor rbac.Principal, in AppendInput) (Entry, error) {
	return s.append(ctx, actor, KindVendor, in)
}

func (s *Service) append(ctx context.Context, actor rbac.Principal, kind Kind, in AppendInput) (Entry, error) {
	if err := authorize(actor); err != nil {
		return Entry{}, err
	}
	if err := in.Validate(); err != nil {
		return Entry{}, err
	}
	var (
		entry Entry
		txn   *accounting.Transaction
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, txn, err = s.AppendInTx(ctx, tx, actor, kind, in)
		return err
	})
	if err != nil {
		return Entry{}, err
	}
	if txn != nil {
		s.ledger.AfterCommit(ctx, actor, *txn)
	}
	return entry, nil
}

// AppendInTx appends inside a transaction owned by the caller. When in carries
// a posting, the returned transaction must be passed to the poster's
// AfterCommit once the caller commits.
func (s *Service) AppendInTx(ctx context.Context, tx TxRepository, actor rbac.Principal, kind Kind, in AppendInput) (Entry, *accounting.Transaction, error) {
	if kind != KindCustomer && kind != KindVendor {
		return Entry{}, nil, ErrInvalidKind
	}
	if err := in.Validate(); err != nil {
		return Entry{}, nil, err
	}
	prior, err := tx.LockContactBalance(ctx, kind, in.ContactID)
	if err != nil {
		return Entry{}, nil, err
	}
	entry := Entry{
		Kind:         kind,
		ContactID:    in.ContactID,
		Date:         in.Date,
		Description:  in.Description,
		Debit:        in.Debit,
		Credit:       in.Credit,
		BalanceAfter: prior,
		Status:       StatusPending,
		CreatedBy:    actor.ID,
		CreatedAt:    s.now(),
	}
	if in.Posting == nil {
		entry, err = tx.InsertEntry(ctx, entry)
		return entry, nil, err
	}

	if err := matchPosting(entry, *in.Posting); err != nil {
		return Entry{}, nil, err
	}
	txn, err := s.ledger.PostInTx(ctx, tx, actor, *in.Posting)
	if err != nil {
		return Entry{}, nil, err
	}
	confirmedAt := entry.CreatedAt
	entry.Status = StatusConfirmed
	entry.TransactionID = &txn.ID
	entry.ConfirmedAt = &confirmedAt
	entry.BalanceAfter = prior.Add(entry.Delta())
	if err := tx.SetContactBalance(ctx, kind, in.ContactID, entry.BalanceAfter); err != nil {
		return Entry{}, nil, err
	}
	entry, err = tx.InsertEntry(ctx, entry)
	if err != nil {
		return Entry{}, nil, err
	}
	return entry, &txn, nil
}

// ConfirmEntry confirms a PENDING entry together with its GL posting.
func (s *Service) ConfirmEntry(ctx context.Context, actor rbac.Principal, entryID int64, posting accounting.PostingInput) (Entry, error) {
	if err := authorize(actor); err != nil {
		return Entry{}, err
	}
	if len(posting.Lines) == 0 {
		return Entry{}, ErrPostingRequired
	}
	var (
		entry Entry
		txn   accounting.Transaction
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		pending, err := tx.LockEntry(ctx, entryID)
		if err != nil {
			return err
		}
		if pending.Status != StatusPending {
			return ErrAlreadyConfirmed
		}
		if err := matchPosting(pending, posting); err != nil {
			return err
		}
		prior, err := tx.LockContactBalance(ctx, pending.Kind, pending.ContactID)
		if err != nil {
			return err
		}
		txn, err = s.ledger.PostInTx(ctx, tx, actor, posting)
		if err != nil {
			return err
		}
		after := prior.Add(pending.Delta())
		if err := tx.SetContactBalance(ctx, pending.Kind, pending.ContactID, after); err != nil {
			return err
		}
		entry, err = tx.MarkEntryConfirmed(ctx, entryID, txn.ID, after, s.now())
		return err
	})
	if err != nil {
		return Entry{}, err
	}
	s.ledger.AfterCommit(ctx, actor, txn)
	return entry, nil
}

// Ledger returns the counterparty balance and its entries in chronological order.
func (s *Service) Ledger(ctx context.Context, kind Kind, contactID int64, page, perPage int) (LedgerView, error) {
	if kind != KindCustomer && kind != KindVendor {
		return LedgerView{}, ErrInvalidKind
	}
	if contactID <= 0 {
		return LedgerView{}, ErrContactRequired
	}
	page, perPage = shared.NormalizePage(page, perPage)
	balance, err := s.repo.ContactBalance(ctx, kind, contactID)
	if err != nil {
		return LedgerView{}, err
	}
	entries, total, err := s.repo.ListEntries(ctx, kind, contactID, page, perPage)
	if err != nil {
		return LedgerView{}, err
	}
	if entries == nil {
		entries = []Entry{}
	}
	return LedgerView{
		Kind:       kind,
		ContactID:  contactID,
		Balance:    balance,
		Entries:    entries,
		Pagination: shared.NewPagination(page, perPage, total),
	}, nil
}

// matchPosting rejects a GL posting whose total differs from the entry amount,
// so the contact balance and the GL always move by the same figure.
func matchPosting(entry Entry, posting accounting.PostingInput) error {
	total, _, err := accounting.Totals(posting.Lines)
	if err != nil {
		return err
	}
	if !total.Equal(entry.Debit.Add(entry.Credit)) {
		return ErrPostingMismatch
	}
	return nil
}

func authorize(actor rbac.Principal) error {
	if err := rbac.RequireAny(actor, shared.PermFinanceContactLedger, shared.PermFinanceCreate); err != nil {
		if !actor.Authenticated() {
			return err
		}
		return ErrForbidden
	}
	return nil
}
