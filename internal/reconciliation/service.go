package reconciliation

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/ledger-core/internal/accounting"
	"github.com/odyssey-erp/ledger-core/internal/accounting/mappings"
	"github.com/odyssey-erp/ledger-core/internal/rbac"
	"github.com/odyssey-erp/ledger-core/internal/shared"
	"github.com/odyssey-erp/ledger-core/internal/subledger"
)

// DepositStore holds deposit writes performed inside a ledger transaction.
type DepositStore interface {
	InsertDeposit(ctx context.Context, d Deposit) (Deposit, error)
	LockDeposit(ctx context.Context, id int64) (Deposit, error)
	// MarkConfirmed flips a PENDING deposit at the given version; no match yields ErrAlreadyConfirmed.
	MarkConfirmed(ctx context.Context, d Deposit) (Deposit, error)
	// MarkRejected flips a PENDING deposit at the given version; no match yields ErrAlreadyRejected.
	MarkRejected(ctx context.Context, d Deposit) (Deposit, error)
}

// TxRepository joins deposit, sub-ledger and GL writes.
type TxRepository interface {
	subledger.TxRepository
	DepositStore
}

// RepositoryPort abstracts storage.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetDeposit(ctx context.Context, id int64) (Deposit, error)
	ListDeposits(ctx context.Context, filter ListFilter) ([]Deposit, int, error)
}

// Resolver maps operational keys to GL accounts.
type Resolver interface {
	Resolve(ctx context.Context, module, key string) (int64, error)
}

// SubledgerAppender appends counterparty entries inside a ledger transaction.
type SubledgerAppender interface {
	AppendInTx(ctx context.Context, tx subledger.TxRepository, actor rbac.Principal, kind subledger.Kind, in subledger.AppendInput) (subledger.Entry, *accounting.Transaction, error)
}

// Poster is the GL posting gate.
type Poster interface {
	PostInTx(ctx context.Context, tx accounting.TxRepository, actor rbac.Principal, in accounting.PostingInput) (accounting.Transaction, error)
	AfterCommit(ctx context.Context, actor rbac.Principal, txn accounting.Transaction)
}

// AuditPort records deposit decisions.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service runs the deposit state machine.
type Service struct {
	repo      RepositoryPort
	ledger    Poster
	subledger SubledgerAppender
	mappings  Resolver
	audit     AuditPort
	now       func() time.Time
}

// NewService constructs the reconciliation engine.
func NewService(repo RepositoryPort, ledger Poster, sub SubledgerAppender, resolver Resolver, audit AuditPort) *Service {
	return &Service{repo: repo, ledger: ledger, subledger: sub, mappings: resolver, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Record registers a PENDING deposit. It has no balance effect.
func (s *Service) Record(ctx context.Context, actor rbac.Principal, in RecordInput) (Deposit, error) {
	if err := rbac.RequireAny(actor, shared.PermFinanceDepositRecord, shared.PermPOSShiftOperate); err != nil {
		if !actor.Authenticated() {
			return Deposit{}, err
		}
		return Deposit{}, ErrRecordForbidden
	}
	if in.Kind == KindSimulated && !actor.IsAdmin() {
		return Deposit{}, ErrSimulatedAdmin
	}
	if err := in.Validate(); err != nil {
		return Deposit{}, err
	}
	var d Deposit
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		d, err = tx.InsertDeposit(ctx, Deposit{
			Kind:        in.Kind,
			ShiftID:     in.ShiftID,
			ContactID:   in.ContactID,
			Amount:      in.Amount,
			Reference:   strings.TrimSpace(in.Reference),
			EvidenceRef: strings.TrimSpace(in.EvidenceRef),
			TargetKey:   strings.TrimSpace(in.TargetKey),
			Status:      StatusPending,
			RecordedBy:  actor.ID,
			RecordedAt:  s.now(),
			Version:     1,
		})
		return err
	})
	if err != nil {
		return Deposit{}, err
	}
	s.record(ctx, actor, "deposit.record", d, map[string]any{"kind": string(d.Kind), "amount": d.Amount.String()})
	return d, nil
}

// Confirm posts a PENDING deposit: debit the treasury account behind
// targetKey, credit the clearing or liability account for its kind, and credit
// the contact's sub-ledger when one is attached. Everything commits together.
func (s *Service) Confirm(ctx context.Context, actor rbac.Principal, depositID int64, targetKey string) (Deposit, error) {
	current, err := s.repo.GetDeposit(ctx, depositID)
	if err != nil {
		return Deposit{}, err
	}
	if err := terminal(current); err != nil {
		return Deposit{}, err
	}
	if err := authorizeDecision(actor, current.Kind); err != nil {
		return Deposit{}, err
	}
	targetKey = strings.TrimSpace(targetKey)
	if targetKey == "" {
		targetKey = current.TargetKey
	}
	if targetKey == "" {
		return Deposit{}, ErrTargetRequired
	}
	targetID, err := s.mappings.Resolve(ctx, mappings.ModuleTreasury, targetKey)
	if err != nil {
		return Deposit{}, err
	}
	creditID, err := s.mappings.Resolve(ctx, mappings.ModuleDeposit, current.Kind.CreditKey())
	if err != nil {
		return Deposit{}, err
	}

	var (
		confirmed Deposit
		txn       accounting.Transaction
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		d, err := tx.LockDeposit(ctx, depositID)
		if err != nil {
			return err
		}
		if err := terminal(d); err != nil {
			return err
		}
		now := s.now()
		posting := accounting.PostingInput{
			Date:         now,
			Description:  depositMemo(d),
			Reference:    d.Reference,
			SourceModule: accounting.SourceDeposit,
			SourceID:     SourceID(d.ID),
			Lines: []accounting.PostingLineInput{
				accounting.Debit(targetID, d.Amount, targetKey),
				accounting.Credit(creditID, d.Amount, d.Kind.CreditKey()),
			},
		}
		if d.ContactID != nil {
			entry, posted, err := s.subledger.AppendInTx(ctx, tx, actor, subledger.KindCustomer, subledger.AppendInput{
				ContactID:   *d.ContactID,
				Date:        now,
				Description: posting.Description,
				Credit:      d.Amount,
				Posting:     &posting,
			})
			if err != nil {
				return err
			}
			txn = *posted
			d.SubledgerEntryID = &entry.ID
		} else {
			txn, err = s.ledger.PostInTx(ctx, tx, actor, posting)
			if err != nil {
				return err
			}
		}
		d.Status = StatusConfirmed
		d.TargetKey = targetKey
		d.TransactionID = &txn.ID
		d.DecidedBy = &actor.ID
		d.DecidedAt = &now
		confirmed, err = tx.MarkConfirmed(ctx, d)
		return err
	})
	if err != nil {
		return Deposit{}, err
	}
	s.ledger.AfterCommit(ctx, actor, txn)
	s.record(ctx, actor, "deposit.confirm", confirmed, map[string]any{"transaction_id": txn.ID, "target_key": targetKey})
	return confirmed, nil
}

// Reject discards a PENDING deposit. The row is kept for audit.
func (s *Service) Reject(ctx context.Context, actor rbac.Principal, depositID int64, reason string) (Deposit, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Deposit{}, ErrReasonRequired
	}
	var rejected Deposit
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		d, err := tx.LockDeposit(ctx, depositID)
		if err != nil {
			return err
		}
		if err := terminal(d); err != nil {
			return err
		}
		if err := authorizeDecision(actor, d.Kind); err != nil {
			return err
		}
		now := s.now()
		d.Status = StatusRejected
		d.RejectReason = reason
		d.DecidedBy = &actor.ID
		d.DecidedAt = &now
		rejected, err = tx.MarkRejected(ctx, d)
		return err
	})
	if err != nil {
		return Deposit{}, err
	}
	s.record(ctx, actor, "deposit.reject", rejected, map[string]any{"reason": reason})
	return rejected, nil
}

// Get returns one deposit.
func (s *Service) Get(ctx context.Context, id int64) (Deposit, error) {
	return s.repo.GetDeposit(ctx, id)
}

// List returns deposits newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) (DepositPage, error) {
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	items, total, err := s.repo.ListDeposits(ctx, filter)
	if err != nil {
		return DepositPage{}, err
	}
	if items == nil {
		items = []Deposit{}
	}
	return DepositPage{Items: items, Pagination: shared.NewPagination(filter.Page, filter.PerPage, total)}, nil
}

func (s *Service) record(ctx context.Context, actor rbac.Principal, action string, d Deposit, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		Action:    action,
		Entity:    "deposit",
		EntityID:  strconv.FormatInt(d.ID, 10),
		Meta:      meta,
		At:        s.now(),
	})
}

func terminal(d Deposit) error {
	switch d.Status {
	case StatusConfirmed:
		return ErrAlreadyConfirmed
	case StatusRejected:
		return ErrAlreadyRejected
	}
	return nil
}

func authorizeDecision(actor rbac.Principal, kind Kind) error {
	if err := rbac.RequireAny(actor, shared.PermFinanceDepositConfirm); err != nil {
		if !actor.Authenticated() {
			return err
		}
		return ErrConfirmForbidden
	}
	if kind == KindSimulated && !actor.IsAdmin() {
		return ErrSimulatedAdmin
	}
	return nil
}

func depositMemo(d Deposit) string {
	switch d.Kind {
	case KindShiftCash:
		return fmt.Sprintf("Shift %d cash deposit #%d", *d.ShiftID, d.ID)
	case KindWalletTopUp:
		return fmt.Sprintf("Wallet top-up #%d", d.ID)
	}
	return fmt.Sprintf("Simulated inflow #%d", d.ID)
}
