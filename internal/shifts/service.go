package shifts

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/ledger-core/internal/accounting"
	"github.com/odyssey-erp/ledger-core/internal/rbac"
	"github.com/odyssey-erp/ledger-core/internal/shared"
)

// ShiftStore holds shift writes performed inside a ledger transaction.
type ShiftStore interface {
	// InsertShift fails with ErrShiftAlreadyOpen when the cashier already has an OPEN shift at the outlet.
	InsertShift(ctx context.Context, s Shift) (Shift, error)
	LockShift(ctx context.Context, id int64) (Shift, error)
	InsertPayments(ctx context.Context, payments []Payment) ([]Payment, error)
	ShiftPayments(ctx context.Context, shiftID int64) ([]Payment, error)
	// MarkClosed flips an OPEN shift at the given version; no match yields ErrAlreadyClosed.
	MarkClosed(ctx context.Context, s Shift) (Shift, error)
	// MarkReconciled signs off a CLOSED shift at the given version; no match yields ErrAlreadyReconciled.
	MarkReconciled(ctx context.Context, s Shift) (Shift, error)
}

// TxRepository joins shift and GL writes.
type TxRepository interface {
	accounting.TxRepository
	ShiftStore
}

// RepositoryPort abstracts storage.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetShift(ctx context.Context, id int64) (Shift, error)
	ListShifts(ctx context.Context, filter ListFilter) ([]Shift, int, error)
	ListPayments(ctx context.Context, shiftID int64) ([]Payment, error)
}

// Poster is the GL posting gate.
type Poster interface {
	PostInTx(ctx context.Context, tx accounting.TxRepository, actor rbac.Principal, in accounting.PostingInput) (accounting.Transaction, error)
	AfterCommit(ctx context.Context, actor rbac.Principal, txn accounting.Transaction)
}

// AuditPort records shift transitions.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Policy tunes close-time behaviour.
type Policy struct {
	// AutoReconcileZeroVariance signs off a shift at close when every channel
	// variance is exactly zero. Off unless configured.
	AutoReconcileZeroVariance bool
	Thresholds                Thresholds
}

// Service runs the shift lifecycle.
type Service struct {
	repo   RepositoryPort
	ledger Poster
	audit  AuditPort
	policy Policy
	now    func() time.Time
}

// NewService constructs the shift service.
func NewService(repo RepositoryPort, ledger Poster, audit AuditPort) *Service {
	return &Service{repo: repo, ledger: ledger, audit: audit, now: time.Now}
}

// WithPolicy sets the close policy.
func (s *Service) WithPolicy(p Policy) {
	s.policy = p
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// OpenShift starts a shift for a cashier at an outlet.
func (s *Service) OpenShift(ctx context.Context, actor rbac.Principal, in OpenInput) (Shift, error) {
	if err := authorizeOperate(actor); err != nil {
		return Shift{}, err
	}
	if in.OutletID <= 0 || in.CashierID <= 0 {
		return Shift{}, ErrOutletRequired
	}
	var shift Shift
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		shift, err = tx.InsertShift(ctx, Shift{
			OutletID:  in.OutletID,
			CashierID: in.CashierID,
			OpenedAt:  s.now(),
			Status:    StatusOpen,
			Version:   1,
		})
		return err
	})
	if err != nil {
		return Shift{}, err
	}
	s.record(ctx, actor, "shift.open", shift, map[string]any{"outlet_id": in.OutletID, "cashier_id": in.CashierID})
	return shift, nil
}

// RecordSale posts a sale and records its tenders against the shift.
func (s *Service) RecordSale(ctx context.Context, actor rbac.Principal, in SaleInput) (Sale, error) {
	return s.recordPayment(ctx, actor, PaymentSale, in)
}

// RecordRefund posts a refund and records its tenders against the shift.
func (s *Service) RecordRefund(ctx context.Context, actor rbac.Principal, in SaleInput) (Sale, error) {
	return s.recordPayment(ctx, actor, PaymentRefund, in)
}

func (s *Service) recordPayment(ctx context.Context, actor rbac.Principal, kind PaymentKind, in SaleInput) (Sale, error) {
	if err := authorizeOperate(actor); err != nil {
		return Sale{}, err
	}
	if err := in.Validate(); err != nil {
		return Sale{}, err
	}
	posting := accounting.PostingInput{
		Date:         in.Date,
		Description:  in.Description,
		Reference:    in.Reference,
		SourceModule: accounting.SourcePOS,
		SourceID:     in.SourceID,
		Lines:        in.Lines,
	}
	if err := posting.Validate(); err != nil {
		return Sale{}, err
	}
	var sale Sale
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		shift, err := tx.LockShift(ctx, in.ShiftID)
		if err != nil {
			return err
		}
		if shift.Status != StatusOpen {
			return ErrShiftClosed
		}
		txn, err := s.ledger.PostInTx(ctx, tx, actor, posting)
		if err != nil {
			return err
		}
		payments := make([]Payment, 0, len(in.Payments))
		for _, p := range in.Payments {
			payments = append(payments, Payment{
				ShiftID:       shift.ID,
				TransactionID: txn.ID,
				Method:        p.Method,
				Kind:          kind,
				Amount:        p.Amount,
				CreatedAt:     txn.PostedAt,
			})
		}
		payments, err = tx.InsertPayments(ctx, payments)
		if err != nil {
			return err
		}
		sale = Sale{Transaction: txn, Payments: payments}
		return nil
	})
	if err != nil {
		return Sale{}, err
	}
	s.ledger.AfterCommit(ctx, actor, sale.Transaction)
	return sale, nil
}

// CloseShift computes expected takings, records the cashier's declaration and
// closes the shift. A second close fails with ErrAlreadyClosed.
func (s *Service) CloseShift(ctx context.Context, actor rbac.Principal, shiftID int64, declared Channels, note string) (Shift, error) {
	if err := authorizeOperate(actor); err != nil {
		return Shift{}, err
	}
	if !validDeclared(declared) {
		return Shift{}, ErrInvalidDeclared
	}
	var closed Shift
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		shift, err := tx.LockShift(ctx, shiftID)
		if err != nil {
			return err
		}
		if shift.Status == StatusClosed {
			return ErrAlreadyClosed
		}
		payments, err := tx.ShiftPayments(ctx, shiftID)
		if err != nil {
			return err
		}
		now := s.now()
		shift.Expected = Expected(payments)
		shift.Declared = declared
		shift.Variance = declared.Sub(shift.Expected)
		shift.Status = StatusClosed
		shift.ClosedAt = &now
		shift.Note = strings.TrimSpace(note)
		if s.policy.AutoReconcileZeroVariance && shift.Variance.IsZero() {
			shift.IsReconciled = true
			shift.ReconciledBy = &actor.ID
			shift.ReconciledAt = &now
		}
		closed, err = tx.MarkClosed(ctx, shift)
		return err
	})
	if err != nil {
		return Shift{}, err
	}
	s.record(ctx, actor, "shift.close", closed, map[string]any{
		"variance_cash":     closed.Variance.Cash.String(),
		"variance_card":     closed.Variance.Card.String(),
		"variance_transfer": closed.Variance.Transfer.String(),
		"auto_reconciled":   closed.IsReconciled,
	})
	return closed, nil
}

// Reconcile is the supervisor sign-off of a closed shift.
func (s *Service) Reconcile(ctx context.Context, actor rbac.Principal, shiftID int64, note string) (Shift, error) {
	if err := rbac.RequireAny(actor, shared.PermPOSShiftReconcile); err != nil {
		if !actor.Authenticated() {
			return Shift{}, err
		}
		return Shift{}, ErrReconcileForbidden
	}
	var reconciled Shift
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		shift, err := tx.LockShift(ctx, shiftID)
		if err != nil {
			return err
		}
		if shift.Status == StatusOpen {
			return ErrShiftOpen
		}
		if shift.IsReconciled {
			return ErrAlreadyReconciled
		}
		now := s.now()
		shift.IsReconciled = true
		shift.ReconciledBy = &actor.ID
		shift.ReconciledAt = &now
		if note = strings.TrimSpace(note); note != "" {
			shift.Note = note
		}
		reconciled, err = tx.MarkReconciled(ctx, shift)
		return err
	})
	if err != nil {
		return Shift{}, err
	}
	s.record(ctx, actor, "shift.reconcile", reconciled, nil)
	return reconciled, nil
}

// Get returns one shift.
func (s *Service) Get(ctx context.Context, id int64) (Shift, error) {
	return s.repo.GetShift(ctx, id)
}

// List returns shifts newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) (ShiftPage, error) {
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	items, total, err := s.repo.ListShifts(ctx, filter)
	if err != nil {
		return ShiftPage{}, err
	}
	if items == nil {
		items = []Shift{}
	}
	return ShiftPage{Items: items, Pagination: shared.NewPagination(filter.Page, filter.PerPage, total)}, nil
}

// Payments lists the tenders recorded against a shift.
func (s *Service) Payments(ctx context.Context, shiftID int64) ([]Payment, error) {
	if _, err := s.repo.GetShift(ctx, shiftID); err != nil {
		return nil, err
	}
	return s.repo.ListPayments(ctx, shiftID)
}

// VarianceSummary reports expected, declared and variance per channel. Open
// shifts report running expected takings with no declaration or severity.
func (s *Service) VarianceSummary(ctx context.Context, shiftID int64) (VarianceSummary, error) {
	shift, err := s.repo.GetShift(ctx, shiftID)
	if err != nil {
		return VarianceSummary{}, err
	}
	summary := VarianceSummary{ShiftID: shift.ID, Status: shift.Status, IsReconciled: shift.IsReconciled}
	if shift.Status == StatusOpen {
		payments, err := s.repo.ListPayments(ctx, shiftID)
		if err != nil {
			return VarianceSummary{}, err
		}
		expected := Expected(payments)
		for _, m := range Methods {
			summary.Channels = append(summary.Channels, ChannelVariance{Method: m, Expected: expected.Get(m)})
		}
		return summary, nil
	}
	for _, m := range Methods {
		row := ChannelVariance{
			Method:   m,
			Expected: shift.Expected.Get(m),
			Declared: shift.Declared.Get(m),
			Variance: shift.Variance.Get(m),
		}
		row.Severity = s.policy.Thresholds.Classify(row.Variance)
		summary.Severity = worst(summary.Severity, row.Severity)
		summary.Channels = append(summary.Channels, row)
	}
	return summary, nil
}

func (s *Service) record(ctx context.Context, actor rbac.Principal, action string, shift Shift, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		Action:    action,
		Entity:    "shift",
		EntityID:  strconv.FormatInt(shift.ID, 10),
		Meta:      meta,
		At:        s.now(),
	})
}

func authorizeOperate(actor rbac.Principal) error {
	if err := rbac.RequireAny(actor, shared.PermPOSShiftOperate); err != nil {
		if !actor.Authenticated() {
			return err
		}
		return ErrOperateForbidden
	}
	return nil
}
