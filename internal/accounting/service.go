package accounting

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger-core/internal/rbac"
	"github.com/odyssey-erp/ledger-core/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour and read projections.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetAccount(ctx context.Context, id int64) (Account, error)
	GetAccountByCode(ctx context.Context, code string) (Account, error)
	ListAccounts(ctx context.Context, filter AccountFilter) ([]Account, error)
	GetTransaction(ctx context.Context, id int64) (Transaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, int, error)
	AccountTotals(ctx context.Context) ([]AccountTotals, error)
	UnbalancedTransactions(ctx context.Context) ([]UnbalancedTransaction, error)
}

// TxRepository exposes the writes the posting gate performs inside one atomic unit.
type TxRepository interface {
	InsertAccount(ctx context.Context, in CreateAccountInput) (Account, error)
	SetAccountEnabled(ctx context.Context, id int64, enabled bool) (Account, error)
	// LockAccounts row-locks ids in the order given and returns the accounts found.
	LockAccounts(ctx context.Context, ids []int64) ([]Account, error)
	InsertTransaction(ctx context.Context, txn Transaction) (Transaction, error)
	InsertEntries(ctx context.Context, transactionID int64, entries []LedgerEntry) ([]LedgerEntry, error)
	ApplyBalanceDelta(ctx context.Context, accountID int64, delta decimal.Decimal) (decimal.Decimal, error)
	LoadTransaction(ctx context.Context, id int64) (Transaction, error)
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ProjectionCache caches read projections until the next posting.
type ProjectionCache interface {
	BuildKey(ctx context.Context, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
	Bump(ctx context.Context) error
}

// PostingObserver receives a signal per committed transaction.
type PostingObserver interface {
	ObservePosting(sourceModule string, lines int)
}

// Service is the account registry and the single gate through which balances change.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	cache    ProjectionCache
	observer PostingObserver
	now      func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithCache enables projection caching.
func (s *Service) WithCache(cache ProjectionCache) {
	s.cache = cache
}

// WithObserver attaches posting metrics.
func (s *Service) WithObserver(observer PostingObserver) {
	s.observer = observer
}

// CreateAccount registers a new account in the chart of accounts.
func (s *Service) CreateAccount(ctx context.Context, actor rbac.Principal, in CreateAccountInput) (Account, error) {
	if err := rbac.RequireAny(actor, shared.PermFinanceAccountsManage); err != nil {
		return Account{}, ErrAccountsManageDenied
	}
	if err := in.Validate(); err != nil {
		return Account{}, err
	}
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	in.Currency, _ = NormalizeCurrency(in.Currency)
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		account, err = tx.InsertAccount(ctx, in)
		return err
	})
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, actor, "account.create", "account", account.ID, map[string]any{
		"code": account.Code,
		"type": string(account.Type),
	})
	s.invalidate(ctx)
	return account, nil
}

// DisableAccount stops an account from receiving new postings. Accounts are never deleted.
func (s *Service) DisableAccount(ctx context.Context, actor rbac.Principal, id int64) (Account, error) {
	return s.setEnabled(ctx, actor, id, false)
}

// EnableAccount re-opens a disabled account for postings.
func (s *Service) EnableAccount(ctx context.Context, actor rbac.Principal, id int64) (Account, error) {
	return s.setEnabled(ctx, actor, id, true)
}

func (s *Service) setEnabled(ctx context.Context, actor rbac.Principal, id int64, enabled bool) (Account, error) {
	if err := rbac.RequireAny(actor, shared.PermFinanceAccountsManage); err != nil {
		return Account{}, ErrAccountsManageDenied
	}
	var account Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		account, err = tx.SetAccountEnabled(ctx, id, enabled)
		return err
	})
	if err != nil {
		return Account{}, err
	}
	action := "account.disable"
	if enabled {
		action = "account.enable"
	}
	s.record(ctx, actor, action, "account", account.ID, nil)
	s.invalidate(ctx)
	return account, nil
}

// GetAccount looks up an account by id.
func (s *Service) GetAccount(ctx context.Context, id int64) (Account, error) {
	return s.repo.GetAccount(ctx, id)
}

// GetAccountByCode looks up an account by its unique code.
func (s *Service) GetAccountByCode(ctx context.Context, code string) (Account, error) {
	return s.repo.GetAccountByCode(ctx, strings.TrimSpace(code))
}

// ListAccounts lists accounts ordered by code.
func (s *Service) ListAccounts(ctx context.Context, filter AccountFilter) ([]Account, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, ErrInvalidAccountType
	}
	return s.repo.ListAccounts(ctx, filter)
}

// PostTransaction validates and atomically commits a balanced entry set.
func (s *Service) PostTransaction(ctx context.Context, actor rbac.Principal, in PostingInput) (Transaction, error) {
	if err := authorizePosting(actor, in); err != nil {
		return Transaction{}, err
	}
	if err := in.Validate(); err != nil {
		return Transaction{}, err
	}
	var txn Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		txn, err = s.PostInTx(ctx, tx, actor, in)
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	s.AfterCommit(ctx, actor, txn)
	return txn, nil
}

// PostInTx runs the posting gate inside a transaction owned by the caller, so
// sub-ledger and reconciliation writes commit together with the GL entries.
// Callers must invoke AfterCommit once their transaction commits.
func (s *Service) PostInTx(ctx context.Context, tx TxRepository, actor rbac.Principal, in PostingInput) (Transaction, error) {
	if err := authorizePosting(actor, in); err != nil {
		return Transaction{}, err
	}
	if err := in.Validate(); err != nil {
		return Transaction{}, err
	}
	ids := accountIDs(in.Lines)
	locked, err := tx.LockAccounts(ctx, ids)
	if err != nil {
		return Transaction{}, err
	}
	accounts := make(map[int64]Account, len(locked))
	for _, acc := range locked {
		accounts[acc.ID] = acc
	}
	var currency string
	for _, id := range ids {
		acc, ok := accounts[id]
		if !ok {
			return Transaction{}, fmt.Errorf("%w: id %d", ErrUnknownAccount, id)
		}
		if !acc.Enabled {
			return Transaction{}, fmt.Errorf("%w: %s", ErrAccountDisabled, acc.Code)
		}
		if currency == "" {
			currency = acc.Currency
		} else if acc.Currency != currency {
			return Transaction{}, fmt.Errorf("%w: %s is %s, expected %s", ErrCurrencyMismatch, acc.Code, acc.Currency, currency)
		}
	}

	sourceID := in.SourceID
	if sourceID == uuid.Nil {
		sourceID = uuid.New()
	}
	txn, err := tx.InsertTransaction(ctx, Transaction{
		Date:         in.Date,
		Description:  strings.TrimSpace(in.Description),
		Reference:    strings.TrimSpace(in.Reference),
		Status:       TransactionStatusPosted,
		SourceModule: strings.ToUpper(strings.TrimSpace(in.SourceModule)),
		SourceID:     sourceID,
		PostedBy:     actor.ID,
		PostedAt:     s.now(),
		ReversalOf:   in.ReversalOf,
	})
	if err != nil {
		return Transaction{}, err
	}

	entries := make([]LedgerEntry, 0, len(in.Lines))
	deltas := make(map[int64]decimal.Decimal, len(ids))
	for _, line := range in.Lines {
		entry := line.entry()
		entries = append(entries, entry)
		delta := SignedDelta(accounts[entry.AccountID].Type, entry.Direction, entry.Amount)
		deltas[entry.AccountID] = deltas[entry.AccountID].Add(delta)
	}
	inserted, err := tx.InsertEntries(ctx, txn.ID, entries)
	if err != nil {
		return Transaction{}, err
	}
	for _, id := range ids {
		delta := deltas[id]
		if delta.IsZero() {
			continue
		}
		if _, err := tx.ApplyBalanceDelta(ctx, id, delta); err != nil {
			return Transaction{}, err
		}
	}
	txn.Entries = inserted
	return txn, nil
}

// AfterCommit records side effects of a committed posting. Failures here are
// not returned because the ledger write already happened.
func (s *Service) AfterCommit(ctx context.Context, actor rbac.Principal, txn Transaction) {
	s.record(ctx, actor, "transaction.post", "ledger_transaction", txn.ID, map[string]any{
		"source_module": txn.SourceModule,
		"source_id":     txn.SourceID.String(),
		"entries":       len(txn.Entries),
	})
	if s.observer != nil {
		s.observer.ObservePosting(txn.SourceModule, len(txn.Entries))
	}
	s.invalidate(ctx)
}

// ReverseTransaction posts the equal-and-opposite entry set of transaction id.
func (s *Service) ReverseTransaction(ctx context.Context, actor rbac.Principal, id int64, memo string) (Transaction, error) {
	if err := rbac.RequireAny(actor, shared.PermFinanceCreate); err != nil {
		return Transaction{}, ErrManualPostForbidden
	}
	var reversal Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.LoadTransaction(ctx, id)
		if err != nil {
			return err
		}
		if original.ReversalOf != nil {
			return ErrReversalOfReversal
		}
		reversal, err = s.PostInTx(ctx, tx, actor, PostingInput{
			Date:         s.now(),
			Description:  defaultReversalMemo(memo, original),
			Reference:    original.Reference,
			SourceModule: original.SourceModule + reversalSuffix,
			SourceID:     ReversalSourceID(original.ID),
			ReversalOf:   &original.ID,
			Lines:        reverseLines(original.Entries),
		})
		return err
	})
	if err != nil {
		if errors.Is(err, ErrSourceAlreadyLinked) {
			return Transaction{}, ErrAlreadyReversed
		}
		return Transaction{}, err
	}
	s.AfterCommit(ctx, actor, reversal)
	return reversal, nil
}

// ReversalSourceID derives the deterministic source id of a reversal so a
// transaction can be reversed at most once.
func ReversalSourceID(transactionID int64) uuid.UUID {
	return uuid.NewSHA1(uuid.Nil, []byte("REVERSAL:"+strconv.FormatInt(transactionID, 10)))
}

// GetTransaction returns a transaction with its entries.
func (s *Service) GetTransaction(ctx context.Context, id int64) (Transaction, error) {
	return s.repo.GetTransaction(ctx, id)
}

// ListTransactions returns the newest-first transaction feed.
func (s *Service) ListTransactions(ctx context.Context, filter TransactionFilter) (TransactionPage, error) {
	filter.Page, filter.PerPage = shared.NormalizePage(filter.Page, filter.PerPage)
	filter.SourceModule = strings.ToUpper(strings.TrimSpace(filter.SourceModule))
	items, total, err := s.repo.ListTransactions(ctx, filter)
	if err != nil {
		return TransactionPage{}, err
	}
	if items == nil {
		items = []Transaction{}
	}
	return TransactionPage{Items: items, Pagination: shared.NewPagination(filter.Page, filter.PerPage, total)}, nil
}

// AccountBalance returns the cached balance of one account.
func (s *Service) AccountBalance(ctx context.Context, id int64) (AccountBalance, error) {
	acc, err := s.repo.GetAccount(ctx, id)
	if err != nil {
		return AccountBalance{}, err
	}
	return AccountBalance{
		AccountID:     acc.ID,
		Code:          acc.Code,
		Name:          acc.Name,
		Type:          acc.Type,
		NormalBalance: acc.Type.NormalBalance(),
		Currency:      acc.Currency,
		Balance:       acc.Balance,
	}, nil
}

func (s *Service) record(ctx context.Context, actor rbac.Principal, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		Action:    action,
		Entity:    entity,
		EntityID:  strconv.FormatInt(id, 10),
		Meta:      meta,
		At:        s.now(),
	})
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache != nil {
		_ = s.cache.Bump(ctx)
	}
}

// postingPermissions lists who may post under each source module. Modules not
// listed are adapter sources and fall back to adapterPostingPermissions.
var postingPermissions = map[string][]string{
	SourceManual:  {shared.PermFinanceCreate},
	SourceContact: {shared.PermFinanceContactLedger, shared.PermFinanceCreate},
	SourceDeposit: {shared.PermFinanceDepositConfirm},
	SourcePOS:     {shared.PermPOSShiftOperate, shared.PermFinanceIntegrations},
}

var adapterPostingPermissions = []string{shared.PermFinanceIntegrations, shared.PermFinanceCreate}

func authorizePosting(actor rbac.Principal, in PostingInput) error {
	if !actor.Authenticated() {
		return rbac.ErrUnauthenticated
	}
	source := strings.ToUpper(strings.TrimSpace(in.SourceModule))
	if strings.HasSuffix(source, reversalSuffix) {
		source = SourceManual
	}
	perms, ok := postingPermissions[source]
	if !ok {
		perms = adapterPostingPermissions
	}
	if err := rbac.RequireAny(actor, perms...); err != nil {
		if source == SourceManual {
			return ErrManualPostForbidden
		}
		return ErrPostForbidden
	}
	return nil
}

// accountIDs returns the distinct account ids of lines in ascending order, the
// lock order every posting uses.
func accountIDs(lines []PostingLineInput) []int64 {
	seen := make(map[int64]struct{}, len(lines))
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.AccountID]; ok {
			continue
		}
		seen[line.AccountID] = struct{}{}
		ids = append(ids, line.AccountID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func reverseLines(entries []LedgerEntry) []PostingLineInput {
	out := make([]PostingLineInput, 0, len(entries))
	for _, e := range entries {
		if e.Direction == DirectionDebit {
			out = append(out, Credit(e.AccountID, e.Amount, e.Description))
			continue
		}
		out = append(out, Debit(e.AccountID, e.Amount, e.Description))
	}
	return out
}

func defaultReversalMemo(memo string, original Transaction) string {
	if strings.TrimSpace(memo) != "" {
		return memo
	}
	return fmt.Sprintf("Reversal of transaction %d: %s", original.ID, original.Description)
}
