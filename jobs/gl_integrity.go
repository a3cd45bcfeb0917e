package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/ledger-core/internal/accounting"
	jobmetrics "github.com/odyssey-erp/ledger-core/internal/jobs"
	"github.com/odyssey-erp/ledger-core/internal/platform/lock"
	"github.com/odyssey-erp/ledger-core/internal/shared"
)

var glIntegrityLockKey = shared.LedgerLockKey("gl_integrity")

// LedgerVerifier re-aggregates balances from entries.
type LedgerVerifier interface {
	VerifyLedger(ctx context.Context) (accounting.IntegrityReport, error)
}

// Locker serialises a job across worker replicas.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// GLIntegrityJob compares cached balances with their entries. It reports
// drift and never corrects it.
type GLIntegrityJob struct {
	Ledger  LedgerVerifier
	Locks   Locker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewGLIntegrityJob initialises the integrity handler.
func NewGLIntegrityJob(ledger LedgerVerifier, locks Locker, logger *slog.Logger, metrics *jobmetrics.Metrics) *GLIntegrityJob {
	return &GLIntegrityJob{Ledger: ledger, Locks: locks, Logger: logger, Metrics: metrics}
}

// Handle executes one integrity run.
func (j *GLIntegrityJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Ledger == nil {
		return errors.New("gl integrity: handler not configured")
	}
	run := func(ctx context.Context) error {
		_, err := j.Run(ctx)
		return err
	}
	var err error
	if j.Locks != nil {
		err = j.Locks.WithLock(ctx, glIntegrityLockKey, run)
	} else {
		err = run(ctx)
	}
	if errors.Is(err, lock.ErrNotAcquired) {
		j.logger().Info("gl integrity already running elsewhere, skipping")
		return nil
	}
	return err
}

// Run verifies the ledger once and returns the report.
func (j *GLIntegrityJob) Run(ctx context.Context) (report accounting.IntegrityReport, err error) {
	start := time.Now()
	tracker := j.Metrics.Track(TaskGLIntegrity)
	defer func() {
		err = tracker.End(err)
	}()

	report, err = j.Ledger.VerifyLedger(ctx)
	if err != nil {
		j.logger().Error("gl integrity failed", slog.Any("error", err))
		return report, err
	}
	for _, d := range report.Drifts {
		j.logger().Error("ledger balance drift",
			slog.Int64("account_id", d.AccountID),
			slog.String("code", d.Code),
			slog.String("cached", d.Cached.String()),
			slog.String("recomputed", d.Recomputed.String()),
			slog.String("drift", d.Drift().String()),
		)
		j.Metrics.AddDrift("balance", 1)
	}
	for _, u := range report.Unbalanced {
		j.logger().Error("unbalanced ledger transaction",
			slog.Int64("transaction_id", u.TransactionID),
			slog.String("debit", u.Debit.String()),
			slog.String("credit", u.Credit.String()),
		)
		j.Metrics.AddDrift("unbalanced", 1)
	}
	j.logger().Info("gl integrity completed",
		slog.Int("accounts", report.Accounts),
		slog.Int("drifts", len(report.Drifts)),
		slog.Int("unbalanced", len(report.Unbalanced)),
		slog.Duration("duration", time.Since(start)),
	)
	return report, nil
}

func (j *GLIntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskGLIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskGLIntegrity))
}
