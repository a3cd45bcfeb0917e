package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type fakeCleaner struct {
	got time.Duration
	err error
}

func (f *fakeCleaner) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	f.got = olderThan
	return 3, f.err
}

func TestIdempotencyCleanupRetention(t *testing.T) {
	ctx := context.Background()

	store := &fakeCleaner{}
	job := NewIdempotencyCleanupJob(store, 48*time.Hour, nil, nil)
	require.NoError(t, job.Handle(ctx, asynq.NewTask(TaskIdempotencyCleanup, nil)))
	require.Equal(t, 48*time.Hour, store.got)

	task, err := NewIdempotencyCleanupTask(IdempotencyCleanupPayload{Retention: time.Hour})
	require.NoError(t, err)
	require.NoError(t, job.Handle(ctx, task))
	require.Equal(t, time.Hour, store.got)

	job.Retention = 0
	require.NoError(t, job.Handle(ctx, asynq.NewTask(TaskIdempotencyCleanup, nil)))
	require.Equal(t, DefaultIdempotencyRetention, store.got)
}

func TestIdempotencyCleanupErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	job := NewIdempotencyCleanupJob(&fakeCleaner{err: boom}, time.Hour, nil, nil)
	require.ErrorIs(t, job.Handle(ctx, asynq.NewTask(TaskIdempotencyCleanup, nil)), boom)

	bad := asynq.NewTask(TaskIdempotencyCleanup, []byte("{"))
	require.ErrorIs(t, job.Handle(ctx, bad), asynq.SkipRetry)
}
