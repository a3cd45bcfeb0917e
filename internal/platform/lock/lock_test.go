package lock

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestWithLockExcludesConcurrentHolder(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	manager := NewManager(client, 5*time.Second)
	ctx := context.Background()

	ran := false
	err := manager.WithLock(ctx, "ledger:integrity:lock", func(ctx context.Context) error {
		inner := manager.WithLock(ctx, "ledger:integrity:lock", func(context.Context) error {
			t.Fatal("inner function must not run while lock is held")
			return nil
		})
		require.ErrorIs(t, inner, ErrNotAcquired)
		ran = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, ran)

	require.NoError(t, manager.WithLock(ctx, "ledger:integrity:lock", func(context.Context) error { return nil }))
}
