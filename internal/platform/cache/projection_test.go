package cache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	Total string `json:"total"`
}

func TestProjectionFetchAndBump(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache := NewProjection(client, "ledger", time.Minute)
	ctx := context.Background()

	var calls atomic.Int32
	loader := func(context.Context) (any, error) {
		calls.Add(1)
		return snapshot{Total: "100.00"}, nil
	}

	key, err := cache.BuildKey(ctx, "trial_balance")
	require.NoError(t, err)
	require.Equal(t, "ledger:trial_balance:1", key)

	var first, second snapshot
	require.NoError(t, cache.FetchJSON(ctx, key, &first, loader))
	require.NoError(t, cache.FetchJSON(ctx, key, &second, loader))
	require.Equal(t, "100.00", second.Total)
	require.Equal(t, int32(1), calls.Load())

	require.NoError(t, cache.Bump(ctx))
	bumped, err := cache.BuildKey(ctx, "trial_balance")
	require.NoError(t, err)
	require.Equal(t, "ledger:trial_balance:2", bumped)

	var third snapshot
	require.NoError(t, cache.FetchJSON(ctx, bumped, &third, loader))
	require.Equal(t, int32(2), calls.Load())
}

func TestProjectionWithoutClientCallsLoader(t *testing.T) {
	cache := NewProjection(nil, "", time.Minute)
	var out snapshot
	err := cache.FetchJSON(context.Background(), "k", &out, func(context.Context) (any, error) {
		return snapshot{Total: "5"}, nil
	})
	require.NoError(t, err)
	require.Equal(t, "5", out.Total)
	require.NoError(t, cache.Bump(context.Background()))
}
