// Package lock provides Redis-backed distributed mutexes.
package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when another holder owns the lock.
var ErrNotAcquired = errors.New("lock: not acquired")

// Manager hands out redsync mutexes over a single Redis client.
type Manager struct {
	rs     *redsync.Redsync
	expiry time.Duration
}

// NewManager constructs a Manager. expiry bounds how long a crashed holder blocks others.
func NewManager(client *redis.Client, expiry time.Duration) *Manager {
	if expiry <= 0 {
		expiry = time.Minute
	}
	return &Manager{rs: redsync.New(goredis.NewPool(client)), expiry: expiry}
}

// WithLock runs fn while holding key. It does not wait: a held lock yields ErrNotAcquired.
func (m *Manager) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if fn == nil {
		return errors.New("lock: function required")
	}
	if m == nil || m.rs == nil {
		return fn(ctx)
	}
	if key == "" {
		return errors.New("lock: key required")
	}
	mutex := m.rs.NewMutex(key, redsync.WithExpiry(m.expiry), redsync.WithTries(1))
	if err := mutex.LockContext(ctx); err != nil {
		if errors.Is(err, redsync.ErrFailed) || strings.Contains(err.Error(), "lock already taken") {
			return ErrNotAcquired
		}
		return fmt.Errorf("lock: acquire %s: %w", key, err)
	}
	defer func() {
		_, _ = mutex.UnlockContext(context.WithoutCancel(ctx))
	}()
	return fn(ctx)
}
