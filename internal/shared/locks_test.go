package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLock(t *testing.T, ttl time.Duration) (*RedisLock, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLock(client, ttl), mr
}

func TestRedisLockMutualExclusion(t *testing.T) {
	lock, _ := newTestLock(t, time.Minute)
	ctx := context.Background()
	key := YearCloseLockKey(2025)

	require.NoError(t, lock.Acquire(ctx, key))
	require.ErrorIs(t, lock.Acquire(ctx, key), ErrLockHeld)

	require.NoError(t, lock.Release(ctx, key))
	require.NoError(t, lock.Acquire(ctx, key))
}

func TestRedisLockLeaseExpiry(t *testing.T) {
	lock, mr := newTestLock(t, time.Second)
	ctx := context.Background()
	key := YearCloseLockKey(2026)

	require.NoError(t, lock.Acquire(ctx, key))
	require.ErrorIs(t, lock.Acquire(ctx, key), ErrLockHeld)

	mr.FastForward(2 * time.Second)
	require.NoError(t, lock.Acquire(ctx, key))
}

func TestRedisLockKeysAreScopedPerYear(t *testing.T) {
	lock, _ := newTestLock(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, lock.Acquire(ctx, YearCloseLockKey(2025)))
	require.NoError(t, lock.Acquire(ctx, YearCloseLockKey(2026)))
}

func TestNilLockIsNoop(t *testing.T) {
	var lock *RedisLock
	ctx := context.Background()
	require.NoError(t, lock.Acquire(ctx, "any"))
	require.NoError(t, lock.Release(ctx, "any"))
}
