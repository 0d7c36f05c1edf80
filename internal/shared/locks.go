package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLockHeld indicates another process holds the critical section.
var ErrLockHeld = errors.New("lock already held")

// YearCloseLockKey builds redis keys for the year-close critical section.
func YearCloseLockKey(year int) string {
	return fmt.Sprintf("fiscal:year:%d:close", year)
}

// RedisLock is a best-effort advisory lock for long-running administrative
// operations (year close, integrity scans). Transactional consistency still
// comes from the database; the lock only prevents duplicate concurrent runs.
type RedisLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLock constructs RedisLock with the given lease duration.
func NewRedisLock(client *redis.Client, ttl time.Duration) *RedisLock {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisLock{client: client, ttl: ttl}
}

// Acquire takes the named lock or returns ErrLockHeld.
func (l *RedisLock) Acquire(ctx context.Context, key string) error {
	if l == nil || l.client == nil {
		return nil
	}
	ok, err := l.client.SetNX(ctx, key, "1", l.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrLockHeld
	}
	return nil
}

// Release frees the named lock.
func (l *RedisLock) Release(ctx context.Context, key string) error {
	if l == nil || l.client == nil {
		return nil
	}
	return l.client.Del(ctx, key).Err()
}
