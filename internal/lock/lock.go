package lock

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

// ErrNotAcquired is returned when a lock could not be acquired within the
// wait budget. Callers must treat it as a soft, retryable condition.
var ErrNotAcquired = errors.New("lock not acquired within wait budget")

// retryInterval is the poll interval while waiting for a contended lock.
const retryInterval = 50 * time.Millisecond

// Locker hands out named, TTL-bounded advisory locks.
type Locker interface {
	// Acquire blocks up to maxWait for the lock named key. maxWait of zero
	// means a single attempt. On timeout it returns ErrNotAcquired.
	Acquire(ctx context.Context, key string, ttl, maxWait time.Duration) (*Handle, error)
}

type releaser interface {
	release(ctx context.Context, key, token string) error
}

// Handle represents one held lock. Release is idempotent and safe to call on
// an already-expired lock.
type Handle struct {
	key   string
	token string

	mu       sync.Mutex
	released bool
	locker   releaser
}

// Key returns the lock's name.
func (h *Handle) Key() string { return h.key }

// Release gives the lock back. Only the holder's token releases the key, so
// releasing after expiry cannot steal the lock from a new holder.
func (h *Handle) Release(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return nil
	}
	h.released = true
	return h.locker.release(ctx, h.key, h.token)
}

// RedisLocker implements Locker on a shared redis instance using SETNX with
// a per-acquisition token and a compare-and-delete Lua release.
type RedisLocker struct {
	rdb           *redis.Client
	releaseScript *redis.Script
}

// NewRedisLocker creates a redis-backed locker.
func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{
		rdb:           rdb,
		releaseScript: redis.NewScript(releaseLockScript),
	}
}

// Acquire implements Locker.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl, maxWait time.Duration) (*Handle, error) {
	token := newToken()
	deadline := time.Now().Add(maxWait)

	for {
		ok, err := l.rdb.SetNX(ctx, lockKey(key), token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			return &Handle{key: key, token: token, locker: l}, nil
		}

		if time.Now().Add(retryInterval).After(deadline) {
			return nil, ErrNotAcquired
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
		}
	}
}

func (l *RedisLocker) release(ctx context.Context, key, token string) error {
	if err := l.releaseScript.Run(ctx, l.rdb, []string{lockKey(key)}, token).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	return nil
}

func lockKey(key string) string {
	return "lock:" + key
}

func newToken() string {
	return uuid.New().String()
}
