package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker implements Locker inside a single process. It mirrors the
// redis semantics (TTL expiry, token-checked release) and backs tests and
// single-node deployments.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]memoryLock
}

type memoryLock struct {
	token     string
	expiresAt time.Time
}

// NewMemoryLocker creates an in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]memoryLock)}
}

// Acquire implements Locker.
func (l *MemoryLocker) Acquire(ctx context.Context, key string, ttl, maxWait time.Duration) (*Handle, error) {
	token := newToken()
	deadline := time.Now().Add(maxWait)

	for {
		if l.tryAcquire(key, token, ttl) {
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

func (l *MemoryLocker) tryAcquire(key, token string, ttl time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if held, ok := l.locks[key]; ok && time.Now().Before(held.expiresAt) {
		return false
	}
	l.locks[key] = memoryLock{token: token, expiresAt: time.Now().Add(ttl)}
	return true
}

func (l *MemoryLocker) release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if held, ok := l.locks[key]; ok && held.token == token {
		delete(l.locks, key)
	}
	return nil
}
