package worker

import (
	"context"
	"testing"
	"time"

	"order-pipeline/internal/lock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardRunsWhenKeyIsFree(t *testing.T) {
	g := &guard{locker: lock.NewMemoryLocker(), ttl: time.Second}

	ran := false
	err := g.run(context.Background(), "PROCESS_ORDER", "order:1", func(context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestGuardSkipsWhenKeyIsHeld(t *testing.T) {
	locker := lock.NewMemoryLocker()
	g := &guard{locker: locker, ttl: time.Second}

	h, err := locker.Acquire(context.Background(), "order:2", time.Second, 0)
	require.NoError(t, err)
	defer h.Release(context.Background())

	ran := false
	err = g.run(context.Background(), "PROCESS_ORDER", "order:2", func(context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, ran, "duplicate delivery must be skipped, not run")
}

func TestGuardReleasesAfterRun(t *testing.T) {
	locker := lock.NewMemoryLocker()
	g := &guard{locker: locker, ttl: time.Second}

	require.NoError(t, g.run(context.Background(), "PROCESS_REFUND", "refund:1", func(context.Context) error {
		return nil
	}))

	// The key must be free again immediately.
	h, err := locker.Acquire(context.Background(), "refund:1", time.Second, 0)
	require.NoError(t, err)
	require.NoError(t, h.Release(context.Background()))
}

func TestGuardReleasesOnHandlerError(t *testing.T) {
	locker := lock.NewMemoryLocker()
	g := &guard{locker: locker, ttl: time.Second}

	boom := assert.AnError
	err := g.run(context.Background(), "PROCESS_ORDER", "order:3", func(context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)

	h, err := locker.Acquire(context.Background(), "order:3", time.Second, 0)
	require.NoError(t, err)
	require.NoError(t, h.Release(context.Background()))
}
