package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"order-pipeline/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(r *Retrier) *Retrier {
	r.sleep = func(context.Context, time.Duration) error { return nil }
	return r
}

func TestRetrierStopsOnFirstSuccess(t *testing.T) {
	r := noSleep(NewRetrier(3, 5*time.Second))

	calls := 0
	err := r.Run(context.Background(), "PROCESS_ORDER", func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetrierRetriesUpToBudget(t *testing.T) {
	r := noSleep(NewRetrier(3, 5*time.Second))

	calls := 0
	boom := errors.New("transient failure")
	err := r.Run(context.Background(), "PROCESS_ORDER", func(context.Context) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestRetrierSucceedsMidway(t *testing.T) {
	r := noSleep(NewRetrier(3, 5*time.Second))

	calls := 0
	err := r.Run(context.Background(), "PROCESS_REFUND", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetrierDoesNotRetryBusinessOutcomes(t *testing.T) {
	r := noSleep(NewRetrier(3, 5*time.Second))

	calls := 0
	err := r.Run(context.Background(), "PROCESS_REFUND", func(context.Context) error {
		calls++
		return &domain.RefundAmountExceededError{OrderID: 1, Requested: 500, Refundable: 100}
	})
	var exceeded *domain.RefundAmountExceededError
	assert.ErrorAs(t, err, &exceeded)
	assert.Equal(t, 1, calls)
}

func TestRetrierStopsWhenContextCancelled(t *testing.T) {
	r := NewRetrier(3, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	r.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}
	err := r.Run(ctx, "PROCESS_ORDER", func(context.Context) error {
		calls++
		return errors.New("always fails")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
