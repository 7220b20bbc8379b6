package gateway

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingScheduler struct {
	mu        sync.Mutex
	done      chan struct{}
	orderID   int64
	succeeded bool
	ref       string
}

func (s *capturingScheduler) EnqueueProcessOrder(context.Context, int64) error   { return nil }
func (s *capturingScheduler) EnqueueGatewayCharge(context.Context, int64) error  { return nil }
func (s *capturingScheduler) EnqueueProcessRefund(context.Context, int64) error  { return nil }
func (s *capturingScheduler) EnqueueNotification(context.Context, int64, bool) error {
	return nil
}

func (s *capturingScheduler) EnqueuePaymentCallback(_ context.Context, orderID int64, succeeded bool, ref string) error {
	s.mu.Lock()
	s.orderID = orderID
	s.succeeded = succeeded
	s.ref = ref
	s.mu.Unlock()
	close(s.done)
	return nil
}

func TestEvenAmountSucceeds(t *testing.T) {
	assert.True(t, EvenAmountSucceeds(3098))
	assert.True(t, EvenAmountSucceeds(0))
	assert.False(t, EvenAmountSucceeds(1299))
}

func TestChargeEnqueuesCallback(t *testing.T) {
	sched := &capturingScheduler{done: make(chan struct{})}
	fake := NewFake(sched, nil, 0)

	require.NoError(t, fake.Charge(context.Background(), 42, 3098))

	select {
	case <-sched.done:
	case <-time.After(2 * time.Second):
		t.Fatal("payment callback was never enqueued")
	}

	assert.Equal(t, int64(42), sched.orderID)
	assert.True(t, sched.succeeded)
	assert.True(t, strings.HasPrefix(sched.ref, "FAKE-"))
}

func TestChargeUsesInjectedDecision(t *testing.T) {
	sched := &capturingScheduler{done: make(chan struct{})}
	fake := NewFake(sched, func(int64) bool { return false }, 0)

	require.NoError(t, fake.Charge(context.Background(), 7, 1000))

	select {
	case <-sched.done:
	case <-time.After(2 * time.Second):
		t.Fatal("payment callback was never enqueued")
	}

	assert.False(t, sched.succeeded)
}
