package gateway

import (
	"context"
	"time"

	"order-pipeline/internal/domain"
	"order-pipeline/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DecideFunc maps a charge amount to a gateway outcome.
type DecideFunc func(amountCents int64) bool

// EvenAmountSucceeds approves charges whose total is an even number of
// cents and declines the rest. Deterministic, so test fixtures can steer
// outcomes by choosing prices.
func EvenAmountSucceeds(amountCents int64) bool {
	return amountCents%2 == 0
}

// Fake is a stand-in payment provider. Charge accepts immediately and
// reports the outcome later through the payment callback queue, mimicking
// a real gateway's asynchronous webhook.
type Fake struct {
	scheduler domain.TaskScheduler
	decide    DecideFunc
	delay     time.Duration
	logger    *zap.Logger
}

// NewFake creates the fake gateway. A nil decide falls back to
// EvenAmountSucceeds.
func NewFake(scheduler domain.TaskScheduler, decide DecideFunc, delay time.Duration) *Fake {
	if decide == nil {
		decide = EvenAmountSucceeds
	}
	return &Fake{
		scheduler: scheduler,
		decide:    decide,
		delay:     delay,
		logger:    util.GetLogger(),
	}
}

// Charge records the charge attempt and schedules the asynchronous
// callback carrying the outcome and a provider reference.
func (f *Fake) Charge(ctx context.Context, orderID, amountCents int64) error {
	succeeded := f.decide(amountCents)
	providerRef := "FAKE-" + uuid.New().String()

	f.logger.Info("Gateway charge accepted",
		zap.Int64("order_id", orderID),
		zap.Int64("amount_cents", amountCents),
		zap.Bool("will_succeed", succeeded),
		zap.String("provider_ref", providerRef))

	time.AfterFunc(f.delay, func() {
		// The request context is long gone when the callback fires.
		cbCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := f.scheduler.EnqueuePaymentCallback(cbCtx, orderID, succeeded, providerRef); err != nil {
			f.logger.Error("Failed to enqueue payment callback",
				zap.Int64("order_id", orderID),
				zap.Error(err))
		}
	})
	return nil
}
