package worker

import (
	"context"
	"time"

	"order-pipeline/internal/domain"
	"order-pipeline/internal/util"

	"go.uber.org/zap"
)

// Retrier runs a task handler a bounded number of times with a fixed
// backoff between attempts.
type Retrier struct {
	Attempts int
	Backoff  time.Duration

	// sleep is swapped in tests to avoid real waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrier creates a retrier with the given budget.
func NewRetrier(attempts int, backoff time.Duration) *Retrier {
	return &Retrier{
		Attempts: attempts,
		Backoff:  backoff,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run invokes fn until it returns nil or the attempt budget is spent.
// The last error is returned after exhaustion. Business-rule outcomes are
// resolved once by the handler and never retried here.
func (r *Retrier) Run(ctx context.Context, taskType string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= r.Attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if domain.IsBusinessOutcome(err) {
			return err
		}

		util.GetLogger().Warn("Task attempt failed",
			zap.String("task_type", taskType),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.Attempts),
			zap.Error(err))

		if attempt < r.Attempts {
			util.TaskRetriesTotal.WithLabelValues(taskType).Inc()
			if serr := r.sleep(ctx, r.Backoff); serr != nil {
				return serr
			}
		}
	}
	return err
}
