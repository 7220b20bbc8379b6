package worker

import (
	"context"
	"errors"
	"time"

	"order-pipeline/internal/lock"
	"order-pipeline/internal/util"

	"go.uber.org/zap"
)

// guard serializes task execution per entity. A worker that cannot take
// the entity's lock immediately skips the delivery and commits it; a
// duplicate is by definition already running elsewhere.
type guard struct {
	locker lock.Locker
	ttl    time.Duration
}

// run executes fn while holding key, or skips without error when the key
// is held. maxWait of zero means a single acquisition attempt.
func (g *guard) run(ctx context.Context, taskType, key string, fn func(ctx context.Context) error) error {
	handle, err := g.locker.Acquire(ctx, key, g.ttl, 0)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			util.TasksSkippedTotal.WithLabelValues(taskType).Inc()
			util.GetLogger().Info("Task already running, skipping duplicate",
				zap.String("task_type", taskType),
				zap.String("key", key))
			return nil
		}
		return err
	}
	defer func() {
		if rerr := handle.Release(ctx); rerr != nil {
			util.GetLogger().Error("Failed to release task guard",
				zap.String("key", key),
				zap.Error(rerr))
		}
	}()

	return fn(ctx)
}
