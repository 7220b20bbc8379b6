package kpi

import (
	"context"
	"fmt"

	"order-pipeline/internal/domain"
	"order-pipeline/internal/util"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const leaderboardKey = "leaderboard:customers"

// Sink aggregates business KPIs into Redis: per-day counters and a
// customer revenue leaderboard. Recording is best-effort; failures are
// logged and never fail the operation that produced the event.
type Sink struct {
	rdb    *redis.Client
	clock  domain.Clock
	logger *zap.Logger
}

// NewSink creates a Redis-backed KPI sink.
func NewSink(rdb *redis.Client, clock domain.Clock) *Sink {
	return &Sink{rdb: rdb, clock: clock, logger: util.GetLogger()}
}

func (s *Sink) dayKey(metric string) string {
	return fmt.Sprintf("kpi:%s:%s", s.clock.Now().UTC().Format("2006-01-02"), metric)
}

// RecordSuccess tallies a paid order: revenue, order count, average order
// value, and the customer's leaderboard score.
func (s *Sink) RecordSuccess(ctx context.Context, customerID, amountCents int64) {
	pipe := s.rdb.Pipeline()
	revenue := pipe.IncrBy(ctx, s.dayKey("revenue_cents"), amountCents)
	count := pipe.Incr(ctx, s.dayKey("order_count"))
	pipe.ZIncrBy(ctx, leaderboardKey, float64(amountCents), fmt.Sprintf("%d", customerID))
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("Failed to record order KPIs",
			zap.Int64("customer_id", customerID),
			zap.Error(err))
		return
	}

	if count.Val() > 0 {
		avg := revenue.Val() / count.Val()
		if err := s.rdb.Set(ctx, s.dayKey("avg_order_value_cents"), avg, 0).Err(); err != nil {
			s.logger.Error("Failed to record average order value", zap.Error(err))
		}
	}
}

// RecordFailure tallies a failed order.
func (s *Sink) RecordFailure(ctx context.Context, customerID, amountCents int64) {
	if err := s.rdb.Incr(ctx, s.dayKey("failed_order_count")).Err(); err != nil {
		s.logger.Error("Failed to record failed-order KPI",
			zap.Int64("customer_id", customerID),
			zap.Error(err))
	}
}

// RecordRefund tallies a processed refund and deducts it from the
// customer's leaderboard score.
func (s *Sink) RecordRefund(ctx context.Context, customerID, amountCents int64) {
	pipe := s.rdb.Pipeline()
	pipe.Incr(ctx, s.dayKey("refund_count"))
	pipe.IncrBy(ctx, s.dayKey("refund_amount_cents"), amountCents)
	pipe.ZIncrBy(ctx, leaderboardKey, -float64(amountCents), fmt.Sprintf("%d", customerID))
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("Failed to record refund KPIs",
			zap.Int64("customer_id", customerID),
			zap.Error(err))
	}
}

// TopCustomers returns the highest-revenue customers with their scores.
func (s *Sink) TopCustomers(ctx context.Context, n int64) ([]redis.Z, error) {
	return s.rdb.ZRevRangeWithScores(ctx, leaderboardKey, 0, n-1).Result()
}
