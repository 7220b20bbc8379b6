package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"order-pipeline/internal/domain"
	"order-pipeline/internal/lock"
	"order-pipeline/internal/models"
	"order-pipeline/internal/util"

	"go.uber.org/zap"
)

// RefundService is the refund ledger: idempotent refund request creation and
// asynchronous settlement bounded by the per-order refundable balance.
type RefundService struct {
	repo      domain.Repo
	txr       domain.TxRunner
	locker    lock.Locker
	scheduler domain.TaskScheduler
	kpi       domain.MetricsSink
	clock     domain.Clock
	cfg       LockConfig
	logger    *zap.Logger
}

// NewRefundService creates the refund ledger.
func NewRefundService(
	repo domain.Repo,
	txr domain.TxRunner,
	locker lock.Locker,
	scheduler domain.TaskScheduler,
	kpi domain.MetricsSink,
	clock domain.Clock,
	cfg LockConfig,
) *RefundService {
	return &RefundService{
		repo:      repo,
		txr:       txr,
		locker:    locker,
		scheduler: scheduler,
		kpi:       kpi,
		clock:     clock,
		cfg:       cfg,
		logger:    util.GetLogger(),
	}
}

// CreateRefund persists a REQUESTED refund and schedules its settlement.
// When idempotencyKey matches an existing refund for the order, that refund
// is returned unchanged and nothing is scheduled.
func (s *RefundService) CreateRefund(ctx context.Context, orderID, amountCents int64, reason, idempotencyKey string) (*models.Refund, error) {
	ctx, span := util.StartSpan(ctx, "RefundService.CreateRefund")
	defer span.End()

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("order %d: load: %w", orderID, err)
	}
	if order == nil {
		return nil, &domain.OrderNotFoundError{OrderID: orderID}
	}

	if idempotencyKey != "" {
		existing, err := s.repo.GetRefundByIdempotencyKey(ctx, orderID, idempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("order %d: check idempotency key: %w", orderID, err)
		}
		if existing != nil {
			s.logger.Info("Duplicate refund request",
				zap.Int64("order_id", orderID),
				zap.Int64("refund_id", existing.ID),
				zap.String("idempotency_key", idempotencyKey))
			return existing, nil
		}
	}

	if amountCents < 1 {
		return nil, domain.ErrInvalidRefundAmount
	}

	refundable, err := s.RefundableAmount(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if amountCents > refundable {
		return nil, &domain.RefundAmountExceededError{
			OrderID:    orderID,
			Requested:  amountCents,
			Refundable: refundable,
		}
	}

	refund := &models.Refund{
		OrderID:     orderID,
		AmountCents: amountCents,
		Status:      models.RefundStatusRequested,
	}
	if reason != "" {
		refund.Reason = &reason
	}
	if idempotencyKey != "" {
		refund.IdempotencyKey = &idempotencyKey
	}

	if err := s.repo.CreateRefund(ctx, refund); err != nil {
		return nil, fmt.Errorf("order %d: create refund: %w", orderID, err)
	}

	util.RefundsRequestedTotal.Inc()

	if err := s.scheduler.EnqueueProcessRefund(ctx, refund.ID); err != nil {
		return nil, fmt.Errorf("refund %d: enqueue settlement: %w", refund.ID, err)
	}

	s.logger.Info("Refund requested",
		zap.Int64("refund_id", refund.ID),
		zap.Int64("order_id", orderID),
		zap.Int64("amount_cents", amountCents))
	return refund, nil
}

// ProcessRefund settles one REQUESTED refund. Settlement is serialized per
// order: the refundable balance is recomputed and re-validated only while
// holding the order's refund lock, so two refunds for the same order can
// never both read the same balance snapshot.
func (s *RefundService) ProcessRefund(ctx context.Context, refundID int64) error {
	ctx, span := util.StartSpan(ctx, "RefundService.ProcessRefund")
	defer span.End()

	start := time.Now()
	defer func() {
		util.RefundProcessingLatency.Observe(time.Since(start).Seconds())
	}()

	refund, err := s.repo.GetRefund(ctx, refundID)
	if err != nil {
		return fmt.Errorf("refund %d: load: %w", refundID, err)
	}
	if refund == nil || refund.Status != models.RefundStatusRequested {
		s.logger.Warn("Refund missing or not REQUESTED, skipping",
			zap.Int64("refund_id", refundID))
		return nil
	}

	handle, err := s.locker.Acquire(ctx, refundLockKey(refund.OrderID), s.cfg.TTL, s.cfg.MaxWait)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			// Another refund for this order is settling; let the retry
			// policy bring this one back.
			return fmt.Errorf("refund %d: order %d settlement lock busy: %w", refundID, refund.OrderID, err)
		}
		return fmt.Errorf("refund %d: acquire settlement lock: %w", refundID, err)
	}
	defer func() {
		if err := handle.Release(ctx); err != nil {
			s.logger.Error("Failed to release refund lock",
				zap.Int64("refund_id", refundID),
				zap.Error(err))
		}
	}()

	var (
		finalStatus string
		customerID  int64
	)
	err = s.txr.InTx(ctx, func(r domain.Repo) error {
		locked, err := r.GetRefundForUpdate(ctx, refundID)
		if err != nil {
			return fmt.Errorf("lock refund: %w", err)
		}
		if locked == nil || locked.Status != models.RefundStatusRequested {
			// Duplicate delivery resolved the refund already.
			return nil
		}

		order, err := r.GetOrder(ctx, locked.OrderID)
		if err != nil {
			return fmt.Errorf("load order: %w", err)
		}
		if order == nil {
			finalStatus = models.RefundStatusFailed
			s.logger.Error("Refund failed: order not found",
				zap.Int64("refund_id", refundID),
				zap.Int64("order_id", locked.OrderID))
			return r.UpdateRefundStatus(ctx, refundID, models.RefundStatusFailed, s.clock.Now())
		}
		customerID = order.CustomerID

		if locked.AmountCents < 1 {
			finalStatus = models.RefundStatusFailed
			s.logger.Error("Refund failed: invalid amount",
				zap.Int64("refund_id", refundID),
				zap.Int64("amount_cents", locked.AmountCents))
			return r.UpdateRefundStatus(ctx, refundID, models.RefundStatusFailed, s.clock.Now())
		}

		paid, err := r.SucceededPaymentTotal(ctx, locked.OrderID)
		if err != nil {
			return fmt.Errorf("sum payments: %w", err)
		}
		open, err := r.OpenRefundTotal(ctx, locked.OrderID)
		if err != nil {
			return fmt.Errorf("sum refunds: %w", err)
		}
		// The open sum counts this refund's own REQUESTED amount, so the
		// re-validation compares the combined total against the paid total:
		// siblings requested or settled since creation may have pushed it
		// past what the order ever collected.
		if open > paid {
			refundable := paid - (open - locked.AmountCents)
			if refundable < 0 {
				refundable = 0
			}
			finalStatus = models.RefundStatusFailed
			s.logger.Error("Refund failed: amount exceeds refundable balance",
				zap.Int64("refund_id", refundID),
				zap.Int64("amount_cents", locked.AmountCents),
				zap.Int64("refundable_cents", refundable))
			return r.UpdateRefundStatus(ctx, refundID, models.RefundStatusFailed, s.clock.Now())
		}

		finalStatus = models.RefundStatusProcessed
		return r.UpdateRefundStatus(ctx, refundID, models.RefundStatusProcessed, s.clock.Now())
	})
	if err != nil {
		return fmt.Errorf("refund %d: settle: %w", refundID, err)
	}

	if finalStatus == "" {
		return nil
	}

	util.RefundsSettledTotal.WithLabelValues(finalStatus).Inc()

	if finalStatus == models.RefundStatusProcessed {
		s.kpi.RecordRefund(ctx, customerID, refund.AmountCents)
		s.logger.Info("Refund processed",
			zap.Int64("refund_id", refundID),
			zap.Int64("order_id", refund.OrderID),
			zap.Int64("amount_cents", refund.AmountCents))
	}
	return nil
}

// RefundableAmount computes the order's refundable balance: succeeded
// payments minus refunds already requested or processed, floored at zero.
func (s *RefundService) RefundableAmount(ctx context.Context, orderID int64) (int64, error) {
	return refundableIn(ctx, s.repo, orderID)
}

func refundableIn(ctx context.Context, r domain.Repo, orderID int64) (int64, error) {
	paid, err := r.SucceededPaymentTotal(ctx, orderID)
	if err != nil {
		return 0, fmt.Errorf("order %d: sum payments: %w", orderID, err)
	}
	open, err := r.OpenRefundTotal(ctx, orderID)
	if err != nil {
		return 0, fmt.Errorf("order %d: sum refunds: %w", orderID, err)
	}
	refundable := paid - open
	if refundable < 0 {
		refundable = 0
	}
	return refundable, nil
}

func refundLockKey(orderID int64) string {
	return fmt.Sprintf("refund:order:%d", orderID)
}
