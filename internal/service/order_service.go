package service

import (
	"context"
	"errors"
	"fmt"

	"order-pipeline/internal/domain"
	"order-pipeline/internal/models"
	"order-pipeline/internal/util"

	"go.uber.org/zap"
)

// providerName identifies the stand-in gateway on payment rows.
const providerName = "fake"

// OrderService drives the order state machine: stock reservation, gateway
// charge scheduling, and settlement to a terminal status.
type OrderService struct {
	repo      domain.Repo
	txr       domain.TxRunner
	stock     *StockService
	gateway   domain.Gateway
	scheduler domain.TaskScheduler
	kpi       domain.MetricsSink
	clock     domain.Clock
	logger    *zap.Logger
}

// NewOrderService creates the order lifecycle service.
func NewOrderService(
	repo domain.Repo,
	txr domain.TxRunner,
	stock *StockService,
	gateway domain.Gateway,
	scheduler domain.TaskScheduler,
	kpi domain.MetricsSink,
	clock domain.Clock,
) *OrderService {
	return &OrderService{
		repo:      repo,
		txr:       txr,
		stock:     stock,
		gateway:   gateway,
		scheduler: scheduler,
		kpi:       kpi,
		clock:     clock,
		logger:    util.GetLogger(),
	}
}

// ScheduleProcessing enqueues the processing pipeline for an order. This is
// the core's entry point for the import boundary.
func (s *OrderService) ScheduleProcessing(ctx context.Context, orderID int64) error {
	return s.scheduler.EnqueueProcessOrder(ctx, orderID)
}

// RecomputeTotal sets total_cents to the sum of the order's item subtotals.
// Idempotent; invoked once per order after a bulk import.
func (s *OrderService) RecomputeTotal(ctx context.Context, orderID int64) (int64, error) {
	return s.repo.RecomputeOrderTotal(ctx, orderID)
}

// GetOrder returns an order with its items and payment, or an
// OrderNotFoundError.
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*models.Order, []models.OrderItem, *models.Payment, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, nil, nil, err
	}
	if order == nil {
		return nil, nil, nil, &domain.OrderNotFoundError{OrderID: orderID}
	}

	items, err := s.repo.GetOrderItems(ctx, orderID)
	if err != nil {
		return nil, nil, nil, err
	}

	payment, err := s.repo.GetPaymentByOrderID(ctx, orderID)
	if err != nil {
		return nil, nil, nil, err
	}

	return order, items, payment, nil
}

// ProcessOrder runs the reservation stage: reserve stock, then schedule the
// gateway charge. Any reservation failure settles the order as FAILED. Safe
// under redelivery: terminal orders are a no-op.
func (s *OrderService) ProcessOrder(ctx context.Context, orderID int64) error {
	ctx, span := util.StartSpan(ctx, "OrderService.ProcessOrder")
	defer span.End()

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("order %d: load: %w", orderID, err)
	}
	if order == nil {
		s.logger.Warn("Order not found, skipping processing", zap.Int64("order_id", orderID))
		return nil
	}
	if order.IsTerminal() {
		s.logger.Info("Order already terminal, skipping processing",
			zap.Int64("order_id", orderID),
			zap.String("status", order.Status))
		return nil
	}

	util.OrdersProcessedTotal.Inc()

	reserved, err := s.stock.Reserve(ctx, orderID)
	if err != nil {
		var insufficient *domain.InsufficientStockError
		var missing *domain.ProductNotFoundError
		if errors.As(err, &insufficient) || errors.As(err, &missing) {
			return s.failOrder(ctx, orderID, err.Error())
		}
		return err
	}
	if !reserved {
		// Lock contention and empty orders settle the order as FAILED
		// immediately, matching the reservation failure policy.
		return s.failOrder(ctx, orderID, "stock reservation failed")
	}

	if err := s.scheduler.EnqueueGatewayCharge(ctx, orderID); err != nil {
		return fmt.Errorf("order %d: enqueue gateway charge: %w", orderID, err)
	}

	s.logger.Info("Stock reserved, gateway charge queued", zap.Int64("order_id", orderID))
	return nil
}

// ChargeOrder runs the gateway charge stage. The gateway reports its result
// asynchronously through HandleGatewayResult.
func (s *OrderService) ChargeOrder(ctx context.Context, orderID int64) error {
	ctx, span := util.StartSpan(ctx, "OrderService.ChargeOrder")
	defer span.End()

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("order %d: load: %w", orderID, err)
	}
	if order == nil {
		s.logger.Warn("Order not found, skipping charge", zap.Int64("order_id", orderID))
		return nil
	}
	if order.IsTerminal() {
		s.logger.Info("Order already terminal, skipping charge",
			zap.Int64("order_id", orderID),
			zap.String("status", order.Status))
		return nil
	}

	return s.gateway.Charge(ctx, order.ID, order.TotalCents)
}

// HandleGatewayResult settles the order from the gateway callback. The
// status transition, the single payment row, and (on failure) the stock
// restoration commit in one transaction; an order observed terminal is a
// no-op.
func (s *OrderService) HandleGatewayResult(ctx context.Context, orderID int64, succeeded bool, providerRef string) error {
	ctx, span := util.StartSpan(ctx, "OrderService.HandleGatewayResult")
	defer span.End()

	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("order %d: load: %w", orderID, err)
	}
	if order == nil {
		s.logger.Warn("Order not found, skipping callback", zap.Int64("order_id", orderID))
		return nil
	}
	if order.IsTerminal() {
		s.logger.Info("Order already terminal, skipping callback",
			zap.Int64("order_id", orderID),
			zap.String("status", order.Status))
		return nil
	}

	finalStatus := models.OrderStatusFailed
	if succeeded {
		finalStatus = models.OrderStatusPaid
	}

	settled := false
	err = s.txr.InTx(ctx, func(r domain.Repo) error {
		ok, err := r.SettleOrderStatus(ctx, orderID, finalStatus)
		if err != nil {
			return fmt.Errorf("settle status: %w", err)
		}
		if !ok {
			// Lost the race against another settlement.
			return nil
		}
		settled = true

		payment := &models.Payment{
			OrderID:     orderID,
			Provider:    providerName,
			ProviderRef: providerRef,
			AmountCents: order.TotalCents,
			Status:      models.PaymentStatusFailed,
		}
		if succeeded {
			now := s.clock.Now()
			payment.Status = models.PaymentStatusSucceeded
			payment.PaidAt = &now
		} else {
			if err := s.stock.RestoreIn(ctx, r, orderID); err != nil {
				return err
			}
		}

		if err := r.UpsertPayment(ctx, payment); err != nil {
			return fmt.Errorf("upsert payment: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("order %d: settle: %w", orderID, err)
	}
	if !settled {
		s.logger.Info("Order settled concurrently, callback is a no-op", zap.Int64("order_id", orderID))
		return nil
	}

	util.OrdersSettledTotal.WithLabelValues(finalStatus).Inc()
	if succeeded {
		util.GatewayChargesTotal.WithLabelValues("succeeded").Inc()
		s.kpi.RecordSuccess(ctx, order.CustomerID, order.TotalCents)
	} else {
		util.GatewayChargesTotal.WithLabelValues("failed").Inc()
		s.kpi.RecordFailure(ctx, order.CustomerID, order.TotalCents)
	}

	if err := s.scheduler.EnqueueNotification(ctx, orderID, succeeded); err != nil {
		// The settlement already committed; notification delivery has its
		// own retry budget.
		s.logger.Error("Failed to enqueue settlement notification",
			zap.Int64("order_id", orderID),
			zap.Error(err))
	}

	s.logger.Info("Order settled",
		zap.Int64("order_id", orderID),
		zap.String("status", finalStatus),
		zap.String("provider_ref", providerRef))
	return nil
}

func (s *OrderService) failOrder(ctx context.Context, orderID int64, reason string) error {
	ok, err := s.repo.SettleOrderStatus(ctx, orderID, models.OrderStatusFailed)
	if err != nil {
		return fmt.Errorf("order %d: mark failed: %w", orderID, err)
	}
	if ok {
		util.OrdersSettledTotal.WithLabelValues(models.OrderStatusFailed).Inc()
	}
	s.logger.Warn("Order failed",
		zap.Int64("order_id", orderID),
		zap.String("reason", reason))
	return nil
}
