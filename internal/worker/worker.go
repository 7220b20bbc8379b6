package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"order-pipeline/internal/broker"
	"order-pipeline/internal/domain"
	"order-pipeline/internal/lock"
	"order-pipeline/internal/models"
	"order-pipeline/internal/service"
	"order-pipeline/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Config bounds every worker's guard lock and retry budget.
type Config struct {
	GuardTTL time.Duration
	Attempts int
	Backoff  time.Duration
}

// base wires the machinery all workers share.
type base struct {
	guard      *guard
	retrier    *Retrier
	deadLetter *broker.Producer
	logger     *zap.Logger
}

func newBase(locker lock.Locker, deadLetter *broker.Producer, cfg Config) base {
	return base{
		guard:      &guard{locker: locker, ttl: cfg.GuardTTL},
		retrier:    NewRetrier(cfg.Attempts, cfg.Backoff),
		deadLetter: deadLetter,
		logger:     util.GetLogger(),
	}
}

// execute runs one task under the guard with retries, forwarding the raw
// message to the dead-letter topic when the budget is exhausted. It
// returns nil in that case so the delivery commits; the dead-letter copy
// is the retained record.
func (b *base) execute(ctx context.Context, msg kafka.Message, taskType, key string, fn func(ctx context.Context) error) error {
	err := b.guard.run(ctx, taskType, key, func(ctx context.Context) error {
		return b.retrier.Run(ctx, taskType, fn)
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		// Shutdown, not failure; leave the message for the next run.
		return err
	}

	util.TasksDeadLetteredTotal.WithLabelValues(taskType).Inc()
	b.logger.Error("Task exhausted retries, dead-lettering",
		zap.String("task_type", taskType),
		zap.String("key", key),
		zap.Error(err))

	if dlErr := b.deadLetter.PublishRaw(ctx, msg.Key, msg.Value); dlErr != nil {
		b.logger.Error("Failed to publish to dead-letter topic", zap.Error(dlErr))
		return dlErr
	}
	return nil
}

// OrderWorker consumes the order task topic: reservation, gateway charge,
// and payment callback stages.
type OrderWorker struct {
	base
	consumer *broker.Consumer
	orders   *service.OrderService
}

// NewOrderWorker creates the order task worker.
func NewOrderWorker(consumer *broker.Consumer, orders *service.OrderService, locker lock.Locker, deadLetter *broker.Producer, cfg Config) *OrderWorker {
	return &OrderWorker{
		base:     newBase(locker, deadLetter, cfg),
		consumer: consumer,
		orders:   orders,
	}
}

// Start consumes until ctx is cancelled.
func (w *OrderWorker) Start(ctx context.Context) error {
	return w.consumer.Consume(ctx, w.handle)
}

func (w *OrderWorker) handle(ctx context.Context, msg kafka.Message) error {
	var envelope models.BaseTask
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		w.logger.Error("Dropping undecodable order task", zap.Error(err))
		return nil
	}

	switch envelope.TaskType {
	case models.TaskTypeProcessOrder:
		var task models.ProcessOrderTask
		if err := json.Unmarshal(msg.Value, &task); err != nil {
			w.logger.Error("Dropping malformed task", zap.String("task_type", envelope.TaskType), zap.Error(err))
			return nil
		}
		key := fmt.Sprintf("order:%d", task.OrderID)
		return w.execute(ctx, msg, envelope.TaskType, key, func(ctx context.Context) error {
			return w.orders.ProcessOrder(ctx, task.OrderID)
		})

	case models.TaskTypeGatewayCharge:
		var task models.GatewayChargeTask
		if err := json.Unmarshal(msg.Value, &task); err != nil {
			w.logger.Error("Dropping malformed task", zap.String("task_type", envelope.TaskType), zap.Error(err))
			return nil
		}
		key := fmt.Sprintf("charge:order:%d", task.OrderID)
		return w.execute(ctx, msg, envelope.TaskType, key, func(ctx context.Context) error {
			return w.orders.ChargeOrder(ctx, task.OrderID)
		})

	case models.TaskTypePaymentCallback:
		var task models.PaymentCallbackTask
		if err := json.Unmarshal(msg.Value, &task); err != nil {
			w.logger.Error("Dropping malformed task", zap.String("task_type", envelope.TaskType), zap.Error(err))
			return nil
		}
		key := fmt.Sprintf("callback:order:%d", task.OrderID)
		return w.execute(ctx, msg, envelope.TaskType, key, func(ctx context.Context) error {
			return w.orders.HandleGatewayResult(ctx, task.OrderID, task.Succeeded, task.ProviderRef)
		})

	default:
		w.logger.Warn("Dropping task with unknown type", zap.String("task_type", envelope.TaskType))
		return nil
	}
}

// RefundWorker consumes the refund task topic.
type RefundWorker struct {
	base
	consumer *broker.Consumer
	refunds  *service.RefundService
}

// NewRefundWorker creates the refund task worker.
func NewRefundWorker(consumer *broker.Consumer, refunds *service.RefundService, locker lock.Locker, deadLetter *broker.Producer, cfg Config) *RefundWorker {
	return &RefundWorker{
		base:     newBase(locker, deadLetter, cfg),
		consumer: consumer,
		refunds:  refunds,
	}
}

// Start consumes until ctx is cancelled.
func (w *RefundWorker) Start(ctx context.Context) error {
	return w.consumer.Consume(ctx, w.handle)
}

func (w *RefundWorker) handle(ctx context.Context, msg kafka.Message) error {
	var task models.ProcessRefundTask
	if err := json.Unmarshal(msg.Value, &task); err != nil {
		w.logger.Error("Dropping undecodable refund task", zap.Error(err))
		return nil
	}
	if task.TaskType != models.TaskTypeProcessRefund {
		w.logger.Warn("Dropping task with unknown type", zap.String("task_type", task.TaskType))
		return nil
	}

	key := fmt.Sprintf("refund:%d", task.RefundID)
	return w.execute(ctx, msg, task.TaskType, key, func(ctx context.Context) error {
		return w.refunds.ProcessRefund(ctx, task.RefundID)
	})
}

// NotificationWorker consumes the notification topic.
type NotificationWorker struct {
	base
	consumer *broker.Consumer
	notifier domain.Notifier
}

// NewNotificationWorker creates the notification worker.
func NewNotificationWorker(consumer *broker.Consumer, notifier domain.Notifier, locker lock.Locker, deadLetter *broker.Producer, cfg Config) *NotificationWorker {
	return &NotificationWorker{
		base:     newBase(locker, deadLetter, cfg),
		consumer: consumer,
		notifier: notifier,
	}
}

// Start consumes until ctx is cancelled.
func (w *NotificationWorker) Start(ctx context.Context) error {
	return w.consumer.Consume(ctx, w.handle)
}

func (w *NotificationWorker) handle(ctx context.Context, msg kafka.Message) error {
	var task models.OrderNotificationTask
	if err := json.Unmarshal(msg.Value, &task); err != nil {
		w.logger.Error("Dropping undecodable notification task", zap.Error(err))
		return nil
	}
	if task.TaskType != models.TaskTypeOrderNotification {
		w.logger.Warn("Dropping task with unknown type", zap.String("task_type", task.TaskType))
		return nil
	}

	key := fmt.Sprintf("notify:order:%d", task.OrderID)
	return w.execute(ctx, msg, task.TaskType, key, func(ctx context.Context) error {
		return w.notifier.NotifyOrderSettled(ctx, task.OrderID, task.Succeeded)
	})
}
