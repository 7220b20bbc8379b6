package broker

import (
	"context"
	"fmt"
	"time"

	"order-pipeline/internal/models"

	"github.com/google/uuid"
)

// Topics names the kafka topics the pipeline publishes to.
type Topics struct {
	OrderTasks        string
	RefundTasks       string
	NotificationTasks string
	DeadLetter        string
}

// Scheduler publishes typed task envelopes. It implements
// domain.TaskScheduler over three topic producers plus a dead-letter
// producer shared with the workers.
type Scheduler struct {
	orders        *Producer
	refunds       *Producer
	notifications *Producer
}

// NewScheduler creates producers for the three task topics.
func NewScheduler(brokers []string, topics Topics) *Scheduler {
	return &Scheduler{
		orders:        NewProducer(brokers, topics.OrderTasks),
		refunds:       NewProducer(brokers, topics.RefundTasks),
		notifications: NewProducer(brokers, topics.NotificationTasks),
	}
}

func newBaseTask(taskType string) models.BaseTask {
	return models.BaseTask{
		TaskID:     uuid.New().String(),
		TaskType:   taskType,
		EnqueuedAt: time.Now().UTC(),
	}
}

func orderKey(orderID int64) string {
	return fmt.Sprintf("order:%d", orderID)
}

// EnqueueProcessOrder schedules the reservation stage for an order.
func (s *Scheduler) EnqueueProcessOrder(ctx context.Context, orderID int64) error {
	task := models.ProcessOrderTask{
		BaseTask: newBaseTask(models.TaskTypeProcessOrder),
		OrderID:  orderID,
	}
	return s.orders.Publish(ctx, orderKey(orderID), task)
}

// EnqueueGatewayCharge schedules the charge stage for an order.
func (s *Scheduler) EnqueueGatewayCharge(ctx context.Context, orderID int64) error {
	task := models.GatewayChargeTask{
		BaseTask: newBaseTask(models.TaskTypeGatewayCharge),
		OrderID:  orderID,
	}
	return s.orders.Publish(ctx, orderKey(orderID), task)
}

// EnqueuePaymentCallback schedules settlement of a gateway result.
func (s *Scheduler) EnqueuePaymentCallback(ctx context.Context, orderID int64, succeeded bool, providerRef string) error {
	task := models.PaymentCallbackTask{
		BaseTask:    newBaseTask(models.TaskTypePaymentCallback),
		OrderID:     orderID,
		Succeeded:   succeeded,
		ProviderRef: providerRef,
	}
	return s.orders.Publish(ctx, orderKey(orderID), task)
}

// EnqueueProcessRefund schedules settlement of a REQUESTED refund.
func (s *Scheduler) EnqueueProcessRefund(ctx context.Context, refundID int64) error {
	task := models.ProcessRefundTask{
		BaseTask: newBaseTask(models.TaskTypeProcessRefund),
		RefundID: refundID,
	}
	return s.refunds.Publish(ctx, fmt.Sprintf("refund:%d", refundID), task)
}

// EnqueueNotification schedules the customer notification for a settled
// order.
func (s *Scheduler) EnqueueNotification(ctx context.Context, orderID int64, succeeded bool) error {
	task := models.OrderNotificationTask{
		BaseTask:  newBaseTask(models.TaskTypeOrderNotification),
		OrderID:   orderID,
		Succeeded: succeeded,
	}
	return s.notifications.Publish(ctx, orderKey(orderID), task)
}

// Close closes all producers, returning the first error.
func (s *Scheduler) Close() error {
	var first error
	for _, p := range []*Producer{s.orders, s.refunds, s.notifications} {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
