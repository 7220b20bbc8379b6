package notify

import (
	"context"
	"fmt"

	"order-pipeline/internal/domain"
	"order-pipeline/internal/models"
	"order-pipeline/internal/util"

	"go.uber.org/zap"
)

// LogNotifier delivers settlement notifications by writing a structured
// log line and a notification_logs row. A real channel (email, push)
// would replace the log line and keep the audit row.
type LogNotifier struct {
	repo   domain.Repo
	clock  domain.Clock
	logger *zap.Logger
}

// NewLogNotifier creates the log-backed notifier.
func NewLogNotifier(repo domain.Repo, clock domain.Clock) *LogNotifier {
	return &LogNotifier{repo: repo, clock: clock, logger: util.GetLogger()}
}

// NotifyOrderSettled tells the customer how their order settled.
func (n *LogNotifier) NotifyOrderSettled(ctx context.Context, orderID int64, succeeded bool) error {
	order, err := n.repo.GetOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("order %d: load for notification: %w", orderID, err)
	}
	if order == nil {
		n.logger.Warn("Order not found, skipping notification", zap.Int64("order_id", orderID))
		return nil
	}

	n.logger.Info("Order settlement notification",
		zap.Int64("order_id", order.ID),
		zap.Int64("customer_id", order.CustomerID),
		zap.String("status", order.Status),
		zap.Int64("total_cents", order.TotalCents),
		zap.Bool("succeeded", succeeded))

	log := &models.NotificationLog{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Channel:    "log",
		Status:     order.Status,
		TotalCents: order.TotalCents,
		Success:    succeeded,
		SentAt:     n.clock.Now(),
	}
	if err := n.repo.CreateNotificationLog(ctx, log); err != nil {
		return fmt.Errorf("order %d: record notification: %w", orderID, err)
	}
	return nil
}
