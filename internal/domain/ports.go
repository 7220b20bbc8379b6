package domain

import (
	"context"
	"time"

	"order-pipeline/internal/models"
)

// Repo is the repository surface the core services operate on. Query methods
// return (nil, nil) for missing rows. The *ForUpdate methods take row locks
// and are only meaningful inside a transaction started by TxRunner.
type Repo interface {
	// Customers
	UpsertCustomer(ctx context.Context, externalID, email, name string) (*models.Customer, error)

	// Products
	UpsertProduct(ctx context.Context, sku, name string, priceCents int64, defaultStock int) (*models.Product, error)
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	ProductsForUpdate(ctx context.Context, ids []int64) ([]models.Product, error)
	AdjustStock(ctx context.Context, productID int64, delta int) error

	// Orders
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	UpsertOrder(ctx context.Context, externalOrderID string, customerID int64, currency string, placedAt time.Time) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status string) error
	// SettleOrderStatus transitions a PENDING order to status and reports
	// whether the transition happened; false means the order was already
	// terminal (or missing) and the settlement must be a no-op.
	SettleOrderStatus(ctx context.Context, orderID int64, status string) (bool, error)
	RecomputeOrderTotal(ctx context.Context, orderID int64) (int64, error)

	// Order items
	AddOrderItem(ctx context.Context, item *models.OrderItem) error
	DeleteOrderItems(ctx context.Context, orderID int64) error
	GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	// OrderDemand aggregates item quantities per product, ordered by
	// ascending product id.
	OrderDemand(ctx context.Context, orderID int64) ([]models.ItemDemand, error)

	// Payments
	UpsertPayment(ctx context.Context, payment *models.Payment) error
	GetPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error)
	SucceededPaymentTotal(ctx context.Context, orderID int64) (int64, error)

	// Refunds
	CreateRefund(ctx context.Context, refund *models.Refund) error
	GetRefund(ctx context.Context, id int64) (*models.Refund, error)
	GetRefundForUpdate(ctx context.Context, id int64) (*models.Refund, error)
	GetRefundByIdempotencyKey(ctx context.Context, orderID int64, key string) (*models.Refund, error)
	UpdateRefundStatus(ctx context.Context, refundID int64, status string, processedAt time.Time) error
	// OpenRefundTotal sums amounts over REQUESTED and PROCESSED refunds.
	OpenRefundTotal(ctx context.Context, orderID int64) (int64, error)

	// Notifications
	CreateNotificationLog(ctx context.Context, log *models.NotificationLog) error
}

// TxRunner executes fn inside one database transaction. The Repo handed to fn
// is bound to that transaction; returning an error rolls everything back.
type TxRunner interface {
	InTx(ctx context.Context, fn func(r Repo) error) error
}

// Clock abstracts time.Now for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }

// Gateway charges an order. Implementations report the result asynchronously
// through a PAYMENT_CALLBACK task; Charge only fails on enqueue problems.
type Gateway interface {
	Charge(ctx context.Context, orderID, amountCents int64) error
}

// MetricsSink receives business KPI updates. Calls are fire-and-forget: the
// core never consumes a return value beyond logging.
type MetricsSink interface {
	RecordSuccess(ctx context.Context, customerID, amountCents int64)
	RecordFailure(ctx context.Context, customerID, amountCents int64)
	RecordRefund(ctx context.Context, customerID, amountCents int64)
}

// TaskScheduler enqueues pipeline tasks onto their named channels.
type TaskScheduler interface {
	EnqueueProcessOrder(ctx context.Context, orderID int64) error
	EnqueueGatewayCharge(ctx context.Context, orderID int64) error
	EnqueuePaymentCallback(ctx context.Context, orderID int64, succeeded bool, providerRef string) error
	EnqueueProcessRefund(ctx context.Context, refundID int64) error
	EnqueueNotification(ctx context.Context, orderID int64, succeeded bool) error
}

// Notifier delivers the post-settlement notification. Failures must never
// roll back the settlement that triggered them.
type Notifier interface {
	NotifyOrderSettled(ctx context.Context, orderID int64, succeeded bool) error
}
