package models

import "time"

// Task types carried on the kafka task topics.
const (
	TaskTypeProcessOrder      = "PROCESS_ORDER"
	TaskTypeGatewayCharge     = "GATEWAY_CHARGE"
	TaskTypePaymentCallback   = "PAYMENT_CALLBACK"
	TaskTypeProcessRefund     = "PROCESS_REFUND"
	TaskTypeOrderNotification = "ORDER_NOTIFICATION"
)

// BaseTask contains common fields for all task envelopes.
type BaseTask struct {
	TaskID     string    `json:"task_id"`
	TaskType   string    `json:"task_type"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// ProcessOrderTask starts the pipeline for one order: stock reservation and,
// on success, a gateway charge.
type ProcessOrderTask struct {
	BaseTask
	OrderID int64 `json:"order_id"`
}

// GatewayChargeTask asks the payment gateway to charge an order.
type GatewayChargeTask struct {
	BaseTask
	OrderID int64 `json:"order_id"`
}

// PaymentCallbackTask carries the gateway's asynchronous charge result.
type PaymentCallbackTask struct {
	BaseTask
	OrderID     int64  `json:"order_id"`
	Succeeded   bool   `json:"succeeded"`
	ProviderRef string `json:"provider_ref"`
}

// ProcessRefundTask settles one REQUESTED refund.
type ProcessRefundTask struct {
	BaseTask
	RefundID int64 `json:"refund_id"`
}

// OrderNotificationTask notifies collaborators after settlement.
type OrderNotificationTask struct {
	BaseTask
	OrderID   int64 `json:"order_id"`
	Succeeded bool  `json:"succeeded"`
}
