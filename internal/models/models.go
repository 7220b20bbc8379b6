package models

import "time"

// Customer is the owner of orders, identified externally by ExternalID.
type Customer struct {
	ID         int64     `db:"id" json:"id"`
	ExternalID string    `db:"external_id" json:"external_id"`
	Email      string    `db:"email" json:"email"`
	Name       string    `db:"name" json:"name"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Product represents a catalog item. StockQty is mutated only by the stock
// ledger inside a transaction holding the product's row lock.
type Product struct {
	ID         int64     `db:"id" json:"id"`
	SKU        string    `db:"sku" json:"sku"`
	Name       string    `db:"name" json:"name"`
	PriceCents int64     `db:"price_cents" json:"price_cents"`
	StockQty   int       `db:"stock_qty" json:"stock_qty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Order moves from PENDING toward exactly one terminal status.
type Order struct {
	ID              int64     `db:"id" json:"id"`
	ExternalOrderID string    `db:"external_order_id" json:"external_order_id"`
	CustomerID      int64     `db:"customer_id" json:"customer_id"`
	Status          string    `db:"status" json:"status"`
	Currency        string    `db:"currency" json:"currency"`
	TotalCents      int64     `db:"total_cents" json:"total_cents"`
	PlacedAt        time.Time `db:"placed_at" json:"placed_at"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// Order statuses. PAID, FAILED and CANCELLED are terminal.
const (
	OrderStatusPending   = "PENDING"
	OrderStatusPaid      = "PAID"
	OrderStatusFailed    = "FAILED"
	OrderStatusCancelled = "CANCELLED"
)

// IsTerminal reports whether the order may never change status again.
func (o *Order) IsTerminal() bool {
	switch o.Status {
	case OrderStatusPaid, OrderStatusFailed, OrderStatusCancelled:
		return true
	}
	return false
}

// OrderItem is one line of an order. The subtotal is always derived, never
// stored as authoritative.
type OrderItem struct {
	ID             int64 `db:"id" json:"id"`
	OrderID        int64 `db:"order_id" json:"order_id"`
	ProductID      int64 `db:"product_id" json:"product_id"`
	UnitPriceCents int64 `db:"unit_price_cents" json:"unit_price_cents"`
	Qty            int   `db:"qty" json:"qty"`
}

// SubtotalCents is unit price times quantity.
func (i *OrderItem) SubtotalCents() int64 {
	return i.UnitPriceCents * int64(i.Qty)
}

// ItemDemand is the aggregated quantity an order needs for one product.
type ItemDemand struct {
	ProductID int64 `db:"product_id" json:"product_id"`
	Qty       int   `db:"qty" json:"qty"`
}

// Payment is the settlement record for an order; at most one row per order.
type Payment struct {
	ID          int64      `db:"id" json:"id"`
	OrderID     int64      `db:"order_id" json:"order_id"`
	Provider    string     `db:"provider" json:"provider"`
	ProviderRef string     `db:"provider_ref" json:"provider_ref,omitempty"`
	AmountCents int64      `db:"amount_cents" json:"amount_cents"`
	Status      string     `db:"status" json:"status"`
	PaidAt      *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// Payment statuses.
const (
	PaymentStatusSucceeded = "SUCCEEDED"
	PaymentStatusFailed    = "FAILED"
)

// Refund is a single logical refund request against an order's settled
// payment. PROCESSED and FAILED are terminal.
type Refund struct {
	ID             int64      `db:"id" json:"id"`
	OrderID        int64      `db:"order_id" json:"order_id"`
	AmountCents    int64      `db:"amount_cents" json:"amount_cents"`
	Reason         *string    `db:"reason" json:"reason,omitempty"`
	Status         string     `db:"status" json:"status"`
	IdempotencyKey *string    `db:"idempotency_key" json:"idempotency_key,omitempty"`
	ProcessedAt    *time.Time `db:"processed_at" json:"processed_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// Refund statuses.
const (
	RefundStatusRequested = "REQUESTED"
	RefundStatusProcessed = "PROCESSED"
	RefundStatusFailed    = "FAILED"
)

// NotificationLog records one settlement notification attempt.
type NotificationLog struct {
	ID         int64     `db:"id" json:"id"`
	OrderID    int64     `db:"order_id" json:"order_id"`
	CustomerID int64     `db:"customer_id" json:"customer_id"`
	Channel    string    `db:"channel" json:"channel"`
	Status     string    `db:"status" json:"status"`
	TotalCents int64     `db:"total_cents" json:"total_cents"`
	Success    bool      `db:"success" json:"success"`
	Error      *string   `db:"error" json:"error,omitempty"`
	SentAt     time.Time `db:"sent_at" json:"sent_at"`
}
