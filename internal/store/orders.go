package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"order-pipeline/internal/models"

	"github.com/jmoiron/sqlx"
)

// GetOrder retrieves an order by id, or (nil, nil) when missing.
func (q *queries) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := sqlx.GetContext(ctx, q.ext, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpsertOrder creates or refreshes an order keyed by external order id. New
// orders start PENDING; re-imports never rewind the status of an existing
// order.
func (q *queries) UpsertOrder(ctx context.Context, externalOrderID string, customerID int64, currency string, placedAt time.Time) (*models.Order, error) {
	var order models.Order
	err := sqlx.GetContext(ctx, q.ext, &order, `
		INSERT INTO orders (external_order_id, customer_id, status, currency, placed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (external_order_id)
		DO UPDATE SET customer_id = EXCLUDED.customer_id, currency = EXCLUDED.currency,
			placed_at = EXCLUDED.placed_at, updated_at = NOW()
		RETURNING *`,
		externalOrderID, customerID, models.OrderStatusPending, currency, placedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert order %s: %w", externalOrderID, err)
	}
	return &order, nil
}

// UpdateOrderStatus sets an order's status unconditionally.
func (q *queries) UpdateOrderStatus(ctx context.Context, orderID int64, status string) error {
	_, err := q.ext.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		status, orderID)
	return err
}

// SettleOrderStatus transitions PENDING -> status. Returns false when the
// order was already terminal or does not exist.
func (q *queries) SettleOrderStatus(ctx context.Context, orderID int64, status string) (bool, error) {
	res, err := q.ext.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		status, orderID, models.OrderStatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RecomputeOrderTotal sets total_cents to the sum of the order's item
// subtotals and returns the new total. Safe to invoke repeatedly.
func (q *queries) RecomputeOrderTotal(ctx context.Context, orderID int64) (int64, error) {
	var total int64
	err := sqlx.GetContext(ctx, q.ext, &total, `
		UPDATE orders
		SET total_cents = COALESCE(
			(SELECT SUM(unit_price_cents * qty) FROM order_items WHERE order_id = $1), 0),
			updated_at = NOW()
		WHERE id = $1
		RETURNING total_cents`, orderID)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("recompute total: order %d not found", orderID)
	}
	return total, err
}

// AddOrderItem creates a new order item.
func (q *queries) AddOrderItem(ctx context.Context, item *models.OrderItem) error {
	return sqlx.GetContext(ctx, q.ext, &item.ID, `
		INSERT INTO order_items (order_id, product_id, unit_price_cents, qty)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		item.OrderID, item.ProductID, item.UnitPriceCents, item.Qty)
}

// DeleteOrderItems removes all items of an order (import reset).
func (q *queries) DeleteOrderItems(ctx context.Context, orderID int64) error {
	_, err := q.ext.ExecContext(ctx, "DELETE FROM order_items WHERE order_id = $1", orderID)
	return err
}

// GetOrderItems retrieves all items for an order.
func (q *queries) GetOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := sqlx.SelectContext(ctx, q.ext, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

// OrderDemand aggregates item quantities per product in ascending product id
// order; the stock ledger relies on that ordering for deadlock-free lock
// acquisition.
func (q *queries) OrderDemand(ctx context.Context, orderID int64) ([]models.ItemDemand, error) {
	var demand []models.ItemDemand
	err := sqlx.SelectContext(ctx, q.ext, &demand, `
		SELECT product_id, SUM(qty) AS qty
		FROM order_items
		WHERE order_id = $1
		GROUP BY product_id
		ORDER BY product_id`, orderID)
	return demand, err
}

// UpsertPayment creates or overwrites the single payment row of an order.
func (q *queries) UpsertPayment(ctx context.Context, payment *models.Payment) error {
	return sqlx.GetContext(ctx, q.ext, payment, `
		INSERT INTO payments (order_id, provider, provider_ref, amount_cents, status, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (order_id)
		DO UPDATE SET provider = EXCLUDED.provider, provider_ref = EXCLUDED.provider_ref,
			amount_cents = EXCLUDED.amount_cents, status = EXCLUDED.status,
			paid_at = EXCLUDED.paid_at, updated_at = NOW()
		RETURNING *`,
		payment.OrderID, payment.Provider, payment.ProviderRef,
		payment.AmountCents, payment.Status, payment.PaidAt)
}

// GetPaymentByOrderID retrieves the payment for an order, or (nil, nil).
func (q *queries) GetPaymentByOrderID(ctx context.Context, orderID int64) (*models.Payment, error) {
	var payment models.Payment
	err := sqlx.GetContext(ctx, q.ext, &payment,
		"SELECT * FROM payments WHERE order_id = $1", orderID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// SucceededPaymentTotal sums SUCCEEDED payment amounts for an order.
func (q *queries) SucceededPaymentTotal(ctx context.Context, orderID int64) (int64, error) {
	var total int64
	err := sqlx.GetContext(ctx, q.ext, &total, `
		SELECT COALESCE(SUM(amount_cents), 0)
		FROM payments
		WHERE order_id = $1 AND status = $2`,
		orderID, models.PaymentStatusSucceeded)
	return total, err
}
