package store

import (
	"context"
	"database/sql"
	"time"

	"order-pipeline/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateRefund persists a new refund request.
func (q *queries) CreateRefund(ctx context.Context, refund *models.Refund) error {
	return sqlx.GetContext(ctx, q.ext, refund, `
		INSERT INTO refunds (order_id, amount_cents, reason, status, idempotency_key)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *`,
		refund.OrderID, refund.AmountCents, refund.Reason, refund.Status, refund.IdempotencyKey)
}

// GetRefund retrieves a refund by id, or (nil, nil) when missing.
func (q *queries) GetRefund(ctx context.Context, id int64) (*models.Refund, error) {
	var refund models.Refund
	err := sqlx.GetContext(ctx, q.ext, &refund, "SELECT * FROM refunds WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &refund, nil
}

// GetRefundForUpdate row-locks and returns a refund, or (nil, nil).
func (q *queries) GetRefundForUpdate(ctx context.Context, id int64) (*models.Refund, error) {
	var refund models.Refund
	err := sqlx.GetContext(ctx, q.ext, &refund, "SELECT * FROM refunds WHERE id = $1 FOR UPDATE", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &refund, nil
}

// GetRefundByIdempotencyKey retrieves a refund by order and caller key.
func (q *queries) GetRefundByIdempotencyKey(ctx context.Context, orderID int64, key string) (*models.Refund, error) {
	var refund models.Refund
	err := sqlx.GetContext(ctx, q.ext, &refund,
		"SELECT * FROM refunds WHERE order_id = $1 AND idempotency_key = $2", orderID, key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &refund, nil
}

// UpdateRefundStatus moves a refund to a terminal status and stamps it.
func (q *queries) UpdateRefundStatus(ctx context.Context, refundID int64, status string, processedAt time.Time) error {
	_, err := q.ext.ExecContext(ctx,
		"UPDATE refunds SET status = $1, processed_at = $2 WHERE id = $3",
		status, processedAt, refundID)
	return err
}

// OpenRefundTotal sums amounts over REQUESTED and PROCESSED refunds of an
// order; together with SucceededPaymentTotal it yields the refundable
// balance.
func (q *queries) OpenRefundTotal(ctx context.Context, orderID int64) (int64, error) {
	var total int64
	err := sqlx.GetContext(ctx, q.ext, &total, `
		SELECT COALESCE(SUM(amount_cents), 0)
		FROM refunds
		WHERE order_id = $1 AND status IN ($2, $3)`,
		orderID, models.RefundStatusRequested, models.RefundStatusProcessed)
	return total, err
}

// CreateNotificationLog records a settlement notification attempt.
func (q *queries) CreateNotificationLog(ctx context.Context, log *models.NotificationLog) error {
	return sqlx.GetContext(ctx, q.ext, &log.ID, `
		INSERT INTO notification_logs (order_id, customer_id, channel, status, total_cents, success, error, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		log.OrderID, log.CustomerID, log.Channel, log.Status,
		log.TotalCents, log.Success, log.Error, log.SentAt)
}
