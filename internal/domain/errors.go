package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidRefundAmount rejects refund requests below one cent.
var ErrInvalidRefundAmount = errors.New("refund amount must be at least 1 cent")

// InsufficientStockError aborts a reservation when one product cannot cover
// its aggregated demand. The whole reservation rolls back.
type InsufficientStockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// ProductNotFoundError aborts a reservation when an order references a
// product that no longer exists.
type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

// OrderNotFoundError signals a request against a missing order.
type OrderNotFoundError struct {
	OrderID int64
}

func (e *OrderNotFoundError) Error() string {
	return fmt.Sprintf("order %d not found", e.OrderID)
}

// OrderAlreadyProcessedError signals a mutation attempt on a terminal order.
type OrderAlreadyProcessedError struct {
	OrderID int64
	Status  string
}

func (e *OrderAlreadyProcessedError) Error() string {
	return fmt.Sprintf("order %d is already in terminal state %s", e.OrderID, e.Status)
}

// RefundAmountExceededError rejects a refund larger than the order's
// refundable balance.
type RefundAmountExceededError struct {
	OrderID    int64
	Requested  int64
	Refundable int64
}

func (e *RefundAmountExceededError) Error() string {
	return fmt.Sprintf("refund amount %d exceeds refundable %d for order %d",
		e.Requested, e.Refundable, e.OrderID)
}

// InvalidRefundStateError signals an operation on a refund that is not in the
// state the operation requires.
type InvalidRefundStateError struct {
	RefundID int64
	Status   string
}

func (e *InvalidRefundStateError) Error() string {
	return fmt.Sprintf("refund %d is in invalid state %s", e.RefundID, e.Status)
}

// IsBusinessOutcome reports whether err is a business-rule outcome that must
// be resolved synchronously and never retried by the job runner.
func IsBusinessOutcome(err error) bool {
	var (
		insufficient *InsufficientStockError
		productGone  *ProductNotFoundError
		orderGone    *OrderNotFoundError
		terminal     *OrderAlreadyProcessedError
		exceeded     *RefundAmountExceededError
		refundState  *InvalidRefundStateError
	)
	return errors.Is(err, ErrInvalidRefundAmount) ||
		errors.As(err, &insufficient) ||
		errors.As(err, &productGone) ||
		errors.As(err, &orderGone) ||
		errors.As(err, &terminal) ||
		errors.As(err, &exceeded) ||
		errors.As(err, &refundState)
}
