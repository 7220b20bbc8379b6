package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"order-pipeline/internal/domain"
	"order-pipeline/internal/lock"
	"order-pipeline/internal/models"
	"order-pipeline/internal/util"

	"go.uber.org/zap"
)

// LockConfig bounds the per-product distributed locks taken during
// reservation.
type LockConfig struct {
	TTL     time.Duration
	MaxWait time.Duration
}

// StockService is the stock ledger: atomic, all-or-nothing reservation and
// restoration of inventory across the products of one order.
type StockService struct {
	repo   domain.Repo
	txr    domain.TxRunner
	locker lock.Locker
	cfg    LockConfig
	logger *zap.Logger
}

// NewStockService creates the stock ledger.
func NewStockService(repo domain.Repo, txr domain.TxRunner, locker lock.Locker, cfg LockConfig) *StockService {
	return &StockService{
		repo:   repo,
		txr:    txr,
		locker: locker,
		cfg:    cfg,
		logger: util.GetLogger(),
	}
}

// Reserve decrements stock for every product the order needs, or changes
// nothing at all. It returns (false, nil) for soft failures (no items, lock
// contention) and a typed error for insufficient stock so the caller can
// distinguish terminal from transient conditions.
func (s *StockService) Reserve(ctx context.Context, orderID int64) (bool, error) {
	ctx, span := util.StartSpan(ctx, "StockService.Reserve")
	defer span.End()

	start := time.Now()
	defer func() {
		util.StockReserveLatency.Observe(time.Since(start).Seconds())
	}()

	demand, err := s.repo.OrderDemand(ctx, orderID)
	if err != nil {
		return false, fmt.Errorf("order %d: load demand: %w", orderID, err)
	}
	if len(demand) == 0 {
		s.logger.Warn("No items to reserve", zap.Int64("order_id", orderID))
		return false, nil
	}

	// Locks must be taken in ascending product id order, otherwise two
	// orders needing overlapping product sets can deadlock each other.
	sort.Slice(demand, func(i, j int) bool { return demand[i].ProductID < demand[j].ProductID })

	handles := make([]*lock.Handle, 0, len(demand))
	defer func() {
		for _, h := range handles {
			if err := h.Release(ctx); err != nil {
				s.logger.Error("Failed to release stock lock",
					zap.String("key", h.Key()),
					zap.Error(err))
			}
		}
	}()

	for _, d := range demand {
		h, err := s.locker.Acquire(ctx, stockLockKey(d.ProductID), s.cfg.TTL, s.cfg.MaxWait)
		if errors.Is(err, lock.ErrNotAcquired) {
			util.StockReservationsFailed.WithLabelValues("lock_timeout").Inc()
			s.logger.Warn("Timeout waiting for stock lock",
				zap.Int64("order_id", orderID),
				zap.Int64("product_id", d.ProductID))
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("order %d: acquire stock lock for product %d: %w", orderID, d.ProductID, err)
		}
		handles = append(handles, h)
	}

	if err := s.txr.InTx(ctx, func(r domain.Repo) error {
		return reserveLocked(ctx, r, demand)
	}); err != nil {
		var insufficient *domain.InsufficientStockError
		if errors.As(err, &insufficient) {
			util.StockReservationsFailed.WithLabelValues("insufficient_stock").Inc()
			s.logger.Warn("Insufficient stock",
				zap.Int64("order_id", orderID),
				zap.Int64("product_id", insufficient.ProductID),
				zap.Int("requested", insufficient.Requested),
				zap.Int("available", insufficient.Available))
			return false, err
		}
		var missing *domain.ProductNotFoundError
		if errors.As(err, &missing) {
			util.StockReservationsFailed.WithLabelValues("product_missing").Inc()
			s.logger.Error("Product missing during reservation",
				zap.Int64("order_id", orderID),
				zap.Int64("product_id", missing.ProductID))
			return false, err
		}
		return false, fmt.Errorf("order %d: reserve stock: %w", orderID, err)
	}

	util.StockReservationsTotal.Inc()
	s.logger.Info("Stock reserved",
		zap.Int64("order_id", orderID),
		zap.Int("products", len(demand)))
	return true, nil
}

// reserveLocked validates every product's availability before decrementing
// any of them; a single shortfall aborts the transaction with zero side
// effects.
func reserveLocked(ctx context.Context, r domain.Repo, demand []models.ItemDemand) error {
	ids := make([]int64, len(demand))
	for i, d := range demand {
		ids[i] = d.ProductID
	}

	products, err := r.ProductsForUpdate(ctx, ids)
	if err != nil {
		return fmt.Errorf("lock products: %w", err)
	}

	byID := make(map[int64]*models.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	for _, d := range demand {
		p, ok := byID[d.ProductID]
		if !ok {
			return &domain.ProductNotFoundError{ProductID: d.ProductID}
		}
		if p.StockQty < d.Qty {
			return &domain.InsufficientStockError{
				ProductID: d.ProductID,
				Requested: d.Qty,
				Available: p.StockQty,
			}
		}
	}

	for _, d := range demand {
		if err := r.AdjustStock(ctx, d.ProductID, -d.Qty); err != nil {
			return fmt.Errorf("decrement product %d: %w", d.ProductID, err)
		}
	}
	return nil
}

// Restore puts a prior reservation's quantities back, in its own
// transaction.
func (s *StockService) Restore(ctx context.Context, orderID int64) error {
	return s.txr.InTx(ctx, func(r domain.Repo) error {
		return s.RestoreIn(ctx, r, orderID)
	})
}

// RestoreIn puts a prior reservation's quantities back using the caller's
// transaction-bound repo, so settlement can restore stock atomically with
// the rest of its effects.
func (s *StockService) RestoreIn(ctx context.Context, r domain.Repo, orderID int64) error {
	demand, err := r.OrderDemand(ctx, orderID)
	if err != nil {
		return fmt.Errorf("order %d: load demand: %w", orderID, err)
	}

	ids := make([]int64, len(demand))
	for i, d := range demand {
		ids[i] = d.ProductID
	}
	if _, err := r.ProductsForUpdate(ctx, ids); err != nil {
		return fmt.Errorf("order %d: lock products: %w", orderID, err)
	}

	for _, d := range demand {
		if err := r.AdjustStock(ctx, d.ProductID, d.Qty); err != nil {
			return fmt.Errorf("order %d: restore product %d: %w", orderID, d.ProductID, err)
		}
	}

	s.logger.Info("Stock restored",
		zap.Int64("order_id", orderID),
		zap.Int("products", len(demand)))
	return nil
}

func stockLockKey(productID int64) string {
	return fmt.Sprintf("stock:product:%d", productID)
}
