package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"order-pipeline/internal/lock"
	"order-pipeline/internal/models"

	"github.com/stretchr/testify/require"
)

// fixedClock returns one instant forever.
type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var testNow = time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

// recordingScheduler captures enqueued task ids instead of publishing.
type recordingScheduler struct {
	mu             sync.Mutex
	processOrders  []int64
	gatewayCharges []int64
	callbacks      []int64
	processRefunds []int64
	notifications  []int64
}

func (s *recordingScheduler) EnqueueProcessOrder(_ context.Context, orderID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processOrders = append(s.processOrders, orderID)
	return nil
}

func (s *recordingScheduler) EnqueueGatewayCharge(_ context.Context, orderID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gatewayCharges = append(s.gatewayCharges, orderID)
	return nil
}

func (s *recordingScheduler) EnqueuePaymentCallback(_ context.Context, orderID int64, _ bool, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, orderID)
	return nil
}

func (s *recordingScheduler) EnqueueProcessRefund(_ context.Context, refundID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processRefunds = append(s.processRefunds, refundID)
	return nil
}

func (s *recordingScheduler) EnqueueNotification(_ context.Context, orderID int64, _ bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, orderID)
	return nil
}

// nopKPI discards KPI updates.
type nopKPI struct{}

func (nopKPI) RecordSuccess(context.Context, int64, int64) {}
func (nopKPI) RecordFailure(context.Context, int64, int64) {}
func (nopKPI) RecordRefund(context.Context, int64, int64)  {}

// recordingGateway captures Charge calls.
type recordingGateway struct {
	mu      sync.Mutex
	charges []int64
}

func (g *recordingGateway) Charge(_ context.Context, orderID, _ int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.charges = append(g.charges, orderID)
	return nil
}

func testLockConfig() LockConfig {
	return LockConfig{TTL: 5 * time.Second, MaxWait: 2 * time.Second}
}

type fixture struct {
	store     *memStore
	locker    *lock.MemoryLocker
	scheduler *recordingScheduler
	gateway   *recordingGateway
	stock     *StockService
	orders    *OrderService
	refunds   *RefundService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := newMemStore()
	locker := lock.NewMemoryLocker()
	scheduler := &recordingScheduler{}
	gw := &recordingGateway{}
	clock := fixedClock{t: testNow}

	stock := NewStockService(store, store, locker, testLockConfig())
	orders := NewOrderService(store, store, stock, gw, scheduler, nopKPI{}, clock)
	refunds := NewRefundService(store, store, locker, scheduler, nopKPI{}, clock, testLockConfig())

	return &fixture{
		store:     store,
		locker:    locker,
		scheduler: scheduler,
		gateway:   gw,
		stock:     stock,
		orders:    orders,
		refunds:   refunds,
	}
}

type seedItem struct {
	sku        string
	priceCents int64
	stock      int
	qty        int
}

// seedOrder creates a customer, the given products, and one PENDING order
// holding one item per product, then recomputes its total.
func (f *fixture) seedOrder(t *testing.T, externalID string, items []seedItem) *models.Order {
	t.Helper()
	ctx := context.Background()

	customer, err := f.store.UpsertCustomer(ctx, "cust-"+externalID, "c@example.com", "Customer")
	require.NoError(t, err)

	order, err := f.store.UpsertOrder(ctx, externalID, customer.ID, "USD", testNow)
	require.NoError(t, err)

	for _, it := range items {
		product, err := f.store.UpsertProduct(ctx, it.sku, "Product "+it.sku, it.priceCents, it.stock)
		require.NoError(t, err)
		require.NoError(t, f.store.AddOrderItem(ctx, &models.OrderItem{
			OrderID:        order.ID,
			ProductID:      product.ID,
			UnitPriceCents: it.priceCents,
			Qty:            it.qty,
		}))
	}

	_, err = f.store.RecomputeOrderTotal(ctx, order.ID)
	require.NoError(t, err)

	order, err = f.store.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	return order
}

// productBySKU loads a product by SKU through the upsert index.
func (f *fixture) productBySKU(t *testing.T, sku string) *models.Product {
	t.Helper()
	f.store.mu.Lock()
	id, ok := f.store.data.prodBySKU[sku]
	f.store.mu.Unlock()
	require.True(t, ok, "product %s not seeded", sku)

	p, err := f.store.GetProduct(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p
}
