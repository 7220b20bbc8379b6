package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"order-pipeline/internal/domain"
	"order-pipeline/internal/models"
)

// memStore is an in-memory domain.Repo and domain.TxRunner. Transactions
// are serialized by a single mutex and rolled back by restoring a deep
// copy, which mirrors the database's serializability closely enough for
// exercising the services' concurrency behavior.
type memStore struct {
	mu   sync.Mutex
	data *memData
}

type memData struct {
	customers  map[int64]models.Customer
	custByExt  map[string]int64
	custSeq    int64
	products   map[int64]models.Product
	prodBySKU  map[string]int64
	prodSeq    int64
	orders     map[int64]models.Order
	orderByExt map[string]int64
	orderSeq   int64
	items      []models.OrderItem
	itemSeq    int64
	payments   map[int64]models.Payment
	paySeq     int64
	refunds    map[int64]models.Refund
	refundSeq  int64
	notes      []models.NotificationLog
	noteSeq    int64
}

func newMemStore() *memStore {
	return &memStore{data: &memData{
		customers:  make(map[int64]models.Customer),
		custByExt:  make(map[string]int64),
		products:   make(map[int64]models.Product),
		prodBySKU:  make(map[string]int64),
		orders:     make(map[int64]models.Order),
		orderByExt: make(map[string]int64),
		payments:   make(map[int64]models.Payment),
		refunds:    make(map[int64]models.Refund),
	}}
}

func (s *memStore) InTx(_ context.Context, fn func(r domain.Repo) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(s.data); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

func (d *memData) clone() *memData {
	c := &memData{
		customers:  make(map[int64]models.Customer, len(d.customers)),
		custByExt:  make(map[string]int64, len(d.custByExt)),
		custSeq:    d.custSeq,
		products:   make(map[int64]models.Product, len(d.products)),
		prodBySKU:  make(map[string]int64, len(d.prodBySKU)),
		prodSeq:    d.prodSeq,
		orders:     make(map[int64]models.Order, len(d.orders)),
		orderByExt: make(map[string]int64, len(d.orderByExt)),
		orderSeq:   d.orderSeq,
		items:      append([]models.OrderItem(nil), d.items...),
		itemSeq:    d.itemSeq,
		payments:   make(map[int64]models.Payment, len(d.payments)),
		paySeq:     d.paySeq,
		refunds:    make(map[int64]models.Refund, len(d.refunds)),
		refundSeq:  d.refundSeq,
		notes:      append([]models.NotificationLog(nil), d.notes...),
		noteSeq:    d.noteSeq,
	}
	for k, v := range d.customers {
		c.customers[k] = v
	}
	for k, v := range d.custByExt {
		c.custByExt[k] = v
	}
	for k, v := range d.products {
		c.products[k] = v
	}
	for k, v := range d.prodBySKU {
		c.prodBySKU[k] = v
	}
	for k, v := range d.orders {
		c.orders[k] = v
	}
	for k, v := range d.orderByExt {
		c.orderByExt[k] = v
	}
	for k, v := range d.payments {
		c.payments[k] = v
	}
	for k, v := range d.refunds {
		c.refunds[k] = v
	}
	return c
}

// Repo methods on memStore lock and delegate, so services can use the
// store directly outside transactions.

func (s *memStore) locked(fn func(d *memData) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

func (s *memStore) UpsertCustomer(ctx context.Context, externalID, email, name string) (out *models.Customer, err error) {
	err = s.locked(func(d *memData) error {
		out, err = d.UpsertCustomer(ctx, externalID, email, name)
		return err
	})
	return
}

func (s *memStore) UpsertProduct(ctx context.Context, sku, name string, priceCents int64, defaultStock int) (out *models.Product, err error) {
	err = s.locked(func(d *memData) error {
		out, err = d.UpsertProduct(ctx, sku, name, priceCents, defaultStock)
		return err
	})
	return
}

func (s *memStore) GetProduct(ctx context.Context, id int64) (out *models.Product, err error) {
	err = s.locked(func(d *memData) error {
		out, err = d.GetProduct(ctx, id)
		return err
	})
	return
}

func (s *memStore) ProductsForUpdate(ctx context.Context, ids []int64) (out []models.Product, err error) {
	err = s.locked(func(d *memData) error {
		out, err = d.ProductsForUpdate(ctx, ids)
		return err
	})
	return
}

func (s *memStore) AdjustStock(ctx context.Context, productID int64, delta int) error {
	return s.locked(func(d *memData) error {
		return d.AdjustStock(ctx, productID, delta)
	})
}

func (s *memStore) GetOrder(ctx context.Context, id int64) (out *models.Order, err error) {
	err = s.locked(func(d *memData) error {
		out, err = d.GetOrder(ctx, id)
		return err
	})
	return
}

func (s *memStore) UpsertOrder(ctx context.Context, externalOrderID string, customerID int64, currency string, placedAt time.Time) (out *models.Order, err error) {
	err = s.locked(func(d *memData) error {
		out, err = d.UpsertOrder(ctx, externalOrderID, customerID, currency, placedAt)
		return err
	})
	return
}

func (s *memStore) UpdateOrderStatus(ctx context.Context, orderID int64, status string) error {
	return s.locked(func(d *memData) error {
		return d.UpdateOrderStatus(ctx, orderID, status)
	})
}

func (s *memStore) SettleOrderStatus(ctx context.Context, orderID int64, status string) (ok bool, err error) {
	err = s.locked(func(d *memData) error {
		ok, err = d.SettleOrderStatus(ctx, orderID, status)
		return err
	})
	return
}

func (s *memStore) RecomputeOrderTotal(ctx context.Context, orderID int64) (out int64, err error) {
	err = s.locked(func(d *memData) error {
		out, err = d.RecomputeOrderTotal(ctx, orderID)
		return err
	})
	return
}

func (s *memStore) AddOrderItem(ctx context.Context, item *models.OrderItem) error {
	return s.locked(func(d *memData) error {
		return d.AddOrderItem(ctx, item)
	})
}

func (s *memStore) DeleteOrderItems(ctx context.Context, orderID int64) error {
	return s.locked(func(d *memData) error {
		return d.DeleteOrderItems(ctx, orderID)
	})
}

func (s *memStore) GetOrderItems(ctx context.Context, orderID int64) (out []models.OrderItem, err error) {
	err = s.locked(func(d *memData) error {
		out, err = d.GetOrderItems(ctx, orderID)
		return err
	})
	return
}

func (s *memStore) OrderDemand(ctx context.Context, orderID int64) (out []models.ItemDemand, err error) {
	err = s.locked(func(d *memData) error {
		out, err = d.OrderDemand(ctx, orderID)
		return err
	})
	return
}

func (s *memStore) UpsertPayment(ctx context.Context, payment *models.Payment) error {
	return s.locked(func(d *memData) error {
		return d.UpsertPayment(ctx, payment)
	})
}

func (s *memStore) GetPaymentByOrderID(ctx context.Context, orderID int64) (out *models.Payment, err error) {
	err = s.locked(func(d *memData) error {
		out, err = d.GetPaymentByOrderID(ctx, orderID)
		return err
	})
	return
}

func (s *memStore) SucceededPaymentTotal(ctx context.Context, orderID int64) (out int64, err error) {
	err = s.locked(func(d *memData) error {
		out, err = d.SucceededPaymentTotal(ctx, orderID)
		return err
	})
	return
}

func (s *memStore) CreateRefund(ctx context.Context, refund *models.Refund) error {
	return s.locked(func(d *memData) error {
		return d.CreateRefund(ctx, refund)
	})
}

func (s *memStore) GetRefund(ctx context.Context, id int64) (out *models.Refund, err error) {
	err = s.locked(func(d *memData) error {
		out, err = d.GetRefund(ctx, id)
		return err
	})
	return
}

func (s *memStore) GetRefundForUpdate(ctx context.Context, id int64) (out *models.Refund, err error) {
	err = s.locked(func(d *memData) error {
		out, err = d.GetRefundForUpdate(ctx, id)
		return err
	})
	return
}

func (s *memStore) GetRefundByIdempotencyKey(ctx context.Context, orderID int64, key string) (out *models.Refund, err error) {
	err = s.locked(func(d *memData) error {
		out, err = d.GetRefundByIdempotencyKey(ctx, orderID, key)
		return err
	})
	return
}

func (s *memStore) UpdateRefundStatus(ctx context.Context, refundID int64, status string, processedAt time.Time) error {
	return s.locked(func(d *memData) error {
		return d.UpdateRefundStatus(ctx, refundID, status, processedAt)
	})
}

func (s *memStore) OpenRefundTotal(ctx context.Context, orderID int64) (out int64, err error) {
	err = s.locked(func(d *memData) error {
		out, err = d.OpenRefundTotal(ctx, orderID)
		return err
	})
	return
}

func (s *memStore) CreateNotificationLog(ctx context.Context, log *models.NotificationLog) error {
	return s.locked(func(d *memData) error {
		return d.CreateNotificationLog(ctx, log)
	})
}

// memData implements domain.Repo without locking; it is what InTx hands to
// transactional callbacks.

func (d *memData) UpsertCustomer(_ context.Context, externalID, email, name string) (*models.Customer, error) {
	if id, ok := d.custByExt[externalID]; ok {
		c := d.customers[id]
		c.Email = email
		c.Name = name
		d.customers[id] = c
		return &c, nil
	}
	d.custSeq++
	c := models.Customer{ID: d.custSeq, ExternalID: externalID, Email: email, Name: name, CreatedAt: time.Now()}
	d.customers[c.ID] = c
	d.custByExt[externalID] = c.ID
	return &c, nil
}

func (d *memData) UpsertProduct(_ context.Context, sku, name string, priceCents int64, defaultStock int) (*models.Product, error) {
	if id, ok := d.prodBySKU[sku]; ok {
		p := d.products[id]
		p.Name = name
		p.PriceCents = priceCents
		d.products[id] = p
		return &p, nil
	}
	d.prodSeq++
	p := models.Product{ID: d.prodSeq, SKU: sku, Name: name, PriceCents: priceCents, StockQty: defaultStock}
	d.products[p.ID] = p
	d.prodBySKU[sku] = p.ID
	return &p, nil
}

func (d *memData) GetProduct(_ context.Context, id int64) (*models.Product, error) {
	if p, ok := d.products[id]; ok {
		return &p, nil
	}
	return nil, nil
}

func (d *memData) ProductsForUpdate(_ context.Context, ids []int64) ([]models.Product, error) {
	out := make([]models.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := d.products[id]; ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *memData) AdjustStock(_ context.Context, productID int64, delta int) error {
	p := d.products[productID]
	p.StockQty += delta
	d.products[productID] = p
	return nil
}

func (d *memData) GetOrder(_ context.Context, id int64) (*models.Order, error) {
	if o, ok := d.orders[id]; ok {
		return &o, nil
	}
	return nil, nil
}

func (d *memData) UpsertOrder(_ context.Context, externalOrderID string, customerID int64, currency string, placedAt time.Time) (*models.Order, error) {
	if id, ok := d.orderByExt[externalOrderID]; ok {
		o := d.orders[id]
		o.CustomerID = customerID
		o.Currency = currency
		o.PlacedAt = placedAt
		d.orders[id] = o
		return &o, nil
	}
	d.orderSeq++
	o := models.Order{
		ID:              d.orderSeq,
		ExternalOrderID: externalOrderID,
		CustomerID:      customerID,
		Status:          models.OrderStatusPending,
		Currency:        currency,
		PlacedAt:        placedAt,
	}
	d.orders[o.ID] = o
	d.orderByExt[externalOrderID] = o.ID
	return &o, nil
}

func (d *memData) UpdateOrderStatus(_ context.Context, orderID int64, status string) error {
	o := d.orders[orderID]
	o.Status = status
	d.orders[orderID] = o
	return nil
}

func (d *memData) SettleOrderStatus(_ context.Context, orderID int64, status string) (bool, error) {
	o, ok := d.orders[orderID]
	if !ok || o.Status != models.OrderStatusPending {
		return false, nil
	}
	o.Status = status
	d.orders[orderID] = o
	return true, nil
}

func (d *memData) RecomputeOrderTotal(_ context.Context, orderID int64) (int64, error) {
	var total int64
	for i := range d.items {
		if d.items[i].OrderID == orderID {
			total += d.items[i].SubtotalCents()
		}
	}
	o := d.orders[orderID]
	o.TotalCents = total
	d.orders[orderID] = o
	return total, nil
}

func (d *memData) AddOrderItem(_ context.Context, item *models.OrderItem) error {
	d.itemSeq++
	item.ID = d.itemSeq
	d.items = append(d.items, *item)
	return nil
}

func (d *memData) DeleteOrderItems(_ context.Context, orderID int64) error {
	kept := d.items[:0]
	for _, it := range d.items {
		if it.OrderID != orderID {
			kept = append(kept, it)
		}
	}
	d.items = kept
	return nil
}

func (d *memData) GetOrderItems(_ context.Context, orderID int64) ([]models.OrderItem, error) {
	var out []models.OrderItem
	for _, it := range d.items {
		if it.OrderID == orderID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (d *memData) OrderDemand(_ context.Context, orderID int64) ([]models.ItemDemand, error) {
	perProduct := make(map[int64]int)
	for _, it := range d.items {
		if it.OrderID == orderID {
			perProduct[it.ProductID] += it.Qty
		}
	}
	out := make([]models.ItemDemand, 0, len(perProduct))
	for pid, qty := range perProduct {
		out = append(out, models.ItemDemand{ProductID: pid, Qty: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (d *memData) UpsertPayment(_ context.Context, payment *models.Payment) error {
	if existing, ok := d.payments[payment.OrderID]; ok {
		payment.ID = existing.ID
	} else {
		d.paySeq++
		payment.ID = d.paySeq
	}
	d.payments[payment.OrderID] = *payment
	return nil
}

func (d *memData) GetPaymentByOrderID(_ context.Context, orderID int64) (*models.Payment, error) {
	if p, ok := d.payments[orderID]; ok {
		return &p, nil
	}
	return nil, nil
}

func (d *memData) SucceededPaymentTotal(_ context.Context, orderID int64) (int64, error) {
	var total int64
	if p, ok := d.payments[orderID]; ok && p.Status == models.PaymentStatusSucceeded {
		total += p.AmountCents
	}
	return total, nil
}

func (d *memData) CreateRefund(_ context.Context, refund *models.Refund) error {
	d.refundSeq++
	refund.ID = d.refundSeq
	refund.CreatedAt = time.Now()
	d.refunds[refund.ID] = *refund
	return nil
}

func (d *memData) GetRefund(_ context.Context, id int64) (*models.Refund, error) {
	if r, ok := d.refunds[id]; ok {
		return &r, nil
	}
	return nil, nil
}

func (d *memData) GetRefundForUpdate(ctx context.Context, id int64) (*models.Refund, error) {
	return d.GetRefund(ctx, id)
}

func (d *memData) GetRefundByIdempotencyKey(_ context.Context, orderID int64, key string) (*models.Refund, error) {
	for _, r := range d.refunds {
		if r.OrderID == orderID && r.IdempotencyKey != nil && *r.IdempotencyKey == key {
			out := r
			return &out, nil
		}
	}
	return nil, nil
}

func (d *memData) UpdateRefundStatus(_ context.Context, refundID int64, status string, processedAt time.Time) error {
	r := d.refunds[refundID]
	r.Status = status
	r.ProcessedAt = &processedAt
	d.refunds[refundID] = r
	return nil
}

func (d *memData) OpenRefundTotal(_ context.Context, orderID int64) (int64, error) {
	var total int64
	for _, r := range d.refunds {
		if r.OrderID == orderID && (r.Status == models.RefundStatusRequested || r.Status == models.RefundStatusProcessed) {
			total += r.AmountCents
		}
	}
	return total, nil
}

func (d *memData) CreateNotificationLog(_ context.Context, log *models.NotificationLog) error {
	d.noteSeq++
	log.ID = d.noteSeq
	d.notes = append(d.notes, *log)
	return nil
}
