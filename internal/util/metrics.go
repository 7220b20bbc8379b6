package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_processed_total",
		Help: "Total number of orders that entered the processing pipeline",
	})

	OrdersSettledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_settled_total",
		Help: "Total number of orders settled, by terminal status",
	}, []string{"status"})

	StockReservationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_reservations_total",
		Help: "Total number of successful stock reservations",
	})

	StockReservationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_reservations_failed_total",
		Help: "Total number of failed stock reservations",
	}, []string{"reason"})

	StockReserveLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stock_reserve_latency_seconds",
		Help:    "Latency of stock reservation attempts",
		Buckets: prometheus.DefBuckets,
	})

	GatewayChargesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_charges_total",
		Help: "Total number of gateway charge results, by outcome",
	}, []string{"outcome"})

	RefundsRequestedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "refunds_requested_total",
		Help: "Total number of refund requests accepted",
	})

	RefundsSettledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refunds_settled_total",
		Help: "Total number of refunds settled, by terminal status",
	}, []string{"status"})

	RefundProcessingLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "refund_processing_latency_seconds",
		Help:    "Latency of refund settlement",
		Buckets: prometheus.DefBuckets,
	})

	TaskRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "task_retries_total",
		Help: "Total number of task retry attempts",
	}, []string{"task"})

	TasksDeadLetteredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tasks_dead_lettered_total",
		Help: "Total number of tasks routed to the dead-letter topic",
	}, []string{"task"})

	TasksSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tasks_skipped_total",
		Help: "Total number of task deliveries skipped by the overlap guard",
	}, []string{"task"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
