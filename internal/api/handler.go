package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"order-pipeline/internal/domain"
	"order-pipeline/internal/kpi"
	"order-pipeline/internal/service"
	"order-pipeline/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	orderService  *service.OrderService
	refundService *service.RefundService
	scheduler     domain.TaskScheduler
	kpiSink       *kpi.Sink
}

// NewHandler creates a new HTTP handler
func NewHandler(orderService *service.OrderService, refundService *service.RefundService, scheduler domain.TaskScheduler, kpiSink *kpi.Sink) *Handler {
	return &Handler{
		orderService:  orderService,
		refundService: refundService,
		scheduler:     scheduler,
		kpiSink:       kpiSink,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/orders/:id", h.getOrder)
		v1.POST("/orders/:id/process", h.processOrder)
		v1.POST("/refunds", h.createRefund)
		v1.GET("/orders/:id/refundable", h.getRefundable)
		v1.POST("/gateway/callback", h.gatewayCallback)
		v1.GET("/kpi/leaderboard", h.getLeaderboard)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	order, items, payment, err := h.orderService.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		var notFound *domain.OrderNotFoundError
		if errors.As(err, &notFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load order"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order":   order,
		"items":   items,
		"payment": payment,
	})
}

// processOrder enqueues the processing pipeline for an order
func (h *Handler) processOrder(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.orderService.ScheduleProcessing(c.Request.Context(), orderID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to schedule processing"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"order_id": orderID,
		"status":   "scheduled",
	})
}

// CreateRefundRequest is the refund creation payload.
type CreateRefundRequest struct {
	OrderID        int64  `json:"order_id" binding:"required"`
	AmountCents    int64  `json:"amount_cents" binding:"required"`
	Reason         string `json:"reason"`
	IdempotencyKey string `json:"idempotency_key"`
}

// createRefund handles refund requests
func (h *Handler) createRefund(c *gin.Context) {
	var req CreateRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	refund, err := h.refundService.CreateRefund(c.Request.Context(), req.OrderID, req.AmountCents, req.Reason, req.IdempotencyKey)
	if err != nil {
		var notFound *domain.OrderNotFoundError
		var exceeded *domain.RefundAmountExceededError
		switch {
		case errors.As(err, &notFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		case errors.Is(err, domain.ErrInvalidRefundAmount):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Refund amount must be at least one cent"})
		case errors.As(err, &exceeded):
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":            "Refund amount exceeds refundable balance",
				"refundable_cents": exceeded.Refundable,
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create refund"})
		}
		return
	}

	c.JSON(http.StatusCreated, refund)
}

// getRefundable reports the order's current refundable balance
func (h *Handler) getRefundable(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	refundable, err := h.refundService.RefundableAmount(c.Request.Context(), orderID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute refundable balance"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order_id":         orderID,
		"refundable_cents": refundable,
	})
}

// GatewayCallbackRequest is the payment provider's webhook payload.
type GatewayCallbackRequest struct {
	OrderID     int64  `json:"order_id" binding:"required"`
	Succeeded   *bool  `json:"succeeded" binding:"required"`
	ProviderRef string `json:"provider_ref" binding:"required"`
}

// gatewayCallback enqueues settlement of a provider webhook result. The
// worker applies it with the same guard and retry policy as gateway
// callbacks from the fake provider.
func (h *Handler) gatewayCallback(c *gin.Context) {
	var req GatewayCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if err := h.scheduler.EnqueuePaymentCallback(c.Request.Context(), req.OrderID, *req.Succeeded, req.ProviderRef); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to schedule settlement"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"order_id": req.OrderID, "status": "scheduled"})
}

// getLeaderboard returns the top customers by net revenue
func (h *Handler) getLeaderboard(c *gin.Context) {
	n, err := strconv.ParseInt(c.DefaultQuery("limit", "10"), 10, 64)
	if err != nil || n < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return
	}

	entries, err := h.kpiSink.TopCustomers(c.Request.Context(), n)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load leaderboard"})
		return
	}

	type entry struct {
		CustomerID string `json:"customer_id"`
		NetCents   int64  `json:"net_cents"`
	}
	out := make([]entry, 0, len(entries))
	for _, z := range entries {
		id, _ := z.Member.(string)
		out = append(out, entry{CustomerID: id, NetCents: int64(z.Score)})
	}

	c.JSON(http.StatusOK, gin.H{"leaderboard": out})
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return 0, false
	}
	return id, true
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
