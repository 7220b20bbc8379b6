package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"order-pipeline/config"
	"order-pipeline/internal/api"
	"order-pipeline/internal/broker"
	"order-pipeline/internal/domain"
	"order-pipeline/internal/gateway"
	"order-pipeline/internal/kpi"
	"order-pipeline/internal/lock"
	"order-pipeline/internal/notify"
	"order-pipeline/internal/redisclient"
	"order-pipeline/internal/service"
	"order-pipeline/internal/store"
	"order-pipeline/internal/util"
	"order-pipeline/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting order pipeline")

	tp, err := util.InitTracer("order-pipeline", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	brokers := cfg.BrokerList()
	topics := broker.Topics{
		OrderTasks:        cfg.Kafka.TopicOrderTasks,
		RefundTasks:       cfg.Kafka.TopicRefundTasks,
		NotificationTasks: cfg.Kafka.TopicNotificationTasks,
		DeadLetter:        cfg.Kafka.TopicDeadLetter,
	}
	scheduler := broker.NewScheduler(brokers, topics)
	defer scheduler.Close()

	deadLetter := broker.NewProducer(brokers, topics.DeadLetter)
	defer deadLetter.Close()
	log.Println("Kafka producers initialized")

	locker := lock.NewRedisLocker(redisClient)
	clock := domain.SystemClock{}
	kpiSink := kpi.NewSink(redisClient, clock)

	stockService := service.NewStockService(db, db, locker, service.LockConfig{
		TTL:     time.Duration(cfg.Lock.StockTTLSeconds) * time.Second,
		MaxWait: time.Duration(cfg.Lock.StockWaitSeconds) * time.Second,
	})
	fakeGateway := gateway.NewFake(scheduler, nil, time.Duration(cfg.Business.GatewayDelaySeconds)*time.Second)
	orderService := service.NewOrderService(db, db, stockService, fakeGateway, scheduler, kpiSink, clock)
	refundService := service.NewRefundService(db, db, locker, scheduler, kpiSink, clock, service.LockConfig{
		TTL:     time.Duration(cfg.Lock.RefundTTLSeconds) * time.Second,
		MaxWait: time.Duration(cfg.Lock.RefundWaitSeconds) * time.Second,
	})
	notifier := notify.NewLogNotifier(db, clock)

	workerCfg := worker.Config{
		GuardTTL: time.Duration(cfg.Lock.TaskGuardTTLSeconds) * time.Second,
		Attempts: cfg.Worker.RetryAttempts,
		Backoff:  time.Duration(cfg.Worker.RetryBackoffSeconds) * time.Second,
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	orderConsumer := broker.NewConsumer(brokers, topics.OrderTasks, cfg.Kafka.ConsumerGroup)
	defer orderConsumer.Close()
	orderWorker := worker.NewOrderWorker(orderConsumer, orderService, locker, deadLetter, workerCfg)
	go func() {
		if err := orderWorker.Start(workerCtx); err != nil && workerCtx.Err() == nil {
			log.Printf("Order worker error: %v", err)
		}
	}()

	refundConsumer := broker.NewConsumer(brokers, topics.RefundTasks, cfg.Kafka.ConsumerGroup)
	defer refundConsumer.Close()
	refundWorker := worker.NewRefundWorker(refundConsumer, refundService, locker, deadLetter, workerCfg)
	go func() {
		if err := refundWorker.Start(workerCtx); err != nil && workerCtx.Err() == nil {
			log.Printf("Refund worker error: %v", err)
		}
	}()

	notificationConsumer := broker.NewConsumer(brokers, topics.NotificationTasks, cfg.Kafka.ConsumerGroup)
	defer notificationConsumer.Close()
	notificationWorker := worker.NewNotificationWorker(notificationConsumer, notifier, locker, deadLetter, workerCfg)
	go func() {
		if err := notificationWorker.Start(workerCtx); err != nil && workerCtx.Err() == nil {
			log.Printf("Notification worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(orderService, refundService, scheduler, kpiSink)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()

	log.Println("Server exited")
}
