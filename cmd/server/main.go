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

	"retail-backoffice/config"
	"retail-backoffice/internal/api"
	"retail-backoffice/internal/auth"
	"retail-backoffice/internal/broker"
	"retail-backoffice/internal/redisclient"
	"retail-backoffice/internal/service"
	"retail-backoffice/internal/store"
	"retail-backoffice/internal/util"
	"retail-backoffice/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const serviceName = "retail-backoffice"

func main() {

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting retail back-office service",
		zap.String("env", cfg.Server.Env),
		zap.String("store_backend", cfg.Database.Backend))

	tp, err := util.InitTracer(serviceName, cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	repo, closeRepo := openRepository(cfg, logger)
	defer closeRepo()

	checks := map[string]api.ReadinessCheck{"database": repo.Ping}

	var idempotency service.IdempotencyStore
	if cfg.Redis.Addr != "" {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.IdempotencyTTL)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		idempotency = redisClient
		checks["redis"] = redisClient.Ping
		logger.Info("Redis connected, idempotency keys enabled")
	} else {
		logger.Warn("REDIS_ADDR not set, idempotency keys disabled")
	}

	var publisher service.EventPublisher = broker.NoopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
		defer producer.Close()
		publisher = broker.NewEventPublisher(producer)
		logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	} else {
		logger.Warn("KAFKA_BROKERS not set, order events disabled")
	}

	keys, err := auth.NewKeys(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	if err != nil {
		logger.Fatal("Failed to initialize token verification", zap.Error(err))
	}

	adjuster := service.NewInventoryAdjuster(repo, cfg.Business.CompensationTimeout)
	orderService := service.NewOrderService(repo, adjuster, idempotency, publisher, cfg.Business.OrderTimeout)
	productService := service.NewProductService(repo)
	reconciler := service.NewReconciler(repo, adjuster, publisher, cfg.Business.StalePendingAfter)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var compensationWorker *worker.CompensationWorker
	if len(cfg.Kafka.Brokers) > 0 {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
		compensationWorker = worker.NewCompensationWorker(consumer, reconciler)
		go func() {
			if err := compensationWorker.Start(workerCtx); err != nil && err != context.Canceled {
				logger.Error("Compensation worker error", zap.Error(err))
			}
		}()
	}

	reconciliation, err := worker.NewReconciliation(cfg.Business.ReconcileSchedule, reconciler, time.Minute)
	if err != nil {
		logger.Fatal("Failed to schedule reconciliation", zap.Error(err))
	}
	reconciliation.Start()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(orderService, productService, keys, checks)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	reconciliation.Stop(shutdownCtx)
	workerCancel()
	if compensationWorker != nil {
		if err := compensationWorker.Stop(); err != nil {
			logger.Error("Error stopping compensation worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}

// openRepository connects the configured store backend.
func openRepository(cfg *config.Config, logger *zap.Logger) (service.Repository, func()) {
	if cfg.Database.Backend == config.BackendMemory {
		logger.Warn("Using in-memory store; data is lost on restart")
		return store.NewMemoryStore(), func() {}
	}

	db, err := store.NewStore(cfg.Database.URL, cfg.Database.MaxOpenConns)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	logger.Info("Database connected")

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(); err != nil {
			logger.Fatal("Failed to apply migrations", zap.Error(err))
		}
		logger.Info("Database migrations applied")
	}

	return db, func() {
		if err := db.Close(); err != nil {
			logger.Error("Error closing database", zap.Error(err))
		}
	}
}
