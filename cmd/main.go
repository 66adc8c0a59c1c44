package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/esewa-gateway/internal/api"
	"github.com/akylbek/payment-system/esewa-gateway/internal/cache"
	"github.com/akylbek/payment-system/esewa-gateway/internal/config"
	"github.com/akylbek/payment-system/esewa-gateway/internal/esewa"
	"github.com/akylbek/payment-system/esewa-gateway/internal/events"
	"github.com/akylbek/payment-system/esewa-gateway/internal/interfaces"
	"github.com/akylbek/payment-system/esewa-gateway/internal/reconciler"
	"github.com/akylbek/payment-system/esewa-gateway/internal/repository"
	"github.com/akylbek/payment-system/esewa-gateway/internal/telemetry"
)

func main() {
	cfg, err := config.Load(os.Getenv("ESEWA_CONFIG_FILE"))
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	// Initialize telemetry
	if err := telemetry.InitTelemetry(api.ServiceName, cfg.JaegerEndpoint); err != nil {
		panic(fmt.Sprintf("Failed to initialize telemetry: %v", err))
	}
	defer telemetry.Shutdown(context.Background())

	logger := telemetry.Logger
	logger.Info("Starting eSewa gateway", zap.String("protocol", cfg.Esewa.Protocol))

	if err := cfg.Esewa.Validate(); err != nil {
		logger.Fatal("Invalid eSewa configuration", zap.Error(err))
	}

	// Transaction store is optional; without it Verify trusts the caller's amount
	var repo interfaces.TransactionRepository
	if cfg.DatabaseURL != "" {
		db, err := repository.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		txRepo := repository.NewTransactionRepository(db)
		if err := txRepo.InitDB(); err != nil {
			logger.Fatal("Failed to initialize database", zap.Error(err))
		}
		repo = txRepo
	} else {
		logger.Warn("DATABASE_URL not set, transactions are not persisted")
	}

	// Connect to Redis
	var (
		initiationCache interfaces.InitiationCache
		locker          interfaces.Locker
	)
	if cfg.RedisURL != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.RedisURL,
		})
		defer redisClient.Close()

		store := cache.NewRedisStore(redisClient)
		initiationCache = store
		locker = store
	}

	publisher, err := events.NewPublisher(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize event publisher", zap.Error(err))
	}
	defer publisher.Close()

	protocol, err := esewa.NewProtocol(cfg.Esewa, logger)
	if err != nil {
		logger.Fatal("Failed to initialize eSewa protocol", zap.Error(err))
	}
	service := esewa.NewService(protocol, cfg.Esewa.ProductCode, repo, publisher, logger)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()

	if cfg.Reconciler.Enabled {
		if repo == nil {
			logger.Warn("Reconciler enabled without a database, skipping")
		} else {
			worker := reconciler.NewWorker(repo, service, locker, cfg.Reconciler, logger)
			go worker.Run(workerCtx)
		}
	}

	r := api.NewRouter(service, initiationCache, locker, logger)

	// Setup HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		logger.Info("eSewa gateway starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	stopWorker()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
