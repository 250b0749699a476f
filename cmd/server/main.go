package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/config"
	"storefront/internal/api"
	"storefront/internal/broker"
	"storefront/internal/gateway"
	"storefront/internal/redisclient"
	"storefront/internal/service"
	"storefront/internal/store"
	"storefront/internal/store/memstore"
	"storefront/internal/util"
	"storefront/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// repository is satisfied by both the Postgres and in-memory stores
type repository interface {
	service.ProductRepository
	service.CartRepository
	service.OrderRepository
	service.UserRepository
	worker.EventLedger
	api.Pinger
}

func main() {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting storefront API")

	tp, err := util.InitTracer("storefront", cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	var repo repository
	switch cfg.Database.Driver {
	case "memory":
		repo = memstore.New()
		logger.Warn("Using in-memory store, data is lost on restart")
	default:
		db, err := store.NewStore(cfg.Database.URL)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()
		repo = db
		logger.Info("Database connected")
	}
	readiness := map[string]api.Pinger{"store": repo}

	var (
		locker service.Locker = service.NewLocalLocker(cfg.Cart.LockWait)
		cache  service.ProductCache
	)
	if cfg.Redis.Enabled {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		locker = service.NewRedisLocker(redisClient, cfg.Cart.LockTTL, cfg.Cart.LockWait)
		cache = redisclient.NewProductCache(redisClient)
		readiness["redis"] = redisClient
		logger.Info("Redis connected")
	}

	var producer *broker.Producer
	if cfg.Kafka.Enabled {
		producer = broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicCatalog)
		defer producer.Close()
		logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	}
	eventPublisher := broker.NewEventPublisher(producer)

	var paymentGateway service.PaymentGateway
	if cfg.Payment.Configured() {
		paymentGateway = gateway.NewRazorpay(cfg.Payment.KeyID, cfg.Payment.KeySecret)
	} else {
		logger.Warn("Payment provider credentials missing, payment routes will return 503")
	}

	cartService := service.NewCartService(repo, repo, locker)
	catalogService := service.NewCatalogService(repo, cache, eventPublisher)
	services := api.Services{
		Cart:     cartService,
		Catalog:  catalogService,
		Reviews:  service.NewReviewService(repo, cache, eventPublisher),
		Orders:   service.NewOrderService(repo, repo, repo, locker, eventPublisher),
		Payments: service.NewPaymentService(cfg.Payment, paymentGateway, eventPublisher),
		Auth:     service.NewAuthService(repo, cfg.Auth),
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var catalogWorker *worker.CatalogWorker
	if cfg.Kafka.Enabled {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicCatalog, cfg.Kafka.ConsumerGroup)
		catalogWorker = worker.NewCatalogWorker(consumer, repo, cartService, catalogService)
		go func() {
			if err := catalogWorker.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Catalog worker error", zap.Error(err))
			}
		}()
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(services, cfg.Server.FrontendOrigin, readiness)
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

	workerCancel()
	if catalogWorker != nil {
		if err := catalogWorker.Stop(); err != nil {
			logger.Warn("Error stopping catalog worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}
