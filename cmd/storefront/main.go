package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/config"
	"github.com/fjod/storefront/internal/coupon"
	"github.com/fjod/storefront/internal/httpapi"
	"github.com/fjod/storefront/internal/notifier"
	"github.com/fjod/storefront/internal/opsdb"
	"github.com/fjod/storefront/internal/order"
	"github.com/fjod/storefront/internal/payment"
	"github.com/fjod/storefront/internal/phonepe"
	"github.com/fjod/storefront/internal/pricing"
	"github.com/fjod/storefront/internal/publisher"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/internal/repository/memory"
	"github.com/fjod/storefront/internal/stock"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/fjod/storefront/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// opsStore is the Postgres-or-memory store for order numbers and incidents.
type opsStore interface {
	order.NumberGenerator
	order.IncidentRecorder
	httpapi.IncidentStore
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.ServiceName, cfg.LogLevel)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("storefront stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	m := metrics.New(prometheus.DefaultRegisterer, cfg.ServiceName)
	var checks []func(ctx context.Context) error

	// Document store
	var store *repository.Store
	switch cfg.Storage {
	case config.StorageMongo:
		mongoDB, err := repository.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return err
		}
		defer disconnectMongo(mongoDB, log)
		log.Info("connected to MongoDB", "database", cfg.MongoDatabase)

		store = repository.NewStore(mongoDB)
		if err := store.CreateIndexes(ctx); err != nil {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
		checks = append(checks, func(ctx context.Context) error {
			return mongoDB.Client().Ping(ctx, nil)
		})
	default:
		db := memory.New()
		seedDemoData(ctx, db)
		store = db.Store()
		log.Warn("using in-memory storage, data is lost on restart")
	}

	// Cart cache and finalization lock
	var (
		cartCache cache.CartCache = cache.Nop{}
		locker    cache.Locker    = cache.NewLocalLocker()
	)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		log.Info("redis ping succeeded", "addr", cfg.RedisAddr)

		cartCache = cache.NewRedisCache(redisClient, cache.CartCacheConfig{
			TTL:    cfg.CartCacheTTL,
			Jitter: cfg.CartCacheJitter,
		})
		locker = cache.NewRedisLocker(redisClient)
		checks = append(checks, func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	// Order numbers and incidents
	var ops opsStore
	if cfg.Postgres != nil {
		pg, err := opsdb.Open(cfg.Postgres)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.RunMigrations(cfg.Postgres); err != nil {
			return err
		}
		log.Info("connected to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.DBName)
		ops = pg
		checks = append(checks, pg.Ping)
	} else {
		ops = opsdb.NewMemory()
		log.Warn("PG_HOST not set, order numbers restart from 1 on every boot")
	}

	// Domain services
	carts := cart.NewService(store.Carts, store.Catalog, cartCache)
	ledger := stock.NewLedger(store.Stock)
	checkouts := checkout.NewManager(checkout.Deps{
		Checkouts: store.Checkouts,
		Carts:     carts,
		Prices:    pricing.NewResolver(store.Catalog),
		Coupons:   coupon.NewEvaluator(store.Coupons),
		Addresses: store.Addresses,
		Catalog:   store.Catalog,
		Stock:     store.Stock,
	}, checkout.Policy{
		Validity:          cfg.CheckoutValidity,
		DeliveryCharge:    cfg.DeliveryCharge,
		FreeDeliveryAbove: cfg.FreeDeliveryAbove,
	})
	orders := order.NewService(order.ServiceDeps{
		Orders:    store.Orders,
		Checkouts: checkouts,
		Addresses: store.Addresses,
		Catalog:   store.Catalog,
		Ledger:    ledger,
		Outbox:    store.Outbox,
		Numbers:   ops,
	}, cfg.Currency)
	finalizer := order.NewFinalizer(order.FinalizerDeps{
		Orders:    store.Orders,
		Payments:  store.Payments,
		Checkouts: store.Checkouts,
		Coupons:   store.Coupons,
		Outbox:    store.Outbox,
		Ledger:    ledger,
		Carts:     carts,
		Locker:    locker,
		Incidents: ops,
		Metrics:   m,
	}, order.FinalizerConfig{
		LockTTL:     cfg.FinalizeLockTTL,
		WaitTimeout: cfg.FinalizeWait,
	})
	reconciler := payment.NewReconciler(payment.ReconcilerDeps{
		Payments:  store.Payments,
		Orders:    store.Orders,
		Outbox:    store.Outbox,
		Finalizer: finalizer,
		Canceller: orders,
		Metrics:   m,
	})
	payments := payment.NewService(store.Payments, store.Orders, phonepe.New(cfg.PhonePe, m), reconciler, payment.Config{
		PublicURL:   cfg.PublicURL,
		FrontendURL: cfg.FrontendURL,
		Currency:    cfg.Currency,
	})

	// Outbox delivery and notifications
	var wg sync.WaitGroup
	dispatcher := notifier.NewDispatcher(notifier.LogSender{})
	var sink publisher.MessageWriter = dispatcher
	if len(cfg.KafkaBrokers) > 0 {
		writer := publisher.NewKafkaWriter(cfg.KafkaTopic, cfg.KafkaBrokers...)
		defer writer.Close()
		sink = writer

		consumer := notifier.NewConsumer(dispatcher, cfg.KafkaTopic, cfg.NotifierGroup, cfg.KafkaBrokers...)
		defer consumer.Close()
		wg.Add(1)
		go func() {
			defer wg.Done()
			consumer.Run(ctx)
		}()
		log.Info("kafka enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		log.Warn("KAFKA_BROKERS not set, outbox events are dispatched in process")
	}

	poller := publisher.NewOutboxPoller(store.Outbox, sink)
	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Run(ctx)
	}()

	// HTTP
	router := httpapi.NewRouter(httpapi.Handlers{
		Cart:     httpapi.NewCartHandler(carts),
		Checkout: httpapi.NewCheckoutHandler(checkouts),
		Orders:   httpapi.NewOrderHandler(orders),
		Payments: httpapi.NewPaymentHandler(payments),
		Admin:    httpapi.NewAdminHandler(payments, finalizer, ops),
	}, httpapi.RouterConfig{
		Logger:         log,
		Metrics:        m,
		RequestTimeout: cfg.RequestTimeout,
		MaxBodyBytes:   cfg.MaxRequestBodySize,
		Ready: func(r *http.Request) error {
			for _, check := range checks {
				if err := check(r.Context()); err != nil {
					return err
				}
			}
			return nil
		},
	})

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("storefront listening", "port", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			stop()
			wg.Wait()
			return fmt.Errorf("server failed: %w", err)
		}
	}

	log.Info("shutting down storefront")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}
	wg.Wait()
	log.Info("storefront stopped")
	return nil
}

func disconnectMongo(db *mongo.Database, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.Client().Disconnect(ctx); err != nil {
		log.Error("mongo disconnect failed", "error", err)
	}
}

var _ opsStore = (*opsdb.Store)(nil)
var _ opsStore = (*opsdb.Memory)(nil)
