package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/threadloom/api/internal/analytics"
	"github.com/threadloom/api/internal/catalog"
	"github.com/threadloom/api/internal/checkout"
	"github.com/threadloom/api/internal/handlers"
	"github.com/threadloom/api/internal/inventory"
	"github.com/threadloom/api/internal/notifications"
	"github.com/threadloom/api/internal/orders"
	"github.com/threadloom/api/internal/payments"
	"github.com/threadloom/api/internal/platform/config"
	"github.com/threadloom/api/internal/platform/observability"
	"github.com/threadloom/api/internal/pricing"
	"github.com/threadloom/api/internal/promo"
	"github.com/threadloom/api/internal/repositories"
	"github.com/threadloom/api/internal/repositories/memory"
	"github.com/threadloom/api/internal/repositories/postgres"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	priceCatalog := catalog.New(catalog.Rates{
		FreeShippingThreshold: cfg.Checkout.FreeShippingThreshold,
		StandardRate:          cfg.Checkout.StandardRate,
		ExpressRate:           cfg.Checkout.ExpressRate,
		InsurancePrice:        cfg.Checkout.InsuranceRate,
		Currency:              cfg.Checkout.Currency,
	})
	engine, err := pricing.NewEngine(priceCatalog)
	if err != nil {
		logger.Fatal("failed to initialise pricing engine", zap.Error(err))
	}

	// The durable store is optional: without it the inventory ledger
	// degrades to the volatile in-process cache and order persistence is
	// disabled.
	var pool *pgxpool.Pool
	if cfg.Database.URL != "" {
		connectCtx, cancel := context.WithTimeout(ctx, cfg.Database.ConnectTimeout)
		pool, err = postgres.Connect(connectCtx, cfg.Database.URL, cfg.Database.MaxConns)
		cancel()
		if err != nil {
			logger.Warn("database unreachable; continuing with volatile inventory only", zap.Error(err))
			pool = nil
		} else {
			if err := postgres.EnsureSchema(ctx, pool); err != nil {
				logger.Fatal("failed to apply database schema", zap.Error(err))
			}
			defer pool.Close()
		}
	} else {
		logger.Warn("no database configured; orders cannot be materialized")
	}

	volatileStock := memory.NewVolatileInventoryStore()
	volatileStock.Seed(catalog.DefaultStock())

	var inventoryRepo repositories.InventoryRepository = volatileStock
	if pool != nil {
		inventoryRepo = repositories.NewFallbackInventoryRepository(postgres.NewInventoryRepository(pool), volatileStock)
	}

	inventoryService, err := inventory.NewService(inventory.ServiceDeps{
		Repository: inventoryRepo,
		Logger:     observability.EventLogger(),
	})
	if err != nil {
		logger.Fatal("failed to initialise inventory service", zap.Error(err))
	}

	stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey: cfg.Stripe.SecretKey,
		Logger: observability.EventLogger(),
	})
	if err != nil {
		logger.Fatal("failed to initialise payment provider", zap.Error(err))
	}

	orchestrator, err := checkout.NewOrchestrator(checkout.OrchestratorDeps{
		Engine:   engine,
		Payments: stripeProvider,
		Logger:   observability.EventLogger(),
	})
	if err != nil {
		logger.Fatal("failed to initialise checkout orchestrator", zap.Error(err))
	}

	validator := promo.NewValidator(promo.DefaultCodes(), time.Now)

	fanout := analytics.NewFanout(analytics.Config{
		MetaPixelID:     cfg.Ads.MetaPixelID,
		MetaAccessToken: cfg.Ads.MetaAccessToken,
		GAMeasurementID: cfg.Ads.GAMeasurementID,
		GAAPISecret:     cfg.Ads.GAAPISecret,
		Logger:          observability.EventLogger(),
	})

	mailer := notifications.NewMailer(notifications.MailerConfig{
		APIKey:      cfg.Email.APIKey,
		FromAddress: cfg.Email.FromAddress,
		Logger:      observability.EventLogger(),
	})

	var (
		materializer *orders.Materializer
		fulfillment  *orders.Fulfillment
	)
	if pool != nil {
		orderRepo := postgres.NewOrderRepository(pool)
		materializer, err = orders.NewMaterializer(orders.MaterializerDeps{
			Orders:       orderRepo,
			Customers:    postgres.NewCustomerRepository(pool, time.Now),
			Analytics:    fanout,
			Mailer:       mailer,
			NumberPrefix: cfg.Checkout.OrderPrefix,
			Logger:       observability.EventLogger(),
		})
		if err != nil {
			logger.Fatal("failed to initialise order materializer", zap.Error(err))
		}
		fulfillment, err = orders.NewFulfillment(orders.FulfillmentDeps{
			Orders: orderRepo,
			Mailer: mailer,
			Logger: observability.EventLogger(),
		})
		if err != nil {
			logger.Fatal("failed to initialise order fulfillment", zap.Error(err))
		}
	}

	healthOpts := []handlers.HealthOption{}
	if pool != nil {
		healthOpts = append(healthOpts, handlers.WithReadyCheck("database", pool.Ping))
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
	}

	checkoutHandlers := handlers.NewCheckoutHandlers(orchestrator, validator)
	catalogHandlers := handlers.NewCatalogHandlers(priceCatalog)
	webhookHandlers := handlers.NewWebhookHandlers(cfg.Stripe.WebhookSecret, materializer)
	inventoryHandlers := handlers.NewInventoryHandlers(inventoryService)
	orderAdminHandlers := handlers.NewOrderAdminHandlers(fulfillment)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(healthOpts...)),
		handlers.WithCatalogRoutes(catalogHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
		handlers.WithAdminRoutes(func(r chi.Router) {
			inventoryHandlers.Routes(r)
			orderAdminHandlers.Routes(r)
		}),
		handlers.WithAdminMiddlewares(handlers.AdminAuthMiddleware(cfg.Admin.APIToken)),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("threadloom api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	// Let in-flight conversion deliveries finish before exit.
	fanout.Wait()
}
