package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/maisonverdier/boutique-backend/api/routes"
	"github.com/maisonverdier/boutique-backend/internal/catalog"
	"github.com/maisonverdier/boutique-backend/internal/customers"
	"github.com/maisonverdier/boutique-backend/internal/inventory"
	"github.com/maisonverdier/boutique-backend/internal/orders"
	"github.com/maisonverdier/boutique-backend/internal/settings"
	"github.com/maisonverdier/boutique-backend/internal/shipping"
	"github.com/maisonverdier/boutique-backend/internal/subscriptions"
	"github.com/maisonverdier/boutique-backend/pkg/config"
	"github.com/maisonverdier/boutique-backend/pkg/db"
	"github.com/maisonverdier/boutique-backend/pkg/logger"
	"github.com/maisonverdier/boutique-backend/pkg/metrics"
	"github.com/maisonverdier/boutique-backend/pkg/migrate"
	"github.com/maisonverdier/boutique-backend/pkg/redis"
	"github.com/maisonverdier/boutique-backend/pkg/sendcloud"
	"github.com/maisonverdier/boutique-backend/pkg/stripe"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	stripeClient, err := stripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		logg.Error(ctx, "failed to initialize stripe", err)
		os.Exit(1)
	}

	carrierOpts := []sendcloud.Option{}
	if cfg.Carrier.BaseURL != "" {
		carrierOpts = append(carrierOpts, sendcloud.WithBaseURL(cfg.Carrier.BaseURL))
	}
	carrierOpts = append(carrierOpts, sendcloud.WithHTTPClient(&http.Client{Timeout: cfg.Carrier.Timeout}))
	carrierClient, err := sendcloud.NewClient(cfg.Carrier.APIKey, cfg.Carrier.APISecret, carrierOpts...)
	if err != nil {
		logg.Error(ctx, "failed to initialize carrier client", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	shippingMetrics := metrics.NewShippingMetrics(registry)

	gormDB := dbClient.DB()
	catalogRepo := catalog.NewRepository(gormDB)
	customersRepo := customers.NewRepository(gormDB)
	ordersRepo := orders.NewRepository(gormDB)
	settingsRepo := settings.NewRepository(gormDB)
	adjuster := inventory.NewAdjuster()

	settingsSvc, err := settings.NewService(settingsRepo)
	if err != nil {
		logg.Error(ctx, "failed to create settings service", err)
		os.Exit(1)
	}

	ordersSvc, err := orders.NewService(
		ordersRepo,
		dbClient,
		orders.NewStripeGateway(stripeClient),
		catalogRepo,
		adjuster,
		orders.NewEmailVerifier(),
		settingsSvc,
		logg,
	)
	if err != nil {
		logg.Error(ctx, "failed to create orders service", err)
		os.Exit(1)
	}

	subscriptionsSvc, err := subscriptions.NewService(
		customersRepo,
		catalogRepo,
		subscriptions.NewStripeGateway(stripeClient),
		dbClient,
		adjuster,
		settingsSvc,
		redisClient,
		logg,
	)
	if err != nil {
		logg.Error(ctx, "failed to create subscriptions service", err)
		os.Exit(1)
	}

	shippingSvc, err := shipping.NewService(
		ordersRepo,
		ordersSvc,
		carrierClient,
		catalogRepo,
		shippingMetrics,
		logg,
	)
	if err != nil {
		logg.Error(ctx, "failed to create shipping service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:        cfg,
			Logger:        logg,
			DB:            dbClient,
			Redis:         redisClient,
			Registry:      registry,
			Orders:        ordersSvc,
			Subscriptions: subscriptionsSvc,
			Shipping:      shippingSvc,
			Settings:      settingsSvc,
		}),
	}

	startCtx := logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(startCtx, "starting api server")

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logg.Error(startCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case sig := <-stop:
		logg.Info(logg.WithField(startCtx, "signal", sig.String()), "shutting down")

		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()

		var shutdownErr error
		shutdownErr = multierr.Append(shutdownErr, server.Shutdown(shutdownCtx))
		shutdownErr = multierr.Append(shutdownErr, <-errCh)
		if shutdownErr != nil {
			logg.Error(startCtx, "shutdown finished with errors", shutdownErr)
			os.Exit(1)
		}
		logg.Info(startCtx, "shutdown complete")
	}
}
