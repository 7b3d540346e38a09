package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/beatstore-backend/api/controllers"
	"github.com/angelmondragon/beatstore-backend/api/routes"
	"github.com/angelmondragon/beatstore-backend/internal/auth"
	"github.com/angelmondragon/beatstore-backend/internal/beats"
	"github.com/angelmondragon/beatstore-backend/internal/checkout"
	"github.com/angelmondragon/beatstore-backend/internal/downloads"
	"github.com/angelmondragon/beatstore-backend/internal/payments"
	"github.com/angelmondragon/beatstore-backend/internal/purchases"
	"github.com/angelmondragon/beatstore-backend/internal/users"
	stripewebhook "github.com/angelmondragon/beatstore-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/beatstore-backend/pkg/auth/session"
	"github.com/angelmondragon/beatstore-backend/pkg/config"
	"github.com/angelmondragon/beatstore-backend/pkg/db"
	"github.com/angelmondragon/beatstore-backend/pkg/instance"
	"github.com/angelmondragon/beatstore-backend/pkg/logger"
	"github.com/angelmondragon/beatstore-backend/pkg/metrics"
	"github.com/angelmondragon/beatstore-backend/pkg/migrate"
	"github.com/angelmondragon/beatstore-backend/pkg/redis"
	"github.com/angelmondragon/beatstore-backend/pkg/storage"
	pkgstripe "github.com/angelmondragon/beatstore-backend/pkg/stripe"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
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
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	assets, err := storage.New(ctx, cfg.Storage, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap asset storage", err)
		os.Exit(1)
	}

	stripeClient, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap stripe client", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	paymentMetrics := metrics.NewPaymentMetrics(registry)

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	mustBuild(ctx, logg, "session manager", err)

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       users.NewRepository(dbClient.DB()),
		SessionManager: sessionManager,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
		Logger:         logg,
	})
	mustBuild(ctx, logg, "auth service", err)

	registerService, err := auth.NewRegisterService(auth.RegisterServiceParams{
		DB:             dbClient,
		PasswordConfig: cfg.Password,
		Logger:         logg,
	})
	mustBuild(ctx, logg, "register service", err)

	beatsRepo := beats.NewRepository(dbClient.DB())
	beatService, err := beats.NewService(beats.ServiceParams{Repo: beatsRepo, Storage: assets, Logger: logg})
	mustBuild(ctx, logg, "beats service", err)

	purchasesRepo := purchases.NewRepository(dbClient.DB())
	engine, err := purchases.NewEngine(purchasesRepo, paymentMetrics, logg)
	mustBuild(ctx, logg, "purchase engine", err)

	purchaseService, err := purchases.NewService(purchasesRepo)
	mustBuild(ctx, logg, "purchases service", err)

	gateway, err := payments.NewStripeGateway(stripeClient, paymentMetrics, logg)
	mustBuild(ctx, logg, "payment gateway", err)

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Beats:     beatsRepo,
		Purchases: purchasesRepo,
		Engine:    engine,
		Gateway:   gateway,
		Currency:  stripeClient.Currency(),
		Logger:    logg,
	})
	mustBuild(ctx, logg, "checkout service", err)

	downloadService, err := downloads.NewService(downloads.ServiceParams{
		Purchases: purchasesRepo,
		Beats:     beatsRepo,
		Storage:   assets,
		Logger:    logg,
	})
	mustBuild(ctx, logg, "download service", err)

	guard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Stripe.WebhookGuardTTL)
	mustBuild(ctx, logg, "webhook guard", err)

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Ledger:            stripewebhook.NewLedger(dbClient.DB()),
		Engine:            engine,
		Guard:             guard,
		TransactionRunner: dbClient,
		Currency:          stripeClient.Currency(),
		Metrics:           paymentMetrics,
		Logger:            logg,
	})
	mustBuild(ctx, logg, "webhook service", err)

	handler := routes.NewRouter(cfg, logg, routes.Dependencies{
		Pingers: map[string]controllers.Pinger{
			"db":      dbClient,
			"redis":   redisClient,
			"storage": assets,
		},
		Redis:           redisClient,
		Sessions:        sessionManager,
		Auth:            authService,
		Register:        registerService,
		Beats:           beatService,
		Checkout:        checkoutService,
		Downloads:       downloadService,
		Purchases:       purchaseService,
		StripeWebhook:   webhookService,
		StripeSecrets:   stripeClient,
		HTTPMetrics:     metrics.NewHTTPMetrics(registry),
		MetricsGatherer: registry,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":        cfg.App.Env,
		"addr":       addr,
		"instance":   instance.GetID(),
		"stripe_env": stripeClient.Environment(),
		"storage":    assets.Name(),
	})
	logg.Info(logCtx, "starting api server")

	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.App.ReadTimeout,
		WriteTimeout: cfg.App.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(logCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(logCtx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(logCtx, "graceful shutdown failed", err)
		}
	}
}

func mustBuild(ctx context.Context, logg *logger.Logger, component string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, "failed to create "+component, err)
	os.Exit(1)
}
