package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/beatstore-backend/internal/cron"
	"github.com/angelmondragon/beatstore-backend/internal/payments"
	"github.com/angelmondragon/beatstore-backend/internal/purchases"
	stripewebhook "github.com/angelmondragon/beatstore-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/beatstore-backend/pkg/config"
	"github.com/angelmondragon/beatstore-backend/pkg/db"
	"github.com/angelmondragon/beatstore-backend/pkg/instance"
	"github.com/angelmondragon/beatstore-backend/pkg/logger"
	"github.com/angelmondragon/beatstore-backend/pkg/metrics"
	"github.com/angelmondragon/beatstore-backend/pkg/migrate"
	"github.com/angelmondragon/beatstore-backend/pkg/redis"
	pkgstripe "github.com/angelmondragon/beatstore-backend/pkg/stripe"
)

const serviceName = "cron-worker"

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceName
	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	mustBuild(ctx, logg, "database client", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()
	mustBuild(ctx, logg, "dev migrations", migrate.MaybeRunDev(ctx, cfg, logg, dbClient))

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	mustBuild(ctx, logg, "redis client", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	stripeClient, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
	mustBuild(ctx, logg, "stripe client", err)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	paymentMetrics := metrics.NewPaymentMetrics(registry)
	cronMetrics := metrics.NewCronJobMetrics(registry)

	purchasesRepo := purchases.NewRepository(dbClient.DB())
	engine, err := purchases.NewEngine(purchasesRepo, paymentMetrics, logg)
	mustBuild(ctx, logg, "purchase engine", err)
	gateway, err := payments.NewStripeGateway(stripeClient, paymentMetrics, logg)
	mustBuild(ctx, logg, "payment gateway", err)

	reconcileJob, err := cron.NewPurchaseReconcileJob(cron.PurchaseReconcileJobParams{
		Logger:     logg,
		Purchases:  purchasesRepo,
		Engine:     engine,
		Gateway:    gateway,
		PendingTTL: cfg.Purchases.PendingTTL,
		Batch:      cfg.Purchases.ReconcileBatch,
	})
	mustBuild(ctx, logg, "purchase reconcile job", err)
	backlogJob, err := cron.NewWebhookBacklogJob(cron.WebhookBacklogJobParams{
		Logger:  logg,
		Ledger:  stripewebhook.NewLedger(dbClient.DB()),
		Metrics: paymentMetrics,
		MinAge:  cfg.Cron.UnprocessedEventsAge,
	})
	mustBuild(ctx, logg, "webhook backlog job", err)
	jobs, err := cron.NewRegistry(reconcileJob, backlogJob)
	mustBuild(ctx, logg, "job registry", err)

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg.App.Env)), cfg.Cron.LockTTL)
	mustBuild(ctx, logg, "cron lock", err)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   jobs,
		Lock:       lock,
		Metrics:    cronMetrics,
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	mustBuild(ctx, logg, "cron service", err)

	ctx = logg.WithFields(ctx, map[string]any{
		"jobs":       jobs.Names(),
		"interval":   cfg.Cron.Interval.String(),
		"stripe_env": stripeClient.Environment(),
	})

	if *once {
		err := service.RunOnce(ctx)
		switch {
		case errors.Is(err, cron.ErrLocked):
			logg.Warn(ctx, "cron lease held elsewhere, nothing ran")
		case err != nil:
			logg.Error(ctx, "cron cycle finished with failures", err)
			os.Exit(1)
		}
		return
	}

	if cfg.Cron.MetricsAddr != "" {
		go serveMetrics(ctx, logg, cfg.Cron.MetricsAddr, registry)
	}

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

func serveMetrics(ctx context.Context, logg *logger.Logger, addr string, gatherer prometheus.Gatherer) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logg.Info(logg.WithField(ctx, "addr", addr), "serving cron metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "cron metrics listener failed", err)
	}
}

// lockName scopes the lease per environment so staging and prod workers
// sharing a Redis do not block each other.
func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return serviceName + ":" + env
}

func mustBuild(ctx context.Context, logg *logger.Logger, component string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, "failed to create "+component, err)
	os.Exit(1)
}
