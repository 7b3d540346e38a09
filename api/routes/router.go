package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/beatstore-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/beatstore-backend/api/controllers/webhooks"
	"github.com/angelmondragon/beatstore-backend/api/middleware"
	"github.com/angelmondragon/beatstore-backend/internal/auth"
	"github.com/angelmondragon/beatstore-backend/internal/beats"
	"github.com/angelmondragon/beatstore-backend/internal/checkout"
	"github.com/angelmondragon/beatstore-backend/internal/purchases"
	"github.com/angelmondragon/beatstore-backend/pkg/auth/session"
	"github.com/angelmondragon/beatstore-backend/pkg/config"
	"github.com/angelmondragon/beatstore-backend/pkg/enums"
	"github.com/angelmondragon/beatstore-backend/pkg/logger"
	"github.com/angelmondragon/beatstore-backend/pkg/metrics"
	"github.com/angelmondragon/beatstore-backend/pkg/redis"
)

// Dependencies bundles everything the HTTP surface calls into.
type Dependencies struct {
	Pingers         map[string]controllers.Pinger
	Redis           *redis.Client
	Sessions        session.AccessSessionChecker
	Auth            auth.Service
	Register        auth.RegisterService
	Beats           beats.Service
	Checkout        checkout.Service
	Downloads       controllers.AssetOpener
	Purchases       purchases.Service
	StripeWebhook   webhookcontrollers.StripeWebhookService
	StripeSecrets   stripeSecrets
	HTTPMetrics     *metrics.HTTPMetrics
	MetricsGatherer prometheus.Gatherer
}

type stripeSecrets interface {
	SigningSecret() string
}

type fixedWindowLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(deps.HTTPMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	// a nil *redis.Client must not reach the middleware as a non-nil interface
	var (
		limiter   fixedWindowLimiter
		idemStore redis.IdempotencyStore
	)
	if deps.Redis != nil {
		limiter, idemStore = deps.Redis, deps.Redis
	}

	loginPolicy := middleware.ThrottlePolicy{
		Name:        "login",
		Window:      cfg.AuthRateLimit.LoginWindow,
		PerIP:       cfg.AuthRateLimit.LoginIPLimit,
		PerIdentity: cfg.AuthRateLimit.LoginEmailLimit,
	}
	registerPolicy := middleware.ThrottlePolicy{
		Name:        "register",
		Window:      cfg.AuthRateLimit.RegisterWindow,
		PerIP:       cfg.AuthRateLimit.RegisterIPLimit,
		PerIdentity: cfg.AuthRateLimit.RegisterEmailLimit,
	}
	requireAuth := middleware.Auth(cfg.JWT, deps.Sessions, logg)
	apiLimit := middleware.RateLimit("api", limiter, cfg.RateLimit.Limit, cfg.RateLimit.Window, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.Pingers, logg))
	})

	if deps.MetricsGatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.MetricsGatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(deps.StripeWebhook, deps.StripeSecrets, logg))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(loginPolicy, limiter, logg)).Post("/login", controllers.AuthLogin(deps.Auth, logg))
		r.With(middleware.AuthRateLimit(registerPolicy, limiter, logg)).Post("/register", controllers.AuthRegister(deps.Register, logg))
		r.Post("/refresh", controllers.AuthRefresh(deps.Auth, logg))
		r.With(requireAuth).Post("/logout", controllers.AuthLogout(deps.Auth, logg))
	})

	if cfg.FeatureFlags.AdminRegister && !cfg.App.IsProd() {
		r.With(middleware.AuthRateLimit(registerPolicy, limiter, logg)).
			Post("/api/admin/v1/auth/register", controllers.AdminRegister(deps.Register, logg))
	}

	r.Route("/api/v1/beats", func(r chi.Router) {
		r.Use(apiLimit)
		r.Get("/", controllers.BeatsList(deps.Beats, logg))
		r.Get("/{beatId}", controllers.BeatDetail(deps.Beats, logg))
		r.Get("/{beatId}/preview", controllers.BeatPreview(deps.Beats, logg))

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.With(middleware.Idempotency(idemStore, middleware.PaymentIntentIdempotencyTTL, logg)).
				Post("/{beatId}/payment-intent", controllers.CreatePaymentIntent(deps.Checkout, logg))
			r.Post("/{beatId}/confirm-payment", controllers.ConfirmPayment(deps.Checkout, logg))
			r.Get("/{beatId}/download", controllers.DownloadBeat(deps.Downloads, logg))
		})
	})

	r.Route("/api/v1/purchases", func(r chi.Router) {
		r.Use(requireAuth)
		r.Use(apiLimit)
		r.Get("/", controllers.PurchasesLibrary(deps.Purchases, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(requireAuth)
		r.Use(middleware.RequireRole(enums.UserRoleAdmin, logg))
		r.Use(apiLimit)
		r.With(middleware.Idempotency(idemStore, middleware.AdminCreateIdempotencyTTL, logg)).
			Post("/beats", controllers.AdminCreateBeat(deps.Beats, logg))
	})

	return r
}
