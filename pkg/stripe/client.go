package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/beatstore-backend/pkg/config"
	"github.com/angelmondragon/beatstore-backend/pkg/enums"
	"github.com/angelmondragon/beatstore-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"

	defaultTimeout  = 10 * time.Second
	defaultCurrency = string(enums.CurrencyUSD)
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errSecretRequired   = errors.New("stripe webhook secret is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)

	// ErrSignatureMissing is returned when the Stripe-Signature header is absent.
	ErrSignatureMissing = errors.New("stripe signature missing")
)

// Option customizes client construction.
type Option func(*options)

type options struct {
	baseURL string
}

// WithBaseURL points the API backend at another host, e.g. stripe-mock or a test server.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

// Client wraps Stripe's API client plus the explicit per-process settings.
// Nothing is written to the stripe-go package globals.
type Client struct {
	api           *stripe.Client
	environment   string
	signingSecret string
	timeout       time.Duration
	currency      string
}

// NewClient validates the configuration and builds an API client bound to it.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger, opts ...Option) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}

	signingSecret := strings.TrimSpace(cfg.Secret)
	if signingSecret == "" {
		return nil, errSecretRequired
	}

	if err := validateAPIKey(env, apiKey); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var api *stripe.Client
	if o.baseURL != "" {
		backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL:               stripe.String(o.baseURL),
			MaxNetworkRetries: stripe.Int64(0),
		})
		api = stripe.NewClient(apiKey, stripe.WithBackends(&stripe.Backends{API: backend, Connect: backend, Uploads: backend}))
	} else {
		api = stripe.NewClient(apiKey)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	currency := defaultCurrency
	if strings.TrimSpace(cfg.Currency) != "" {
		parsed, err := enums.ParseCurrency(cfg.Currency)
		if err != nil {
			return nil, err
		}
		currency = parsed.String()
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"stripe_env": env, "timeout": timeout.String()}), "stripe.client.ready")
	}

	return &Client{
		api:           api,
		environment:   env,
		signingSecret: signingSecret,
		timeout:       timeout,
		currency:      currency,
	}, nil
}

// API returns the underlying Stripe API client.
func (c *Client) API() *stripe.Client {
	if c == nil {
		return nil
	}
	return c.api
}

// Environment reports the normalized Stripe environment in use.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// SigningSecret returns the webhook signing secret.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

// Timeout bounds every API call made through the client.
func (c *Client) Timeout() time.Duration {
	if c == nil || c.timeout <= 0 {
		return defaultTimeout
	}
	return c.timeout
}

// Currency is the lower-case ISO currency all intents are created in.
func (c *Client) Currency() string {
	if c == nil || c.currency == "" {
		return defaultCurrency
	}
	return c.currency
}

// ConstructEvent verifies the Stripe-Signature header against the raw body
// and decodes the event. Endpoint API versions may trail the library's, so
// version mismatches are tolerated; only payment intent fields are read.
func ConstructEvent(payload []byte, header, secret string) (stripe.Event, error) {
	if strings.TrimSpace(header) == "" {
		return stripe.Event{}, ErrSignatureMissing
	}
	return webhook.ConstructEventWithOptions(payload, header, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = testEnv
	}
	switch env {
	case testEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidStripeEnv
	}
}

func validateAPIKey(env, key string) error {
	prefixes := map[string][2]string{
		testEnv: {"sk_test", "rk_test"},
		liveEnv: {"sk_live", "rk_live"},
	}
	allowed, ok := prefixes[env]
	if !ok {
		return errInvalidStripeEnv
	}
	if strings.HasPrefix(key, allowed[0]) || strings.HasPrefix(key, allowed[1]) {
		return nil
	}
	return fmt.Errorf("stripe environment %q requires a %s secret key (%s/%s)", env, env, allowed[0], allowed[1])
}
