package payments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/angelmondragon/beatstore-backend/pkg/errors"
	"github.com/angelmondragon/beatstore-backend/pkg/logger"
	"github.com/angelmondragon/beatstore-backend/pkg/metrics"
	pkgstripe "github.com/angelmondragon/beatstore-backend/pkg/stripe"
)

const (
	opCreate   = "create_intent"
	opRetrieve = "retrieve_intent"
	opCancel   = "cancel_intent"
)

// StripeGateway implements Gateway over Stripe PaymentIntents.
type StripeGateway struct {
	api      *stripe.Client
	timeout  time.Duration
	currency string
	metrics  *metrics.PaymentMetrics
	logg     *logger.Logger
}

// NewStripeGateway binds the gateway to an explicitly configured Stripe client.
func NewStripeGateway(client *pkgstripe.Client, m *metrics.PaymentMetrics, logg *logger.Logger) (*StripeGateway, error) {
	if client == nil || client.API() == nil {
		return nil, errors.New("stripe client required")
	}
	return &StripeGateway{
		api:      client.API(),
		timeout:  client.Timeout(),
		currency: client.Currency(),
		metrics:  m,
		logg:     logg,
	}, nil
}

func (g *StripeGateway) CreateIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (*Intent, error) {
	if amountMinor <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero")
	}
	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		currency = g.currency
	}

	params := &stripe.PaymentIntentCreateParams{
		Amount:   stripe.Int64(amountMinor),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	var pi *stripe.PaymentIntent
	err := g.call(ctx, opCreate, func(callCtx context.Context) error {
		var err error
		pi, err = g.api.V1PaymentIntents.Create(callCtx, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return intentFromStripe(pi), nil
}

func (g *StripeGateway) RetrieveIntent(ctx context.Context, intentID string) (*Intent, error) {
	var pi *stripe.PaymentIntent
	err := g.call(ctx, opRetrieve, func(callCtx context.Context) error {
		var err error
		pi, err = g.api.V1PaymentIntents.Retrieve(callCtx, intentID, &stripe.PaymentIntentRetrieveParams{})
		return err
	})
	if err != nil {
		return nil, err
	}
	return intentFromStripe(pi), nil
}

func (g *StripeGateway) CancelIntent(ctx context.Context, intentID string) (*Intent, error) {
	var pi *stripe.PaymentIntent
	err := g.call(ctx, opCancel, func(callCtx context.Context) error {
		var err error
		pi, err = g.api.V1PaymentIntents.Cancel(callCtx, intentID, &stripe.PaymentIntentCancelParams{})
		return err
	})
	if err != nil {
		return nil, err
	}
	return intentFromStripe(pi), nil
}

// call runs fn under the gateway timeout, recording latency and mapping errors.
func (g *StripeGateway) call(ctx context.Context, op string, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	err := mapStripeError(fn(callCtx))

	outcome := "ok"
	switch {
	case err == nil:
	case IsRejected(err):
		outcome = "rejected"
	default:
		outcome = "error"
	}
	g.metrics.ObserveGateway(op, outcome, time.Since(start))

	if err != nil && g.logg != nil && outcome == "error" {
		g.logg.Warn(g.logg.WithFields(ctx, map[string]any{
			"operation": op,
			"error":     err.Error(),
		}), "stripe.gateway.failed")
	}
	return err
}

func intentFromStripe(pi *stripe.PaymentIntent) *Intent {
	if pi == nil {
		return nil
	}
	metadata := make(map[string]string, len(pi.Metadata))
	for k, v := range pi.Metadata {
		metadata[k] = v
	}
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       IntentStatus(pi.Status),
		AmountMinor:  pi.Amount,
		Currency:     strings.ToLower(string(pi.Currency)),
		Metadata:     metadata,
	}
}
