package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/beatstore-backend/api/responses"
	stripewebhook "github.com/angelmondragon/beatstore-backend/internal/webhooks/stripe"
	pkgerrors "github.com/angelmondragon/beatstore-backend/pkg/errors"
	"github.com/angelmondragon/beatstore-backend/pkg/logger"
	pkgstripe "github.com/angelmondragon/beatstore-backend/pkg/stripe"
)

// MaxPayloadBytes caps webhook bodies; processor payloads are well under it.
const MaxPayloadBytes = 1 << 20

type StripeWebhookService interface {
	Receive(ctx context.Context, event *stripe.Event, payload []byte) (stripewebhook.Outcome, error)
}

type stripeClient interface {
	SigningSecret() string
}

// StripeWebhook verifies the signature over the raw body and hands the event
// to the ledger-backed service. Only a failure to record the event is
// surfaced as an error, so the processor retries it.
func StripeWebhook(svc StripeWebhookService, client stripeClient, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if client == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe client unavailable"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxPayloadBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "payload too large"))
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		event, err := pkgstripe.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), client.SigningSecret())
		if err != nil {
			if logg != nil {
				logg.Warn(logg.WithField(ctx, "error", err.Error()), "stripe.webhook.signature_rejected")
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid stripe signature"))
			return
		}

		outcome, err := svc.Receive(ctx, &event, payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{"received": true, "event_id": event.ID, "outcome": outcome})
	}
}
