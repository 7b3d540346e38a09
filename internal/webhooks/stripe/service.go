package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/beatstore-backend/internal/payments"
	"github.com/angelmondragon/beatstore-backend/internal/purchases"
	pkgerrors "github.com/angelmondragon/beatstore-backend/pkg/errors"
	"github.com/angelmondragon/beatstore-backend/pkg/logger"
	"github.com/angelmondragon/beatstore-backend/pkg/metrics"
)

// Outcome describes how a delivered event was handled.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailed    Outcome = "failed"
)

var errUnresolvedPurchase = errors.New("payment intent cannot be tied to a purchase")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Ledger            Ledger
	Engine            *purchases.Engine
	Guard             *IdempotencyGuard
	TransactionRunner txRunner
	Currency          string
	Metrics           *metrics.PaymentMetrics
	Logger            *logger.Logger
}

// Service turns verified processor events into purchase transitions.
type Service struct {
	ledger   Ledger
	engine   *purchases.Engine
	guard    *IdempotencyGuard
	txRunner txRunner
	currency string
	metrics  *metrics.PaymentMetrics
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook ledger required")
	}
	if params.Engine == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "purchase engine required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "usd"
	}
	return &Service{
		ledger:   params.Ledger,
		engine:   params.Engine,
		guard:    params.Guard,
		txRunner: params.TransactionRunner,
		currency: currency,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}, nil
}

// Receive deduplicates and processes one verified event. An error means the
// event was not durably recorded and must not be acknowledged; every other
// path, including a failed business update, is acknowledged.
func (s *Service) Receive(ctx context.Context, event *stripe.Event, payload []byte) (Outcome, error) {
	if event == nil || event.ID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "stripe event id required")
	}
	eventType := string(event.Type)
	if s.logg != nil {
		ctx = s.logg.WithEventID(ctx, event.ID)
		ctx = s.logg.WithField(ctx, "event_type", eventType)
	}

	if s.guard != nil {
		seen, err := s.guard.Seen(ctx, event.ID)
		if err != nil {
			s.warn(ctx, "stripe.webhook.guard_unavailable", err)
		} else if seen {
			return s.duplicate(ctx, eventType), nil
		}
	}

	row, created, err := s.ledger.Record(ctx, event.ID, eventType, payload)
	if err != nil {
		s.metrics.IncWebhookEvent(eventType, "ledger_error")
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record webhook event")
	}
	if s.guard != nil {
		if err := s.guard.Mark(ctx, event.ID); err != nil {
			s.warn(ctx, "stripe.webhook.guard_unavailable", err)
		}
	}
	if !created {
		return s.duplicate(ctx, eventType), nil
	}

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.HandleEvent(ctx, s.engine.WithTx(tx), event); err != nil {
			return err
		}
		return s.ledger.WithTx(tx).MarkProcessed(ctx, row.ID)
	})
	if err != nil {
		if markErr := s.ledger.MarkFailed(ctx, row.ID, err.Error()); markErr != nil {
			s.warn(ctx, "stripe.webhook.mark_failed_error", markErr)
		}
		s.metrics.IncWebhookEvent(eventType, string(OutcomeFailed))
		if s.logg != nil {
			s.logg.Error(ctx, "stripe.webhook.processing_failed", err)
		}
		return OutcomeFailed, nil
	}

	s.metrics.IncWebhookEvent(eventType, string(OutcomeProcessed))
	if s.logg != nil {
		s.logg.Info(ctx, "stripe.webhook.processed")
	}
	return OutcomeProcessed, nil
}

// HandleEvent applies the business effect of an event through engine.
// Unknown event types are a no-op.
func (s *Service) HandleEvent(ctx context.Context, engine *purchases.Engine, event *stripe.Event) error {
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		pi, err := decodeIntent(event)
		if err != nil {
			return err
		}
		return s.handleSucceeded(ctx, engine, pi)
	case stripe.EventTypePaymentIntentPaymentFailed:
		pi, err := decodeIntent(event)
		if err != nil {
			return err
		}
		_, err = engine.ApplyFailed(ctx, pi.ID, purchases.SourceWebhook)
		return s.tolerate(ctx, err, pi.ID)
	case stripe.EventTypePaymentIntentProcessing:
		pi, err := decodeIntent(event)
		if err != nil {
			return err
		}
		_, err = engine.ApplyProcessing(ctx, pi.ID, purchases.SourceWebhook)
		return s.tolerate(ctx, err, pi.ID)
	case stripe.EventTypePaymentIntentCanceled:
		pi, err := decodeIntent(event)
		if err != nil {
			return err
		}
		purchase, err := engine.Repository().FindByIntentRef(ctx, pi.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load purchase by intent")
		}
		if purchase == nil {
			return s.tolerate(ctx, purchases.ErrPurchaseNotFound, pi.ID)
		}
		_, err = engine.ApplyCancelled(ctx, purchase.ID, purchases.SourceWebhook)
		return s.tolerate(ctx, err, pi.ID)
	default:
		return nil
	}
}

func (s *Service) handleSucceeded(ctx context.Context, engine *purchases.Engine, pi *stripe.PaymentIntent) error {
	if currency := strings.ToLower(string(pi.Currency)); currency != s.currency {
		return pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment currency "+currency)
	}

	transition := purchases.CompletedTransition{
		AmountMinor: pi.Amount,
		IntentRef:   pi.ID,
		Source:      purchases.SourceWebhook,
	}
	if meta, err := payments.ParseMetadata(pi.Metadata); err == nil {
		transition.UserID = meta.UserID
		transition.BeatID = meta.BeatID
		transition.DownloadType = meta.DownloadType
	} else {
		purchase, findErr := engine.Repository().FindByIntentRef(ctx, pi.ID)
		if findErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "load purchase by intent")
		}
		if purchase == nil {
			return errors.Join(errUnresolvedPurchase, err)
		}
		transition.UserID = purchase.UserID
		transition.BeatID = purchase.BeatID
		transition.DownloadType = purchase.DownloadType
	}

	_, err := engine.ApplyCompleted(ctx, transition)
	return s.tolerate(ctx, err, pi.ID)
}

// tolerate swallows outcomes that replay or reordering make expected: a
// transition rejected by the state table and a purchase that never existed.
func (s *Service) tolerate(ctx context.Context, err error, intentID string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, purchases.ErrPurchaseNotFound):
		if s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "payment_intent_id", intentID), "stripe.webhook.purchase_not_found")
		}
		return nil
	case pkgerrors.IsCode(err, pkgerrors.CodeStateConflict):
		if s.logg != nil {
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"payment_intent_id": intentID,
				"details":           pkgerrors.As(err).Details(),
			}), "stripe.webhook.state_conflict")
		}
		return nil
	default:
		return err
	}
}

func (s *Service) duplicate(ctx context.Context, eventType string) Outcome {
	s.metrics.IncWebhookEvent(eventType, string(OutcomeDuplicate))
	if s.logg != nil {
		s.logg.Info(ctx, "stripe.webhook.duplicate")
	}
	return OutcomeDuplicate
}

func (s *Service) warn(ctx context.Context, msg string, err error) {
	if s.logg != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), msg)
	}
}

func decodeIntent(event *stripe.Event) (*stripe.PaymentIntent, error) {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent")
	}
	if pi.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id missing")
	}
	return &pi, nil
}
