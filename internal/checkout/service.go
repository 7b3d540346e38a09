package checkout

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/beatstore-backend/internal/payments"
	"github.com/angelmondragon/beatstore-backend/internal/purchases"
	"github.com/angelmondragon/beatstore-backend/pkg/db/models"
	"github.com/angelmondragon/beatstore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/beatstore-backend/pkg/errors"
	"github.com/angelmondragon/beatstore-backend/pkg/logger"
)

const defaultCurrency = "usd"

type beatFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Beat, error)
}

// Service runs the buyer side of a purchase: issuing payment intents and
// confirming them once the client reports success.
type Service interface {
	CreatePaymentIntent(ctx context.Context, userID, beatID uuid.UUID, req CreateIntentRequest) (*IntentResponse, error)
	ConfirmPayment(ctx context.Context, userID, beatID uuid.UUID, req ConfirmRequest) (*ConfirmResponse, error)
}

type ServiceParams struct {
	Beats     beatFinder
	Purchases purchases.Repository
	Engine    *purchases.Engine
	Gateway   payments.Gateway
	Currency  string
	Logger    *logger.Logger
}

type service struct {
	beats     beatFinder
	purchases purchases.Repository
	engine    *purchases.Engine
	gateway   payments.Gateway
	currency  string
	logg      *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Beats == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "beat finder required")
	}
	if params.Purchases == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "purchases repository required")
	}
	if params.Engine == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "purchase engine required")
	}
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment gateway required")
	}
	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	return &service{
		beats:     params.Beats,
		purchases: params.Purchases,
		engine:    params.Engine,
		gateway:   params.Gateway,
		currency:  currency,
		logg:      params.Logger,
	}, nil
}

// AlreadyPurchased builds the error returned when the triple is already owned.
func AlreadyPurchased(purchase *models.Purchase) error {
	return pkgerrors.New(pkgerrors.CodeAlreadyPurchased, "you have already purchased this beat in this format").
		WithDetails(map[string]any{
			"purchase_id":   purchase.ID.String(),
			"download_type": string(purchase.DownloadType),
		})
}

func (s *service) CreatePaymentIntent(ctx context.Context, userID, beatID uuid.UUID, req CreateIntentRequest) (*IntentResponse, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	variant, err := enums.ParseDownloadType(req.DownloadType)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid download type")
	}

	beat, err := s.beats.FindByID(ctx, beatID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load beat")
	}
	if beat == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "beat not found")
	}
	if !beat.Purchasable(variant) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "this format is not available for purchase").
			WithDetails(map[string]any{"download_type": string(variant)})
	}
	price, _ := beat.VariantPrice(variant)
	amount, err := payments.ToMinorUnits(price)
	if err != nil {
		return nil, err
	}

	ctx = s.logContext(ctx, userID, beatID, variant)

	existing, err := s.purchases.FindByTriple(ctx, userID, beatID, variant)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load purchase")
	}

	if existing != nil {
		switch {
		case existing.PaymentStatus == enums.PaymentStatusCompleted:
			return nil, AlreadyPurchased(existing)
		case existing.PaymentStatus.IsOpen():
			resp, done, err := s.resumeOpen(ctx, existing, amount)
			if err != nil || done {
				return resp, err
			}
			existing = nil
		}
	}

	if existing != nil && existing.IntentRef() != "" {
		// A failed intent stays payable at the processor; retire it before a
		// second one exists so the buyer cannot be charged twice.
		s.cancelQuietly(ctx, existing.IntentRef())
	}

	meta := payments.IntentMetadata{UserID: userID, BeatID: beatID, DownloadType: variant, BeatName: beat.Name}
	intent, err := s.gateway.CreateIntent(ctx, amount, s.currency, meta.Map())
	if err != nil {
		return nil, err
	}

	if existing != nil {
		// failed or cancelled: an explicit new attempt reopens the row.
		out, err := s.engine.Reopen(ctx, existing, intent.ID, amount)
		if err != nil {
			s.cancelQuietly(ctx, intent.ID)
			return nil, err
		}
		return s.intentResponse(out.Purchase, intent, false), nil
	}

	purchase := &models.Purchase{
		ID:                    uuid.New(),
		UserID:                userID,
		BeatID:                beatID,
		DownloadType:          variant,
		PricePaid:             price,
		PaymentMethod:         models.PaymentMethodStripe,
		PaymentStatus:         enums.PaymentStatusPending,
		StripePaymentIntentID: &intent.ID,
	}
	inserted, err := s.purchases.InsertIfAbsent(ctx, purchase)
	if err != nil {
		s.cancelQuietly(ctx, intent.ID)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create purchase")
	}
	if !inserted {
		s.cancelQuietly(ctx, intent.ID)
		winner, err := s.purchases.FindByTriple(ctx, userID, beatID, variant)
		if err == nil && winner != nil && winner.PaymentStatus == enums.PaymentStatusCompleted {
			return nil, AlreadyPurchased(winner)
		}
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "a checkout for this beat is already in progress")
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "payment_intent_id", intent.ID), "checkout.intent.created")
	}
	return s.intentResponse(purchase, intent, false), nil
}

// resumeOpen decides what to do with an open purchase. It either answers the
// request (done) or clears the stale row so a fresh intent can be issued.
func (s *service) resumeOpen(ctx context.Context, purchase *models.Purchase, amount int64) (*IntentResponse, bool, error) {
	ref := purchase.IntentRef()
	if ref != "" {
		intent, err := s.gateway.RetrieveIntent(ctx, ref)
		switch {
		case err != nil && payments.IsNotFound(err):
			// Dead reference; fall through to self-healing.
		case err != nil:
			// Unreadable reference. Retire it best effort and start over.
			if s.logg != nil {
				s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
					"payment_intent_id": ref,
					"error":             err.Error(),
				}), "checkout.intent.retrieve_failed")
			}
			s.cancelQuietly(ctx, ref)
		case intent.Status == payments.IntentStatusSucceeded:
			out, err := s.engine.ApplyCompleted(ctx, purchases.CompletedTransition{
				UserID:       purchase.UserID,
				BeatID:       purchase.BeatID,
				DownloadType: purchase.DownloadType,
				AmountMinor:  intent.AmountMinor,
				IntentRef:    intent.ID,
				Source:       purchases.SourceCheckout,
			})
			if err != nil {
				return nil, true, err
			}
			return nil, true, AlreadyPurchased(out.Purchase)
		case intent.Status == payments.IntentStatusProcessing:
			return s.intentResponse(purchase, intent, true), true, nil
		case intent.Status.Reusable() && intent.AmountMinor == amount:
			return s.intentResponse(purchase, intent, true), true, nil
		case intent.Status.Reusable():
			// The price changed since the intent was issued.
			s.cancelQuietly(ctx, intent.ID)
		}
	}

	if _, err := s.purchases.DeleteIfStatus(ctx, purchase.ID, []enums.PaymentStatus{enums.PaymentStatusPending, enums.PaymentStatusProcessing}); err != nil {
		return nil, true, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear stale purchase")
	}
	if s.logg != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"purchase_id":       purchase.ID.String(),
			"payment_intent_id": ref,
		}), "checkout.stale_purchase.recreated")
	}
	return nil, false, nil
}

func (s *service) ConfirmPayment(ctx context.Context, userID, beatID uuid.UUID, req ConfirmRequest) (*ConfirmResponse, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	intentID := strings.TrimSpace(req.PaymentIntentID)
	if intentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment_intent_id is required")
	}

	intent, err := s.gateway.RetrieveIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}

	meta, err := payments.ParseMetadata(intent.Metadata)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "payment intent does not belong to a beat purchase")
	}
	if meta.UserID != userID || meta.BeatID != beatID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent does not match this purchase")
	}
	if strings.TrimSpace(req.DownloadType) != "" {
		requested, err := enums.ParseDownloadType(req.DownloadType)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid download type")
		}
		if requested != meta.DownloadType {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "download type does not match the payment intent")
		}
	}
	if !strings.EqualFold(intent.Currency, s.currency) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment currency")
	}
	if intent.Status != payments.IntentStatusSucceeded {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment has not succeeded").
			WithDetails(map[string]any{"intent_status": string(intent.Status)})
	}

	beat, err := s.beats.FindByID(ctx, beatID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load beat")
	}
	if beat == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "beat not found")
	}

	out, err := s.engine.ApplyCompleted(s.logContext(ctx, userID, beatID, meta.DownloadType), purchases.CompletedTransition{
		UserID:       userID,
		BeatID:       beatID,
		DownloadType: meta.DownloadType,
		AmountMinor:  intent.AmountMinor,
		IntentRef:    intent.ID,
		Source:       purchases.SourceConfirmation,
	})
	if err != nil {
		return nil, err
	}

	return &ConfirmResponse{
		Message:      "Payment confirmed",
		PurchaseID:   out.Purchase.ID,
		DownloadType: out.Purchase.DownloadType,
	}, nil
}

func (s *service) intentResponse(purchase *models.Purchase, intent *payments.Intent, reused bool) *IntentResponse {
	return &IntentResponse{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
		PurchaseID:      purchase.ID,
		DownloadType:    purchase.DownloadType,
		Amount:          payments.FromMinorUnits(intent.AmountMinor).StringFixed(2),
		AmountMinor:     intent.AmountMinor,
		Currency:        intent.Currency,
		Reused:          reused,
	}
}

func (s *service) cancelQuietly(ctx context.Context, intentID string) {
	if _, err := s.gateway.CancelIntent(ctx, intentID); err != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"payment_intent_id": intentID,
			"error":             err.Error(),
		}), "checkout.intent.cancel_failed")
	}
}

func (s *service) logContext(ctx context.Context, userID, beatID uuid.UUID, variant enums.DownloadType) context.Context {
	if s.logg == nil {
		return ctx
	}
	ctx = s.logg.WithUserID(ctx, userID.String())
	ctx = s.logg.WithBeatID(ctx, beatID.String())
	return s.logg.WithField(ctx, "download_type", string(variant))
}
