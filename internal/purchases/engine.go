package purchases

import (
	"context"
	"errors"
	"slices"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/beatstore-backend/internal/payments"
	"github.com/angelmondragon/beatstore-backend/pkg/db/models"
	"github.com/angelmondragon/beatstore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/beatstore-backend/pkg/errors"
	"github.com/angelmondragon/beatstore-backend/pkg/logger"
	"github.com/angelmondragon/beatstore-backend/pkg/metrics"
)

// Source names the path that triggered a transition.
type Source string

const (
	SourceConfirmation Source = "confirmation"
	SourceWebhook      Source = "webhook"
	SourceReconciler   Source = "reconciler"
	SourceCheckout     Source = "checkout"
)

// ErrPurchaseNotFound is returned when no purchase matches an intent reference or id.
var ErrPurchaseNotFound = errors.New("purchase not found")

var openStatuses = []enums.PaymentStatus{enums.PaymentStatusPending, enums.PaymentStatusProcessing}

// allowedFrom is the transition table: target status -> statuses it may be entered from.
var allowedFrom = map[enums.PaymentStatus][]enums.PaymentStatus{
	enums.PaymentStatusProcessing: {enums.PaymentStatusPending},
	enums.PaymentStatusCompleted:  openStatuses,
	enums.PaymentStatusFailed:     openStatuses,
	enums.PaymentStatusCancelled:  openStatuses,
	enums.PaymentStatusPending:    {enums.PaymentStatusFailed, enums.PaymentStatusCancelled},
}

// CompletedTransition carries a verified successful payment for a triple.
type CompletedTransition struct {
	UserID       uuid.UUID
	BeatID       uuid.UUID
	DownloadType enums.DownloadType
	AmountMinor  int64
	IntentRef    string
	Source       Source
}

// Outcome reports what a transition did to the purchase.
type Outcome struct {
	Purchase *models.Purchase
	Created  bool
	Changed  bool
}

// Engine owns every purchase status transition. All trigger paths (client
// confirmation, webhooks, the stale reconciler) go through it.
type Engine struct {
	repo    Repository
	metrics *metrics.PaymentMetrics
	logg    *logger.Logger
}

func NewEngine(repo Repository, m *metrics.PaymentMetrics, logg *logger.Logger) (*Engine, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "purchases repository required")
	}
	return &Engine{repo: repo, metrics: m, logg: logg}, nil
}

// WithTx binds the engine to a transaction.
func (e *Engine) WithTx(tx *gorm.DB) *Engine {
	if tx == nil {
		return e
	}
	return &Engine{repo: e.repo.WithTx(tx), metrics: e.metrics, logg: e.logg}
}

// Repository exposes the engine's underlying store, bound to the same transaction.
func (e *Engine) Repository() Repository {
	return e.repo
}

// ApplyCompleted converges the triple to a completed purchase. A missing row is
// born completed; an open row is moved to completed with the verified price and
// intent reference; an already completed row is returned unchanged.
func (e *Engine) ApplyCompleted(ctx context.Context, in CompletedTransition) (*Outcome, error) {
	if in.UserID == uuid.Nil || in.BeatID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user and beat are required")
	}
	if !in.DownloadType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid download type")
	}
	price := payments.FromMinorUnits(in.AmountMinor)
	if _, err := payments.ToMinorUnits(price); err != nil {
		return nil, err
	}

	var intentRef *string
	if in.IntentRef != "" {
		ref := in.IntentRef
		intentRef = &ref
	}

	candidate := &models.Purchase{
		ID:                    uuid.New(),
		UserID:                in.UserID,
		BeatID:                in.BeatID,
		DownloadType:          in.DownloadType,
		PricePaid:             price,
		PaymentMethod:         models.PaymentMethodStripe,
		PaymentStatus:         enums.PaymentStatusCompleted,
		StripePaymentIntentID: intentRef,
	}
	inserted, err := e.repo.InsertIfAbsent(ctx, candidate)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert purchase")
	}
	if inserted {
		e.record(ctx, candidate, "", enums.PaymentStatusCompleted, in.Source, "created")
		return &Outcome{Purchase: candidate, Created: true, Changed: true}, nil
	}

	existing, err := e.repo.FindByTriple(ctx, in.UserID, in.BeatID, in.DownloadType)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load purchase")
	}
	if existing == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "purchase vanished during completion")
	}

	return e.transition(ctx, existing, StatusUpdate{
		Status:    enums.PaymentStatusCompleted,
		PricePaid: &price,
		IntentRef: intentRef,
	}, in.Source)
}

// ApplyFailed moves the purchase paid by intentRef to failed.
func (e *Engine) ApplyFailed(ctx context.Context, intentRef string, source Source) (*Outcome, error) {
	return e.applyByIntent(ctx, intentRef, enums.PaymentStatusFailed, source)
}

// ApplyProcessing records that the processor is settling the payment.
func (e *Engine) ApplyProcessing(ctx context.Context, intentRef string, source Source) (*Outcome, error) {
	return e.applyByIntent(ctx, intentRef, enums.PaymentStatusProcessing, source)
}

// ApplyCancelled abandons an open purchase.
func (e *Engine) ApplyCancelled(ctx context.Context, purchaseID uuid.UUID, source Source) (*Outcome, error) {
	purchase, err := e.repo.FindByID(ctx, purchaseID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load purchase")
	}
	if purchase == nil {
		return nil, ErrPurchaseNotFound
	}
	return e.transition(ctx, purchase, StatusUpdate{Status: enums.PaymentStatusCancelled}, source)
}

// Reopen turns a failed or cancelled purchase back into a pending attempt
// bound to a fresh intent. Only an explicit new checkout may do this.
func (e *Engine) Reopen(ctx context.Context, purchase *models.Purchase, intentRef string, amountMinor int64) (*Outcome, error) {
	price := payments.FromMinorUnits(amountMinor)
	return e.transition(ctx, purchase, StatusUpdate{
		Status:    enums.PaymentStatusPending,
		PricePaid: &price,
		IntentRef: &intentRef,
	}, SourceCheckout)
}

func (e *Engine) applyByIntent(ctx context.Context, intentRef string, target enums.PaymentStatus, source Source) (*Outcome, error) {
	purchase, err := e.repo.FindByIntentRef(ctx, intentRef)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load purchase by intent")
	}
	if purchase == nil {
		return nil, ErrPurchaseNotFound
	}
	return e.transition(ctx, purchase, StatusUpdate{Status: target}, source)
}

// transition applies the table with a compare-and-set write. When the row
// moved underneath us it is re-read and evaluated once more.
func (e *Engine) transition(ctx context.Context, purchase *models.Purchase, update StatusUpdate, source Source) (*Outcome, error) {
	target := update.Status
	from := allowedFrom[target]

	for attempt := 0; attempt < 2; attempt++ {
		current := purchase.PaymentStatus
		if current == target {
			e.record(ctx, purchase, current, target, source, "noop")
			return &Outcome{Purchase: purchase}, nil
		}
		if !slices.Contains(from, current) {
			e.record(ctx, purchase, current, target, source, "conflict")
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "purchase status transition not allowed").
				WithDetails(map[string]any{
					"purchase_id": purchase.ID.String(),
					"from":        string(current),
					"to":          string(target),
				})
		}

		ok, err := e.repo.CompareAndSetStatus(ctx, purchase.ID, from, update)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update purchase status")
		}

		reloaded, err := e.repo.FindByID(ctx, purchase.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload purchase")
		}
		if reloaded == nil {
			return nil, ErrPurchaseNotFound
		}
		if ok {
			e.record(ctx, reloaded, current, target, source, "applied")
			return &Outcome{Purchase: reloaded, Changed: true}, nil
		}
		purchase = reloaded
	}

	e.record(ctx, purchase, purchase.PaymentStatus, target, source, "conflict")
	return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "purchase changed concurrently").
		WithDetails(map[string]any{"purchase_id": purchase.ID.String()})
}

func (e *Engine) record(ctx context.Context, purchase *models.Purchase, from, to enums.PaymentStatus, source Source, result string) {
	e.metrics.IncTransition(string(to), string(source), result)
	if e.logg == nil {
		return
	}
	ctx = e.logg.WithFields(ctx, map[string]any{
		"purchase_id":   purchase.ID.String(),
		"user_id":       purchase.UserID.String(),
		"beat_id":       purchase.BeatID.String(),
		"download_type": string(purchase.DownloadType),
		"from":          string(from),
		"to":            string(to),
		"source":        string(source),
		"result":        result,
	})
	switch {
	case result == "conflict" && to == enums.PaymentStatusCompleted:
		// A captured payment that cannot grant entitlement needs an operator.
		e.logg.Error(ctx, "purchase.transition.conflict", errors.New("completion rejected for terminal purchase"))
	case result == "conflict":
		e.logg.Warn(ctx, "purchase.transition.conflict")
	case result == "noop":
		e.logg.Debug(ctx, "purchase.transition.noop")
	default:
		e.logg.Info(ctx, "purchase.transition")
	}
}
