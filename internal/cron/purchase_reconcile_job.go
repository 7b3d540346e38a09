package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/beatstore-backend/internal/payments"
	"github.com/angelmondragon/beatstore-backend/internal/purchases"
	"github.com/angelmondragon/beatstore-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/beatstore-backend/pkg/errors"
	"github.com/angelmondragon/beatstore-backend/pkg/logger"
)

const (
	defaultPendingTTL     = 24 * time.Hour
	defaultReconcileBatch = 100
)

type openPurchaseReader interface {
	ListOpenBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Purchase, error)
}

// PurchaseReconcileJobParams configure the stale purchase reconciler.
type PurchaseReconcileJobParams struct {
	Logger     *logger.Logger
	Purchases  openPurchaseReader
	Engine     *purchases.Engine
	Gateway    payments.Gateway
	PendingTTL time.Duration
	Batch      int
}

// NewPurchaseReconcileJob builds the job that settles purchases left open
// past the pending TTL by asking the processor what became of their intent.
func NewPurchaseReconcileJob(params PurchaseReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Purchases == nil {
		return nil, fmt.Errorf("purchase reader required")
	}
	if params.Engine == nil {
		return nil, fmt.Errorf("purchase engine required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	ttl := params.PendingTTL
	if ttl <= 0 {
		ttl = defaultPendingTTL
	}
	batch := params.Batch
	if batch <= 0 {
		batch = defaultReconcileBatch
	}
	return &purchaseReconcileJob{
		logg:      params.Logger,
		purchases: params.Purchases,
		engine:    params.Engine,
		gateway:   params.Gateway,
		ttl:       ttl,
		batch:     batch,
		now:       time.Now,
	}, nil
}

type purchaseReconcileJob struct {
	logg      *logger.Logger
	purchases openPurchaseReader
	engine    *purchases.Engine
	gateway   payments.Gateway
	ttl       time.Duration
	batch     int
	now       func() time.Time
}

func (j *purchaseReconcileJob) Name() string { return "purchase-reconcile" }

func (j *purchaseReconcileJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	stale, err := j.purchases.ListOpenBefore(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("list open purchases: %w", err)
	}

	var errs error
	settled := 0
	for i := range stale {
		changed, err := j.reconcile(ctx, &stale[i])
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("purchase %s: %w", stale[i].ID, err))
			continue
		}
		if changed {
			settled++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"scanned": len(stale),
		"settled": settled,
		"failed":  len(multierr.Errors(errs)),
	})
	j.logg.Info(logCtx, "purchase.reconcile.complete")
	return errs
}

func (j *purchaseReconcileJob) reconcile(ctx context.Context, purchase *models.Purchase) (bool, error) {
	ref := purchase.IntentRef()
	if ref == "" {
		return j.cancel(ctx, purchase)
	}

	intent, err := j.gateway.RetrieveIntent(ctx, ref)
	if payments.IsNotFound(err) {
		return j.cancel(ctx, purchase)
	}
	if err != nil {
		return false, err
	}

	switch {
	case intent.Status == payments.IntentStatusSucceeded:
		outcome, err := j.engine.ApplyCompleted(ctx, purchases.CompletedTransition{
			UserID:       purchase.UserID,
			BeatID:       purchase.BeatID,
			DownloadType: purchase.DownloadType,
			AmountMinor:  intent.AmountMinor,
			IntentRef:    intent.ID,
			Source:       purchases.SourceReconciler,
		})
		return changed(outcome), j.tolerate(ctx, err)
	case intent.Status == payments.IntentStatusCanceled:
		return j.cancel(ctx, purchase)
	case intent.Status.AwaitingBuyer():
		if _, err := j.gateway.CancelIntent(ctx, ref); err != nil && !payments.IsNotFound(err) {
			return false, err
		}
		return j.cancel(ctx, purchase)
	default:
		// processing: the processor will report the result.
		return false, nil
	}
}

func (j *purchaseReconcileJob) cancel(ctx context.Context, purchase *models.Purchase) (bool, error) {
	outcome, err := j.engine.ApplyCancelled(ctx, purchase.ID, purchases.SourceReconciler)
	return changed(outcome), j.tolerate(ctx, err)
}

// tolerate drops outcomes caused by a concurrent confirmation or webhook.
func (j *purchaseReconcileJob) tolerate(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, purchases.ErrPurchaseNotFound) || pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		j.logg.Warn(j.logg.WithField(ctx, "error", err.Error()), "purchase.reconcile.skipped")
		return nil
	}
	return err
}

func changed(outcome *purchases.Outcome) bool {
	return outcome != nil && outcome.Changed
}
