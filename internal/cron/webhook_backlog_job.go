package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/beatstore-backend/pkg/logger"
	"github.com/angelmondragon/beatstore-backend/pkg/metrics"
)

const defaultUnprocessedAge = time.Hour

type unprocessedEventCounter interface {
	CountUnprocessedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// WebhookBacklogJobParams configure the unprocessed webhook report.
type WebhookBacklogJobParams struct {
	Logger  *logger.Logger
	Ledger  unprocessedEventCounter
	Metrics *metrics.PaymentMetrics
	MinAge  time.Duration
}

// NewWebhookBacklogJob reports ledger rows that were received but never
// processed. Those events need an operator; the processor will not resend them.
func NewWebhookBacklogJob(params WebhookBacklogJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("webhook ledger required")
	}
	age := params.MinAge
	if age <= 0 {
		age = defaultUnprocessedAge
	}
	return &webhookBacklogJob{
		logg:    params.Logger,
		ledger:  params.Ledger,
		metrics: params.Metrics,
		age:     age,
		now:     time.Now,
	}, nil
}

type webhookBacklogJob struct {
	logg    *logger.Logger
	ledger  unprocessedEventCounter
	metrics *metrics.PaymentMetrics
	age     time.Duration
	now     func() time.Time
}

func (j *webhookBacklogJob) Name() string { return "webhook-backlog" }

func (j *webhookBacklogJob) Run(ctx context.Context) error {
	count, err := j.ledger.CountUnprocessedBefore(ctx, j.now().UTC().Add(-j.age))
	if err != nil {
		return fmt.Errorf("count unprocessed webhook events: %w", err)
	}
	j.metrics.SetUnprocessedWebhooks(count)

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"count":   count,
		"min_age": j.age.String(),
	})
	if count > 0 {
		j.logg.Warn(logCtx, "stripe.webhook.unprocessed_backlog")
		return nil
	}
	j.logg.Debug(logCtx, "stripe.webhook.backlog_clear")
	return nil
}
