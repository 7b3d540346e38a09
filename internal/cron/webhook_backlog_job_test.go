package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/beatstore-backend/pkg/logger"
	"github.com/angelmondragon/beatstore-backend/pkg/metrics"
)

type fakeEventCounter struct {
	count  int64
	err    error
	cutoff time.Time
}

func (f *fakeEventCounter) CountUnprocessedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.count, f.err
}

func multierrErrors(err error) []error {
	return multierr.Errors(err)
}

func TestWebhookBacklogJobReportsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewPaymentMetrics(reg)
	counter := &fakeEventCounter{count: 3}
	job, err := NewWebhookBacklogJob(WebhookBacklogJobParams{
		Logger:  logger.Nop(),
		Ledger:  counter,
		Metrics: m,
		MinAge:  time.Hour,
	})
	if err != nil {
		t.Fatalf("job: %v", err)
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	job.(*webhookBacklogJob).now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !counter.cutoff.Equal(now.Add(-time.Hour)) {
		t.Fatalf("unexpected cutoff %v", counter.cutoff)
	}
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, mf := range mfs {
		if mf.GetName() != "beatstore_stripe_webhook_events_unprocessed" {
			continue
		}
		found = true
		if got := mf.GetMetric()[0].GetGauge().GetValue(); got != 3 {
			t.Fatalf("expected gauge 3, got %v", got)
		}
	}
	if !found {
		t.Fatal("unprocessed gauge not exported")
	}
}

func TestWebhookBacklogJobPropagatesErrors(t *testing.T) {
	job, err := NewWebhookBacklogJob(WebhookBacklogJobParams{
		Logger: logger.Nop(),
		Ledger: &fakeEventCounter{err: errors.New("db down")},
	})
	if err != nil {
		t.Fatalf("job: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
