package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/beatstore-backend/pkg/logger"
	"github.com/angelmondragon/beatstore-backend/pkg/metrics"
)

const (
	defaultInterval   = 15 * time.Minute
	defaultJobTimeout = 5 * time.Minute
)

// ErrLocked is returned by RunOnce when another worker holds the lease.
var ErrLocked = errors.New("cron lease held by another worker")

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
	// JobTimeout bounds each job. Zero means five minutes.
	JobTimeout time.Duration
}

// Service runs every registered job once per interval while holding the lease.
type Service struct {
	logg       *logger.Logger
	registry   *Registry
	lock       Lock
	metrics    *metrics.CronJobMetrics
	interval   time.Duration
	jobTimeout time.Duration
	now        func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.Lock == nil:
		return nil, errors.New("lock required")
	case params.Registry == nil || params.Registry.Len() == 0:
		return nil, errors.New("at least one cron job required")
	}
	s := &Service{
		logg:       params.Logger,
		registry:   params.Registry,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   params.Interval,
		jobTimeout: params.JobTimeout,
		now:        time.Now,
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	if s.jobTimeout <= 0 {
		s.jobTimeout = defaultJobTimeout
	}
	if leased, ok := params.Lock.(interface{ TTL() time.Duration }); ok {
		if total := s.jobTimeout * time.Duration(s.registry.Len()); total > leased.TTL() {
			return nil, fmt.Errorf("job timeout %s x %d jobs exceeds lock ttl %s", s.jobTimeout, s.registry.Len(), leased.TTL())
		}
	}
	return s, nil
}

// Run ticks until ctx is cancelled. The first cycle starts immediately.
// Cycle errors are logged, never returned.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.RunOnce(ctx); err != nil && !errors.Is(err, ErrLocked) {
			s.logg.Error(ctx, "cron.cycle.failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron.service.stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce runs a single cycle. Every job runs even when an earlier one
// fails; the returned error combines their failures.
func (s *Service) RunOnce(ctx context.Context) error {
	acquired, err := s.lock.Acquire(ctx)
	if err != nil {
		s.metrics.ObserveCycle(metrics.CycleLockError)
		return fmt.Errorf("acquire cron lease: %w", err)
	}
	if !acquired {
		s.metrics.ObserveCycle(metrics.CycleLocked)
		s.logg.Info(ctx, "cron.cycle.skipped_locked")
		return ErrLocked
	}
	s.metrics.ObserveCycle(metrics.CycleRan)
	defer func() {
		// ctx may already be cancelled on shutdown; the lease still has to go.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.lock.Release(releaseCtx); err != nil {
			s.logg.Error(ctx, "cron.lock.release_failed", err)
		}
	}()

	started := s.now()
	var errs error
	for _, job := range s.registry.Jobs() {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}
		if err := s.runJob(ctx, job); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", job.Name(), err))
		}
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"jobs":        s.registry.Len(),
		"failed":      len(multierr.Errors(errs)),
		"duration_ms": s.now().Sub(started).Milliseconds(),
	}), "cron.cycle.complete")
	return errs
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	jobCtx, cancel := context.WithTimeout(s.logg.WithField(ctx, "job", job.Name()), s.jobTimeout)
	defer cancel()

	started := s.now()
	err := job.Run(jobCtx)
	took := s.now().Sub(started)
	s.metrics.ObserveRun(job.Name(), took, err)

	logCtx := s.logg.WithFields(jobCtx, map[string]any{
		"duration_ms": took.Milliseconds(),
		"result":      metrics.RunResult(err),
	})
	if err != nil {
		s.logg.Error(logCtx, "cron.job.failed", err)
		return err
	}
	s.logg.Info(logCtx, "cron.job.complete")
	return nil
}
