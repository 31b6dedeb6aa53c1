package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/case-data-etl/internal/artifact"
	sharedretry "github.com/couchcryptid/storm-data-shared/retry"
	"github.com/jonboulle/clockwork"
)

// Runner performs one complete run.
type Runner interface {
	RunOnce(ctx context.Context) (*artifact.Manifest, error)
}

// Scheduler repeats runs on a fixed interval. A failed run is retried with
// exponential backoff, capped at the interval.
type Scheduler struct {
	runner     Runner
	interval   time.Duration
	clock      clockwork.Clock
	logger     *slog.Logger
	minBackoff time.Duration
	maxBackoff time.Duration
}

// NewScheduler creates a Scheduler. A nil clock uses real time.
func NewScheduler(r Runner, interval time.Duration, clock clockwork.Clock, logger *slog.Logger) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		runner:     r,
		interval:   interval,
		clock:      clock,
		logger:     logger,
		minBackoff: min(time.Second, interval),
		maxBackoff: min(5*time.Minute, interval),
	}
}

// Run executes a run immediately and then once per interval until the
// context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval)
	backoff := s.minBackoff

	for {
		wait := s.interval
		if _, err := s.runner.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				s.logger.Info("scheduler stopping", "reason", ctx.Err())
				return nil
			}
			s.logger.Error("run failed", "error", err, "retry_in", backoff)
			wait = backoff
			backoff = sharedretry.NextBackoff(backoff, s.maxBackoff)
		} else {
			backoff = s.minBackoff
		}

		if !sleepWithContext(ctx, s.clock, wait) {
			s.logger.Info("scheduler stopping", "reason", ctx.Err())
			return nil
		}
	}
}

func sleepWithContext(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
