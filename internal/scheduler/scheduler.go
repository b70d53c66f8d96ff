// Package scheduler runs the export job on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "gcalexport/internal/log"
)

// Runner is the unit of work triggered on every tick.
type Runner interface {
	Run(ctx context.Context) (skipped bool, err error)
}

type Scheduler struct {
	cron *cron.Cron
	spec string
	job  Runner
}

// New prepares a scheduler firing job on the standard five-field cron spec.
// Overlapping ticks are dropped while a run is still in progress.
func New(spec string, loc *time.Location, job Runner) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("parse refresh schedule %q: %w", spec, err)
	}

	logger := cronLogger{}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	return &Scheduler{cron: c, spec: spec, job: job}, nil
}

// Start runs the job once, then on every tick until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.runOnce(ctx) }); err != nil {
		return fmt.Errorf("add refresh job: %w", err)
	}

	s.runOnce(ctx)

	s.cron.Start()
	appLog.Info("scheduler started", "refresh", s.spec)

	<-ctx.Done()
	s.Stop()
	return nil
}

// Stop waits for a running job to finish.
func (s *Scheduler) Stop() {
	done := s.cron.Stop()
	<-done.Done()
	appLog.Info("scheduler stopped")
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.job.Run(ctx); err != nil {
		appLog.Error("scheduled refresh failed", err)
	}
}

// cronLogger routes robfig/cron's logging into the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
