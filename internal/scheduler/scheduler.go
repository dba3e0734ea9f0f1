// Package scheduler runs ingestion on a cron schedule for daemon mode.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Job is one scheduled ingestion run.
type Job func(ctx context.Context) error

// Scheduler triggers a job on a cron schedule until its context is cancelled.
type Scheduler struct {
	spec   string
	job    Job
	logger *slog.Logger
	cron   *cron.Cron
}

// New creates a scheduler for the given cron spec. The spec is validated
// immediately so a bad schedule fails at startup, not at first trigger.
func New(spec string, job Job, logger *slog.Logger) (*Scheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return &Scheduler{
		spec:   spec,
		job:    job,
		logger: logger,
		// Overlapping runs are skipped rather than queued.
		cron: cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
	}, nil
}

// Start runs the schedule and blocks until ctx is cancelled. In-flight runs
// are given until they finish before Start returns.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		if err := s.job(ctx); err != nil {
			s.logger.Error("scheduled run failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.logger.Info("scheduler started", "schedule", s.spec)
	s.cron.Start()

	<-ctx.Done()
	s.logger.Info("scheduler stopping")
	<-s.cron.Stop().Done()
	return ctx.Err()
}
