// Package schedule runs the batch on a cron schedule. Each tick starts the
// date filter a fixed lookback before now; incremental dedup keeps the
// overlapping windows cheap.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job runs one batch from start.
type Job func(ctx context.Context, start time.Time) error

// Scheduler triggers Job on a cron spec.
type Scheduler struct {
	spec     string
	sched    cron.Schedule
	lookback time.Duration
	job      Job
	logger   *slog.Logger
	now      func() time.Time
}

// New validates spec (standard five fields or a descriptor such as
// "@daily") and returns a Scheduler.
func New(spec string, lookback time.Duration, job Job, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("schedule: cron %q: %w", spec, err)
	}
	if lookback <= 0 {
		return nil, fmt.Errorf("schedule: lookback must be positive, got %s", lookback)
	}
	return &Scheduler{spec: spec, sched: sched, lookback: lookback, job: job, logger: logger, now: time.Now}, nil
}

// Next returns the first activation after t.
func (s *Scheduler) Next(t time.Time) time.Time { return s.sched.Next(t) }

// Trigger runs the job once, now.
func (s *Scheduler) Trigger(ctx context.Context) error {
	start := s.now().Add(-s.lookback)
	s.logger.Info("schedule: batch starting", "start", start.Format(time.DateTime))
	if err := s.job(ctx, start); err != nil {
		s.logger.Error("schedule: batch failed", "error", err)
		return err
	}
	s.logger.Info("schedule: batch finished")
	return nil
}

// Run blocks until ctx is done, firing Trigger on every activation. A tick
// that arrives while a batch is still running is skipped.
func (s *Scheduler) Run(ctx context.Context) error {
	logger := cronLogger{s.logger}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	c.Schedule(s.sched, cron.FuncJob(func() { _ = s.Trigger(ctx) }))
	c.Start()
	s.logger.Info("schedule: started", "cron", s.spec, "next", s.Next(s.now()).Format(time.DateTime))

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("schedule: stopped")
	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, kv ...any) {
	c.l.Debug("schedule: cron: "+msg, kv...)
}

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.l.Error("schedule: cron: "+msg, append(kv, "error", err)...)
}
