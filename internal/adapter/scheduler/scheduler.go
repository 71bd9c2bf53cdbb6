// Package scheduler runs the harness's periodic maintenance jobs, currently
// just history retention.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// JobFunc is a scheduled maintenance task.
type JobFunc func(ctx context.Context) error

// cronLogger adapts the cron logger interface to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
}

// Scheduler wraps a cron runner whose jobs share one parent context.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a scheduler. Jobs never overlap themselves: a still-running
// invocation skips the next tick.
func New(parentCtx context.Context, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLogger{logger: logger.With("component", "cron")}),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add registers a job under a standard 5-field cron spec (or @every form).
func (s *Scheduler) Add(name, spec string, job JobFunc) error {
	_, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		if err := job(s.ctx); err != nil {
			s.logger.Error("scheduled job failed",
				slog.String("job", name), slog.Any("error", err))
			return
		}
		s.logger.Debug("scheduled job done",
			slog.String("job", name), slog.Duration("dur", time.Since(start)))
	})
	if err != nil {
		return err
	}
	s.logger.Info("scheduled job added", slog.String("job", name), slog.String("spec", spec))
	return nil
}

// Start begins scheduling. Safe to call once.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels the job context and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}
