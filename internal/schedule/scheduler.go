// Package schedule runs the reminder evaluators on an in-process cron, as an
// alternative to an external trigger hitting the cron endpoints.
package schedule

import (
	"context"
	"fmt"
	"time"

	"adr-workers/internal/common/logger"
	"adr-workers/internal/reminders"

	"github.com/robfig/cron/v3"
)

type Job func(ctx context.Context) error

type Runner interface {
	Run(ctx context.Context, opts reminders.RunOptions) (*reminders.Summary, error)
}

type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration
	logger  logger.Logger
}

// New builds a scheduler evaluating specs in loc. A run still in progress
// when its next tick fires is skipped.
func New(loc *time.Location, timeout time.Duration, log logger.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
		timeout: timeout,
		logger:  log,
	}
}

func (s *Scheduler) Add(name, spec string, job Job) error {
	if _, err := s.cron.AddFunc(spec, s.wrap(name, job)); err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	s.logger.Info("scheduled job registered", map[string]interface{}{"job": name, "spec": spec})
	return nil
}

// AddRunner schedules a reminder evaluator run.
func (s *Scheduler) AddRunner(name, spec string, runner Runner) error {
	return s.Add(name, spec, func(ctx context.Context) error {
		sum, err := runner.Run(ctx, reminders.RunOptions{})
		if err != nil {
			return err
		}
		s.logger.Info(sum.Message, map[string]interface{}{"job": name, "sent": sum.Sent, "total": sum.Total})
		return nil
	})
}

func (s *Scheduler) wrap(name string, job Job) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		start := time.Now()
		if err := job(ctx); err != nil {
			s.logger.Error("scheduled job failed", map[string]interface{}{
				"job":      name,
				"duration": time.Since(start).String(),
				"error":    err,
			})
			return
		}
		s.logger.Debug("scheduled job finished", map[string]interface{}{
			"job":      name,
			"duration": time.Since(start).String(),
		})
	}
}

func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
