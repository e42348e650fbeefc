package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Runner executes one morning run.
type Runner interface {
	Run(ctx context.Context) (RunResult, error)
}

// Scheduler fires a Runner on a cron spec evaluated in UTC. A trigger that
// arrives while the previous run is still executing is skipped.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	spec   string
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	last    RunResult
	lastErr error
	started bool
}

// NewScheduler validates spec and registers the run job. It does not start
// the clock; call Start.
func NewScheduler(spec string, runner Runner, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if spec == "" {
		spec = DefaultSchedule
	}

	cl := cronLogger{logger: logger}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{cron: c, runner: runner, spec: spec, logger: logger, ctx: ctx, cancel: cancel}

	if _, err := c.AddFunc(spec, s.fire); err != nil {
		cancel()
		return nil, fmt.Errorf("schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins firing on the schedule. Blocking work happens in cron's
// goroutines.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
	s.logger.Info("Morning scheduler started", "schedule", s.spec, "next", s.Next())
}

// Stop stops the clock and waits for an in-flight run to finish. If ctx
// expires first the in-flight run's context is cancelled.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.cancel()
		s.logger.Info("Morning scheduler stopped")
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done.Done()
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// RunNow executes one run synchronously, outside the schedule.
func (s *Scheduler) RunNow(ctx context.Context) (RunResult, error) {
	res, err := s.runner.Run(ctx)
	s.record(res, err)
	return res, err
}

// Next returns the next scheduled firing time, or zero when not started.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Last returns the most recent run result and its error.
func (s *Scheduler) Last() (RunResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.lastErr
}

// LastSummary returns the one-line summary of the most recent run.
func (s *Scheduler) LastSummary() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last.RunID == "" {
		return "", false
	}
	if s.lastErr != nil {
		return s.last.Summary() + " error=" + s.lastErr.Error(), true
	}
	return s.last.Summary(), true
}

func (s *Scheduler) fire() {
	res, err := s.runner.Run(s.ctx)
	s.record(res, err)
}

func (s *Scheduler) record(res RunResult, err error) {
	s.mu.Lock()
	s.last, s.lastErr = res, err
	s.mu.Unlock()
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	if msg == "skip" {
		l.logger.Warn("Morning run still in progress, trigger skipped")
		return
	}
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
