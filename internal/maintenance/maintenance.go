// Package maintenance runs periodic housekeeping as Go tickers alongside the
// API: pruning the in-memory geocode cache and reporting scheduler health.
package maintenance

import (
	"context"
	"log/slog"
	"time"
)

// Config controls maintenance task intervals. Zero duration disables a task.
type Config struct {
	EvictInterval  time.Duration // Drop expired geocode cache entries
	ReportInterval time.Duration // Log cache stats and the last run summary
}

// DefaultConfig returns sensible production defaults.
func DefaultConfig() Config {
	return Config{
		EvictInterval:  5 * time.Minute,
		ReportInterval: time.Hour,
	}
}

// Evictor drops expired cache entries. *cache.Memory satisfies it.
type Evictor interface {
	Evict() int
	Stats() map[string]interface{}
}

// RunReporter exposes the most recent morning run. *notifications.Scheduler
// satisfies it.
type RunReporter interface {
	LastSummary() (summary string, ok bool)
}

// Tasks are the targets of the maintenance tickers. Nil targets disable
// their task.
type Tasks struct {
	Cache Evictor
	Runs  RunReporter
}

// Start launches all configured maintenance tickers. Blocks until ctx is
// cancelled. Intended to be called with `go`.
func Start(ctx context.Context, tasks Tasks, cfg Config, logger *slog.Logger) {
	logger.Info("Maintenance tickers started",
		"evict", cfg.EvictInterval,
		"report", cfg.ReportInterval)

	tickers := make([]*time.Ticker, 0, 2)
	defer func() {
		for _, t := range tickers {
			t.Stop()
		}
	}()

	if cfg.EvictInterval > 0 && tasks.Cache != nil {
		t := time.NewTicker(cfg.EvictInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { evict(tasks.Cache, logger) })
	}

	if cfg.ReportInterval > 0 {
		t := time.NewTicker(cfg.ReportInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { report(tasks, logger) })
	}

	<-ctx.Done()
	logger.Info("Maintenance tickers stopped")
}

func runLoop(ctx context.Context, ch <-chan time.Time, fn func()) {
	for {
		select {
		case <-ch:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// --------------------------------------------------------------------------
// Task implementations
// --------------------------------------------------------------------------

func evict(c Evictor, logger *slog.Logger) {
	if n := c.Evict(); n > 0 {
		logger.Info("Evicted expired geocode entries", "count", n)
	}
}

func report(tasks Tasks, logger *slog.Logger) {
	if tasks.Cache != nil {
		stats := tasks.Cache.Stats()
		logger.Info("Geocode cache stats",
			"active_keys", stats["active_keys"],
			"expired_keys", stats["expired_keys"])
	}
	if tasks.Runs != nil {
		if summary, ok := tasks.Runs.LastSummary(); ok {
			logger.Info("Last morning run", "summary", summary)
		} else {
			logger.Info("No morning run completed yet")
		}
	}
}
