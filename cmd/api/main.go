// Command api is the Morningcast service: the user directory API, the
// morning notification scheduler, and maintenance tickers in one process.
//
// Usage:
//
//	morningcast-api
//	API_PORT=8080 NOTIFY_SCHEDULE="0,30 * * * *" morningcast-api
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/albapepper/morningcast/internal/api"
	"github.com/albapepper/morningcast/internal/api/handler"
	"github.com/albapepper/morningcast/internal/app"
	"github.com/albapepper/morningcast/internal/config"
	"github.com/albapepper/morningcast/internal/maintenance"
	"github.com/albapepper/morningcast/internal/notifications"
)

const version = "1.0.0"

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := config.NewLogger(cfg)
	slog.SetDefault(logger)

	if _, err := app.CheckSchedule(cfg, logger); err != nil {
		logger.Error("Invalid notification schedule", "schedule", cfg.NotifySchedule, "error", err)
		os.Exit(1)
	}

	// Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svc, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize service", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	// Morning scheduler
	sched, err := notifications.NewScheduler(cfg.NotifySchedule, svc.Pipeline, logger)
	if err != nil {
		logger.Error("Failed to create scheduler", "error", err)
		os.Exit(1)
	}
	sched.Start()

	// Maintenance tickers (cache eviction, run report)
	tasks := maintenance.Tasks{Runs: sched}
	deps := handler.Deps{Users: svc.Users, Runs: sched, Version: version}
	if svc.Memory != nil {
		tasks.Cache = svc.Memory
		deps.Cache = svc.Memory
	}
	if svc.DB != nil {
		deps.DB = svc.DB
	}
	go maintenance.Start(ctx, tasks, maintenance.DefaultConfig(), logger)

	// Create router
	router := api.NewRouter(deps, svc.Metrics, cfg)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info("Starting Morningcast API",
			"addr", addr,
			"environment", cfg.Environment,
			"schedule", cfg.NotifySchedule,
			"next_run", sched.Next().Format(time.RFC3339))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			cancel()
		}
	}()

	// Wait for interrupt
	<-ctx.Done()
	logger.Info("Shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Error("Scheduler stop error", "error", err)
	}
	logger.Info("Server stopped")
}
