// Package app wires the morning notification service from configuration.
// Both binaries share it: cmd/api keeps the result running, cmd/morningcast
// uses it for one-shot commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/albapepper/morningcast/internal/cache"
	"github.com/albapepper/morningcast/internal/config"
	"github.com/albapepper/morningcast/internal/db"
	"github.com/albapepper/morningcast/internal/metrics"
	"github.com/albapepper/morningcast/internal/notifications"
	"github.com/albapepper/morningcast/internal/push"
	"github.com/albapepper/morningcast/internal/timezone"
	"github.com/albapepper/morningcast/internal/users"
	"github.com/albapepper/morningcast/internal/weather"
)

// App holds the long-lived collaborators. Optional parts are nil when not
// configured.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Users    users.Store
	DB       *db.Pool
	Memory   *cache.Memory
	Redis    *cache.Redis
	Metrics  *metrics.Collector
	Pipeline *notifications.Pipeline

	closers []func() error
}

// CheckSchedule runs the alignment check on NOTIFY_SCHEDULE. Coverage gaps
// are logged; double delivery is an error.
func CheckSchedule(cfg *config.Config, logger *slog.Logger) (notifications.Alignment, error) {
	a, err := notifications.CheckAlignment(cfg.NotifySchedule)
	if err != nil {
		return a, err
	}
	if gaps := a.Gaps(); len(gaps) > 0 {
		labels := make([]string, len(gaps))
		for i, g := range gaps {
			labels[i] = notifications.FormatOffset(g)
		}
		logger.Warn("Schedule leaves UTC offsets without a morning notification",
			"schedule", a.Spec, "gaps", strings.Join(labels, ","))
	}
	return a, nil
}

// OpenUsers builds the configured user directory. When the store is
// postgres, pending migrations are applied first.
func OpenUsers(ctx context.Context, cfg *config.Config, logger *slog.Logger) (users.Store, *db.Pool, func() error, error) {
	switch cfg.UserStore {
	case config.StorePostgres:
		pool, err := OpenDB(ctx, cfg, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		return users.NewPostgresStore(pool.Pool), pool, func() error { pool.Close(); return nil }, nil

	case config.StoreFile:
		if cfg.UserBucket == "" {
			logger.Info("User directory on local disk", "path", cfg.UserFile)
			return users.NewFileStore(users.LocalBlob{Path: cfg.UserFile}, logger), nil, func() error { return nil }, nil
		}
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("create storage client: %w", err)
		}
		logger.Info("User directory in GCS", "bucket", cfg.UserBucket, "object", cfg.UserFile)
		blob := users.NewGCSBlob(client, cfg.UserBucket, cfg.UserFile, logger)
		return users.NewFileStore(blob, logger), nil, client.Close, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown user store %q", cfg.UserStore)
	}
}

// OpenDB migrates the schema and opens the connection pool.
func OpenDB(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*db.Pool, error) {
	migrator, err := db.NewMigrator(cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}
	if err := migrator.Up(ctx); err != nil {
		return nil, err
	}
	logger.Info("Connecting to database...")
	pool, err := db.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	logger.Info("Database connected",
		"min_conns", cfg.DBPoolMinConns,
		"max_conns", cfg.DBPoolMaxConns)
	return pool, nil
}

// New builds every collaborator of the morning run. Call Close when done.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.RequireOpenWeather(); err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Logger: logger}

	store, pool, closeStore, err := OpenUsers(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Users, a.DB = store, pool
	a.closers = append(a.closers, closeStore)

	// Geocode cache: Redis when configured, otherwise in-process.
	var geoStore cache.Store
	if cfg.RedisURL != "" {
		r, err := cache.NewRedis(ctx, cfg.RedisURL, "morningcast:")
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Redis = r
		a.closers = append(a.closers, r.Close)
		geoStore = r
		logger.Info("Cache initialized", "backend", "redis")
	} else {
		a.Memory = cache.NewMemory(true)
		geoStore = a.Memory
		logger.Info("Cache initialized", "backend", "memory")
	}

	zones, err := timezone.NewResolver()
	if err != nil {
		a.Close()
		return nil, err
	}

	sender, err := push.New(ctx, push.Options{
		Provider:           cfg.PushProvider,
		ExpoURL:            cfg.ExpoPushURL,
		ExpoAccessToken:    cfg.ExpoAccessToken,
		FCMCredentialsFile: cfg.FirebaseCredentialsFile,
		FCMProjectID:       cfg.FirebaseProjectID,
	}, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("push sender: %w", err)
	}
	logger.Info("Push sender ready", "provider", cfg.PushProvider)

	var marker notifications.Marker
	if cfg.NotifyDedup {
		if a.Redis == nil {
			a.Close()
			return nil, errors.New("NOTIFY_DEDUP requires REDIS_URL")
		}
		marker = notifications.NewRedisMarker(a.Redis.Client())
		logger.Info("Sent-marker enabled")
	}

	owm := weather.NewClient(cfg.OpenWeatherBaseURL, cfg.OpenWeatherAPIKey, cfg.OpenWeatherRPM, logger)
	a.Metrics = metrics.NewDefault()
	a.Pipeline = notifications.NewPipeline(notifications.Deps{
		Directory: a.Users,
		Geocoder:  weather.NewCachedGeocoder(owm, geoStore, cfg.GeocodeCacheTTL, logger),
		Weather:   owm,
		Zones:     zones,
		Sender:    sender,
		Marker:    marker,
		Recorder:  a.Metrics,
		Logger:    logger,
	}, notifications.Options{
		Concurrency: cfg.NotifyConcurrency,
		CallTimeout: cfg.NotifyCallTimeout,
	})
	return a, nil
}

// Close releases everything New opened, in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
