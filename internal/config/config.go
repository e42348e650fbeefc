// Package config provides centralized configuration loaded from environment
// variables. Shared by cmd/api and cmd/morningcast.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// User store backends.
const (
	StorePostgres = "postgres"
	StoreFile     = "file"
)

// --------------------------------------------------------------------------
// Config struct, populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Service
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	APIHost     string `env:"API_HOST" envDefault:"0.0.0.0"`
	APIPort     int    `env:"API_PORT" envDefault:"8000"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT"` // json in production, text otherwise

	// Database
	DatabaseURL    string        `env:"DATABASE_URL"`
	DBPoolMinConns int32         `env:"DB_POOL_MIN_CONNS" envDefault:"2"`
	DBPoolMaxConns int32         `env:"DB_POOL_MAX_CONNS" envDefault:"10"`
	DBPoolMaxLife  time.Duration `env:"DB_POOL_MAX_LIFE" envDefault:"30m"`

	// User directory
	UserStore  string `env:"USER_STORE" envDefault:"file"`
	UserFile   string `env:"USER_FILE" envDefault:"./data/user.json"`
	UserBucket string `env:"USER_BUCKET"`

	// Redis (geocode cache + sent markers); optional
	RedisURL string `env:"REDIS_URL"`

	// OpenWeather
	OpenWeatherAPIKey  string `env:"OPENWEATHER_API_KEY"`
	OpenWeatherBaseURL string `env:"OPENWEATHER_BASE_URL" envDefault:"https://api.openweathermap.org"`
	OpenWeatherRPM     int    `env:"OPENWEATHER_RPM" envDefault:"60"`

	// Push
	PushProvider            string `env:"PUSH_PROVIDER" envDefault:"log"`
	ExpoAccessToken         string `env:"EXPO_ACCESS_TOKEN"`
	ExpoPushURL             string `env:"EXPO_PUSH_URL" envDefault:"https://exp.host/--/api/v2/push/send"`
	FirebaseCredentialsFile string `env:"FIREBASE_CREDENTIALS_FILE"`
	FirebaseProjectID       string `env:"FIREBASE_PROJECT_ID"`

	// Morning run
	NotifySchedule    string        `env:"NOTIFY_SCHEDULE" envDefault:"30 * * * *"`
	NotifyConcurrency int           `env:"NOTIFY_CONCURRENCY" envDefault:"4"`
	NotifyCallTimeout time.Duration `env:"NOTIFY_CALL_TIMEOUT" envDefault:"10s"`
	NotifyDedup       bool          `env:"NOTIFY_DEDUP" envDefault:"false"`
	GeocodeCacheTTL   time.Duration `env:"GEOCODE_CACHE_TTL" envDefault:"168h"`

	// HTTP API
	CORSAllowOrigins  []string      `env:"CORS_ALLOW_ORIGINS" envSeparator:"," envDefault:"http://localhost:8081,http://localhost:19006"`
	RateLimitEnabled  bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitRequests int           `env:"RATE_LIMIT_REQUESTS" envDefault:"100"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"60s"`
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.UserStore = strings.ToLower(strings.TrimSpace(c.UserStore))
	c.PushProvider = strings.ToLower(strings.TrimSpace(c.PushProvider))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.Environment = strings.ToLower(strings.TrimSpace(c.Environment))
	if c.LogFormat == "" {
		c.LogFormat = "text"
		if c.IsProduction() {
			c.LogFormat = "json"
		}
	}

	origins := c.CORSAllowOrigins[:0]
	for _, o := range c.CORSAllowOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.CORSAllowOrigins = origins
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error

	if c.NotifyConcurrency < 1 {
		errs = append(errs, errors.New("NOTIFY_CONCURRENCY must be at least 1"))
	}
	if c.NotifyCallTimeout <= 0 {
		errs = append(errs, errors.New("NOTIFY_CALL_TIMEOUT must be positive"))
	}
	if strings.TrimSpace(c.NotifySchedule) == "" {
		errs = append(errs, errors.New("NOTIFY_SCHEDULE must not be empty"))
	}

	switch c.UserStore {
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("USER_STORE=postgres requires DATABASE_URL"))
		}
	case StoreFile:
		if c.UserFile == "" {
			errs = append(errs, errors.New("USER_STORE=file requires USER_FILE"))
		}
	default:
		errs = append(errs, fmt.Errorf("USER_STORE must be %q or %q, got %q", StorePostgres, StoreFile, c.UserStore))
	}

	switch c.PushProvider {
	case "expo", "log":
	case "fcm":
		if c.FirebaseProjectID == "" || c.FirebaseCredentialsFile == "" {
			errs = append(errs, errors.New("PUSH_PROVIDER=fcm requires FIREBASE_PROJECT_ID and FIREBASE_CREDENTIALS_FILE"))
		}
	default:
		errs = append(errs, fmt.Errorf("PUSH_PROVIDER must be expo, fcm or log, got %q", c.PushProvider))
	}

	if c.NotifyDedup && c.RedisURL == "" {
		errs = append(errs, errors.New("NOTIFY_DEDUP=true requires REDIS_URL"))
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// RequireOpenWeather reports a missing API key. Only the commands that call
// OpenWeather need it.
func (c *Config) RequireOpenWeather() error {
	if c.OpenWeatherAPIKey == "" {
		return errors.New("OPENWEATHER_API_KEY must be set")
	}
	return nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// --------------------------------------------------------------------------
// Logging
// --------------------------------------------------------------------------

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func NewLogger(c *Config) *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", s)
	}
}
