// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// minProductionSecretLen is the shortest SECRET_KEY accepted outside development.
const minProductionSecretLen = 16

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Public origin of the site, used for CSRF origin checks
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// Session signing key
	SecretKey string `env:"SECRET_KEY,required,notEmpty"`

	// Database
	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"sqlite"`
	DatabasePath   string `env:"DATABASE" envDefault:"glycoguard.db"`
	DatabaseURL    string `env:"DATABASE_URL"`

	// Cache (Redis). Optional: rate limiting and session revocation are disabled without it.
	RedisURL string `env:"REDIS_URL"`

	// Model artifacts
	ModelPath  string `env:"MODEL_PATH" envDefault:"artifacts/logistic_model.yaml"`
	ScalerPath string `env:"SCALER_PATH" envDefault:"artifacts/scaler.yaml"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
	LogFile   string `env:"LOG_FILE"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Sessions
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"24h"`

	// Per-IP token bucket on credential endpoints
	LoginRateLimitRPS   float64 `env:"LOGIN_RATE_LIMIT_RPS" envDefault:"1"`
	LoginRateLimitBurst int     `env:"LOGIN_RATE_LIMIT_BURST" envDefault:"10"`

	// Number of users kept in the session rehydration cache
	UserCacheSize int `env:"USER_CACHE_SIZE" envDefault:"1024"`

	// Serve /metrics on the public listener
	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"false"`

	// Request body size limit in bytes (default 64KB, forms are small)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"65536"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Validate checks cross-field constraints that struct tags cannot express.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.DatabaseDriver) {
	case DriverSQLite:
		if c.DatabasePath == "" {
			errs = append(errs, errors.New("DATABASE is required for the sqlite driver"))
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver))
	}

	if !c.IsDevelopment() && len(c.SecretKey) < minProductionSecretLen {
		errs = append(errs, fmt.Errorf("SECRET_KEY must be at least %d bytes outside development", minProductionSecretLen))
	}

	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}

	if c.UserCacheSize <= 0 {
		errs = append(errs, errors.New("USER_CACHE_SIZE must be positive"))
	}

	return errors.Join(errs...)
}

// Load parses environment variables and returns a validated Config.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.DatabaseDriver = strings.ToLower(cfg.DatabaseDriver)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
