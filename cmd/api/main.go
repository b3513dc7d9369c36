// Package main is the entrypoint for the GlycoGuard web server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/glycoguard/glycoguard/internal/cache"
	"github.com/glycoguard/glycoguard/internal/config"
	"github.com/glycoguard/glycoguard/internal/handler"
	"github.com/glycoguard/glycoguard/internal/metrics"
	"github.com/glycoguard/glycoguard/internal/middleware"
	"github.com/glycoguard/glycoguard/internal/predictor"
	"github.com/glycoguard/glycoguard/internal/repository"
	"github.com/glycoguard/glycoguard/internal/server"
	"github.com/glycoguard/glycoguard/internal/service"
	"github.com/glycoguard/glycoguard/internal/session"
	"github.com/glycoguard/glycoguard/internal/web"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, closeLog := initLogger(cfg)
	defer closeLog()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	srv := server.New(a.handler, server.Options{
		Addr:            fmt.Sprintf(":%d", cfg.AppPort),
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)
	srv.OnShutdown("database", func(context.Context) error { return a.store.Close() })
	if a.cache != nil {
		srv.OnShutdown("redis", func(context.Context) error { return a.cache.Close() })
	}

	logger.Info("starting server",
		"port", cfg.AppPort,
		"base_url", cfg.BaseURL,
		"env", cfg.AppEnv,
		"database_driver", cfg.DatabaseDriver,
	)

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// app holds the wired dependencies behind the router.
type app struct {
	handler http.Handler
	store   repository.Store
	cache   *cache.Cache // nil when REDIS_URL is unset
	metrics *metrics.PrometheusRecorder
}

// newApp opens the store, optional cache and model artifacts, then builds the router.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	dsn := cfg.DatabasePath
	if cfg.DatabaseDriver == config.DriverPostgres {
		dsn = cfg.DatabaseURL
	}

	store, err := repository.Open(ctx, cfg.DatabaseDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to database %s: %s", redactURL(dsn), sanitizeError(err, dsn))
	}
	logger.Info("connected to database", "driver", cfg.DatabaseDriver)

	a := &app{store: store, metrics: metrics.NewPrometheus()}

	if cfg.RedisURL != "" {
		c, err := cache.New(ctx, cfg.RedisURL)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("connect to Redis %s: %s", redactURL(cfg.RedisURL), sanitizeError(err, cfg.RedisURL))
		}
		a.cache = c
		logger.Info("connected to Redis")
	} else {
		logger.Warn("REDIS_URL not set: login rate limiting and session revocation are disabled")
	}

	classifier := predictor.LoadOrUnavailable(cfg.ModelPath, cfg.ScalerPath, logger)

	a.handler, err = a.routes(cfg, classifier, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// Close releases the store and cache.
func (a *app) Close() error {
	var errs []error
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	errs = append(errs, a.store.Close())
	return errors.Join(errs...)
}

// routes configures the chi router with all routes and middleware.
func (a *app) routes(cfg *config.Config, classifier predictor.Classifier, logger *slog.Logger) (http.Handler, error) {
	creds, err := service.NewCredentialService(a.store, cfg.UserCacheSize, a.metrics, logger)
	if err != nil {
		return nil, err
	}
	predictions := service.NewPredictionService(classifier, a.store, a.metrics, logger)

	sessionOpts := session.Options{
		Secret: []byte(cfg.SecretKey),
		TTL:    cfg.SessionTTL,
		Secure: !cfg.IsDevelopment(),
	}
	rateLimitCfg := middleware.RateLimitConfig{
		Logger:  logger,
		Metrics: a.metrics,
		RPS:     cfg.LoginRateLimitRPS,
		Burst:   cfg.LoginRateLimitBurst,
	}
	var cacheCheck handler.HealthChecker
	if a.cache != nil {
		sessionOpts.Revoker = a.cache
		rateLimitCfg.Limiter = a.cache
		cacheCheck = a.cache
	}

	sessions, err := session.NewManager(sessionOpts)
	if err != nil {
		return nil, err
	}
	renderer, err := web.NewRenderer()
	if err != nil {
		return nil, err
	}

	// Initialize handlers
	h := handler.New(renderer, sessions, logger)
	authHandler := handler.NewAuthHandler(h, creds)
	pageHandler := handler.NewPageHandler(h, predictions)
	healthHandler := handler.NewHealthHandler(a.store, cacheCheck, predictions)

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(logger, a.metrics))
	r.Use(middleware.Recoverer(logger, cfg.IsDevelopment()))
	r.Use(middleware.Security(middleware.SecurityConfig{IsDevelopment: cfg.IsDevelopment()}))
	r.Use(middleware.MaxBodySize(cfg.MaxRequestBodySize))

	// Probes, metrics and assets carry no session
	r.Get("/healthz", healthHandler.Healthz)
	r.Get("/readyz", healthHandler.Readyz)
	if cfg.MetricsEnabled {
		r.Handle("/metrics", a.metrics.Handler())
	}
	r.Handle("/static/*", web.Static())

	r.Group(func(r chi.Router) {
		r.Use(middleware.CSRF(middleware.CSRFConfig{
			AllowedOrigins: []string{middleware.OriginOf(cfg.BaseURL)},
			Logger:         logger,
		}))
		r.Use(middleware.LoadPrincipal(middleware.AuthConfig{
			Logger:   logger,
			Sessions: sessions,
			Users:    creds,
		}))

		r.Get("/", pageHandler.Landing)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitLogin(rateLimitCfg))
			r.Get("/register", authHandler.RegisterForm)
			r.Post("/register", authHandler.Register)
			r.Get("/login", authHandler.LoginForm)
			r.Post("/login", authHandler.Login)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireLogin(sessions))
			r.Get("/logout", authHandler.Logout)
			r.Get("/dashboard", pageHandler.Dashboard)
			r.Get("/predict", pageHandler.PredictForm)
			r.Post("/predict", pageHandler.Predict)
			r.Get("/history", pageHandler.History)
			r.Get("/profile", pageHandler.Profile)
		})
	})

	// 404 and 405 handlers
	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	return r, nil
}

// initLogger builds the slog logger. LOG_FILE adds a rotating file next to stdout.
func initLogger(cfg *config.Config) (*slog.Logger, func()) {
	var out io.Writer = os.Stdout
	closeFn := func() {}

	if cfg.LogFile != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, file)
		closeFn = func() { _ = file.Close() }
	}

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	var h slog.Handler
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(out, opts)
	} else {
		h = slog.NewTextHandler(out, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger, closeFn
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
