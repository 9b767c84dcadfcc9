package app

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

	"go-tour-booking/internal/config"
	"go-tour-booking/internal/database"
	"go-tour-booking/internal/handler"
	"go-tour-booking/internal/metrics"
	"go-tour-booking/internal/middleware"
	"go-tour-booking/internal/notify"
	"go-tour-booking/internal/repository"
	"go-tour-booking/internal/router"
	"go-tour-booking/internal/service"
)

type App struct {
	server       *http.Server
	logger       *slog.Logger
	cleanupFuncs []func()
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{logger: logger}

	store, err := a.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	notifier, err := a.openNotifier(ctx, cfg)
	if err != nil {
		a.cleanup()
		return nil, err
	}

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	tokens := service.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	authService := service.NewAuthService(
		store,
		service.NewBcryptHasher(cfg.BcryptCost),
		tokens,
		service.NewResetTokenService(store, nil),
		notifier,
		logger.With("component", "auth"),
	).WithResetURLBase(cfg.ResetURLBase)
	userService := service.NewUserService(store, logger.With("component", "users"))
	authMiddleware := middleware.NewAuthMiddleware(tokens, store, logger.With("component", "guard"))
	if m != nil {
		authService.WithRecorder(m)
		authMiddleware.WithRecorder(m)
	}

	appRouter := router.New(cfg, logger, authMiddleware, router.Handlers{
		Auth:   handler.NewAuthHandler(authService, cfg.CookieSecure),
		User:   handler.NewUserHandler(userService),
		Health: handler.NewHealthHandler(userService),
	}, m)

	a.server = &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg *config.Config) (service.UserStore, error) {
	if cfg.DatabaseURL == "" {
		a.logger.Warn("DATABASE_URL not set, using in-memory identity store", "env", cfg.Environment)
		return repository.NewMemoryUserRepository(), nil
	}

	a.logger.Info("connecting to PostgreSQL")
	db, err := database.New(ctx, a.logger, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.cleanupFuncs = append(a.cleanupFuncs, db.Close)

	if err := db.Migrate(ctx); err != nil {
		a.cleanup()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	a.logger.Info("database ready")
	return repository.NewUserRepository(db.Pool), nil
}

func (a *App) openNotifier(ctx context.Context, cfg *config.Config) (notify.Notifier, error) {
	if cfg.RedisURL == "" {
		if !cfg.IsDevelopment() {
			return nil, fmt.Errorf("REDIS_URL is required outside development")
		}
		a.logger.Warn("REDIS_URL not set, password reset links will only be logged")
		return notify.NewLogNotifier(a.logger.With("component", "notify")), nil
	}

	client, err := notify.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	a.cleanupFuncs = append(a.cleanupFuncs, func() { _ = client.Close() })

	a.logger.Info("redis mail outbox ready", "key", notify.DefaultOutboxKey)
	return notify.NewRedisOutbox(client, notify.DefaultOutboxKey), nil
}

func (a *App) Handler() http.Handler {
	return a.server.Handler
}

func (a *App) Run() error {
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("server starting", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err := <-serveErr:
		a.cleanup()
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-stop:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	shutdownErr := a.server.Shutdown(ctx)
	a.cleanup()
	if shutdownErr != nil {
		return fmt.Errorf("graceful shutdown failed: %w", shutdownErr)
	}

	a.logger.Info("server stopped")
	return nil
}

func (a *App) cleanup() {
	for i := len(a.cleanupFuncs) - 1; i >= 0; i-- {
		a.cleanupFuncs[i]()
	}
	a.cleanupFuncs = nil
}
