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

	"github.com/rafflehub/platform/internal/app"
	"github.com/rafflehub/platform/internal/infra"
	"github.com/rafflehub/platform/internal/scheduler"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	logger, closeLogs := infra.NewLogger(cfg, "api")
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		closeLogs()
		os.Exit(1)
	}
	closeLogs()
}

func run(cfg *infra.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	infra.SetupMetrics(cfg, "api", logger)

	// Connect to Postgres
	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	logger.Info("connected to postgres")

	// Redis is optional; without it rate limits are per process.
	rdb, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Warn("redis unavailable, using in-process rate limiter", "error", err)
		rdb = nil
	}
	if rdb != nil {
		defer rdb.Close()
	}

	a, err := app.Build(ctx, cfg, pool, rdb, logger)
	if err != nil {
		return err
	}

	jobs := scheduler.New(a.Payments, scheduler.Config{
		ExpirySchedule:     cfg.ExpiryJobSchedule,
		LimitResetSchedule: cfg.LimitResetSchedule,
		CheckoutExpiry:     cfg.CheckoutExpiry,
	}, logger)
	if err := jobs.Start(); err != nil {
		return err
	}
	defer func() { <-jobs.Stop().Done() }()

	addr := fmt.Sprintf(":%d", cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      a.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "addr", addr, "environment", a.Registry.Environment())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}
