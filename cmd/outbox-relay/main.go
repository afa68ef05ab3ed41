package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rafflehub/platform/internal/infra"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	logger, closeLogs := infra.NewLogger(cfg, "outbox-relay")
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("outbox relay failed", "error", err)
		closeLogs()
		os.Exit(1)
	}
	closeLogs()
}

func run(cfg *infra.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	infra.SetupMetrics(cfg, "outbox-relay", logger)

	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	logger.Info("outbox-relay connected to postgres")

	producer := infra.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaEnabled, logger)
	defer producer.Close()

	// Metrics only; the relay has no API.
	metricsSrv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.APIPort+1), Handler: infra.MetricsHandler()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	defer metricsSrv.Close()

	infra.NewOutboxPoller(pool, producer, cfg.KafkaTopicPrefix, logger).Run(ctx)
	return nil
}
