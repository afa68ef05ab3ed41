package infra

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/VictoriaMetrics/metrics"
)

// SetupMetrics starts pushing metrics when METRICS_PUSH_URL is configured.
// /metrics is served regardless.
func SetupMetrics(cfg *Config, service string, logger *slog.Logger) {
	if cfg.MetricsPushURL == "" {
		return
	}
	labels := fmt.Sprintf(`service=%q`, service)
	if err := metrics.InitPush(cfg.MetricsPushURL, cfg.MetricsPushInterval, labels, true); err != nil {
		logger.Error("metrics push init failed", "url", cfg.MetricsPushURL, "error", err)
		return
	}
	logger.Info("metrics push enabled", "url", cfg.MetricsPushURL, "interval", cfg.MetricsPushInterval)
}

// MetricsHandler exposes every registered metric in Prometheus text format.
func MetricsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	})
}
