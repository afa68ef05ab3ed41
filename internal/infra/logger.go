package infra

import (
	"log/slog"
	"os"
	"strings"

	"github.com/grafana/loki-client-go/loki"
	slogloki "github.com/samber/slog-loki/v3"
)

// NewLogger returns a JSON logger on stdout, or a Loki-backed logger when
// LOKI_URL is set. The returned close func flushes the Loki client.
func NewLogger(cfg *Config, service string) (*slog.Logger, func()) {
	level := parseLevel(cfg.LogLevel)
	local := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})).With("service", service)
	if cfg.LokiURL == "" {
		return local, func() {}
	}

	lokiCfg, err := loki.NewDefaultConfig(cfg.LokiURL)
	if err != nil {
		local.Error("invalid loki url, logging to stdout", "error", err)
		return local, func() {}
	}
	client, err := loki.New(lokiCfg)
	if err != nil {
		local.Error("loki client init failed, logging to stdout", "error", err)
		return local, func() {}
	}

	handler := slogloki.Option{Level: level, Client: client}.NewLokiHandler()
	return slog.New(handler).With("service", service), client.Stop
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
