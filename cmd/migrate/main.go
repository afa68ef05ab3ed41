package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/rafflehub/platform/internal/infra"
)

func main() {
	dir := flag.String("dir", "", "migrations directory (default: nearest db/migrations)")
	flag.Parse()

	cfg, err := infra.LoadConfig()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger, closeLogs := infra.NewLogger(cfg, "migrate")
	defer closeLogs()

	if *dir == "" {
		*dir = infra.FindMigrationDir()
	}
	logger.Info("applying migrations", "dir", *dir)
	if err := infra.RunMigrationsFrom(*dir, cfg.DSN(), logger); err != nil {
		logger.Error("migrate failed", "error", err)
		closeLogs()
		os.Exit(1)
	}
}
