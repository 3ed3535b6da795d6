// Command runonce performs a single reconciliation pass and exits. A failed
// pass is retried per PASS_RETRIES and PASS_RETRY_DELAY; the exit code is
// non-zero when no attempt completed.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/quake-data-etl/internal/app"
	"github.com/couchcryptid/quake-data-etl/internal/config"
	"github.com/couchcryptid/quake-data-etl/internal/observability"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/joho/godotenv"
)

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := app.Init(ctx, cfg, logger, observability.NewMetrics())
	if err != nil {
		logger.Error("startup failed", "error", err)
		return 1
	}
	defer env.Close()

	report, err := env.Pipeline.RunOnce(ctx)
	if err != nil {
		logger.Error("pass failed", "run_id", report.RunID, "error", err)
		return 1
	}
	if report.Failed > 0 {
		logger.Warn("pass completed with store failures", "run_id", report.RunID, "failed", report.Failed)
	}
	return 0
}
