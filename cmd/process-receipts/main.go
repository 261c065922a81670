package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/keihibook/keihibook/internal/common"
	"github.com/keihibook/keihibook/internal/extract/gemini"
	"github.com/keihibook/keihibook/internal/payload"
	"github.com/keihibook/keihibook/internal/repository"
	"github.com/keihibook/keihibook/internal/worker"
)

// One-shot worker run for cron/systemd timers, equivalent to the HTTP
// trigger but without the shared-secret hop.
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := repository.OpenStore(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("opening store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	extractor := gemini.NewClient(gemini.Config{
		APIKey:  cfg.Gemini.APIKey,
		BaseURL: cfg.Gemini.BaseURL,
		Model:   cfg.Gemini.Model,
		Timeout: cfg.Gemini.Timeout,
	}, logger)
	fetcher := payload.NewHTTPFetcher(cfg.Worker.FetchTimeout, cfg.Worker.MaxFileBytes, logger)
	runner := worker.NewRunner(store, fetcher, extractor, cfg.Worker, cfg.Ledger, logger)

	sum, err := runner.RunOnce(ctx)
	if err != nil {
		logger.Error("worker run failed", "error", err)
		os.Exit(1)
	}
	if sum.Skipped {
		logger.Info("run skipped", "reason", sum.Reason)
		return
	}
	logger.Info("run complete", "processed", sum.Processed, "failed", sum.Failed)
}
