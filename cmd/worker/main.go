package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tillpoint/tillpoint/internal/app"
	"github.com/tillpoint/tillpoint/internal/platform/db"
	"github.com/tillpoint/tillpoint/internal/shared"
	"github.com/tillpoint/tillpoint/internal/stock"
	"github.com/tillpoint/tillpoint/jobs"
)

func main() {
	cfg, err := app.Load()
	if err != nil {
		slog.Error("startup", "error", err)
		os.Exit(1)
	}
	app.NewLogger(cfg.LogFormat, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.New(ctx, cfg.PostgresDSN)
	if err != nil {
		slog.Error("startup", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	handler := jobs.NewHandler(
		stock.NewRepository(pool),
		shared.NewIdempotencyStore(pool),
		cfg.LowStockThreshold,
		cfg.IdempotencyRetention,
	)
	worker, err := jobs.NewWorker(cfg.RedisAddr, handler)
	if err != nil {
		slog.Error("startup", "error", err)
		os.Exit(1)
	}

	go func() {
		<-ctx.Done()
		worker.Shutdown()
	}()

	if err := worker.Run(); err != nil {
		slog.Error("exited", "error", err)
		os.Exit(1)
	}
}
