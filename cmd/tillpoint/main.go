package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tillpoint/tillpoint/internal/app"
)

func main() {
	cfg, err := app.Load()
	if err != nil {
		slog.Error("startup", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg); err != nil {
		slog.Error("exited", "error", err)
		os.Exit(1)
	}
}
