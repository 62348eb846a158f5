package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"procparse/internal/app"
	"procparse/internal/config"
	"procparse/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfg, db, logger)
	must(err)
	svc, err := a.Listener(ctx)
	must(err)

	logger.Info("listener started", "source", cfg.ListenerSource, "interval_sec", cfg.ListenerIntervalSec)
	must(svc.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
