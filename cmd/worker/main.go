package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"geneledger/internal/app/bootstrap"
)

// Worker process entrypoint: relays the durable registry outbox to the bus.
func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("worker stopped with error", "event", "worker_run_failed", "error", err.Error())
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	app, err := bootstrap.BuildWorker(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			slog.Warn("worker close failed", "event", "worker_close_failed", "error", err.Error())
		}
	}()
	return app.Run(ctx)
}
