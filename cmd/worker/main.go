package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"genstudio/internal/bootstrap"
	"genstudio/internal/infra"
	"genstudio/internal/queue"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel, "worker")

	if cfg.QueueDriver == "local" {
		logger.Fatal().Msg("worker: the local queue is in-process; use QUEUE_DRIVER=redis or nats, or run the api with WORKER_ENABLED")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := bootstrap.Open(ctx, cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to open backends")
	}
	defer services.Close()

	runner, err := services.Runner(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to build processor")
	}

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, queue.ErrClosed) {
		logger.Error().Err(err).Str("queue", cfg.QueueDriver).Msg("worker exited")
	}
}
