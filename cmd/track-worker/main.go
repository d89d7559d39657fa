package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/CourierHub/config"
	"github.com/pkg/errors"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	httpOpts := &workerHTTPOpts{
		httpAddr:    cfg.CourierHub.WorkerHTTPAddr,
		swaggerPath: os.Getenv("workerSwaggerPath"),
	}
	if httpOpts.swaggerPath == "" {
		slog.Warn("workerSwaggerPath is not set, ops HTTP server disabled")
		httpOpts = nil
	}

	if err := RunTrackWorker(ctx, cfg, defaultWorkerFactories(), httpOpts); err != nil && !errors.Is(err, context.Canceled) {
		panic(err)
	}
}
