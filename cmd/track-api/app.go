package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/BearBump/CourierHub/internal/api/httpapi"
	"github.com/BearBump/CourierHub/internal/broker/kafka"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

type trackAPIOpts struct {
	httpAddr    string
	swaggerPath string

	topic         string
	consumerGroup string
	// consumerRetry: пауза перед переподключением consumer после ошибки.
	consumerRetry time.Duration

	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler kafka.Handler) error
}

func runTrackAPI(ctx context.Context, opts trackAPIOpts, api *httpapi.API, handler kafka.Handler, consumer kafkaConsumer) error {
	if opts.swaggerPath == "" {
		return fmt.Errorf("swaggerPath env var is required")
	}
	if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
		return fmt.Errorf("swagger file not found: %s", opts.swaggerPath)
	}

	httpLis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(httpLis.Addr().String())
	}

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runHTTPServer(ctx, httpLis, api, opts.swaggerPath)
	}()

	go runConsumer(ctx, opts, handler, consumer)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-httpErr:
		return err
	}
}

// runConsumer держит подписку на смену статусов. Consume останавливается на первой ошибке
// без commit и пересоздаёт reader, так что после паузы группа перечитывает сообщение.
func runConsumer(ctx context.Context, opts trackAPIOpts, handler kafka.Handler, consumer kafkaConsumer) {
	retry := opts.consumerRetry
	if retry <= 0 {
		retry = 2 * time.Second
	}
	slog.Info("kafka consumer started", "topic", opts.topic, "group", opts.consumerGroup)
	for {
		err := consumer.Consume(ctx, handler)
		if ctx.Err() != nil {
			return
		}
		slog.Warn("kafka consumer stopped, retrying", "topic", opts.topic, "err", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(retry):
		}
	}
}

func runHTTPServer(ctx context.Context, lis net.Listener, api *httpapi.API, swaggerPath string) error {
	r := chi.NewRouter()
	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, swaggerPath)
	})
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger.json"),
	))
	r.Handle("/metrics", promhttp.Handler())
	r.Mount("/", api.Routes())

	srv := &http.Server{Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("HTTP server listening", "addr", lis.Addr().String())
	return srv.Serve(lis)
}
