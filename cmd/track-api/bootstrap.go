package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/CourierHub/config"
	"github.com/BearBump/CourierHub/internal/api/httpapi"
	"github.com/BearBump/CourierHub/internal/broker/kafka"
	"github.com/BearBump/CourierHub/internal/cache/rediscache"
	"github.com/BearBump/CourierHub/internal/integrations/carrier/providers"
	"github.com/BearBump/CourierHub/internal/services/consignments"
	"github.com/BearBump/CourierHub/internal/services/pincodes"
	"github.com/BearBump/CourierHub/internal/services/reconciler"
	"github.com/BearBump/CourierHub/internal/services/tariff"
	"github.com/BearBump/CourierHub/internal/services/zones"
	"github.com/BearBump/CourierHub/internal/storage/pgstore"
)

type trackAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     trackAPIOpts
	api      *httpapi.API
	svc      *consignments.Service
	consumer *kafka.Consumer
	closers  []func()
}

func mustBootstrapTrackAPI() *trackAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	httpAddr := cfg.CourierHub.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.CourierHub.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "track-api"
	}
	topic := cfg.Kafka.StatusChangedTopicName
	if topic == "" {
		topic = "consignment.status_changed"
	}
	statusTTL := cfg.CourierHub.CurrentStatusTTL()
	pincodeTTL := time.Duration(cfg.CourierHub.PincodeTTLSeconds) * time.Second
	if pincodeTTL <= 0 {
		pincodeTTL = 24 * time.Hour
	}

	st := mustOpenPostgresWithRetry(cfg.Database.ConnString(), 60*time.Second)
	rc := rediscache.New(cfg.Redis.Addr())

	sealer, err := providers.NewSealer(cfg)
	if err != nil {
		panic(fmt.Sprintf("credentials key: %v", err))
	}
	var opener pgstore.Opener
	if sealer != nil {
		opener = sealer
	}

	brokers := cfg.Kafka.Brokers()
	producer := kafka.NewProducer(brokers)

	rec := reconciler.New(providers.NewRegistry(cfg), st, st.Credentials(opener)).
		WithSettings(
			time.Duration(cfg.CourierHub.FetchTimeoutSeconds)*time.Second,
			cfg.CourierHub.BatchConcurrency,
			cfg.CourierHub.MaxBatchSize,
		).
		WithPublisher(producer, topic)

	pins := pincodes.New(st, rc, pincodeTTL)
	calc := tariff.NewCalculator(st, zones.NewEstimator(pins))
	svc := consignments.New(st, rc, statusTTL)
	rec.WithInvalidator(svc)

	api := httpapi.New(rec, calc, svc, pins).WithHealthCheck(st)
	consumer := kafka.NewConsumer(brokers, topic, consumerGroup)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	slog.Info("track-api bootstrapped", "http", httpAddr, "topic", topic, "group", consumerGroup)
	return &trackAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: trackAPIOpts{
			httpAddr:      httpAddr,
			swaggerPath:   swaggerPath,
			topic:         topic,
			consumerGroup: consumerGroup,
		},
		api:      api,
		svc:      svc,
		consumer: consumer,
		closers: []func(){
			func() { _ = consumer.Close() },
			func() { _ = producer.Close() },
			func() { _ = rc.Close() },
			st.Close,
		},
	}
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgstore.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgstore.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *trackAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	for _, c := range a.closers {
		c()
	}
}

func (a *trackAPIApp) Run() error {
	return runTrackAPI(a.ctx, a.opts, a.api, a.svc.InvalidateFromMessage, a.consumer)
}
