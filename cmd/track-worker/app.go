package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/BearBump/CourierHub/config"
	"github.com/BearBump/CourierHub/internal/broker/kafka"
	"github.com/BearBump/CourierHub/internal/cache/rediscache"
	"github.com/BearBump/CourierHub/internal/integrations/carrier/providers"
	"github.com/BearBump/CourierHub/internal/services/consignments"
	"github.com/BearBump/CourierHub/internal/services/poller"
	"github.com/BearBump/CourierHub/internal/services/reconciler"
	"github.com/BearBump/CourierHub/internal/storage/pgstore"
	"github.com/pkg/errors"
)

type workerFactories struct {
	// newBackend отдаёт очередь накладных и reconciler поверх одного хранилища.
	newBackend     func(cfg *config.Config) (repo poller.Repository, rec poller.Reconciler, closeFn func(), err error)
	newRateLimiter func(cfg *config.Config) poller.RateLimiter
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newBackend: func(cfg *config.Config) (poller.Repository, poller.Reconciler, func(), error) {
			st, err := pgstore.New(cfg.Database.ConnString())
			if err != nil {
				return nil, nil, nil, err
			}
			sealer, err := providers.NewSealer(cfg)
			if err != nil {
				st.Close()
				return nil, nil, nil, err
			}
			var opener pgstore.Opener
			if sealer != nil {
				opener = sealer
			}

			topic := cfg.Kafka.StatusChangedTopicName
			if topic == "" {
				topic = "consignment.status_changed"
			}
			producer := kafka.NewProducer(cfg.Kafka.Brokers())
			// тот же кэш снимков, что читает track-api
			rc := rediscache.New(cfg.Redis.Addr())

			rec := reconciler.New(providers.NewRegistry(cfg), st, st.Credentials(opener)).
				WithSettings(
					time.Duration(cfg.CourierHub.FetchTimeoutSeconds)*time.Second,
					cfg.CourierHub.BatchConcurrency,
					cfg.CourierHub.MaxBatchSize,
				).
				WithPublisher(producer, topic).
				WithInvalidator(consignments.New(st, rc, cfg.CourierHub.CurrentStatusTTL()))

			closeFn := func() {
				_ = producer.Close()
				_ = rc.Close()
				st.Close()
			}
			return st, rec, closeFn, nil
		},
		newRateLimiter: func(cfg *config.Config) poller.RateLimiter {
			return rediscache.NewRateLimiter(cfg.Redis.Addr())
		},
	}
}

func plannerConfig(cfg *config.Config) poller.PlannerConfig {
	sec := func(n int) time.Duration { return time.Duration(n) * time.Second }
	c := cfg.CourierHub
	// нули заменяются дефолтами в poller.NewPlanner
	return poller.PlannerConfig{
		TerminalDelay:  sec(c.WorkerNextCheckTerminalSeconds),
		ActiveMinDelay: sec(c.WorkerNextCheckActiveMinSeconds),
		ActiveMaxDelay: sec(c.WorkerNextCheckActiveMaxSeconds),
		UnknownDelay:   sec(c.WorkerNextCheckUnknownSeconds),
		Backoff1:       sec(c.WorkerBackoff1Seconds),
		Backoff2:       sec(c.WorkerBackoff2Seconds),
		Backoff3:       sec(c.WorkerBackoff3Seconds),
		Backoff4:       sec(c.WorkerBackoff4Seconds),
	}
}

func newPoller(cfg *config.Config, repo poller.Repository, rec poller.Reconciler, rl poller.RateLimiter) *poller.Poller {
	pollInterval := time.Duration(cfg.CourierHub.WorkerPollIntervalSeconds) * time.Second
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	batchSize := cfg.CourierHub.WorkerBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	// группа не должна превышать лимит ReconcileBatch
	if m := cfg.CourierHub.MaxBatchSize; m > 0 && batchSize > m {
		batchSize = m
	}
	concurrency := cfg.CourierHub.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	lease := time.Duration(cfg.CourierHub.WorkerLeaseSeconds) * time.Second
	if lease <= 0 {
		lease = 120 * time.Second
	}
	rlPerMin := int64(cfg.CourierHub.WorkerRateLimitPerMinute)
	if rlPerMin <= 0 {
		rlPerMin = 120
	}

	return poller.New(repo, rec, rl).
		WithSettings(pollInterval, batchSize, concurrency, lease, rlPerMin).
		WithPlanner(plannerConfig(cfg)).
		WithProviderRateLimits(providers.RateLimits(cfg))
}

func RunTrackWorker(ctx context.Context, cfg *config.Config, f workerFactories, httpOpts *workerHTTPOpts) error {
	repo, rec, closeFn, err := f.newBackend(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	p := newPoller(cfg, repo, rec, f.newRateLimiter(cfg))

	if httpOpts != nil {
		opts := *httpOpts
		opts.poller = p
		opts.cfg = cfg
		httpErr := make(chan error, 1)
		go func() {
			err := runWorkerHTTPServer(ctx, opts)
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("worker http server failed", "err", err)
			}
			httpErr <- err
		}()
		defer func() {
			select {
			case <-httpErr:
			case <-time.After(3 * time.Second):
			}
		}()
	}

	return p.Run(ctx)
}
