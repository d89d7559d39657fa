package cmd

import (
	"time"

	"github.com/BearBump/CourierHub/internal/broker/kafka"
	"github.com/BearBump/CourierHub/internal/cache/rediscache"
	"github.com/BearBump/CourierHub/internal/integrations/carrier/providers"
	"github.com/BearBump/CourierHub/internal/services/consignments"
	"github.com/BearBump/CourierHub/internal/services/reconciler"
	"github.com/BearBump/CourierHub/internal/storage/pgstore"
	"github.com/spf13/cobra"
)

func newReconcileCmd(root *rootOptions) *cobra.Command {
	var (
		req    reconciler.BatchRequest
		notify bool
	)

	cmd := &cobra.Command{
		Use:   "reconcile AWB...",
		Short: "Fetch AWBs from a provider and store the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			sealer, err := providers.NewSealer(cfg)
			if err != nil {
				return err
			}
			var opener pgstore.Opener
			if sealer != nil {
				opener = sealer
			}

			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			rec := reconciler.New(providers.NewRegistry(cfg), st, st.Credentials(opener)).
				WithSettings(
					time.Duration(cfg.CourierHub.FetchTimeoutSeconds)*time.Second,
					cfg.CourierHub.BatchConcurrency,
					cfg.CourierHub.MaxBatchSize,
				)
			if notify && cfg.Kafka.Host != "" {
				producer := kafka.NewProducer(cfg.Kafka.Brokers())
				defer func() { _ = producer.Close() }()
				rec = rec.WithPublisher(producer, cfg.Kafka.StatusChangedTopicName)
			}
			if cfg.Redis.Host != "" {
				rc := rediscache.New(cfg.Redis.Addr())
				defer func() { _ = rc.Close() }()
				rec = rec.WithInvalidator(consignments.New(st, rc, cfg.CourierHub.CurrentStatusTTL()))
			}

			ctx, cancel := root.context(cmd)
			defer cancel()

			req.AWBs = args
			items, err := rec.ReconcileBatch(ctx, req)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"results": items})
		},
	}

	cmd.Flags().Int64Var(&req.ClientID, "client", 0, "client id")
	cmd.Flags().StringVar(&req.Provider, "provider", "dtdc", "provider key")
	cmd.Flags().BoolVar(&notify, "notify", true, "publish status changes to Kafka")
	_ = cmd.MarkFlagRequired("client")

	return cmd
}
