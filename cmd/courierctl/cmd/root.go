// Package cmd содержит команды операторского CLI courierctl.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/BearBump/CourierHub/config"
	"github.com/BearBump/CourierHub/internal/storage/pgstore"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	verbose    bool
	timeout    time.Duration
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "courierctl",
		Short: "Operator tools for CourierHub",
		Long: `courierctl covers operator tasks that do not belong in the HTTP API:
price quotes (online or against an offline rates file), rate and pincode imports,
sealing provider credentials, and one-off tracking reconciliation.

Examples:
  courierctl quote --rates rates.yaml --service EXPRESS --weight 1.5 --from 110001 --to 400001
  courierctl rates validate rates.yaml
  courierctl secrets seal --key $COURIERHUB_CREDENTIALS_KEY my-token
  courierctl reconcile --client 7 --provider dtdc D1001 D1002`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if opts.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default is $configPath)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable verbose output")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "overall command timeout")

	root.AddCommand(
		newQuoteCmd(opts),
		newRatesCmd(opts),
		newSecretsCmd(opts),
		newPincodesCmd(opts),
		newReconcileCmd(opts),
	)
	return root
}

func Execute() error {
	return NewRootCmd().Execute()
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	path := o.configPath
	if path == "" {
		path = os.Getenv("configPath")
	}
	if path == "" {
		return nil, fmt.Errorf("--config or configPath env var is required")
	}
	return config.LoadConfig(path)
}

func (o *rootOptions) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), o.timeout)
}

func openStore(cfg *config.Config) (*pgstore.Storage, error) {
	return pgstore.New(cfg.Database.ConnString())
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
