package cmd

import (
	"fmt"

	"github.com/BearBump/CourierHub/config"
	"github.com/BearBump/CourierHub/internal/models"
	"github.com/BearBump/CourierHub/internal/services/tariff"
	"github.com/spf13/cobra"
)

func newRatesCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rates",
		Short: "Rate configuration management",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate FILE",
		Short: "Check a rates file for overlapping slabs and bad values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rates, err := loadValidRates(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %s\n", ratesSummary(rates))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "import FILE",
		Short: "Validate a rates file and replace the stored rates of every client it mentions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rates, err := loadValidRates(args[0])
			if err != nil {
				return err
			}
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx, cancel := root.context(cmd)
			defer cancel()
			if err := st.ImportRates(ctx, rates); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported: %s\n", ratesSummary(rates))
			return nil
		},
	})

	return cmd
}

func loadValidRates(path string) (models.RateConfig, error) {
	rates, err := config.LoadRates(path)
	if err != nil {
		return models.RateConfig{}, err
	}
	if err := tariff.ValidateRateConfig(rates); err != nil {
		return models.RateConfig{}, err
	}
	return rates, nil
}

func ratesSummary(r models.RateConfig) string {
	return fmt.Sprintf("%d services, %d weight slabs, %d distance slabs, %d surcharges",
		len(r.Services), len(r.WeightSlabs), len(r.DistanceSlabs), len(r.Surcharges))
}
