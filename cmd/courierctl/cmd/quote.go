package cmd

import (
	"github.com/BearBump/CourierHub/config"
	"github.com/BearBump/CourierHub/internal/services/pincodes"
	"github.com/BearBump/CourierHub/internal/services/tariff"
	"github.com/BearBump/CourierHub/internal/services/zones"
	"github.com/BearBump/CourierHub/internal/storage/memstore"
	"github.com/spf13/cobra"
)

type quoteRates interface {
	tariff.RateStore
	pincodes.Repository
}

func newQuoteCmd(root *rootOptions) *cobra.Command {
	var (
		q            tariff.Quote
		ratesPath    string
		pincodesPath string
	)

	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Calculate a shipping price",
		Long: `Calculate a shipping price breakdown.

With --rates the quote is computed offline from a YAML rates file (and an optional
--pincodes file for distance estimation); otherwise rates are read from Postgres.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := root.context(cmd)
			defer cancel()

			var store quoteRates
			if ratesPath != "" {
				rates, err := config.LoadRates(ratesPath)
				if err != nil {
					return err
				}
				if err := tariff.ValidateRateConfig(rates); err != nil {
					return err
				}
				mem := memstore.New()
				mem.LoadRates(rates)
				if pincodesPath != "" {
					items, err := config.LoadPincodes(pincodesPath)
					if err != nil {
						return err
					}
					mem.PutPincodes(items...)
				}
				store = mem
			} else {
				cfg, err := root.loadConfig()
				if err != nil {
					return err
				}
				st, err := openStore(cfg)
				if err != nil {
					return err
				}
				defer st.Close()
				store = st
			}

			calc := tariff.NewCalculator(store, zones.NewEstimator(pincodes.New(store, nil, 0)))
			b, err := calc.Calculate(ctx, q)
			if err != nil {
				return err
			}
			return printJSON(cmd, b)
		},
	}

	f := cmd.Flags()
	f.Int64Var(&q.ClientID, "client", 0, "client id; rates fall back to client 0")
	f.StringVar(&q.ServiceType, "service", "", "service code, e.g. EXPRESS")
	f.StringVar(&q.LoadType, "load", "DOCUMENT", "load type: DOCUMENT or NON-DOCUMENT")
	f.Float64Var(&q.WeightKg, "weight", 0, "weight in kg")
	f.StringVar(&q.OriginPincode, "from", "", "origin pincode")
	f.StringVar(&q.DestPincode, "to", "", "destination pincode")
	f.StringVar(&ratesPath, "rates", "", "offline rates YAML file")
	f.StringVar(&pincodesPath, "pincodes", "", "offline pincodes YAML file (with --rates)")
	_ = cmd.MarkFlagRequired("client")
	_ = cmd.MarkFlagRequired("service")
	_ = cmd.MarkFlagRequired("weight")

	return cmd
}
