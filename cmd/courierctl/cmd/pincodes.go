package cmd

import (
	"fmt"

	"github.com/BearBump/CourierHub/config"
	"github.com/spf13/cobra"
)

func newPincodesCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pincodes",
		Short: "Pincode directory management",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "import FILE",
		Short: "Upsert pincodes from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := config.LoadPincodes(args[0])
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
			if err := st.UpsertPincodes(ctx, items); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d pincodes\n", len(items))
			return nil
		},
	})

	return cmd
}
