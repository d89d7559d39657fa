package cmd

import (
	"fmt"
	"os"

	"github.com/BearBump/CourierHub/internal/secrets"
	"github.com/spf13/cobra"
)

func newSecretsCmd(root *rootOptions) *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Provider credential sealing",
	}
	cmd.PersistentFlags().StringVar(&key, "key", "", "credentials key (default is $COURIERHUB_CREDENTIALS_KEY, then config)")

	// sealer ищет ключ: флаг, переменная окружения, конфиг.
	sealer := func() (*secrets.Sealer, error) {
		k := key
		if k == "" {
			k = os.Getenv("COURIERHUB_CREDENTIALS_KEY")
		}
		if k == "" {
			cfg, err := root.loadConfig()
			if err != nil {
				return nil, fmt.Errorf("no credentials key: %w", err)
			}
			k = cfg.CourierHub.CredentialsKey
		}
		if k == "" {
			return nil, fmt.Errorf("no credentials key configured")
		}
		return secrets.NewFromString(k)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "genkey",
		Short: "Generate a new credentials key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := secrets.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), k)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "seal VALUE",
		Short: "Seal a credential value for manual storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := sealer()
			if err != nil {
				return err
			}
			sealed, err := s.Seal(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sealed)
			return nil
		},
	})

	var (
		clientID int64
		provider string
		envKey   string
	)
	put := &cobra.Command{
		Use:   "put VALUE",
		Short: "Seal a credential and store it for a client and provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := sealer()
			if err != nil {
				return err
			}
			sealed, err := s.Seal(args[0])
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
			if err := st.PutSealedCredential(ctx, clientID, provider, envKey, sealed); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %s/%s for client %d\n", provider, envKey, clientID)
			return nil
		},
	}
	put.Flags().Int64Var(&clientID, "client", 0, "client id")
	put.Flags().StringVar(&provider, "provider", "", "provider key, e.g. dtdc")
	put.Flags().StringVar(&envKey, "name", "", "credential name, e.g. tracking_token")
	_ = put.MarkFlagRequired("provider")
	_ = put.MarkFlagRequired("name")
	cmd.AddCommand(put)

	return cmd
}
