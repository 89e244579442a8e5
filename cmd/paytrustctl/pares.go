package main

import (
	"fmt"
	"io"

	"github.com/alovak/paytrust/acs"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"
)

func paresCmd() *cobra.Command {
	var (
		md     string
		key    string
		reject bool
	)

	cmd := &cobra.Command{
		Use:   "pares",
		Short: "Mint a PARes for a challenge with the simulator signing key",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := acs.DefaultConfig()
			cfg.SigningKey = []byte(key)

			sim, err := acs.NewSimulator(cfg, slog.New(slog.NewTextHandler(io.Discard)))
			if err != nil {
				return err
			}

			pares, err := sim.Authenticate(md, !reject)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), pares)
			return nil
		},
	}

	cmd.Flags().StringVar(&md, "md", "", "merchant data returned by 3ds initiate")
	cmd.Flags().StringVar(&key, "key", getenv("ACS_SIGNING_KEY", "acs-simulator-dev-key"), "simulator signing key")
	cmd.Flags().BoolVar(&reject, "reject", false, "mint a failed authentication")
	cmd.MarkFlagRequired("md")

	return cmd
}
