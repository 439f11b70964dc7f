package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/freeeve/quizbattle/internal/auth"
	"github.com/freeeve/quizbattle/internal/config"
)

func newTokenCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint an access token for local testing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := auth.NewJWTManager(cfg.JWTSecret, cfg.TokenExpiry).GenerateAccessToken(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}
