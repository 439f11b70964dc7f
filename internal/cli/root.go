// Package cli implements the battlectl command tree.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/freeeve/quizbattle/internal/config"
	"github.com/freeeve/quizbattle/internal/logger"
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	cfg := config.Load()

	cmd := &cobra.Command{
		Use:           "battlectl",
		Short:         "Multiplayer quiz battle server and operator tools",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Init()
		},
	}

	cmd.PersistentFlags().StringVar(&cfg.Store, "store", cfg.Store, "backing store: memory or postgres")
	cmd.PersistentFlags().StringVar(&cfg.BalanceFile, "balance", cfg.BalanceFile, "path to a YAML balance file")
	cmd.PersistentFlags().StringVar(&cfg.CatalogFile, "catalog", cfg.CatalogFile, "path to a YAML question and monster catalog")

	cmd.AddCommand(newServeCmd(cfg))
	cmd.AddCommand(newMigrateCmd(cfg))
	cmd.AddCommand(newTimersCmd(cfg))
	cmd.AddCommand(newTokenCmd(cfg))
	cmd.AddCommand(newSeedCmd(cfg))
	return cmd
}
