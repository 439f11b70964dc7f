package cli

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/freeeve/quizbattle/internal/config"
	"github.com/freeeve/quizbattle/internal/repository/postgres"
)

func newMigrateCmd(cfg *config.Config) *cobra.Command {
	var down bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply (or with --down roll back) database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Store != config.StorePostgres {
				return fmt.Errorf("migrate needs the postgres store, got %q", cfg.Store)
			}
			db, err := postgres.Connect(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			if down {
				return postgres.Rollback(cmd.Context(), db)
			}
			if err := postgres.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			log.Info().Msg("Database is up to date")
			return nil
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "roll back the last migration group")
	return cmd
}
