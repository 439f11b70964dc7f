package cli

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/freeeve/quizbattle/internal/config"
	"github.com/freeeve/quizbattle/internal/repository/postgres"
)

func newSeedCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "seed [catalog.yaml]",
		Short: "Load a question and monster catalog into Postgres",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfg.CatalogFile
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return fmt.Errorf("no catalog given")
			}
			catalog, err := config.LoadCatalog(path)
			if err != nil {
				return err
			}

			db, err := postgres.Connect(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := cmd.Context()
			questions := postgres.NewQuestionRepo(db)
			for _, q := range catalog.Questions {
				if err := questions.Upsert(ctx, q); err != nil {
					return fmt.Errorf("seed question %s: %w", q.ID, err)
				}
			}
			monsters := postgres.NewMonsterRepo(db)
			for _, m := range catalog.Monsters {
				if err := monsters.Upsert(ctx, m); err != nil {
					return fmt.Errorf("seed monster %s: %w", m.ID, err)
				}
			}
			log.Info().Int("questions", len(catalog.Questions)).Int("monsters", len(catalog.Monsters)).Msg("Catalog seeded")
			return nil
		},
	}
}
