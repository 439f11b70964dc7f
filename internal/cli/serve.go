package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/freeeve/quizbattle/internal/app"
	"github.com/freeeve/quizbattle/internal/config"
)

func newServeCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the battle server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&cfg.Port, "port", cfg.Port, "port to listen on")
	cmd.Flags().BoolVar(&cfg.SweeperEnabled, "sweeper", cfg.SweeperEnabled, "run the timeout sweeper in this process")
	cmd.Flags().DurationVar(&cfg.SweepInterval, "sweep-interval", cfg.SweepInterval, "time between sweeps")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.Run(ctx)
}
