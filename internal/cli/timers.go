package cli

import (
	"context"
	"encoding/json"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/freeeve/quizbattle/internal/app"
	"github.com/freeeve/quizbattle/internal/config"
)

func newTimersCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timers",
		Short: "Inspect and drive turn timers",
	}
	cmd.AddCommand(newTimersProcessCmd(cfg))
	return cmd
}

func newTimersProcessCmd(cfg *config.Config) *cobra.Command {
	var loop bool
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Send due warnings, time out expired turns and recover stalled games",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if loop {
				return runSweeper(ctx, a, interval)
			}
			return sweepOnce(ctx, cmd, a)
		},
	}
	cmd.Flags().BoolVar(&loop, "loop", false, "keep sweeping until interrupted")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "time between sweeps with --loop")
	return cmd
}

func sweepOnce(ctx context.Context, cmd *cobra.Command, a *app.App) error {
	stopEvents, flushed := a.StartEvents(ctx)
	stats := a.Sweeper.Tick(ctx)
	stopEvents()
	<-flushed

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}

func runSweeper(ctx context.Context, a *app.App, interval time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		stopEvents, flushed := a.StartEvents(ctx)
		<-ctx.Done()
		stopEvents()
		<-flushed
		return nil
	})
	g.Go(func() error {
		a.Sweeper.Run(ctx, interval)
		return nil
	})
	return g.Wait()
}
