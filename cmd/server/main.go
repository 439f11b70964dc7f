package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/quizbattle/internal/app"
	"github.com/freeeve/quizbattle/internal/config"
	"github.com/freeeve/quizbattle/internal/logger"
)

func main() {
	logger.Init()
	cfg := config.Load()
	log.Info().Str("store", cfg.Store).Str("port", cfg.Port).Msg("Config loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Startup failed")
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		log.Error().Err(err).Msg("Server error")
	}
}
