package main

import (
	"context"
	"lyricsync/internal/app"
	"lyricsync/internal/config"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	if err := a.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Lyrics service stopped")
	}
}
