// cmd/discord/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dewmguy/discordmusic/internal/config"
	"github.com/dewmguy/discordmusic/internal/discord"
	"github.com/dewmguy/discordmusic/internal/logger"
	"github.com/dewmguy/discordmusic/internal/music/setup"
	"github.com/dewmguy/discordmusic/internal/storage"
	zlog "github.com/rs/zerolog/log"
)

const appName = "discordmusic"

func main() {
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to load config")
	}

	log := logger.New(logger.Options{
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})
	// pkg helpers log through the global logger
	zlog.Logger = log
	log.Info().Str("app", appName).Msg("starting bot")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.New(cfg.StoragePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open storage")
	}
	defer store.Close()

	resolver, err := setup.Resolver(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build resolver")
	}
	pipelines, err := setup.Pipelines(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build pipeline")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- discord.StartBot(ctx, cfg, store, discord.Deps{Resolver: resolver, Pipeline: pipelines}, log)
		close(errCh)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("shutting down")
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("discord bot error")
		}
		cancel()
	}

	log.Info().Msg("discord bot exited cleanly")
}
