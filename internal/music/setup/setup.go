// Package setup builds the music components from configuration. The bot and
// the CLI share it so both resolve and stream the same way.
package setup

import (
	"fmt"

	"github.com/dewmguy/discordmusic/internal/ai"
	"github.com/dewmguy/discordmusic/internal/config"
	"github.com/dewmguy/discordmusic/internal/logger"
	"github.com/dewmguy/discordmusic/internal/music/parsers/ffmpeg"
	"github.com/dewmguy/discordmusic/internal/music/source_resolver"
	"github.com/dewmguy/discordmusic/internal/music/stream"
	"github.com/rs/zerolog"
)

// Resolver returns a metadata resolver. Free-text queries go through the
// configured LLM provider first, if any.
func Resolver(cfg *config.Config, log zerolog.Logger) (*source_resolver.Resolver, error) {
	provider, err := ai.NewProvider(cfg.AIProvider)
	if err != nil {
		return nil, err
	}

	var normalizer source_resolver.Normalizer = source_resolver.Passthrough{}
	if provider != nil {
		normalizer = ai.NewQueryNormalizer(provider, logger.Component(log, "ai"))
	}

	return source_resolver.New(source_resolver.Options{
		YtdlpPath:       cfg.YtdlpPath,
		DefaultSearch:   cfg.DefaultSearch,
		Proxy:           cfg.YoutubeProxy,
		Timeout:         cfg.ResolveTimeout,
		PlaylistTimeout: cfg.PlaylistTimeout,
		Buffer:          cfg.PlaylistBuffer,
		Normalizer:      normalizer,
		Log:             logger.Component(log, "resolver"),
	}), nil
}

// Pipelines returns a factory for extract/transcode pipelines using the
// configured streamer.
func Pipelines(cfg *config.Config, log zerolog.Logger) (*stream.Factory, error) {
	extractor, err := stream.NewExtractor(cfg.Streamer, stream.ExtractorOptions{
		YtdlpPath:  cfg.YtdlpPath,
		BufferSize: cfg.ExtractorBuffer,
		Proxy:      cfg.YoutubeProxy,
	})
	if err != nil {
		return nil, fmt.Errorf("extractor: %w", err)
	}

	return &stream.Factory{
		Extractor:  extractor,
		Transcoder: ffmpeg.New(cfg.FFmpegPath, cfg.SampleRate, cfg.Channels),
		Log:        logger.Component(log, "pipeline"),
	}, nil
}
