// /internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Streamer names accepted by STREAMER.
const (
	StreamerYtdlpPipe = "ytdlp-pipe"
	StreamerKkdaiPipe = "kkdai-pipe"
)

type Config struct {
	DiscordToken          string   `env:"DISCORD_TOKEN"`
	StoragePath           string   `env:"STORAGE_PATH" envDefault:"./data/datastore.json"`
	InitSlashCommands     bool     `env:"INIT_SLASH_COMMANDS" envDefault:"true"`
	DiscordGuildBlacklist []string `env:"DISCORD_GUILD_BLACKLIST" envSeparator:","`

	YtdlpPath       string        `env:"YTDLP_PATH" envDefault:"yt-dlp"`
	FFmpegPath      string        `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	DefaultSearch   string        `env:"DEFAULT_SEARCH" envDefault:"ytsearch"`
	ExtractorBuffer string        `env:"EXTRACTOR_BUFFER" envDefault:"16M"`
	Streamer        string        `env:"STREAMER" envDefault:"ytdlp-pipe"`
	SampleRate      int           `env:"SAMPLE_RATE" envDefault:"48000"`
	Channels        int           `env:"CHANNELS" envDefault:"2"`
	OpusBitrate     int           `env:"OPUS_BITRATE" envDefault:"128000"`
	YoutubeProxy    string        `env:"YOUTUBE_PROXY"`
	PlaylistBuffer  int           `env:"PLAYLIST_BUFFER" envDefault:"16"`
	ResolveTimeout  time.Duration `env:"RESOLVE_TIMEOUT" envDefault:"30s"`
	PlaylistTimeout time.Duration `env:"PLAYLIST_TIMEOUT" envDefault:"10m"`

	AIProvider string `env:"AI_PROVIDER" envDefault:"none"`

	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile       string `env:"LOG_FILE"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"10"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"3"`
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	if err := loadDotenv(); err != nil {
		return nil, err
	}
	return Parse()
}

// LoadTools is Load for the offline tools, which never talk to Discord and
// so do not need a token.
func LoadTools() (*Config, error) {
	if err := loadDotenv(); err != nil {
		return nil, err
	}
	return parse(false)
}

func loadDotenv() error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// Parse reads the configuration from the process environment only.
func Parse() (*Config, error) {
	return parse(true)
}

func parse(requireToken bool) (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if requireToken && cfg.DiscordToken == "" {
		return nil, fmt.Errorf("DISCORD_TOKEN is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Streamer {
	case StreamerYtdlpPipe, StreamerKkdaiPipe:
	default:
		return fmt.Errorf("unsupported STREAMER: %q", c.Streamer)
	}

	switch {
	case c.AIProvider == "none", c.AIProvider == "", c.AIProvider == "pollinations":
	case strings.HasPrefix(c.AIProvider, "g4f"):
	default:
		return fmt.Errorf("unsupported AI_PROVIDER: %q", c.AIProvider)
	}

	// Opus only encodes these rates, in mono or stereo.
	switch c.SampleRate {
	case 8000, 12000, 16000, 24000, 48000:
	default:
		return fmt.Errorf("unsupported SAMPLE_RATE: %d", c.SampleRate)
	}
	if c.Channels < 1 || c.Channels > 2 {
		return fmt.Errorf("unsupported CHANNELS: %d", c.Channels)
	}
	if c.PlaylistBuffer < 1 {
		c.PlaylistBuffer = 1
	}
	return nil
}
