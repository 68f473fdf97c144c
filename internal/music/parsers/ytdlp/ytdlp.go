// Package ytdlp builds yt-dlp invocations: the streaming extractor used by the
// playback pipeline and the metadata lookup used by the resolver.
package ytdlp

import (
	"context"
	"os/exec"

	"github.com/dewmguy/discordmusic/internal/music/parsers"
	"github.com/dewmguy/discordmusic/internal/music/sources"
	"github.com/lrstanley/go-ytdlp"
)

const Name = "ytdlp-pipe"

type Options struct {
	Path       string
	BufferSize string
	Proxy      string
}

// Extractor streams the best audio format of a track to stdout.
type Extractor struct {
	opts Options
}

func New(opts Options) *Extractor {
	if opts.BufferSize == "" {
		opts.BufferSize = "16M"
	}
	return &Extractor{opts: opts}
}

func (e *Extractor) Name() string { return Name }

func (e *Extractor) Open(ctx context.Context, track sources.Track) (parsers.Source, error) {
	return parsers.StartProcess(e.Command(ctx, track.URL))
}

// Command returns the yt-dlp process that writes the audio of url to stdout.
func (e *Extractor) Command(ctx context.Context, url string) *exec.Cmd {
	b := ytdlp.New().
		Format("bestaudio").
		Output("-").
		NoPart().
		NoPlaylist().
		Quiet().
		NoWarnings().
		IgnoreConfig()
	if e.opts.Proxy != "" {
		b.Proxy(e.opts.Proxy)
	}

	cmd := b.BuildCommand(ctx, "--buffer-size", e.opts.BufferSize, "--hls-prefer-ffmpeg", url)
	return WithBinary(cmd, e.opts.Path)
}

// WithBinary points cmd at a specific yt-dlp executable when one is configured.
func WithBinary(cmd *exec.Cmd, path string) *exec.Cmd {
	if path == "" {
		return cmd
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		cmd.Err = err
		return cmd
	}
	cmd.Path = resolved
	if len(cmd.Args) > 0 {
		cmd.Args[0] = path
	}
	cmd.Err = nil
	return cmd
}
