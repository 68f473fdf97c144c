package stream

import (
	"fmt"
	"sort"

	"github.com/dewmguy/discordmusic/internal/music/parsers"
	"github.com/dewmguy/discordmusic/internal/music/parsers/kkdai"
	"github.com/dewmguy/discordmusic/internal/music/parsers/ytdlp"
	"github.com/rs/zerolog"
)

const (
	channels   = 2
	sampleRate = 48000
)

type ExtractorOptions struct {
	YtdlpPath  string
	BufferSize string
	Proxy      string
}

// StreamersRegistry maps a STREAMER name to its extractor constructor.
var StreamersRegistry = map[string]func(ExtractorOptions) (parsers.Extractor, error){
	ytdlp.Name: func(o ExtractorOptions) (parsers.Extractor, error) {
		return ytdlp.New(ytdlp.Options{Path: o.YtdlpPath, BufferSize: o.BufferSize, Proxy: o.Proxy}), nil
	},
	kkdai.Name: func(o ExtractorOptions) (parsers.Extractor, error) {
		client, err := kkdai.NewClient(o.Proxy)
		if err != nil {
			return nil, err
		}
		return kkdai.New(client), nil
	},
}

// NewExtractor looks up name in StreamersRegistry.
func NewExtractor(name string, opts ExtractorOptions) (parsers.Extractor, error) {
	ctor, ok := StreamersRegistry[name]
	if !ok {
		return nil, fmt.Errorf("streamer not found: %q (have %v)", name, streamerNames())
	}
	return ctor(opts)
}

func streamerNames() []string {
	names := make([]string, 0, len(StreamersRegistry))
	for n := range StreamersRegistry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Factory hands out a fresh Pipeline per track attempt.
type Factory struct {
	Extractor  parsers.Extractor
	Transcoder Transcoder
	Log        zerolog.Logger
}

func (f *Factory) New() *Pipeline {
	return NewPipeline(f.Extractor, f.Transcoder, f.Log)
}
