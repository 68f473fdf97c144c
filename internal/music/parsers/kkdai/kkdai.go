// Package kkdai is the in-process extractor: YouTube audio is fetched over
// HTTP by github.com/kkdai/youtube and fed to the transcoder without a
// yt-dlp child process.
package kkdai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/dewmguy/discordmusic/internal/music/parsers"
	"github.com/dewmguy/discordmusic/internal/music/sources"
	youtube "github.com/kkdai/youtube/v2"
)

const Name = "kkdai-pipe"

var ErrNoAudioFormat = errors.New("no audio formats found for video")

// Client is the subset of *youtube.Client the extractor needs.
type Client interface {
	GetVideoContext(ctx context.Context, id string) (*youtube.Video, error)
	GetStreamContext(ctx context.Context, video *youtube.Video, format *youtube.Format) (io.ReadCloser, int64, error)
}

type Extractor struct {
	client Client
}

func New(client Client) *Extractor {
	return &Extractor{client: client}
}

// NewClient returns a youtube client, optionally behind an http(s) or socks5 proxy.
func NewClient(proxy string) (*youtube.Client, error) {
	httpClient := &http.Client{Timeout: 0}
	if proxy != "" {
		u, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy: %w", err)
		}
		switch u.Scheme {
		case "http", "https", "socks5":
		default:
			return nil, fmt.Errorf("unsupported proxy scheme: %s", u.Scheme)
		}
		httpClient.Transport = &http.Transport{
			Proxy:                 http.ProxyURL(u),
			ResponseHeaderTimeout: 15 * time.Second,
		}
	}
	return &youtube.Client{HTTPClient: httpClient}, nil
}

func (e *Extractor) Name() string { return Name }

func (e *Extractor) Open(ctx context.Context, track sources.Track) (parsers.Source, error) {
	video, err := e.client.GetVideoContext(ctx, track.URL)
	if err != nil {
		return nil, fmt.Errorf("youtube client error: %w", err)
	}

	formats := video.Formats.WithAudioChannels()
	if len(formats) == 0 {
		return nil, ErrNoAudioFormat
	}

	body, _, err := e.client.GetStreamContext(ctx, video, &formats[0])
	if err != nil {
		return nil, fmt.Errorf("get stream error: %w", err)
	}

	return newBodySource(body), nil
}

// bodySource adapts an HTTP body to parsers.Source. os/exec copies it into
// the transcoder's stdin, so completion is observed through Read.
type bodySource struct {
	body io.ReadCloser

	once sync.Once
	done chan struct{}
	err  error
}

func newBodySource(body io.ReadCloser) *bodySource {
	return &bodySource{body: body, done: make(chan struct{})}
}

func (b *bodySource) Stream() io.Reader { return b }

func (b *bodySource) Read(p []byte) (int, error) {
	n, err := b.body.Read(p)
	if err != nil {
		if errors.Is(err, io.EOF) {
			b.finish(nil)
		} else {
			b.finish(err)
		}
	}
	return n, err
}

func (b *bodySource) finish(err error) {
	b.once.Do(func() {
		b.err = err
		b.body.Close()
		close(b.done)
	})
}

func (b *bodySource) Detach() {}

func (b *bodySource) Wait() error {
	<-b.done
	return b.err
}

func (b *bodySource) Terminate() {
	b.finish(nil)
}
