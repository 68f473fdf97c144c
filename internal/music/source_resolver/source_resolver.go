// Package source_resolver turns user queries and URLs into track descriptors
// by asking yt-dlp for metadata only.
package source_resolver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"strings"
	"time"

	"github.com/dewmguy/discordmusic/internal/music/parsers"
	"github.com/dewmguy/discordmusic/internal/music/parsers/ytdlp"
	"github.com/dewmguy/discordmusic/internal/music/sources"
	"github.com/rs/zerolog"
)

const (
	maxRecordSize = 1 << 20
	stderrTail    = 2 << 10
)

// Normalizer rewrites free text into a search term.
type Normalizer interface {
	Normalize(ctx context.Context, query string) (string, error)
}

// Passthrough leaves queries untouched.
type Passthrough struct{}

func (Passthrough) Normalize(_ context.Context, query string) (string, error) {
	return query, nil
}

// CommandFunc builds the metadata command for a prepared query.
type CommandFunc func(ctx context.Context, query string, playlist bool) *exec.Cmd

type Options struct {
	YtdlpPath       string
	DefaultSearch   string
	Proxy           string
	Timeout         time.Duration
	PlaylistTimeout time.Duration
	// Buffer is the channel capacity used by Stream.
	Buffer     int
	Normalizer Normalizer
	Log        zerolog.Logger
}

type Option func(*Resolver)

// WithCommandFunc replaces the yt-dlp invocation.
func WithCommandFunc(fn CommandFunc) Option {
	return func(r *Resolver) { r.command = fn }
}

type Resolver struct {
	command         CommandFunc
	normalizer      Normalizer
	timeout         time.Duration
	playlistTimeout time.Duration
	buffer          int
	log             zerolog.Logger
}

func New(opts Options, options ...Option) *Resolver {
	info := ytdlp.InfoOptions{Path: opts.YtdlpPath, DefaultSearch: opts.DefaultSearch, Proxy: opts.Proxy}
	r := &Resolver{
		command: func(ctx context.Context, query string, playlist bool) *exec.Cmd {
			return ytdlp.InfoCommand(ctx, info, query, playlist)
		},
		normalizer:      opts.Normalizer,
		timeout:         opts.Timeout,
		playlistTimeout: opts.PlaylistTimeout,
		buffer:          opts.Buffer,
		log:             opts.Log,
	}
	if r.normalizer == nil {
		r.normalizer = Passthrough{}
	}
	if r.buffer <= 0 {
		r.buffer = 1
	}
	for _, o := range options {
		o(r)
	}
	return r
}

// Resolve returns exactly one track for query.
func (r *Resolver) Resolve(ctx context.Context, query string) ([]sources.Track, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var tracks []sources.Track
	_, err := r.run(ctx, query, false, func(t sources.Track) error {
		tracks = append(tracks, t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tracks, nil
}

// ResolveAll expands query as a playlist and hands each track to yield as
// soon as it is parsed. It returns the number of delivered tracks. Tracks
// already delivered stay valid when the extractor fails halfway.
func (r *Resolver) ResolveAll(ctx context.Context, query string, yield func(sources.Track) error) (int, error) {
	if r.playlistTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.playlistTimeout)
		defer cancel()
	}
	return r.run(ctx, query, true, yield)
}

// Stream runs ResolveAll in the background. Tracks arrive on the first
// channel, which is closed when resolution ends; the second channel then
// yields exactly one result (nil on success). A consumer that stops reading
// holds the extractor back until ctx is done.
func (r *Resolver) Stream(ctx context.Context, query string) (<-chan sources.Track, <-chan error) {
	out := make(chan sources.Track, r.buffer)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		_, err := r.ResolveAll(ctx, query, func(t sources.Track) error {
			select {
			case out <- t:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		errc <- err
		close(errc)
	}()

	return out, errc
}

func (r *Resolver) run(ctx context.Context, query string, playlist bool, yield func(sources.Track) error) (int, error) {
	target, err := r.prepare(ctx, query)
	if err != nil {
		return 0, err
	}
	log := r.log.With().Str("query", target).Bool("playlist", playlist).Logger()

	cmd := r.command(ctx, target, playlist)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 0, &ResolutionError{Query: query, Err: err}
	}
	stderr := parsers.NewTail(stderrTail)
	cmd.Stderr = stderr
	parsers.Isolate(cmd)

	if err := cmd.Start(); err != nil {
		return 0, &ResolutionError{Query: query, Err: fmt.Errorf("failed to start extractor: %w", err)}
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64<<10), maxRecordSize)

	n := 0
	var yieldErr error
	// single mode needs one record; the rest of the output is not waited for
	satisfied := false
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		track, err := parseRecord(line)
		if err != nil {
			log.Warn().Err(err).Msg("dropping malformed record")
			continue
		}
		if err := yield(track); err != nil {
			yieldErr = err
			break
		}
		n++
		if !playlist {
			satisfied = true
			break
		}
	}
	scanErr := scanner.Err()

	if satisfied || yieldErr != nil || scanErr != nil {
		parsers.Terminate(cmd)
	}
	waitErr := cmd.Wait()

	switch {
	case yieldErr != nil:
		return n, yieldErr
	case n > 0:
		if !satisfied && (waitErr != nil || scanErr != nil) {
			log.Warn().Err(errors.Join(waitErr, scanErr)).Int("tracks", n).Msg("extractor failed after partial results")
		}
		return n, nil
	case ctx.Err() != nil:
		return 0, &ResolutionError{Query: query, Err: fmt.Errorf("%w: %w", ErrNoResults, ctx.Err())}
	case scanErr != nil:
		return 0, &ResolutionError{Query: query, Err: fmt.Errorf("failed to read extractor output: %w", scanErr)}
	}

	if msg := stderr.String(); msg != "" {
		return 0, &ResolutionError{Query: query, Err: fmt.Errorf("%w: %s", ErrNoResults, msg)}
	}
	return 0, &ResolutionError{Query: query, Err: ErrNoResults}
}

// prepare passes URLs through and normalizes everything else. A failing
// normalizer falls back to the raw query.
func (r *Resolver) prepare(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", &ResolutionError{Query: query, Err: errors.New("empty query")}
	}
	if isURL(query) {
		return query, nil
	}

	normalized, err := r.normalizer.Normalize(ctx, query)
	normalized = strings.TrimSpace(normalized)
	if err != nil || normalized == "" {
		if err != nil {
			r.log.Warn().Err(err).Str("query", query).Msg("query normalization failed, using raw query")
		}
		return query, nil
	}
	return normalized, nil
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func parseRecord(line []byte) (sources.Track, error) {
	var t sources.Track
	if err := json.Unmarshal(line, &t); err != nil {
		return sources.Track{}, fmt.Errorf("invalid record: %w", err)
	}
	if err := t.Validate(); err != nil {
		return sources.Track{}, err
	}
	return t, nil
}
