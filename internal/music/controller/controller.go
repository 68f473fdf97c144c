// Package controller maps user commands onto sessions: it checks who may
// control a guild's playback, resolves queries and turns failures into
// short user-facing messages.
package controller

import (
	"context"
	"errors"
	"time"

	"github.com/dewmguy/discordmusic/internal/music/player"
	"github.com/dewmguy/discordmusic/internal/music/sources"
	"github.com/rs/zerolog"
)

var (
	ErrUserNotInVoice   = errors.New("user is not in a voice channel")
	ErrDifferentChannel = errors.New("user is in a different voice channel")
	ErrNothingPlaying   = errors.New("nothing is playing")
)

const defaultPlaylistTimeout = 10 * time.Minute

// Resolver turns queries into tracks.
type Resolver interface {
	Resolve(ctx context.Context, query string) ([]sources.Track, error)
	Stream(ctx context.Context, query string) (<-chan sources.Track, <-chan error)
}

type Options struct {
	PlaylistTimeout time.Duration
	Log             zerolog.Logger
}

type Controller struct {
	sessions        *player.Registry
	resolver        Resolver
	playlistTimeout time.Duration
	log             zerolog.Logger
}

// QueueView is a snapshot of a session's queue.
type QueueView struct {
	Tracks []sources.Track
	Cursor int
	State  player.State
}

func New(sessions *player.Registry, resolver Resolver, opts Options) *Controller {
	if opts.PlaylistTimeout <= 0 {
		opts.PlaylistTimeout = defaultPlaylistTimeout
	}
	return &Controller{
		sessions:        sessions,
		resolver:        resolver,
		playlistTimeout: opts.PlaylistTimeout,
		log:             opts.Log,
	}
}

// RequireSameChannel returns the guild's session if the user sits in the
// channel the bot is playing to.
func (c *Controller) RequireSameChannel(guildID, userChannelID string) (*player.Player, error) {
	if userChannelID == "" {
		return nil, ErrUserNotInVoice
	}
	p, err := c.sessions.Get(guildID)
	if err != nil {
		return nil, err
	}
	if p.ChannelID() != userChannelID {
		return nil, ErrDifferentChannel
	}
	return p, nil
}

// Join connects to the user's channel and opens a session.
func (c *Controller) Join(ctx context.Context, guildID, userChannelID string) (*player.Player, error) {
	if userChannelID == "" {
		return nil, ErrUserNotInVoice
	}
	return c.sessions.Create(ctx, guildID, userChannelID)
}

func (c *Controller) Leave(guildID, userChannelID string) error {
	if _, err := c.RequireSameChannel(guildID, userChannelID); err != nil {
		return err
	}
	return c.sessions.Destroy(guildID)
}

// Enqueue resolves query and queues the result. In playlist mode the first
// track is queued before returning and the rest follow in the background.
// The returned tracks are the ones already queued.
func (c *Controller) Enqueue(ctx context.Context, guildID, userChannelID, query string, playlist bool) ([]sources.Track, error) {
	p, err := c.RequireSameChannel(guildID, userChannelID)
	if err != nil {
		return nil, err
	}

	if !playlist {
		tracks, err := c.resolver.Resolve(ctx, query)
		if err != nil {
			return nil, err
		}
		if err := p.Enqueue(tracks...); err != nil {
			return nil, err
		}
		return tracks, nil
	}

	// The expansion outlives the command that started it.
	expandCtx, cancel := context.WithTimeout(context.Background(), c.playlistTimeout)
	tracks, errs := c.resolver.Stream(expandCtx, query)

	var first sources.Track
	select {
	case t, ok := <-tracks:
		if !ok {
			err := <-errs
			cancel()
			return nil, err
		}
		first = t
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	}

	if err := p.Enqueue(first); err != nil {
		cancel()
		return nil, err
	}

	result := make(chan error, 1)
	go func() {
		var err error
		select {
		case err = <-errs:
		case <-p.Done():
			// the session is gone; release the extractor
			cancel()
			err = <-errs
		}
		cancel()
		result <- err
		close(result)
	}()
	if err := p.EnqueueStream(expandCtx, tracks, result); err != nil {
		cancel()
		return nil, err
	}
	return []sources.Track{first}, nil
}

// Play resumes a paused session.
func (c *Controller) Play(guildID, userChannelID string) error {
	p, err := c.RequireSameChannel(guildID, userChannelID)
	if err != nil {
		return err
	}
	return p.Resume()
}

func (c *Controller) Pause(guildID, userChannelID string) error {
	p, err := c.RequireSameChannel(guildID, userChannelID)
	if err != nil {
		return err
	}
	return p.Pause()
}

func (c *Controller) Skip(guildID, userChannelID string) (sources.Track, error) {
	p, err := c.RequireSameChannel(guildID, userChannelID)
	if err != nil {
		return sources.Track{}, err
	}
	return p.Skip()
}

// Stop ends playback, leaves the channel and discards the session. It
// returns the track that was playing.
func (c *Controller) Stop(guildID, userChannelID string) (sources.Track, error) {
	p, err := c.RequireSameChannel(guildID, userChannelID)
	if err != nil {
		return sources.Track{}, err
	}
	current, ok := p.Current()
	if !ok {
		return sources.Track{}, ErrNothingPlaying
	}
	if err := c.sessions.Destroy(guildID); err != nil {
		return current, err
	}
	return current, nil
}

func (c *Controller) NowPlaying(guildID string) (sources.Track, error) {
	p, err := c.sessions.Get(guildID)
	if err != nil {
		return sources.Track{}, err
	}
	current, ok := p.Current()
	if !ok {
		return sources.Track{}, ErrNothingPlaying
	}
	return current, nil
}

func (c *Controller) Queue(guildID string) (QueueView, error) {
	p, err := c.sessions.Get(guildID)
	if err != nil {
		return QueueView{}, err
	}
	return QueueView{Tracks: p.Tracks(), Cursor: p.Cursor(), State: p.State()}, nil
}
