// Package player owns the per-guild playback sessions. Every mutation of a
// session runs on that session's own goroutine, so idle notifications from
// the sink and user commands are applied strictly one after another.
package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/dewmguy/discordmusic/internal/music/queue"
	"github.com/dewmguy/discordmusic/internal/music/sources"
	"github.com/dewmguy/discordmusic/internal/music/stream"
	"github.com/dewmguy/discordmusic/pkg/jobmgr"
	"github.com/rs/zerolog"
)

const (
	inboxSize  = 16
	statusSize = 16
)

// Sink plays one audio resource at a time and reports when it is done.
type Sink interface {
	Play(res stream.Resource) error
	Pause()
	Resume()
	Stop()
	SetIdleHandler(fn func(id string))
}

// Pipeline turns a track into a PCM stream. ID names the current run and is
// used as the sink resource id. The error handler fires when a started run
// fails mid-stream.
type Pipeline interface {
	ID() string
	Start(ctx context.Context, track sources.Track) (io.ReadCloser, error)
	Stop()
	SetErrorHandler(fn func(id string, err error))
}

type Options struct {
	// NewPipeline is called once per track attempt.
	NewPipeline func() Pipeline
	Jobs        *jobmgr.Manager
	Log         zerolog.Logger
}

type Player struct {
	guildID   string
	channelID string
	sink      Sink
	opts      Options
	log       zerolog.Logger

	// Status receives lifecycle events. Events are dropped when nobody reads.
	Status chan StatusEvent

	inbox  chan func()
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	jobSeq atomic.Int64

	// Written only by the session goroutine, under mu so queries can read.
	mu         sync.RWMutex
	state      State
	queue      *queue.Queue
	pipe       Pipeline
	resourceID string
}

// New starts a session bound to a guild's voice channel.
func New(guildID, channelID string, sink Sink, opts Options) *Player {
	if opts.Jobs == nil {
		opts.Jobs = jobmgr.NewManager(nil)
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Player{
		guildID:   guildID,
		channelID: channelID,
		sink:      sink,
		opts:      opts,
		log:       opts.Log.With().Str("guild", guildID).Logger(),
		Status:    make(chan StatusEvent, statusSize),
		inbox:     make(chan func(), inboxSize),
		done:      make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
		queue:     queue.New(),
	}
	sink.SetIdleHandler(func(id string) {
		p.post(func() { p.handleIdle(id) })
	})
	go p.loop()
	return p
}

func (p *Player) loop() {
	defer close(p.done)
	for fn := range p.inbox {
		fn()
		if p.state == StateStopped {
			return
		}
	}
}

// do runs fn on the session goroutine and waits for its result.
func (p *Player) do(fn func() error) error {
	res := make(chan error, 1)
	select {
	case p.inbox <- func() { res <- fn() }:
	case <-p.done:
		return ErrSessionStopped
	}
	select {
	case err := <-res:
		return err
	case <-p.done:
		select {
		case err := <-res:
			return err
		default:
			return ErrSessionStopped
		}
	}
}

// post queues fn without waiting for it. Messages for a finished session are dropped.
func (p *Player) post(fn func()) {
	select {
	case p.inbox <- fn:
	case <-p.done:
	}
}

// Enqueue appends tracks. A session that is not already playing starts the
// first of them.
func (p *Player) Enqueue(tracks ...sources.Track) error {
	return p.do(func() error {
		if p.state == StateStopped {
			return ErrSessionStopped
		}
		if len(tracks) == 0 {
			return nil
		}
		n := p.queue.Append(tracks...)
		p.log.Debug().Int("added", len(tracks)).Int("queue_len", n).Msg("tracks enqueued")

		if p.state.Active() {
			p.emit(StatusEvent{Status: StatusAdded, Track: tracks[0]})
			return nil
		}
		p.startCurrent()
		return nil
	})
}

// EnqueueStream drains a resolver stream in the background, enqueueing each
// track as it arrives. ctx bounds the expansion and Stop cancels it.
func (p *Player) EnqueueStream(ctx context.Context, tracks <-chan sources.Track, errs <-chan error) error {
	if p.State() == StateStopped {
		return ErrSessionStopped
	}

	name := fmt.Sprintf("%s%d", p.jobPrefix(), p.jobSeq.Add(1))
	return p.opts.Jobs.StartAsync(ctx, name, func(ctx context.Context) error {
		added := 0
		for {
			select {
			case <-ctx.Done():
				go drain(tracks, errs)
				return ctx.Err()
			case track, ok := <-tracks:
				if !ok {
					var err error
					select {
					case err = <-errs:
					case <-ctx.Done():
						return ctx.Err()
					}
					p.log.Debug().Int("added", added).Err(err).Msg("playlist expansion finished")
					return err
				}
				if err := p.Enqueue(track); err != nil {
					go drain(tracks, errs)
					return err
				}
				added++
			}
		}
	})
}

// drain unblocks a producer whose consumer went away.
func drain(tracks <-chan sources.Track, errs <-chan error) {
	for range tracks {
	}
	<-errs
}

func (p *Player) jobPrefix() string {
	return "expand:" + p.guildID + ":"
}

// Pause holds the current track. Pausing a paused session is a no-op.
func (p *Player) Pause() error {
	return p.do(func() error {
		switch p.state {
		case StatePaused:
			return nil
		case StatePlaying:
			p.sink.Pause()
			p.setState(StatePaused)
			p.emit(StatusEvent{Status: StatusPaused, Track: p.currentTrack()})
			return nil
		case StateStopped:
			return ErrSessionStopped
		}
		return &StateError{Op: "pause", State: p.state}
	})
}

func (p *Player) Resume() error {
	return p.do(func() error {
		switch p.state {
		case StatePaused:
			p.sink.Resume()
			p.setState(StatePlaying)
			p.emit(StatusEvent{Status: StatusResumed, Track: p.currentTrack()})
			return nil
		case StateStopped:
			return ErrSessionStopped
		}
		return &StateError{Op: "resume", State: p.state}
	})
}

// Skip stops the current resource and returns the skipped track. The sink's
// idle notification then advances the queue, exactly as on natural completion.
func (p *Player) Skip() (sources.Track, error) {
	var skipped sources.Track
	err := p.do(func() error {
		if p.state == StateStopped {
			return ErrSessionStopped
		}
		if !p.state.Active() {
			return &StateError{Op: "skip", State: p.state}
		}
		skipped = p.currentTrack()
		p.sink.Stop()
		return nil
	})
	return skipped, err
}

// Stop tears the session down. It is idempotent.
func (p *Player) Stop() error {
	err := p.do(func() error {
		if p.state == StateStopped {
			return nil
		}
		p.opts.Jobs.StopPrefix(p.jobPrefix())
		p.cancel()
		p.stopPipeline()
		p.sink.Stop()

		p.mu.Lock()
		p.state = StateStopped
		p.queue = nil
		p.resourceID = ""
		p.mu.Unlock()

		p.emit(StatusEvent{Status: StatusStopped})
		p.log.Info().Msg("session stopped")
		return nil
	})
	if errors.Is(err, ErrSessionStopped) {
		return nil
	}
	return err
}

// Done is closed once the session goroutine has exited after Stop.
func (p *Player) Done() <-chan struct{} {
	return p.done
}

func (p *Player) handleIdle(id string) {
	if !p.state.Active() || id != p.resourceID {
		p.log.Debug().Str("resource", id).Msg("stale idle notification ignored")
		return
	}
	p.stopPipeline()
	p.queue.Advance()
	p.startCurrent()
}

// handleFailure reports a track that broke off after it started. The sink
// still goes idle on the truncated stream, and that moves the queue on.
func (p *Player) handleFailure(id string, track sources.Track, err error) {
	if p.state == StateStopped {
		return
	}
	p.log.Warn().Err(err).Str("resource", id).Str("track", track.Title).Msg("track failed mid-stream")
	p.emit(StatusEvent{Status: StatusError, Track: track, Err: err})
}

// startCurrent starts the track at the cursor. Tracks that fail to start
// count as played; the queue moves on without retrying them.
func (p *Player) startCurrent() {
	for {
		track, ok := p.queue.Current()
		if !ok {
			p.mu.Lock()
			p.state = StateIdle
			p.resourceID = ""
			p.mu.Unlock()
			p.emit(StatusEvent{Status: StatusIdle})
			p.log.Debug().Msg("queue exhausted")
			return
		}

		p.stopPipeline()
		pipe := p.opts.NewPipeline()
		pipe.SetErrorHandler(func(id string, err error) {
			p.post(func() { p.handleFailure(id, track, err) })
		})
		err := p.play(pipe, track)
		if err == nil {
			p.mu.Lock()
			p.pipe = pipe
			p.resourceID = pipe.ID()
			p.state = StatePlaying
			p.mu.Unlock()
			p.emit(StatusEvent{Status: StatusPlaying, Track: track})
			p.log.Info().Str("track", track.Title).Int("cursor", p.queue.Cursor()).Msg("now playing")
			return
		}

		p.log.Warn().Err(err).Str("track", track.Title).Msg("track failed to start, skipping")
		p.emit(StatusEvent{Status: StatusError, Track: track, Err: err})
		p.queue.Advance()
	}
}

func (p *Player) play(pipe Pipeline, track sources.Track) error {
	out, err := pipe.Start(p.ctx, track)
	if err != nil {
		return err
	}
	if err := p.sink.Play(stream.Resource{ID: pipe.ID(), Audio: out}); err != nil {
		pipe.Stop()
		return fmt.Errorf("sink: %w", err)
	}
	return nil
}

func (p *Player) stopPipeline() {
	if p.pipe == nil {
		return
	}
	p.pipe.Stop()
	p.mu.Lock()
	p.pipe = nil
	p.mu.Unlock()
}

func (p *Player) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// currentTrack is only valid on the session goroutine.
func (p *Player) currentTrack() sources.Track {
	if p.queue == nil {
		return sources.Track{}
	}
	t, _ := p.queue.Current()
	return t
}

// emit delivers an event without blocking the session.
func (p *Player) emit(ev StatusEvent) {
	select {
	case p.Status <- ev:
	default:
		p.log.Debug().Str("status", string(ev.Status)).Msg("status event dropped (channel full)")
	}
}

func (p *Player) GuildID() string   { return p.guildID }
func (p *Player) ChannelID() string { return p.channelID }

func (p *Player) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Current returns the track loaded in the sink, if any.
func (p *Player) Current() (sources.Track, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.state.Active() || p.queue == nil {
		return sources.Track{}, false
	}
	return p.queue.Current()
}

// Tracks returns every queued track, played ones included.
func (p *Player) Tracks() []sources.Track {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.queue == nil {
		return nil
	}
	return p.queue.Tracks()
}

func (p *Player) Cursor() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.queue == nil {
		return 0
	}
	return p.queue.Cursor()
}

// Upcoming returns the tracks after the current one.
func (p *Player) Upcoming() []sources.Track {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.queue == nil {
		return nil
	}
	return p.queue.Upcoming()
}
