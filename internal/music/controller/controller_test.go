package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dewmguy/discordmusic/internal/music/player"
	"github.com/dewmguy/discordmusic/internal/music/source_resolver"
	"github.com/dewmguy/discordmusic/internal/music/sources"
	"github.com/dewmguy/discordmusic/internal/music/stream"
	"github.com/dewmguy/discordmusic/pkg/jobmgr"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPipe struct {
	mu sync.Mutex
	id string
}

var pipeSeq struct {
	sync.Mutex
	n int
}

func newStubPipe() player.Pipeline { return &stubPipe{} }

func (p *stubPipe) ID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.id
}

func (p *stubPipe) Start(context.Context, sources.Track) (io.ReadCloser, error) {
	pipeSeq.Lock()
	pipeSeq.n++
	id := fmt.Sprintf("run-%d", pipeSeq.n)
	pipeSeq.Unlock()
	p.mu.Lock()
	p.id = id
	p.mu.Unlock()
	return io.NopCloser(strings.NewReader("")), nil
}

func (p *stubPipe) Stop() {}

func (p *stubPipe) SetErrorHandler(func(string, error)) {}

// stubConn is a voice connection whose Stop reports the resource as idle.
type stubConn struct {
	mu      sync.Mutex
	onIdle  func(string)
	current string
	left    bool
}

func (c *stubConn) SetIdleHandler(fn func(string)) { c.onIdle = fn }

func (c *stubConn) Play(res stream.Resource) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = res.ID
	return nil
}

func (c *stubConn) Pause()  {}
func (c *stubConn) Resume() {}

func (c *stubConn) Stop() {
	c.mu.Lock()
	id := c.current
	c.current = ""
	c.mu.Unlock()
	if id != "" {
		go c.onIdle(id)
	}
}

func (c *stubConn) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.left = true
	return nil
}

type stubVoice struct{}

func (stubVoice) Join(context.Context, string, string) (player.Connection, error) {
	return &stubConn{}, nil
}

type stubResolver struct {
	tracks   []sources.Track
	err      error
	// hold keeps a stream open after its first track until closed.
	hold     chan struct{}
	// finished is closed when a stream's producer returns.
	finished chan struct{}
}

func (r *stubResolver) Resolve(context.Context, string) ([]sources.Track, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.tracks[:1], nil
}

func (r *stubResolver) Stream(ctx context.Context, _ string) (<-chan sources.Track, <-chan error) {
	out := make(chan sources.Track)
	errc := make(chan error, 1)
	go func() {
		if r.finished != nil {
			defer close(r.finished)
		}
		defer close(out)
		defer close(errc)
		if r.err != nil {
			errc <- r.err
			return
		}
		for i, t := range r.tracks {
			select {
			case out <- t:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
			if i == 0 && r.hold != nil {
				select {
				case <-r.hold:
				case <-ctx.Done():
					errc <- ctx.Err()
					return
				}
			}
		}
		errc <- nil
	}()
	return out, errc
}

func track(title string) sources.Track {
	return sources.Track{ID: strings.ToLower(title), Title: title, URL: "https://example.com/" + title, Extractor: "generic"}
}

func newTestController(t *testing.T, res *stubResolver) (*Controller, *player.Registry) {
	t.Helper()
	reg := player.NewRegistry(stubVoice{}, player.Options{
		NewPipeline: newStubPipe,
		Jobs:        jobmgr.NewManager(nil),
		Log:         zerolog.Nop(),
	})
	t.Cleanup(reg.Close)
	return New(reg, res, Options{Log: zerolog.Nop()}), reg
}

func TestChannelChecks(t *testing.T) {
	c, _ := newTestController(t, &stubResolver{tracks: []sources.Track{track("A")}})
	ctx := context.Background()

	_, err := c.Join(ctx, "g1", "")
	assert.ErrorIs(t, err, ErrUserNotInVoice)

	_, err = c.Enqueue(ctx, "g1", "c1", "a", false)
	assert.ErrorIs(t, err, player.ErrNotConnected)

	_, err = c.Join(ctx, "g1", "c1")
	require.NoError(t, err)
	_, err = c.Join(ctx, "g1", "c1")
	assert.ErrorIs(t, err, player.ErrAlreadyConnected)

	tests := []struct {
		name    string
		channel string
		want    error
	}{
		{name: "not in voice", channel: "", want: ErrUserNotInVoice},
		{name: "other channel", channel: "c2", want: ErrDifferentChannel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Enqueue(ctx, "g1", tt.channel, "a", false)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, c.Pause("g1", tt.channel), tt.want)
			assert.ErrorIs(t, c.Play("g1", tt.channel), tt.want)
			_, err = c.Skip("g1", tt.channel)
			assert.ErrorIs(t, err, tt.want)
			_, err = c.Stop("g1", tt.channel)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, c.Leave("g1", tt.channel), tt.want)
		})
	}
}

func TestEnqueueSingleAndControls(t *testing.T) {
	c, reg := newTestController(t, &stubResolver{tracks: []sources.Track{track("A")}})
	ctx := context.Background()

	_, err := c.Join(ctx, "g1", "c1")
	require.NoError(t, err)

	_, err = c.NowPlaying("g1")
	assert.ErrorIs(t, err, ErrNothingPlaying)

	added, err := c.Enqueue(ctx, "g1", "c1", "song a", false)
	require.NoError(t, err)
	require.Len(t, added, 1)

	cur, err := c.NowPlaying("g1")
	require.NoError(t, err)
	assert.Equal(t, "A", cur.Title)

	require.NoError(t, c.Pause("g1", "c1"))
	view, err := c.Queue("g1")
	require.NoError(t, err)
	assert.Equal(t, player.StatePaused, view.State)
	require.NoError(t, c.Play("g1", "c1"))

	stopped, err := c.Stop("g1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "A", stopped.Title)
	assert.Empty(t, reg.Guilds())

	_, err = c.Queue("g1")
	assert.ErrorIs(t, err, player.ErrNotConnected)
}

func TestStopWithNothingPlaying(t *testing.T) {
	c, reg := newTestController(t, &stubResolver{})
	_, err := c.Join(context.Background(), "g1", "c1")
	require.NoError(t, err)

	_, err = c.Stop("g1", "c1")
	assert.ErrorIs(t, err, ErrNothingPlaying)
	assert.Equal(t, []string{"g1"}, reg.Guilds())

	require.NoError(t, c.Leave("g1", "c1"))
	assert.Empty(t, reg.Guilds())
}

func TestEnqueueResolveFailure(t *testing.T) {
	noResults := &source_resolver.ResolutionError{Query: "x", Err: source_resolver.ErrNoResults}
	c, _ := newTestController(t, &stubResolver{err: noResults})
	_, err := c.Join(context.Background(), "g1", "c1")
	require.NoError(t, err)

	for _, playlist := range []bool{false, true} {
		_, err := c.Enqueue(context.Background(), "g1", "c1", "x", playlist)
		assert.True(t, source_resolver.IsNoResults(err))
	}
}

func TestEnqueuePlaylistReturnsAfterFirstTrack(t *testing.T) {
	res := &stubResolver{
		tracks: []sources.Track{track("A"), track("B"), track("C")},
		hold:   make(chan struct{}),
	}
	c, _ := newTestController(t, res)
	_, err := c.Join(context.Background(), "g1", "c1")
	require.NoError(t, err)

	added, err := c.Enqueue(context.Background(), "g1", "c1", "https://example.com/list", true)
	require.NoError(t, err)
	require.Len(t, added, 1)
	assert.Equal(t, "A", added[0].Title)

	cur, err := c.NowPlaying("g1")
	require.NoError(t, err)
	assert.Equal(t, "A", cur.Title)

	close(res.hold)
	assert.Eventually(t, func() bool {
		view, err := c.Queue("g1")
		return err == nil && len(view.Tracks) == 3
	}, time.Second, 5*time.Millisecond)
}

func TestStopCancelsPlaylistExpansion(t *testing.T) {
	res := &stubResolver{
		tracks:   []sources.Track{track("A"), track("B")},
		hold:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	c, reg := newTestController(t, res)
	_, err := c.Join(context.Background(), "g1", "c1")
	require.NoError(t, err)

	_, err = c.Enqueue(context.Background(), "g1", "c1", "https://example.com/list", true)
	require.NoError(t, err)

	_, err = c.Stop("g1", "c1")
	require.NoError(t, err)
	assert.Empty(t, reg.Guilds())

	select {
	case <-res.finished:
	case <-time.After(2 * time.Second):
		t.Fatal("playlist expansion still running after stop")
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: nil, want: ""},
		{err: ErrUserNotInVoice, want: "❌ Join a voice channel first!"},
		{err: player.ErrAlreadyConnected, want: "❌ I am already in a voice channel!"},
		{err: player.ErrNotConnected, want: "❌ The bot is not in a voice channel!"},
		{err: ErrDifferentChannel, want: "❌ You cannot control the bot from outside the voice channel."},
		{err: &source_resolver.ResolutionError{Query: "q", Err: source_resolver.ErrNoResults}, want: "❌ I couldn't find music matching your request."},
		{err: &source_resolver.ResolutionError{Query: "q", Err: errors.New("exec: not found")}, want: "❌ Something went wrong while looking that up. Try again later."},
		{err: &player.StateError{Op: "resume", State: player.StatePlaying}, want: "❌ There is no music currently paused or queued!"},
		{err: &player.StateError{Op: "skip", State: player.StateIdle}, want: "❌ There is no music playing to skip!"},
		{err: &player.StateError{Op: "pause", State: player.StateEmpty}, want: "❌ There is no music currently playing or queued!"},
		{err: errors.New("boom"), want: "❌ An internal error occurred."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, UserMessage(tt.err))
	}
}
