package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dewmguy/discordmusic/internal/music/sources"
	"github.com/dewmguy/discordmusic/internal/music/stream"
	"github.com/dewmguy/discordmusic/pkg/jobmgr"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFactory hands out pipelines and records how many are live at once.
type fakeFactory struct {
	mu         sync.Mutex
	seq        int
	live       int
	violations int
	started    []string
	fail       map[string]bool
	last       *fakePipe
}

func (f *fakeFactory) New() Pipeline { return &fakePipe{f: f} }

func (f *fakeFactory) snapshot() (live, violations int, started []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live, f.violations, append([]string(nil), f.started...)
}

// breakLast fails the most recently started pipeline the way a transcoder
// crash would.
func (f *fakeFactory) breakLast(err error) {
	f.mu.Lock()
	pipe := f.last
	fn := pipe.onError
	f.mu.Unlock()
	fn(pipe.id, err)
}

type fakePipe struct {
	f       *fakeFactory
	id      string
	running bool
	onError func(string, error)
}

func (p *fakePipe) ID() string { return p.id }

func (p *fakePipe) SetErrorHandler(fn func(string, error)) {
	p.f.mu.Lock()
	defer p.f.mu.Unlock()
	p.onError = fn
}

func (p *fakePipe) Start(_ context.Context, track sources.Track) (io.ReadCloser, error) {
	p.f.mu.Lock()
	defer p.f.mu.Unlock()
	if p.f.live > 0 {
		p.f.violations++
	}
	if p.f.fail[track.Title] {
		return nil, &stream.PipelineError{Stage: "extract", Track: track.Title, Err: errors.New("403")}
	}
	p.f.seq++
	p.id = fmt.Sprintf("run-%d", p.f.seq)
	p.running = true
	p.f.live++
	p.f.started = append(p.f.started, track.Title)
	p.f.last = p
	return io.NopCloser(strings.NewReader("")), nil
}

func (p *fakePipe) Stop() {
	p.f.mu.Lock()
	defer p.f.mu.Unlock()
	if p.running {
		p.running = false
		p.f.live--
	}
}

// fakeSink mimics the Discord sink: Stop reports idle asynchronously.
type fakeSink struct {
	mu      sync.Mutex
	onIdle  func(string)
	current string
	paused  bool
	played  []string
	playErr error
}

func (s *fakeSink) SetIdleHandler(fn func(string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onIdle = fn
}

func (s *fakeSink) Play(res stream.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playErr != nil {
		return s.playErr
	}
	s.current = res.ID
	s.paused = false
	s.played = append(s.played, res.ID)
	return nil
}

func (s *fakeSink) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

func (s *fakeSink) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
}

func (s *fakeSink) Stop() {
	s.mu.Lock()
	id, fn := s.current, s.onIdle
	s.current = ""
	s.mu.Unlock()
	if id != "" {
		go fn(id)
	}
}

// finish reports natural completion of the current resource.
func (s *fakeSink) finish() {
	s.mu.Lock()
	id, fn := s.current, s.onIdle
	s.current = ""
	s.mu.Unlock()
	fn(id)
}

func (s *fakeSink) isPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func track(title string) sources.Track {
	return sources.Track{ID: strings.ToLower(title), Title: title, URL: "https://example.com/" + title, Extractor: "generic"}
}

func newTestPlayer(t *testing.T) (*Player, *fakeSink, *fakeFactory) {
	t.Helper()
	sink := &fakeSink{}
	f := &fakeFactory{fail: map[string]bool{}}
	p := New("g1", "c1", sink, Options{NewPipeline: f.New, Jobs: jobmgr.NewManager(nil), Log: zerolog.Nop()})
	t.Cleanup(func() { _ = p.Stop() })
	return p, sink, f
}

// barrier waits until every message queued so far has been handled.
func barrier(t *testing.T, p *Player) {
	t.Helper()
	_ = p.do(func() error { return nil })
}

func titles(tracks []sources.Track) []string {
	out := make([]string, len(tracks))
	for i, tr := range tracks {
		out[i] = tr.Title
	}
	return out
}

func TestEnqueueFromEmptyPlaysThenGoesIdle(t *testing.T) {
	p, sink, f := newTestPlayer(t)
	assert.Equal(t, StateEmpty, p.State())

	require.NoError(t, p.Enqueue(track("A")))
	assert.Equal(t, StatePlaying, p.State())
	cur, ok := p.Current()
	require.True(t, ok)
	assert.Equal(t, "A", cur.Title)

	sink.finish()
	barrier(t, p)

	assert.Equal(t, StateIdle, p.State())
	assert.Equal(t, 1, p.Cursor())
	_, ok = p.Current()
	assert.False(t, ok)

	live, violations, started := f.snapshot()
	assert.Zero(t, live)
	assert.Zero(t, violations)
	assert.Equal(t, []string{"A"}, started)
}

func TestEnqueueWhilePlayingAppends(t *testing.T) {
	p, sink, f := newTestPlayer(t)

	require.NoError(t, p.Enqueue(track("A")))
	require.NoError(t, p.Enqueue(track("B")))

	assert.Equal(t, []string{"A", "B"}, titles(p.Tracks()))
	assert.Equal(t, 0, p.Cursor())
	assert.Equal(t, StatePlaying, p.State())
	assert.Equal(t, []string{"B"}, titles(p.Upcoming()))

	sink.finish()
	barrier(t, p)

	assert.Equal(t, 1, p.Cursor())
	assert.Equal(t, StatePlaying, p.State())
	live, violations, started := f.snapshot()
	assert.Equal(t, 1, live)
	assert.Zero(t, violations)
	assert.Equal(t, []string{"A", "B"}, started)
}

func TestEnqueueAfterIdleStartsNewTrack(t *testing.T) {
	p, sink, _ := newTestPlayer(t)

	require.NoError(t, p.Enqueue(track("A")))
	sink.finish()
	barrier(t, p)
	require.Equal(t, StateIdle, p.State())

	require.NoError(t, p.Enqueue(track("B")))
	cur, ok := p.Current()
	require.True(t, ok)
	assert.Equal(t, "B", cur.Title)
	assert.Equal(t, 1, p.Cursor())
}

func TestSkipAdvancesLikeCompletion(t *testing.T) {
	p, _, f := newTestPlayer(t)

	require.NoError(t, p.Enqueue(track("A"), track("B")))
	skipped, err := p.Skip()
	require.NoError(t, err)
	assert.Equal(t, "A", skipped.Title)

	assert.Eventually(t, func() bool { return p.Cursor() == 1 }, time.Second, 5*time.Millisecond)
	barrier(t, p)
	assert.Equal(t, StatePlaying, p.State())

	_, violations, started := f.snapshot()
	assert.Zero(t, violations)
	assert.Equal(t, []string{"A", "B"}, started)
}

func TestSkipWhilePaused(t *testing.T) {
	p, sink, _ := newTestPlayer(t)

	require.NoError(t, p.Enqueue(track("A"), track("B")))
	require.NoError(t, p.Pause())
	_, err := p.Skip()
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return p.Cursor() == 1 }, time.Second, 5*time.Millisecond)
	barrier(t, p)
	assert.Equal(t, StatePlaying, p.State())
	assert.False(t, sink.isPaused())
}

func TestStaleIdleIsIgnored(t *testing.T) {
	p, sink, _ := newTestPlayer(t)

	require.NoError(t, p.Enqueue(track("A"), track("B")))
	sink.onIdle("run-old")
	barrier(t, p)

	assert.Equal(t, 0, p.Cursor())
	assert.Equal(t, StatePlaying, p.State())
}

func TestStateTransitions(t *testing.T) {
	p, sink, _ := newTestPlayer(t)

	var se *StateError
	require.ErrorAs(t, p.Pause(), &se)
	assert.Equal(t, "pause", se.Op)
	assert.Equal(t, StateEmpty, se.State)
	require.ErrorAs(t, p.Resume(), &se)
	_, err := p.Skip()
	require.ErrorAs(t, err, &se)

	require.NoError(t, p.Enqueue(track("A")))
	require.ErrorAs(t, p.Resume(), &se)
	assert.Equal(t, StatePlaying, se.State)

	require.NoError(t, p.Pause())
	assert.Equal(t, StatePaused, p.State())
	assert.True(t, sink.isPaused())
	require.NoError(t, p.Pause())
	assert.Equal(t, StatePaused, p.State())

	_, ok := p.Current()
	assert.True(t, ok, "paused session still has a current track")

	require.NoError(t, p.Resume())
	assert.Equal(t, StatePlaying, p.State())
	assert.False(t, sink.isPaused())

	sink.finish()
	barrier(t, p)
	require.ErrorAs(t, p.Pause(), &se)
	assert.Equal(t, StateIdle, se.State)
}

func TestStopIsIdempotent(t *testing.T) {
	p, _, f := newTestPlayer(t)
	require.NoError(t, p.Enqueue(track("A"), track("B")))

	require.NoError(t, p.Stop())
	assert.Equal(t, StateStopped, p.State())
	require.NoError(t, p.Stop())
	assert.Equal(t, StateStopped, p.State())

	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("session goroutine still running")
	}

	assert.ErrorIs(t, p.Enqueue(track("C")), ErrSessionStopped)
	assert.ErrorIs(t, p.Pause(), ErrSessionStopped)
	_, err := p.Skip()
	assert.ErrorIs(t, err, ErrSessionStopped)
	assert.Nil(t, p.Tracks())
	_, ok := p.Current()
	assert.False(t, ok)

	live, _, _ := f.snapshot()
	assert.Zero(t, live)
}

func TestFailedStartAdvancesWithoutRetry(t *testing.T) {
	p, _, f := newTestPlayer(t)
	f.fail["bad"] = true

	require.NoError(t, p.Enqueue(track("bad"), track("good")))
	assert.Equal(t, StatePlaying, p.State())
	assert.Equal(t, 1, p.Cursor())

	var sawError bool
	for len(p.Status) > 0 {
		if ev := <-p.Status; ev.Status == StatusError {
			sawError = true
			assert.Equal(t, "bad", ev.Track.Title)
			var pe *stream.PipelineError
			assert.ErrorAs(t, ev.Err, &pe)
		}
	}
	assert.True(t, sawError)
	_, _, started := f.snapshot()
	assert.Equal(t, []string{"good"}, started)
}

func TestMidStreamFailureIsReported(t *testing.T) {
	p, sink, f := newTestPlayer(t)

	require.NoError(t, p.Enqueue(track("A"), track("B")))
	require.Equal(t, StatusPlaying, (<-p.Status).Status)

	crash := &stream.PipelineError{Stage: "transcode", Track: "A", Err: errors.New("exit status 1")}
	f.breakLast(crash)
	barrier(t, p)

	require.Len(t, p.Status, 1)
	ev := <-p.Status
	assert.Equal(t, StatusError, ev.Status)
	assert.Equal(t, "A", ev.Track.Title)
	assert.ErrorIs(t, ev.Err, crash)
	assert.Equal(t, 0, p.Cursor(), "the queue moves on when the sink goes idle")

	sink.finish()
	barrier(t, p)
	cur, ok := p.Current()
	require.True(t, ok)
	assert.Equal(t, "B", cur.Title)
}

func TestFailureAfterStopIsDropped(t *testing.T) {
	p, _, f := newTestPlayer(t)

	require.NoError(t, p.Enqueue(track("A")))
	require.NoError(t, p.Stop())
	for len(p.Status) > 0 {
		<-p.Status
	}

	f.breakLast(errors.New("late"))
	<-p.Done()
	assert.Empty(t, p.Status)
}

func TestAllTracksFailingLeavesSessionIdle(t *testing.T) {
	p, sink, _ := newTestPlayer(t)
	sink.playErr = errors.New("voice gone")

	require.NoError(t, p.Enqueue(track("A"), track("B")))
	assert.Equal(t, StateIdle, p.State())
	assert.Equal(t, 2, p.Cursor())
}

func TestQueueOrderAndMonotonicCursor(t *testing.T) {
	p, sink, f := newTestPlayer(t)

	want := []string{"A", "B", "C", "D", "E"}
	for _, title := range want {
		require.NoError(t, p.Enqueue(track(title)))
	}
	assert.Equal(t, want, titles(p.Tracks()))

	last := p.Cursor()
	for i := 0; i < len(want); i++ {
		sink.finish()
		barrier(t, p)
		cur := p.Cursor()
		assert.Equal(t, last+1, cur)
		last = cur
	}
	assert.Equal(t, StateIdle, p.State())

	_, violations, started := f.snapshot()
	assert.Zero(t, violations)
	assert.Equal(t, want, started)
}

func TestStatusEvents(t *testing.T) {
	p, _, _ := newTestPlayer(t)

	require.NoError(t, p.Enqueue(track("A")))
	require.NoError(t, p.Enqueue(track("B")))
	require.NoError(t, p.Pause())
	require.NoError(t, p.Resume())

	var got []PlayerStatus
	for len(p.Status) > 0 {
		got = append(got, (<-p.Status).Status)
	}
	assert.Equal(t, []PlayerStatus{StatusPlaying, StatusAdded, StatusPaused, StatusResumed}, got)
	assert.Equal(t, "⏸", StatusPaused.StringEmoji())
}

func TestEnqueueStream(t *testing.T) {
	p, _, _ := newTestPlayer(t)

	tracks := make(chan sources.Track, 3)
	errs := make(chan error, 1)
	for _, title := range []string{"A", "B", "C"} {
		tracks <- track(title)
	}
	close(tracks)
	errs <- nil
	close(errs)

	require.NoError(t, p.EnqueueStream(context.Background(), tracks, errs))
	assert.Eventually(t, func() bool { return len(p.Tracks()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"A", "B", "C"}, titles(p.Tracks()))
	assert.Equal(t, StatePlaying, p.State())
}

func TestStopCancelsStreamExpansion(t *testing.T) {
	sink := &fakeSink{}
	f := &fakeFactory{fail: map[string]bool{}}
	jobs := jobmgr.NewManager(nil)
	p := New("g1", "c1", sink, Options{NewPipeline: f.New, Jobs: jobs, Log: zerolog.Nop()})

	tracks := make(chan sources.Track)
	errs := make(chan error, 1)
	require.NoError(t, p.EnqueueStream(context.Background(), tracks, errs))
	tracks <- track("A")
	assert.Eventually(t, func() bool { return len(p.Tracks()) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, p.Stop())
	assert.Empty(t, jobs.List())

	// the producer must still be able to finish
	sent := make(chan struct{})
	go func() {
		tracks <- track("B")
		close(tracks)
		errs <- nil
		close(sent)
	}()
	select {
	case <-sent:
	case <-time.After(time.Second):
		t.Fatal("producer blocked after stop")
	}
	assert.ErrorIs(t, p.EnqueueStream(context.Background(), make(chan sources.Track), errs), ErrSessionStopped)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "paused", StatePaused.String())
	assert.True(t, StatePaused.Active())
	assert.False(t, StateIdle.Active())
	assert.Equal(t, "cannot skip while idle", (&StateError{Op: "skip", State: StateIdle}).Error())
}
