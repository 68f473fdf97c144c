package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/dewmguy/discordmusic/internal/music/parsers"
	"github.com/dewmguy/discordmusic/internal/music/sources"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// killGrace bounds how long a stopped process may ignore SIGTERM before its
// context is cancelled, which kills it.
var killGrace = 5 * time.Second

// Transcoder builds the second pipeline stage. Stdin and Stdout are wired by the pipeline.
type Transcoder interface {
	Command(ctx context.Context) *exec.Cmd
}

// PipelineError is a process failure that is not explained by the consumer
// going away.
type PipelineError struct {
	Stage string
	Track string
	Err   error
}

func (e *PipelineError) Error() string {
	if e.Track != "" {
		return fmt.Sprintf("pipeline %s failed for %q: %v", e.Stage, e.Track, e.Err)
	}
	return fmt.Sprintf("pipeline %s failed: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// Pipeline runs extractor | transcoder for one track at a time and exposes
// the transcoder's stdout as PCM.
type Pipeline struct {
	extractor  parsers.Extractor
	transcoder Transcoder
	log        zerolog.Logger

	mu      sync.Mutex
	cur     *run
	last    *run
	onError func(id string, err error)
}

type run struct {
	id     string
	track  sources.Track
	src    parsers.Source
	cmd    *exec.Cmd
	out    *os.File
	stderr *parsers.Tail
	cancel context.CancelFunc

	stopOnce sync.Once
	mu       sync.Mutex
	stopped  bool

	done chan struct{}
	err  error
}

func NewPipeline(extractor parsers.Extractor, transcoder Transcoder, log zerolog.Logger) *Pipeline {
	return &Pipeline{extractor: extractor, transcoder: transcoder, log: log}
}

// SetErrorHandler registers fn to be called from the monitor goroutine when
// a run fails after it has started. Runs ended by Stop never report.
func (p *Pipeline) SetErrorHandler(fn func(id string, err error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onError = fn
}

// ID identifies the current run, or the last one after Stop.
func (p *Pipeline) ID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return ""
	}
	return p.last.id
}

// Start stops any active run and streams track. The returned reader yields
// PCM until the transcoder exits or Stop is called.
func (p *Pipeline) Start(ctx context.Context, track sources.Track) (io.ReadCloser, error) {
	p.Stop()

	runCtx, cancel := context.WithCancel(ctx)
	r := &run{
		id:     uuid.NewString(),
		track:  track,
		stderr: parsers.NewTail(4 << 10),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	log := p.log.With().Str("pipeline", r.id).Str("track", track.Title).Logger()

	src, err := p.extractor.Open(runCtx, track)
	if err != nil {
		cancel()
		return nil, &PipelineError{Stage: "extract", Track: track.Title, Err: err}
	}
	r.src = src

	out, w, err := os.Pipe()
	if err != nil {
		abandon(src, cancel)
		return nil, &PipelineError{Stage: "transcode", Track: track.Title, Err: err}
	}

	cmd := p.transcoder.Command(runCtx)
	cmd.Stdin = src.Stream()
	cmd.Stdout = w
	cmd.Stderr = r.stderr
	cmd.WaitDelay = killGrace
	parsers.Isolate(cmd)
	if err := cmd.Start(); err != nil {
		out.Close()
		w.Close()
		abandon(src, cancel)
		return nil, &PipelineError{Stage: "transcode", Track: track.Title, Err: err}
	}
	w.Close()
	src.Detach()

	r.cmd = cmd
	r.out = out

	p.mu.Lock()
	p.cur = r
	p.last = r
	p.mu.Unlock()

	log.Debug().Str("extractor", p.extractor.Name()).Msg("pipeline started")
	go p.monitor(r, log)

	return out, nil
}

// abandon releases an extraction that never got a consumer.
func abandon(src parsers.Source, cancel context.CancelFunc) {
	src.Terminate()
	src.Detach()
	go func() {
		_ = src.Wait()
		cancel()
	}()
}

func (p *Pipeline) monitor(r *run, log zerolog.Logger) {
	defer r.cancel()

	tErr := r.cmd.Wait()
	// The transcoder is gone; nobody will drain the extractor any more.
	r.src.Terminate()
	xErr := r.src.Wait()

	r.mu.Lock()
	stopped := r.stopped
	r.mu.Unlock()

	var err error
	switch {
	case stopped:
		if tErr != nil || xErr != nil {
			log.Debug().AnErr("transcoder", tErr).AnErr("extractor", xErr).Msg("pipeline stopped")
		}
	case tErr != nil && !isBrokenPipe(tErr, r.stderr.String()):
		err = &PipelineError{Stage: "transcode", Track: r.track.Title, Err: joinStderr(tErr, r.stderr.String(), xErr)}
	case xErr != nil && !isBrokenPipe(xErr, "") && !isTerminated(xErr):
		err = &PipelineError{Stage: "extract", Track: r.track.Title, Err: xErr}
	case tErr != nil || xErr != nil:
		log.Debug().AnErr("transcoder", tErr).AnErr("extractor", xErr).Msg("broken pipe ignored")
	default:
		log.Debug().Msg("pipeline finished")
	}

	r.err = err
	close(r.done)

	if err != nil {
		log.Warn().Err(err).Msg("pipeline failed")
		p.mu.Lock()
		fn := p.onError
		p.mu.Unlock()
		if fn != nil {
			fn(r.id, err)
		}
	}
}

// Stop terminates the active run. It is idempotent and never waits for the
// processes to exit.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	r := p.cur
	p.cur = nil
	p.mu.Unlock()

	if r == nil {
		return
	}

	r.stopOnce.Do(func() {
		r.mu.Lock()
		r.stopped = true
		r.mu.Unlock()

		parsers.Terminate(r.cmd)
		r.src.Terminate()
		r.out.Close()
		time.AfterFunc(killGrace, r.cancel)
	})
}

// active reports whether a run is in progress.
func (p *Pipeline) active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cur != nil
}

// Done is closed when the last run's processes have exited.
func (p *Pipeline) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return p.last.done
}

// Err reports the last run's failure, if any, once Done is closed.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	r := p.last
	p.mu.Unlock()
	if r == nil {
		return nil
	}
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// isBrokenPipe reports failures caused by the reading side going away.
func isBrokenPipe(err error, stderr string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EPIPE) || errors.Is(err, os.ErrClosed) {
		return true
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() && ws.Signal() == syscall.SIGPIPE {
			return true
		}
	}
	msg := strings.ToLower(err.Error() + " " + stderr)
	return strings.Contains(msg, "broken pipe")
}

// isTerminated reports an exit caused by the signals Stop and the monitor send.
func isTerminated(err error) bool {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	ws, ok := exitErr.Sys().(syscall.WaitStatus)
	return ok && ws.Signaled() && (ws.Signal() == syscall.SIGTERM || ws.Signal() == syscall.SIGKILL)
}

func joinStderr(err error, stderr string, extractErr error) error {
	if stderr != "" {
		err = fmt.Errorf("%w: %s", err, stderr)
	}
	if extractErr != nil {
		err = errors.Join(err, fmt.Errorf("extractor: %w", extractErr))
	}
	return err
}
