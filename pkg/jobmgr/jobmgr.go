// Package jobmgr runs named background jobs. A name is held by at most one
// running job; jobs can be cancelled by name or by name prefix, which is how
// everything belonging to one guild is stopped at once.
//
//	jm := jobmgr.NewManager(func(ev jobmgr.Event) { log.Print(ev) })
//	_ = jm.StartAsync(ctx, "expand:guild:1", work)
//	jm.StopPrefix("expand:guild:")
package jobmgr

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

type Phase string

const (
	PhaseRunning   Phase = "running"
	PhaseDone      Phase = "done"
	PhaseCancelled Phase = "cancelled"
	PhaseFailed    Phase = "failed"
)

// Event is one step in a job's life. Err is set for PhaseFailed only, and
// Elapsed for every phase but PhaseRunning.
type Event struct {
	Job     string
	Phase   Phase
	Err     error
	Elapsed time.Duration
}

func (e Event) String() string {
	if e.Err != nil {
		return fmt.Sprintf("%s:%s:%v", e.Phase, e.Job, e.Err)
	}
	return string(e.Phase) + ":" + e.Job
}

// Reporter receives job events on the job's goroutine.
type Reporter func(Event)

type job struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager is safe for concurrent use.
type Manager struct {
	report Reporter

	mu   sync.Mutex
	jobs map[string]*job
}

// NewManager returns a Manager. report may be nil.
func NewManager(report Reporter) *Manager {
	return &Manager{report: report, jobs: make(map[string]*job)}
}

// ErrRunning is returned when a job name is already taken.
var ErrRunning = errors.New("job already running")

// StartAsync runs fn on its own goroutine under a context derived from ctx.
func (m *Manager) StartAsync(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	jobCtx, cancel := context.WithCancel(ctx)
	j := &job{cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	if _, taken := m.jobs[name]; taken {
		m.mu.Unlock()
		cancel()
		return fmt.Errorf("%w: %s", ErrRunning, name)
	}
	m.jobs[name] = j
	m.mu.Unlock()

	go func() {
		defer close(j.done)
		defer cancel()
		defer m.forget(name, j)

		m.emit(Event{Job: name, Phase: PhaseRunning})
		start := time.Now()
		err := fn(jobCtx)
		ev := Event{Job: name, Phase: PhaseDone, Elapsed: time.Since(start)}
		switch {
		case errors.Is(err, context.Canceled):
			ev.Phase = PhaseCancelled
		case err != nil:
			ev.Phase, ev.Err = PhaseFailed, err
		}
		m.emit(ev)
	}()
	return nil
}

// forget drops name unless it was already stopped and reused.
func (m *Manager) forget(name string, j *job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.jobs[name] == j {
		delete(m.jobs, name)
	}
}

// Stop cancels the named job.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[name]
	if !ok {
		return fmt.Errorf("job %s not running", name)
	}
	j.cancel()
	delete(m.jobs, name)
	return nil
}

// StopPrefix cancels every job whose name starts with prefix and reports how
// many there were. The empty prefix stops everything.
func (m *Manager) StopPrefix(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for name, j := range m.jobs {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		j.cancel()
		delete(m.jobs, name)
		n++
	}
	return n
}

// Wait blocks until the named job returns or ctx ends. Names that are not
// running return at once.
func (m *Manager) Wait(ctx context.Context, name string) error {
	m.mu.Lock()
	j, ok := m.jobs[name]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown cancels every job and waits for them to return or for ctx to end.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	running := make([]*job, 0, len(m.jobs))
	for name, j := range m.jobs {
		j.cancel()
		delete(m.jobs, name)
		running = append(running, j)
	}
	m.mu.Unlock()

	for _, j := range running {
		select {
		case <-j.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// List returns the running job names in order.
func (m *Manager) List() []string {
	m.mu.Lock()
	names := make([]string, 0, len(m.jobs))
	for name := range m.jobs {
		names = append(names, name)
	}
	m.mu.Unlock()
	slices.Sort(names)
	return names
}

func (m *Manager) emit(ev Event) {
	if m.report != nil {
		m.report(ev)
	}
}
