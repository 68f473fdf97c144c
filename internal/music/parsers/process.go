package parsers

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
)

const stderrTail = 4 << 10

// ProcessSource runs cmd with its stdout connected to an OS pipe. The read
// end is what the transcoder consumes.
type ProcessSource struct {
	cmd    *exec.Cmd
	r      *os.File
	stderr *Tail

	detachOnce sync.Once
}

// StartProcess starts cmd and wires its stdout into a fresh pipe.
func StartProcess(cmd *exec.Cmd) (*ProcessSource, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("pipe: %w", err)
	}

	tail := NewTail(stderrTail)
	cmd.Stdout = w
	cmd.Stderr = tail
	Isolate(cmd)

	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		return nil, fmt.Errorf("start %s: %w", cmd.Path, err)
	}
	// the child owns the write end now
	w.Close()

	return &ProcessSource{cmd: cmd, r: r, stderr: tail}, nil
}

func (p *ProcessSource) Stream() io.Reader { return p.r }

func (p *ProcessSource) Detach() {
	p.detachOnce.Do(func() { p.r.Close() })
}

func (p *ProcessSource) Wait() error {
	err := p.cmd.Wait()
	if err != nil {
		if msg := p.stderr.String(); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
	}
	return err
}

func (p *ProcessSource) Terminate() {
	Terminate(p.cmd)
}

// Terminate sends SIGTERM to a started command, and to its whole process
// group when it was started isolated. Where signals are not supported it
// falls back to Kill. It never waits for the process.
func Terminate(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	if err := signal(cmd, syscall.SIGTERM); err != nil {
		_ = cmd.Process.Kill()
	}
}

// Tail keeps the last n bytes written to it.
type Tail struct {
	mu  sync.Mutex
	n   int
	buf []byte
}

func NewTail(n int) *Tail {
	return &Tail{n: n}
}

func (t *Tail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.n {
		t.buf = t.buf[len(t.buf)-t.n:]
	}
	return len(p), nil
}

func (t *Tail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
