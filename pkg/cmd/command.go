// Package cmd is the transport-neutral command core shared by the slash
// command surface and the command line tools. A Command only knows its name
// and how to run; adapters decide what Invocation.Data carries.
package cmd

import "context"

// Invocation is the input handed to a command run.
type Invocation struct {
	Args []string
	// Data is adapter specific, e.g. the slash interaction being answered.
	Data any
}

// Arg returns the i-th argument or "" when there are fewer.
func (inv *Invocation) Arg(i int) string {
	if inv == nil || i < 0 || i >= len(inv.Args) {
		return ""
	}
	return inv.Args[i]
}

type Command interface {
	Name() string
	Description() string
	Run(ctx context.Context, inv *Invocation) error
}

// Middleware decorates a command.
type Middleware func(Command) Command

// Apply decorates c with mws. The first middleware ends up innermost, so the
// last one listed sees the invocation first.
func Apply(c Command, mws ...Middleware) Command {
	for _, mw := range mws {
		c = mw(c)
	}
	return c
}

type wrapped struct {
	inner Command
	run   func(ctx context.Context, inv *Invocation) error
}

func (w *wrapped) Name() string        { return w.inner.Name() }
func (w *wrapped) Description() string { return w.inner.Description() }
func (w *wrapped) Unwrap() Command     { return w.inner }

func (w *wrapped) Run(ctx context.Context, inv *Invocation) error {
	if w.run == nil {
		return w.inner.Run(ctx, inv)
	}
	return w.run(ctx, inv)
}

// Wrap returns a command that keeps c's identity but runs run instead.
func Wrap(c Command, run func(ctx context.Context, inv *Invocation) error) Command {
	return &wrapped{inner: c, run: run}
}

// Root strips every Wrap layer, so adapters can type-assert the command that
// was originally registered.
func Root(c Command) Command {
	for {
		u, ok := c.(interface{ Unwrap() Command })
		if !ok {
			return c
		}
		c = u.Unwrap()
	}
}
