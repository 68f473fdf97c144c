// Package util holds small helpers shared across packages.
package util

import (
	"context"
	"sync"
)

// Parallel runs fn for each input with at most limit calls in flight. The
// first failure cancels the context passed to the calls still running and
// stops new ones from starting; that error is returned. If ctx ends before
// every input was started, ctx's error is returned.
func Parallel[T any](ctx context.Context, inputs []T, limit int, fn func(context.Context, T) error) error {
	if limit <= 0 {
		limit = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg    sync.WaitGroup
		once  sync.Once
		first error
	)
	slots := make(chan struct{}, limit)

feed:
	for _, in := range inputs {
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			break feed
		}
		if ctx.Err() != nil {
			<-slots
			break
		}
		wg.Add(1)
		go func(in T) {
			defer func() {
				<-slots
				wg.Done()
			}()
			if err := fn(ctx, in); err != nil {
				once.Do(func() {
					first = err
					cancel()
				})
			}
		}(in)
	}
	wg.Wait()

	if first != nil {
		return first
	}
	return context.Cause(ctx)
}
