// Package timeout bounds a unit of work by a wall-clock deadline.
//
// A Guard runs the work on its own goroutine with a context that is
// cancelled when the deadline passes. The caller gets ErrTimeoutExceeded
// as soon as the deadline fires; the work is expected to observe its
// context and stop. Guards are independent, so any number of them can run
// concurrently in one process.
package timeout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"goamcc/domain/core"
)

// Guard enforces a deadline around one unit of work
type Guard struct {
	limit time.Duration

	mu      sync.Mutex
	start   time.Time
	elapsed time.Duration
	done    bool
}

// New returns a guard with a deadline of the given whole seconds.
// Zero or negative seconds disable the deadline.
func New(seconds int) *Guard {
	return NewWithDuration(time.Duration(seconds) * time.Second)
}

// NewWithDuration returns a guard with an arbitrary deadline
func NewWithDuration(limit time.Duration) *Guard {
	return &Guard{limit: limit}
}

// Limit returns the configured deadline
func (g *Guard) Limit() time.Duration {
	return g.limit
}

// Run executes work under the deadline. It returns the work's error, or an
// error matching core.ErrTimeoutExceeded if the deadline fired first. A
// panic inside work is recovered and returned as an error.
func (g *Guard) Run(ctx context.Context, work func(ctx context.Context) error) error {
	g.mu.Lock()
	g.start = time.Now()
	g.elapsed = 0
	g.done = false
	g.mu.Unlock()

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if g.limit > 0 {
		runCtx, cancel = context.WithTimeout(ctx, g.limit)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	// Disarms the deadline on every return path.
	defer cancel()

	result := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("guarded work panicked: %v", r)
			}
		}()
		result <- work(runCtx)
	}()

	select {
	case err := <-result:
		return g.complete(ctx, runCtx, err)
	case <-runCtx.Done():
		return g.expired(ctx)
	}
}

// complete classifies a result. Work that gave up because its context
// expired counts as a timeout, not as a completion.
func (g *Guard) complete(parent, runCtx context.Context, err error) error {
	if err != nil && runCtx.Err() != nil &&
		(errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || core.IsTimeoutError(err)) {
		return g.expired(parent)
	}
	g.finish()
	return err
}

func (g *Guard) expired(parent context.Context) error {
	if errors.Is(parent.Err(), context.Canceled) {
		return parent.Err()
	}
	return core.NewTimeoutError(fmt.Errorf("work did not finish within %s", g.limit))
}

func (g *Guard) finish() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.elapsed = time.Since(g.start)
	g.done = true
}

// Elapsed returns how long the last run took. ok is false when the run has
// not completed, including when it timed out.
func (g *Guard) Elapsed() (elapsed time.Duration, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.elapsed, g.done
}

// Do runs fn under g and returns its value. On timeout the zero value is
// returned with an error matching core.ErrTimeoutExceeded.
func Do[T any](ctx context.Context, g *Guard, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := g.Run(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
