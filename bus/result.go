package bus

import (
	"context"
	"sync"
)

// Result is the single-resolution handle of an asynchronous call. It
// starts pending and is resolved exactly once by the client's read
// loop, either with the call's Out payload or with a failure.
type Result struct {
	mu sync.Mutex

	done chan struct{}

	resolved bool
	out      *Out
	err      error
}

func newResult() *Result {
	return &Result{done: make(chan struct{})}
}

// Wait blocks the calling goroutine until the result is resolved or
// ctx expires. It returns the call's failure, nil on success, or the
// context error.
func (r *Result) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()

	case <-r.done:
		return r.err
	}
}

// Done polls the result without blocking.
func (r *Result) Done() bool {
	select {
	case <-r.done:
		return true

	default:
		return false
	}
}

// Err returns the call's failure. It is meaningful only after the
// result is resolved.
func (r *Result) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.err
}

// Out returns the resolved result payload, nil while pending or on a
// failed call.
func (r *Result) Out() *Out {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.out
}

// Get returns the value stored under key in the resolved result
// payload, the empty string while pending or on a failed call.
func (r *Result) Get(key string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.out == nil {
		return ""
	}

	return r.out.Get(key)
}

// resolve completes the result. A second resolution is a programming
// error: it would mean a duplicate response got past the pending-call
// table, so it panics instead of silently overwriting the outcome.
func (r *Result) resolve(out *Out, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.resolved {
		panic("bus: result resolved twice")
	}

	r.resolved = true
	r.out = out
	r.err = err

	close(r.done)
}
