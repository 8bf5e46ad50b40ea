package trace

import (
	"context"
	"sync"
)

// Future is the explicit pending-result type the wrapper understands. A
// wrapped function that returns a *Future keeps its span open until the
// future settles, so the recorded timing covers the whole asynchronous
// completion rather than the synchronous dispatch.
//
// A future settles exactly once; later Complete/Fail calls are ignored.
type Future struct {
	mu        sync.Mutex
	done      chan struct{}
	settled   bool
	value     any
	err       error
	callbacks []func(value any, err error)
}

// NewFuture creates an unsettled future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Complete settles the future with a value.
func (f *Future) Complete(value any) {
	f.settle(value, nil)
}

// Fail settles the future with an error.
func (f *Future) Fail(err error) {
	f.settle(nil, err)
}

func (f *Future) settle(value any, err error) {
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		return
	}
	f.settled = true
	f.value = value
	f.err = err
	callbacks := f.callbacks
	f.callbacks = nil
	f.mu.Unlock()

	// Callbacks run before the done channel closes so that spans attached
	// to this future are finalized by the time a waiter resumes.
	for _, cb := range callbacks {
		cb(value, err)
	}
	close(f.done)
}

// onSettle registers a callback invoked once the future settles. If the
// future already settled the callback runs immediately.
func (f *Future) onSettle(cb func(value any, err error)) {
	f.mu.Lock()
	if f.settled {
		value, err := f.value, f.err
		f.mu.Unlock()
		cb(value, err)
		return
	}
	f.callbacks = append(f.callbacks, cb)
	f.mu.Unlock()
}

// Done returns a channel closed when the future settles.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future settles or ctx is cancelled.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
