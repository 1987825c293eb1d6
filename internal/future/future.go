// Package future implements a single-assignment (value, error) container
// that multiple goroutines can wait on. It is the "promise of bytes"
// primitive the connection responder enqueues into its reply FIFO: the
// resolution task that will eventually produce a reply publishes into it
// exactly once, and the sender goroutine blocks on it in request order.
package future

import (
	"context"
	"sync"
)

type Future struct {
	mu  sync.RWMutex
	set bool
	val interface{}
	err error

	notify chan struct{}
}

func New() *Future {
	return &Future{notify: make(chan struct{})}
}

// Set publishes the (value, error) pair. Calling Set more than once is a
// programming error and is ignored after the first call.
func (f *Future) Set(val interface{}, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.set {
		return
	}
	f.set = true
	f.val = val
	f.err = err
	close(f.notify)
}

func (f *Future) Get() (interface{}, error) {
	return f.GetContext(context.Background())
}

// GetContext blocks until Set is called or ctx is done, whichever comes
// first.
func (f *Future) GetContext(ctx context.Context) (interface{}, error) {
	f.mu.RLock()
	if f.set {
		val, err := f.val, f.err
		f.mu.RUnlock()
		return val, err
	}
	f.mu.RUnlock()

	select {
	case <-f.notify:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.val, f.err
}
