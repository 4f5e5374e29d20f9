package service

import (
	"context"
	"sync"
	"time"
)

// call is one upstream fetch that several callers may wait on.
type call[V any] struct {
	done   chan struct{}
	result V
	err    error
}

// requestCoalescer collapses concurrent fetches for the same query key into one
// upstream call, the way a client-side query cache deduplicates by key.
type requestCoalescer[V any] struct {
	mu       sync.Mutex
	inFlight map[string]*call[V]
	timeout  time.Duration
}

// newRequestCoalescer creates a coalescer. timeout bounds both the shared fetch and each wait.
func newRequestCoalescer[V any](timeout time.Duration) *requestCoalescer[V] {
	return &requestCoalescer[V]{
		inFlight: make(map[string]*call[V]),
		timeout:  timeout,
	}
}

// GetOrDo returns the result of the in-flight fetch for key, starting fn if none is running.
// shared is true when the caller joined a fetch started by someone else.
// fn receives a context detached from the first caller's cancellation so that
// one visitor closing the page does not fail everyone waiting on the key.
func (rc *requestCoalescer[V]) GetOrDo(ctx context.Context, key string, fn func(context.Context) (V, error)) (result V, shared bool, err error) {
	rc.mu.Lock()
	c, exists := rc.inFlight[key]
	if !exists {
		c = &call[V]{done: make(chan struct{})}
		rc.inFlight[key] = c
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rc.timeout)
		go func() {
			defer cancel()
			c.result, c.err = fn(fetchCtx)
			rc.mu.Lock()
			delete(rc.inFlight, key)
			rc.mu.Unlock()
			close(c.done)
		}()
	}
	rc.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, rc.timeout)
	defer cancel()
	select {
	case <-c.done:
		return c.result, exists, c.err
	case <-waitCtx.Done():
		var zero V
		return zero, exists, waitCtx.Err()
	}
}

// pending returns the number of keys with a fetch in flight.
func (rc *requestCoalescer[V]) pending() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.inFlight)
}
