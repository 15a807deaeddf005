// Package retry provides a scheduled retry loop with an explicit lifetime.
// Loops are owned by a page session; stopping the session provably halts
// every pending tick, so no timer can outlive the state it was created for.
package retry

import (
	"context"
	"sync"
	"time"
)

// Loop invokes a function on a fixed interval until the function reports
// completion, Stop is called, or the context is canceled.
type Loop struct {
	interval time.Duration
	fn       func(ctx context.Context) bool // return true to stop retrying

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
	stopped bool
}

// New creates a retry loop. fn returns true when the work is done and the
// loop should stop rescheduling itself.
func New(interval time.Duration, fn func(ctx context.Context) bool) *Loop {
	return &Loop{
		interval: interval,
		fn:       fn,
	}
}

// Start begins the loop. The first attempt runs immediately, then on every
// interval tick. Start is a no-op if the loop was already started or stopped.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started || l.stopped {
		return
	}
	l.started = true

	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})

	go l.run(runCtx)
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)

	if l.fn(ctx) {
		return
	}

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if l.fn(ctx) {
				return
			}
		}
	}
}

// Stop halts the loop and waits for any in-flight attempt to return.
// After Stop returns, fn will never be invoked again. Safe to call multiple
// times and before Start.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.stopped {
		done := l.done
		l.mu.Unlock()
		if done != nil {
			<-done
		}
		return
	}
	l.stopped = true
	cancel := l.cancel
	done := l.done
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Running reports whether the loop has been started and not yet finished.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.started || l.done == nil {
		return false
	}
	select {
	case <-l.done:
		return false
	default:
		return true
	}
}
