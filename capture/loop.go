package capture

import (
	"context"
	"sync"
	"time"
)

// Loop runs a sampling function once when started and then every `interval`, until it is stopped or the context
// given to Start is cancelled. Samples are taken strictly one after another on a single goroutine.
type Loop struct {
	interval time.Duration
	sample   func(ctx context.Context)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewLoop(interval time.Duration, sample func(ctx context.Context)) *Loop {
	return &Loop{
		interval: interval,
		sample:   sample,
	}
}

// Start launches the loop. It returns false if the loop is already running.
func (l *Loop) Start(ctx context.Context) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.runningLocked() {
		return false
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	l.cancel = cancel
	l.done = done

	go l.run(ctx, done)

	return true
}

// Stop cancels the loop and waits for it to exit. A sample that is in progress sees its context cancelled; once
// Stop returns no further samples are taken. Calling Stop on a stopped loop does nothing.
func (l *Loop) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the loop goroutine is still alive.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.runningLocked()
}

func (l *Loop) runningLocked() bool {
	if l.done == nil {
		return false
	}
	select {
	case <-l.done:
		// the parent context was cancelled and the loop exited on its own
		return false
	default:
		return true
	}
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	// take the first sample immediately rather than waiting for the first tick
	l.sample(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// both channels may be ready at once, don't sample after a cancellation
			if ctx.Err() != nil {
				return
			}
			l.sample(ctx)
		}
	}
}
