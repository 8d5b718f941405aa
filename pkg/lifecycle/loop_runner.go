package lifecycle

import (
	"context"
	"sync"
)

// LoopRunner owns one background loop bound to a cancelable context.
// Start and Stop are idempotent; Stop blocks until the loop returns.
type LoopRunner struct {
	mu      sync.RWMutex
	wg      sync.WaitGroup
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewLoopRunner() *LoopRunner {
	return &LoopRunner{}
}

// Start runs loop on its own goroutine with a context derived from parent.
// It reports false when a loop is already running or loop is nil.
func (r *LoopRunner) Start(parent context.Context, loop func(ctx context.Context)) bool {
	if loop == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return false
	}

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done
	r.running = true
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(done)
		defer r.markExited(done)
		loop(ctx)
	}()
	return true
}

// markExited flips running off when the loop returns on its own, so a loop
// that reached a terminal state can be started again.
func (r *LoopRunner) markExited(done chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != done {
		return
	}
	r.running = false
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

// Stop cancels the loop and waits for it to exit, bounded by ctx.
func (r *LoopRunner) Stop(ctx context.Context) bool {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		r.wg.Wait()
		return false
	}
	cancel := r.cancel
	done := r.done
	r.cancel = nil
	r.running = false
	r.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return false
	}
	return true
}

func (r *LoopRunner) Running() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// Done is closed when the current loop returns. It is nil before Start.
func (r *LoopRunner) Done() <-chan struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.done
}
