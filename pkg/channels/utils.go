package channels

import (
	"context"
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"wabridge/pkg/logger"
)

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 0 {
		return ""
	}
	// Back off to a rune start so the cut never splits a multi-byte character.
	for maxLen > 0 && !utf8.RuneStart(s[maxLen]) {
		maxLen--
	}
	return s[:maxLen]
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// closure describes why one connection ended.
type closure struct {
	Cause      error
	LoggedOut  bool
	RetryAfter time.Duration
}

// closureSignal keeps the first closure reported for a connection. Later
// reports are dropped. Once it has fired the connection is dead, and
// whileOpen refuses to run.
type closureSignal struct {
	mu    sync.Mutex
	fired bool
	ch    chan closure
}

func newClosureSignal() *closureSignal {
	return &closureSignal{ch: make(chan closure, 1)}
}

func (s *closureSignal) signal(c closure) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fired {
		return false
	}
	s.fired = true
	s.ch <- c
	return true
}

// whileOpen runs fn only if no closure has been reported yet. fn runs under
// the signal's lock, so it cannot interleave with the first signal.
func (s *closureSignal) whileOpen(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fired {
		return false
	}
	fn()
	return true
}

func (s *closureSignal) C() <-chan closure {
	return s.ch
}

func runChannelTask(name, taskName string, task func() error, onFailure func(error)) {
	go func() {
		if err := task(); err != nil {
			if errors.Is(err, context.Canceled) {
				logger.InfoCF(name, taskName+" stopped", map[string]interface{}{
					"reason": "context canceled",
				})
				return
			}
			logger.ErrorCF(name, taskName+" failed", map[string]interface{}{
				logger.FieldError: err.Error(),
			})
			if onFailure != nil {
				onFailure(err)
			}
		}
	}()
}
