// Package abort implements the session-wide AbortSignal (§3, §5): a
// thread-safe cancellation flag checked at every suspension point.
package abort

import (
	"context"
	"sync"
)

// Signal is a thread-safe abort flag. The zero value is ready to use.
type Signal struct {
	mu       sync.Mutex
	aborted  bool
	watchers []chan struct{}
}

// New returns a ready Signal.
func New() *Signal {
	return &Signal{}
}

// Abort flips the flag and wakes every context derived via Context().
// Idempotent.
func (s *Signal) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aborted {
		return
	}
	s.aborted = true
	for _, ch := range s.watchers {
		close(ch)
	}
	s.watchers = nil
}

// Reset clears the flag for a new user turn. It does not retroactively
// un-cancel any context already derived and cancelled (§5).
func (s *Signal) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborted = false
}

// Aborted reports the current flag value.
func (s *Signal) Aborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

// Context returns a context.Context derived from parent that is
// cancelled when s.Abort() is called (or parent is cancelled, or the
// returned cancel func is called). The caller must call the returned
// cancel func to release resources once the context is no longer needed.
func (s *Signal) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	s.mu.Lock()
	if s.aborted {
		s.mu.Unlock()
		cancel()
		return ctx, cancel
	}
	watch := make(chan struct{})
	s.watchers = append(s.watchers, watch)
	s.mu.Unlock()

	go func() {
		select {
		case <-watch:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
