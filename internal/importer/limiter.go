package importer

// limiter.go serializes imports. The discard-then-repopulate semantics of
// the store tolerate exactly one writer, so a second import request is
// rejected up front instead of interleaving with the first.

import (
	"errors"
	"sync"
)

// ErrImportInProgress is returned when an import request arrives while
// another import is still running.
var ErrImportInProgress = errors.New("an import is already in progress, please wait for it to finish")

// importLimiter is a non-blocking single-slot semaphore.
type importLimiter struct {
	slot chan struct{}

	mu     sync.Mutex
	active bool
}

func newImportLimiter() *importLimiter {
	return &importLimiter{slot: make(chan struct{}, 1)}
}

// tryAcquire claims the import slot without blocking.
func (l *importLimiter) tryAcquire() bool {
	select {
	case l.slot <- struct{}{}:
		l.mu.Lock()
		l.active = true
		l.mu.Unlock()
		return true
	default:
		return false
	}
}

// release frees the slot. Must be called exactly once per successful
// tryAcquire (use defer).
func (l *importLimiter) release() {
	l.mu.Lock()
	l.active = false
	l.mu.Unlock()
	<-l.slot
}

// Active reports whether an import currently holds the slot.
func (l *importLimiter) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}
