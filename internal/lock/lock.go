// Package lock provides the scoped-acquisition wrapper used around saga
// entry points. Acquisition failure is surfaced as ErrLockUnavailable,
// distinct from business errors.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrLockUnavailable signals the lock is held elsewhere.
var ErrLockUnavailable = errors.New("lock unavailable")

// NewLocalLocker constructs an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

// LocalLocker serializes by key within a single process. It uses try-lock
// semantics: a held key fails immediately rather than blocking.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// Acquire takes the key or fails with ErrLockUnavailable. The returned
// release function is idempotent.
func (l *LocalLocker) Acquire(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, fmt.Errorf("%w: %s", ErrLockUnavailable, key)
	}
	l.held[key] = struct{}{}

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}
	return release, nil
}
