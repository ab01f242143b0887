// Package guard provides the mutual exclusion around decision enactment.
// Two concurrent enactments of the same motion are unsafe without it.
package guard

import (
	"context"
	"errors"
	"sync"
)

// ErrLockHeld is returned when another caller holds the enactment lock.
var ErrLockHeld = errors.New("guard: lock already held")

// Locker serializes enactment per key. Acquire returns a release func; the
// caller must invoke it exactly once.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// Local is an in-process locker with one mutex per key. Sufficient for a
// single-process deployment.
type Local struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLocal() *Local {
	return &Local{locks: make(map[string]*sync.Mutex)}
}

func (l *Local) Acquire(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[key] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	return lock.Unlock, nil
}
