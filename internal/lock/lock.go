// Package lock serializes pipeline runs per ticker, in-process or across
// processes through Redis.
package lock

import (
	"context"
	"sync"
)

// Locker acquires an exclusive lock on key. The returned release function
// must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

type entry struct {
	ch   chan struct{}
	refs int
}

// Local is an in-process keyed mutex. Waiters give up when ctx is done.
type Local struct {
	mu    sync.Mutex
	locks map[string]*entry
}

// NewLocal creates a Local locker.
func NewLocal() *Local {
	return &Local{locks: make(map[string]*entry)}
}

// Lock implements Locker.
func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	default:
		select {
		case e.ch <- struct{}{}:
		case <-ctx.Done():
			l.drop(key, e)
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.drop(key, e)
		})
	}, nil
}

func (l *Local) drop(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}
