package lock

import (
	"context"
	"sync"
	"time"
)

// Local is an in-process Locker. It only serializes callers within one process.
type Local struct {
	mu      sync.Mutex
	entries map[string]*entry
	wait    time.Duration
}

type entry struct {
	ch   chan struct{}
	refs int
}

var _ Locker = (*Local)(nil)

// NewLocal creates an in-process Locker. A zero wait means callers wait until
// their context is done.
func NewLocal(wait time.Duration) *Local {
	return &Local{entries: make(map[string]*entry), wait: wait}
}

// Acquire implements Locker.
func (l *Local) Acquire(ctx context.Context, keys ...string) (Release, error) {
	ctx, cancel := waitContext(ctx, l.wait)
	defer cancel()

	var held []Release
	for _, key := range normalizeKeys(keys) {
		release, err := l.acquireOne(ctx, key)
		if err != nil {
			releaseAll(held)()
			return nil, err
		}
		held = append(held, release)
	}
	return releaseAll(held), nil
}

func (l *Local) acquireOne(ctx context.Context, key string) (Release, error) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		return func() {
			<-e.ch
			l.unref(key, e)
		}, nil
	case <-ctx.Done():
		l.unref(key, e)
		return nil, ErrTimeout
	}
}

// unref drops the entry once no holder or waiter references it.
func (l *Local) unref(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// size reports the number of tracked keys.
func (l *Local) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
