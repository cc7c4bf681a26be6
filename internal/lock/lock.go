// Package lock provides per-organization mutual exclusion for lifecycle
// operations. Keys are organization keys (namespace.Key); a caller that needs
// several keys acquires them in one call so every caller takes them in the same
// sorted order.
package lock

import (
	"context"
	"errors"
	"sort"
	"time"
)

// ErrTimeout is returned when a lock could not be acquired before the wait
// timeout or the context deadline.
var ErrTimeout = errors.New("timed out waiting for lock")

// Release frees the locks obtained by Acquire. It is safe to call more than once.
type Release func()

// Locker grants exclusive access to a set of keys.
type Locker interface {
	// Acquire blocks until all keys are held, ctx is done, or the configured
	// wait timeout elapses.
	Acquire(ctx context.Context, keys ...string) (Release, error)
}

// normalizeKeys returns keys sorted with duplicates and empty keys removed.
func normalizeKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// waitContext applies the wait timeout to ctx, if one is configured.
func waitContext(ctx context.Context, wait time.Duration) (context.Context, context.CancelFunc) {
	if wait <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, wait)
}

func releaseAll(releases []Release) Release {
	done := false
	return func() {
		if done {
			return
		}
		done = true
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
}
