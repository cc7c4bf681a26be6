// Package safego launches background goroutines that log a recovered panic
// instead of taking the process down.
package safego

import (
	"log/slog"
	"runtime/debug"
)

// Go runs fn in a new goroutine. A panic in fn is recovered and logged under
// name. Use it for long-lived helpers such as the metrics listener and the
// pool stats sampler, where a crash would otherwise go unnoticed.
func Go(name string, fn func()) {
	go func() {
		defer Recover(name)
		fn()
	}()
}

// Recover logs a panic in the calling goroutine. It must be deferred directly.
func Recover(name string) {
	if r := recover(); r != nil {
		slog.Error("recovered panic in background goroutine",
			"goroutine", name,
			"panic", r,
			"stack", string(debug.Stack()))
	}
}
