// Package safego launches background goroutines that survive panics.
package safego

import "log/slog"

// Go runs fn on a new goroutine, recovering and logging any panic instead of
// letting it crash the process. name identifies the loop in the panic log
// line. Use it for long-lived background work (rate limiter sweepers, stats
// collectors) where an unrecovered panic would kill the loop silently.
func Go(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("background goroutine panicked", "name", name, "panic", r)
			}
		}()
		fn()
	}()
}
