// Package safego launches background goroutines that must never take the
// process down with them.
package safego

import (
	"log/slog"
	"runtime/debug"
)

// Go runs fn in a new goroutine. A panic inside fn is recovered and logged
// under task together with the goroutine's stack.
//
// Use it for every fire-and-forget goroutine: last-used token stamps, activity
// writes, job loops.
func Go(task string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("recovered panic in background goroutine",
					"task", task,
					"panic", r,
					"stack", string(debug.Stack()),
				)
			}
		}()
		fn()
	}()
}
