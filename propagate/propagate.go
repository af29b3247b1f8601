// Package propagate carries the current span across the boundaries Go code
// actually crosses: goroutines, worker pools, and child processes. The
// pattern is always capture-then-reestablish — snapshot the span where the
// work is defined, install it where the work runs.
package propagate

import (
	"context"

	"github.com/mvailla/spantree"
)

// Go runs fn on a new goroutine with the caller's current span installed.
// The derived context is detached from the caller's cancellation: the span
// identity propagates, the caller's deadline does not, so a request handler
// returning early cannot cancel background work it traced.
func Go(ctx context.Context, fn func(ctx context.Context)) {
	span, ok := spantree.SpanFromContext(ctx)
	run := context.WithoutCancel(ctx)
	if ok {
		run = spantree.ContextWithSpan(run, span)
	}
	go fn(run)
}
