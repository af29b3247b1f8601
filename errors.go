package spantree

import (
	"errors"
	"fmt"
)

// ErrNoSpan is returned by the safe context accessors when no span is current.
// Reading the current span outside an active tracing is a usage error, not a
// condition to retry.
var ErrNoSpan = errors.New("no span is current; run inside an active Tracing")

// ErrSpanType is returned when the current span is not the implementation the
// caller asked for.
var ErrSpanType = errors.New("current span has unexpected type")

// ErrNotFound is returned by backends when a span id does not exist. Callers
// are expected to only ask for ids they obtained from a prior insert or
// child-list query, so hitting this indicates a bug in the caller.
var ErrNotFound = errors.New("span not found")

// ErrTracingEnded is returned when starting a Tracing that has already ended.
var ErrTracingEnded = errors.New("tracing already ended")

// ErrHTTP is a non-2xx response from the remote backend.
type ErrHTTP struct {
	Status int
	Body   string
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}
