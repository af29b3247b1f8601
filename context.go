package spantree

import (
	"context"
	"fmt"
)

// The current-span slot rides on context.Context: each goroutine sees the
// value of the context it was handed, which is the Go analogue of a
// scheduler-scoped slot. Entering a scope derives a child context (push);
// dropping back to the parent context restores the previous value (pop).
// No locking is needed because a context value never mutates in place.

type spanCtxKey struct{}

// ContextWithSpan returns a context carrying span as the current span.
func ContextWithSpan(ctx context.Context, span Span) context.Context {
	return context.WithValue(ctx, spanCtxKey{}, span)
}

// SpanFromContext returns the current span, or false when no tracing is
// active. The absence of a span is a valid state, never an error: it means
// the surrounding code runs untraced.
func SpanFromContext(ctx context.Context) (Span, bool) {
	span, ok := ctx.Value(spanCtxKey{}).(Span)
	return span, ok
}

// SpanFromContextSafe returns the current span or ErrNoSpan.
func SpanFromContextSafe(ctx context.Context) (Span, error) {
	span, ok := SpanFromContext(ctx)
	if !ok {
		return nil, ErrNoSpan
	}
	return span, nil
}

// SpanFromContextAs returns the current span as a concrete implementation.
// Returns ErrNoSpan when no span is current and ErrSpanType when the current
// span is some other implementation.
func SpanFromContextAs[T Span](ctx context.Context) (T, error) {
	var zero T
	span, err := SpanFromContextSafe(ctx)
	if err != nil {
		return zero, err
	}
	typed, ok := span.(T)
	if !ok {
		return zero, fmt.Errorf("%w: got %T", ErrSpanType, span)
	}
	return typed, nil
}
