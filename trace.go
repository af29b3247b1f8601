package spantree

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"
)

// timestamp format written into start_time/end_time span data.
const timeLayout = "2006-01-02 15:04:05"

// Scope is one entered tracing scope. A Scope with no underlying span (no
// tracing active at StartSpan time) is a no-op: all methods succeed and do
// nothing.
type Scope struct {
	span Span
}

// StartSpan creates a child of the current span, installs it as current on
// the returned context, and stamps its start time. When no span is current
// this is a no-op, not an error: the returned Scope does nothing and ctx is
// returned unchanged. The returned error reports storage failures only.
func StartSpan(ctx context.Context, name string, data map[string]any) (context.Context, *Scope, error) {
	parent, ok := SpanFromContext(ctx)
	if !ok {
		return ctx, &Scope{}, nil
	}
	child, err := parent.NewChild(ctx, name, data)
	if err != nil {
		return ctx, &Scope{}, fmt.Errorf("start span %q: %w", name, err)
	}
	if err := child.UpdateData(ctx, map[string]any{StartTimeKey: time.Now().Format(timeLayout)}); err != nil {
		return ctx, &Scope{}, fmt.Errorf("start span %q: %w", name, err)
	}
	return ContextWithSpan(ctx, child), &Scope{span: child}, nil
}

// Span returns the scope's span, or nil for a no-op scope.
func (s *Scope) Span() Span {
	return s.span
}

// End stamps the span's end time. The span itself stays queryable and
// writable; End only closes the scope.
func (s *Scope) End(ctx context.Context) error {
	if s.span == nil {
		return nil
	}
	return s.span.UpdateData(ctx, map[string]any{EndTimeKey: time.Now().Format(timeLayout)})
}

// Fail records err into the span's data under ErrorKey. It does not handle
// the error; callers still propagate it themselves.
func (s *Scope) Fail(ctx context.Context, err error) {
	if s.span == nil || err == nil {
		return
	}
	_ = s.span.UpdateData(ctx, map[string]any{ErrorKey: map[string]any{
		"type":    fmt.Sprintf("%T", err),
		"message": err.Error(),
		"stack":   string(debug.Stack()),
	}})
}

// Run executes fn inside a new scope named name. An error returned by fn is
// recorded into the span data and returned unchanged; a panic is recorded
// with its stack and re-panicked. The scope is ended on every exit path.
func Run(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, scope, startErr := StartSpan(ctx, name, nil)
	if startErr != nil {
		return startErr
	}
	defer func() {
		if r := recover(); r != nil {
			if scope.span != nil {
				_ = scope.span.UpdateData(ctx, map[string]any{ErrorKey: map[string]any{
					"type":    "panic",
					"message": fmt.Sprint(r),
					"stack":   string(debug.Stack()),
				}})
			}
			_ = scope.End(ctx)
			panic(r)
		}
		_ = scope.End(ctx)
	}()
	if err := fn(ctx); err != nil {
		scope.Fail(ctx, err)
		return err
	}
	return nil
}
