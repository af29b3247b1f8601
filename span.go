package spantree

import "context"

// DefaultSpanName is used when a span is created without a name.
const DefaultSpanName = "no-name"

// Reserved data keys written by the tracing scopes in trace.go.
const (
	StartTimeKey = "start_time"
	EndTimeKey   = "end_time"
	ErrorKey     = "error"
)

// Span is a node being actively written to. Spans form a tree built backwards
// from the leaves: each span references its parent, never its children.
//
// For non-memory backends the accessors are not cached — every read re-fetches
// from the store, so updates from a concurrent writer are visible. Once
// created, a span's id, name, and parent are immutable; only data mutates,
// and only via merge patch.
type Span interface {
	// ID is the span's identity. Never does I/O.
	ID() ID

	// Name is the human-readable identifier of the span.
	Name(ctx context.Context) (string, error)

	// Data is the span's current data mapping.
	Data(ctx context.Context) (map[string]any, error)

	// NewChild creates and persists a new span with this span as parent.
	// An empty name falls back to DefaultSpanName.
	NewChild(ctx context.Context, name string, data map[string]any) (Span, error)

	// UpdateData merge-patches patch into the stored data (RFC 7396).
	// Safe to call after the span's scope has exited.
	UpdateData(ctx context.Context, patch map[string]any) error

	// Ref returns a serializable reference to this span: the id plus a
	// locator for the owning store. Live handles never cross a process
	// boundary; a Ref does, and is resolved back on the other side.
	Ref() Ref
}

// Tree is the read-only view of a persisted span, navigable towards the
// leaves — the inverse of the parent-pointer write model. Children is lazy
// and may perform I/O on every call. Child order is insertion order; sort by
// id for an ordering that is stable across backends (ids are time-ordered).
type Tree interface {
	ID() ID
	Name(ctx context.Context) (string, error)
	Data(ctx context.Context) (map[string]any, error)
	Children(ctx context.Context) ([]Tree, error)

	// Parent returns nil, nil at the root.
	Parent(ctx context.Context) (Tree, error)
}

// Tracing owns exactly one root span and the active lifecycle around it.
// Start installs the root span as current; End restores the previous state
// and tears down any transient resources the backend owns (for the remote
// backend, its spawned server). A Tracing that has ended cannot be restarted.
type Tracing interface {
	Start(ctx context.Context) (context.Context, error)
	End(ctx context.Context) error
	Root() Span
	Tree(ctx context.Context) (Tree, error)
}
