// Package memory implements the spantree backend as an in-process tree.
// Nodes are held by strong reference: the same type serves as Span (parent
// link, writes) and Tree (children links, reads). Nothing is persisted;
// mainly the reference implementation the other backends are measured
// against, and the cheapest way to trace a test.
package memory

import (
	"context"
	"sync"

	"github.com/mvailla/spantree"
)

// Span is an in-memory span node. It implements both spantree.Span and
// spantree.Tree.
type Span struct {
	mu       sync.Mutex
	id       spantree.ID
	name     string
	data     map[string]any
	parent   *Span
	children []*Span
}

var (
	_ spantree.Span = (*Span)(nil)
	_ spantree.Tree = (*Span)(nil)
)

func newSpan(name string, parent *Span, data map[string]any) *Span {
	if name == "" {
		name = spantree.DefaultSpanName
	}
	return &Span{
		id:     spantree.NewID(),
		name:   name,
		data:   spantree.MergePatchMap(nil, data),
		parent: parent,
	}
}

// ID implements spantree.Span.
func (s *Span) ID() spantree.ID { return s.id }

// Name implements spantree.Span; never fails for the in-memory backend.
func (s *Span) Name(context.Context) (string, error) { return s.name, nil }

// Data returns a copy of the span's data.
func (s *Span) Data(context.Context) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return spantree.MergePatchMap(nil, s.data), nil
}

// NewChild creates a child span, appending it in insertion order.
func (s *Span) NewChild(_ context.Context, name string, data map[string]any) (spantree.Span, error) {
	child := newSpan(name, s, data)
	s.mu.Lock()
	s.children = append(s.children, child)
	s.mu.Unlock()
	return child, nil
}

// UpdateData merge-patches patch into the span's data.
func (s *Span) UpdateData(_ context.Context, patch map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = spantree.MergePatchMap(s.data, patch)
	return nil
}

// Ref implements spantree.Span. An in-memory span cannot outlive its
// process, so the ref resolves nowhere; it exists to satisfy the contract.
func (s *Span) Ref() spantree.Ref {
	return spantree.Ref{ID: s.id, Locator: "memory:"}
}

// Children implements spantree.Tree.
func (s *Span) Children(context.Context) ([]spantree.Tree, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	trees := make([]spantree.Tree, len(s.children))
	for i, c := range s.children {
		trees[i] = c
	}
	return trees, nil
}

// Parent implements spantree.Tree; nil, nil at the root.
func (s *Span) Parent(context.Context) (spantree.Tree, error) {
	if s.parent == nil {
		return nil, nil
	}
	return s.parent, nil
}

// Tracing owns an in-memory trace. The root span is created eagerly at
// construction (auto-create policy: a memory tracing is useless without one).
type Tracing struct {
	root  *Span
	state tracingState
}

type tracingState int

const (
	stateInactive tracingState = iota
	stateActive
	stateEnded
)

var _ spantree.Tracing = (*Tracing)(nil)

// New creates an in-memory tracing with a root span named rootName.
func New(rootName string) *Tracing {
	if rootName == "" {
		rootName = "root"
	}
	return &Tracing{root: newSpan(rootName, nil, nil)}
}

// Start installs the root span as current. Starting an ended tracing fails.
func (t *Tracing) Start(ctx context.Context) (context.Context, error) {
	if t.state == stateEnded {
		return ctx, spantree.ErrTracingEnded
	}
	t.state = stateActive
	return spantree.ContextWithSpan(ctx, t.root), nil
}

// End deactivates the tracing. The tree stays readable.
func (t *Tracing) End(context.Context) error {
	if t.state == stateEnded {
		return spantree.ErrTracingEnded
	}
	t.state = stateEnded
	return nil
}

// Root returns the root span.
func (t *Tracing) Root() spantree.Span { return t.root }

// Tree returns the root as a read view.
func (t *Tracing) Tree(context.Context) (spantree.Tree, error) { return t.root, nil }
