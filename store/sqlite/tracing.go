package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mvailla/spantree"
)

// Scheme is the locator scheme sqlite spans carry in their refs.
const Scheme = "sqlite"

func init() {
	spantree.RegisterResolver(Scheme, resolveRef)
}

// Span is a handle on one stored span. It implements both spantree.Span and
// spantree.Tree; every accessor re-fetches from the database, so writes from
// other goroutines and other processes are visible immediately.
type Span struct {
	db *SpanDB
	id spantree.ID
}

var (
	_ spantree.Span = (*Span)(nil)
	_ spantree.Tree = (*Span)(nil)
)

// ID implements spantree.Span.
func (s *Span) ID() spantree.ID { return s.id }

// Name implements spantree.Span.
func (s *Span) Name(ctx context.Context) (string, error) {
	row, err := s.db.GetSpan(ctx, s.id)
	if err != nil {
		return "", err
	}
	return row.Name, nil
}

// Data implements spantree.Span.
func (s *Span) Data(ctx context.Context) (map[string]any, error) {
	row, err := s.db.GetSpan(ctx, s.id)
	if err != nil {
		return nil, err
	}
	return decodeData(row.DataJSON)
}

// NewChild implements spantree.Span.
func (s *Span) NewChild(ctx context.Context, name string, data map[string]any) (spantree.Span, error) {
	if name == "" {
		name = spantree.DefaultSpanName
	}
	dataJSON, err := encodeData(data)
	if err != nil {
		return nil, err
	}
	child := &Span{db: s.db, id: spantree.NewID()}
	err = s.db.Insert(ctx, Row{
		ID:        child.id,
		ParentID:  s.id,
		HasParent: true,
		Name:      name,
		DataJSON:  dataJSON,
	})
	if err != nil {
		return nil, err
	}
	return child, nil
}

// UpdateData implements spantree.Span. The patch is applied inside the
// database with json_patch, so concurrent patches with disjoint keys both
// land.
func (s *Span) UpdateData(ctx context.Context, patch map[string]any) error {
	if len(patch) == 0 {
		return nil
	}
	patchJSON, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("encode patch: %w", err)
	}
	return s.db.UpdateDataJSON(ctx, s.id, string(patchJSON))
}

// Ref implements spantree.Span. The locator carries the database path, so
// the ref is resolvable from any process that can open the file.
func (s *Span) Ref() spantree.Ref {
	return spantree.Ref{ID: s.id, Locator: Scheme + ":" + s.db.Path()}
}

// Children implements spantree.Tree, ordered by id (creation order).
func (s *Span) Children(ctx context.Context) ([]spantree.Tree, error) {
	ids, err := s.db.ChildrenIDs(ctx, s.id)
	if err != nil {
		return nil, err
	}
	trees := make([]spantree.Tree, len(ids))
	for i, id := range ids {
		trees[i] = &Span{db: s.db, id: id}
	}
	return trees, nil
}

// Parent implements spantree.Tree; nil, nil at the root.
func (s *Span) Parent(ctx context.Context) (spantree.Tree, error) {
	row, err := s.db.GetSpan(ctx, s.id)
	if err != nil {
		return nil, err
	}
	if !row.HasParent {
		return nil, nil
	}
	return &Span{db: s.db, id: row.ParentID}, nil
}

// Tracing owns one root span in a database file. The root is created
// explicitly at construction; opening the same file again attaches to the
// stored tree rather than inventing a second root.
type Tracing struct {
	db    *SpanDB
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

// NewTracing opens (creating if needed) the database at path and creates a
// root span named rootName.
func NewTracing(path, rootName string, opts ...Option) (*Tracing, error) {
	if rootName == "" {
		rootName = "root"
	}
	db, err := Open(path, opts...)
	if err != nil {
		return nil, err
	}
	root := &Span{db: db, id: spantree.NewID()}
	err = db.Insert(context.Background(), Row{ID: root.id, Name: rootName, DataJSON: "{}"})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Tracing{db: db, root: root}, nil
}

// AttachTracing opens the database at path and adopts the existing span
// rootID as the tracing root. Used by a process joining a trace another
// process created.
func AttachTracing(path string, rootID spantree.ID, opts ...Option) (*Tracing, error) {
	db, err := Open(path, opts...)
	if err != nil {
		return nil, err
	}
	if _, err := db.GetSpan(context.Background(), rootID); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Tracing{db: db, root: &Span{db: db, id: rootID}}, nil
}

// DB exposes the underlying span database, e.g. for a live view server
// watching the same file.
func (t *Tracing) DB() *SpanDB { return t.db }

// Start installs the root span as current. Starting an ended tracing fails.
func (t *Tracing) Start(ctx context.Context) (context.Context, error) {
	if t.state == stateEnded {
		return ctx, spantree.ErrTracingEnded
	}
	t.state = stateActive
	return spantree.ContextWithSpan(ctx, t.root), nil
}

// End checkpoints the WAL and closes the database. The file stays readable
// by anyone, including ParseTree-style offline tooling.
func (t *Tracing) End(ctx context.Context) error {
	if t.state == stateEnded {
		return spantree.ErrTracingEnded
	}
	t.state = stateEnded
	if err := t.db.WALCheckpoint(ctx); err != nil {
		_ = t.db.Close()
		return err
	}
	return t.db.Close()
}

// Root returns the root span.
func (t *Tracing) Root() spantree.Span { return t.root }

// Tree returns the root as a read view.
func (t *Tracing) Tree(context.Context) (spantree.Tree, error) { return t.root, nil }

// Refs resolved from other processes share one database handle per file for
// the life of the process; a child process resolving its parent's span has
// no natural point to close it.
var (
	sharedMu  sync.Mutex
	sharedDBs = map[string]*SpanDB{}
)

func resolveRef(ctx context.Context, ref spantree.Ref) (spantree.Span, error) {
	path := ref.Locator[len(Scheme)+1:]
	sharedMu.Lock()
	db, ok := sharedDBs[path]
	if !ok {
		var err error
		db, err = Open(path)
		if err != nil {
			sharedMu.Unlock()
			return nil, err
		}
		sharedDBs[path] = db
	}
	sharedMu.Unlock()
	if _, err := db.GetSpan(ctx, ref.ID); err != nil {
		return nil, err
	}
	return &Span{db: db, id: ref.ID}, nil
}

func encodeData(data map[string]any) (string, error) {
	// nil entries in a creation mapping have nothing to delete; strip them
	// the same way an empty-target merge patch would.
	clean := spantree.MergePatchMap(nil, data)
	if len(clean) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(clean)
	if err != nil {
		return "", fmt.Errorf("encode data: %w", err)
	}
	return string(b), nil
}

func decodeData(dataJSON string) (map[string]any, error) {
	var data map[string]any
	if err := json.Unmarshal([]byte(dataJSON), &data); err != nil {
		return nil, fmt.Errorf("decode data: %w", err)
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, nil
}
