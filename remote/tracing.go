package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mvailla/spantree"
	"github.com/mvailla/spantree/store/sqlite"
)

func init() {
	spantree.RegisterResolver("http", resolveRef)
	spantree.RegisterResolver("https", resolveRef)
}

// readyTimeout bounds how long construction waits for the spawned server.
const readyTimeout = 5 * time.Second

// Span is a handle on one span behind the API. Every accessor is an HTTP
// round trip; nothing is cached, so writes from any process are visible.
type Span struct {
	c  *Client
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
	name, _, _, _, err := s.c.GetSpan(ctx, s.id)
	return name, err
}

// Data implements spantree.Span.
func (s *Span) Data(ctx context.Context) (map[string]any, error) {
	_, dataJSON, _, _, err := s.c.GetSpan(ctx, s.id)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(dataJSON), &data); err != nil {
		return nil, fmt.Errorf("decode data: %w", err)
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, nil
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
	child := &Span{c: s.c, id: spantree.NewID()}
	if err := s.c.PutSpan(ctx, child.id, name, dataJSON, s.id, true); err != nil {
		return nil, err
	}
	return child, nil
}

// UpdateData implements spantree.Span.
func (s *Span) UpdateData(ctx context.Context, patch map[string]any) error {
	if len(patch) == 0 {
		return nil
	}
	patchJSON, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("encode patch: %w", err)
	}
	return s.c.PatchSpan(ctx, s.id, string(patchJSON))
}

// Ref implements spantree.Span. The locator is the server URL, which is a
// scheme-prefixed locator as-is.
func (s *Span) Ref() spantree.Ref {
	return spantree.Ref{ID: s.id, Locator: s.c.BaseURL()}
}

// Children implements spantree.Tree.
func (s *Span) Children(ctx context.Context) ([]spantree.Tree, error) {
	ids, err := s.c.Children(ctx, s.id)
	if err != nil {
		return nil, err
	}
	trees := make([]spantree.Tree, len(ids))
	for i, id := range ids {
		trees[i] = &Span{c: s.c, id: id}
	}
	return trees, nil
}

// Parent implements spantree.Tree; nil, nil at the root.
func (s *Span) Parent(ctx context.Context) (spantree.Tree, error) {
	_, _, parent, hasParent, err := s.c.GetSpan(ctx, s.id)
	if err != nil {
		return nil, err
	}
	if !hasParent {
		return nil, nil
	}
	return &Span{c: s.c, id: parent}, nil
}

// Option configures a Tracing.
type Option func(*Tracing)

// WithLogger sets a structured logger for the tracing, its server, and its
// store. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracing) { t.logger = l }
}

// WithAddr sets the listen address for the spawned server. Defaults to an
// ephemeral loopback port.
func WithAddr(addr string) Option {
	return func(t *Tracing) { t.addr = addr }
}

// Tracing owns a trace served over HTTP. The constructing process spawns
// the server and the database; it then talks to its own server through the
// client like any attached process would.
type Tracing struct {
	db     *sqlite.SpanDB // nil when attached to another process's server
	server *Server        // nil when attached
	client *Client
	root   *Span
	state  tracingState
	logger *slog.Logger
	addr   string
}

type tracingState int

const (
	stateInactive tracingState = iota
	stateActive
	stateEnded
)

var _ spantree.Tracing = (*Tracing)(nil)

// NewTracing creates the database at dbPath, spawns a server over it, waits
// for readiness, and creates a root span named rootName.
func NewTracing(ctx context.Context, dbPath, rootName string, opts ...Option) (*Tracing, error) {
	if rootName == "" {
		rootName = "root"
	}
	t := &Tracing{logger: nopLogger, addr: "127.0.0.1:0"}
	for _, o := range opts {
		o(t)
	}

	db, err := sqlite.Open(dbPath, sqlite.WithLogger(t.logger))
	if err != nil {
		return nil, err
	}
	t.db = db
	t.server = NewServer(db, WithServerLogger(t.logger))
	if err := t.server.Start(t.addr); err != nil {
		_ = db.Close()
		return nil, err
	}
	t.client = NewClient(t.server.URL())
	if err := t.client.WaitReady(ctx, readyTimeout); err != nil {
		t.teardown(ctx)
		return nil, err
	}

	t.root = &Span{c: t.client, id: spantree.NewID()}
	if err := t.client.PutSpan(ctx, t.root.id, rootName, "{}", spantree.ID{}, false); err != nil {
		t.teardown(ctx)
		return nil, err
	}
	return t, nil
}

// Attach joins a trace served by another process. The root is adopted if it
// already exists and created otherwise, so attach order does not matter.
func Attach(ctx context.Context, url string, rootID spantree.ID) (*Tracing, error) {
	t := &Tracing{logger: nopLogger, client: NewClient(url)}
	if err := t.client.WaitReady(ctx, readyTimeout); err != nil {
		return nil, err
	}
	t.root = &Span{c: t.client, id: rootID}
	_, err := t.root.Name(ctx)
	if err != nil {
		if !isNotFound(err) {
			return nil, err
		}
		if err := t.client.PutSpan(ctx, rootID, "root", "{}", spantree.ID{}, false); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Client returns the API client, e.g. to hand its URL to another process.
func (t *Tracing) Client() *Client { return t.client }

// Start installs the root span as current. Starting an ended tracing fails.
func (t *Tracing) Start(ctx context.Context) (context.Context, error) {
	if t.state == stateEnded {
		return ctx, spantree.ErrTracingEnded
	}
	t.state = stateActive
	return spantree.ContextWithSpan(ctx, t.root), nil
}

// End tears down whatever this tracing owns: for the constructing process
// the server and the database, for an attached process nothing but the
// handle. The database file survives either way.
func (t *Tracing) End(ctx context.Context) error {
	if t.state == stateEnded {
		return spantree.ErrTracingEnded
	}
	t.state = stateEnded
	return t.teardown(ctx)
}

func (t *Tracing) teardown(ctx context.Context) error {
	var firstErr error
	if t.server != nil {
		if err := t.server.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if t.db != nil {
		if err := t.db.WALCheckpoint(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := t.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Root returns the root span.
func (t *Tracing) Root() spantree.Span { return t.root }

// Tree returns the root as a read view.
func (t *Tracing) Tree(context.Context) (spantree.Tree, error) { return t.root, nil }

func resolveRef(ctx context.Context, ref spantree.Ref) (spantree.Span, error) {
	c := NewClient(ref.Locator)
	s := &Span{c: c, id: ref.ID}
	if _, err := s.Name(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, spantree.ErrNotFound)
}

func encodeData(data map[string]any) (string, error) {
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
