// Package jsonlog implements the spantree backend as an append-only
// structured log: one JSON line per span insert and per data patch. The live
// handles keep an in-process mirror for reads; the tree view is reconstructed
// offline by replaying the log (see ParseTree). Suited for traces that must
// survive a crash without a database dependency.
package jsonlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/mvailla/spantree"
)

// log record operations.
const (
	opInsert = "insert"
	opPatch  = "patch"
)

// record is one log line. Insert records carry name/parent; patch records
// carry only the data delta.
type record struct {
	Op       string         `json:"op"`
	ID       string         `json:"id"`
	ParentID string         `json:"parent_id,omitempty"`
	Name     string         `json:"name,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Option configures a Tracing.
type Option func(*Tracing)

// WithLogger sets a structured logger for the backend. If not set, no logs
// are emitted.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracing) { t.logger = l }
}

// writer appends records to the log file. A single writer is shared by every
// span of one tracing; the mutex keeps concurrent spans from interleaving
// partial lines.
type writer struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

func (w *writer) append(rec record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return fmt.Errorf("append record: log closed")
	}
	if err := w.enc.Encode(rec); err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return nil
}

func (w *writer) close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// Span is a log-backed span handle. Name and parent are immutable; data is
// mirrored in memory so reads need not replay the log.
type Span struct {
	mu     sync.Mutex
	w      *writer
	path   string
	id     spantree.ID
	name   string
	data   map[string]any
	parent *Span
}

var _ spantree.Span = (*Span)(nil)

func newSpan(w *writer, path, name string, parent *Span, data map[string]any) (*Span, error) {
	if name == "" {
		name = spantree.DefaultSpanName
	}
	s := &Span{
		w:      w,
		path:   path,
		id:     spantree.NewID(),
		name:   name,
		data:   spantree.MergePatchMap(nil, data),
		parent: parent,
	}
	rec := record{Op: opInsert, ID: s.id.String(), Name: name, Data: s.data}
	if parent != nil {
		rec.ParentID = parent.id.String()
	}
	if err := w.append(rec); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Span) ID() spantree.ID { return s.id }

func (s *Span) Name(context.Context) (string, error) { return s.name, nil }

func (s *Span) Data(context.Context) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return spantree.MergePatchMap(nil, s.data), nil
}

func (s *Span) NewChild(_ context.Context, name string, data map[string]any) (spantree.Span, error) {
	return newSpan(s.w, s.path, name, s, data)
}

// UpdateData appends a patch record and merges it into the mirror. Patches
// written after the span's scope has exited are replayed like any other.
func (s *Span) UpdateData(_ context.Context, patch map[string]any) error {
	if err := s.w.append(record{Op: opPatch, ID: s.id.String(), Data: patch}); err != nil {
		return err
	}
	s.mu.Lock()
	s.data = spantree.MergePatchMap(s.data, patch)
	s.mu.Unlock()
	return nil
}

// Ref implements spantree.Span. Log-backed spans are single-writer; the ref
// is informational, no resolver is registered for it.
func (s *Span) Ref() spantree.Ref {
	return spantree.Ref{ID: s.id, Locator: "jsonlog:" + s.path}
}

// Tracing owns a log-backed trace. The root span record is written at
// construction.
type Tracing struct {
	logger *slog.Logger
	w      *writer
	path   string
	root   *Span
	state  int // 0 inactive, 1 active, 2 ended
}

var _ spantree.Tracing = (*Tracing)(nil)

// New creates a Tracing writing the log file at path. The file must be new
// or empty: a log already holding records has a root of its own, and a
// second root record would make the log unreplayable.
func New(path, rootName string, opts ...Option) (*Tracing, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trace log: %w", err)
	}
	if info, err := file.Stat(); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("open trace log: %w", err)
	} else if info.Size() > 0 {
		_ = file.Close()
		return nil, fmt.Errorf("open trace log: %s already contains records", path)
	}
	w := &writer{file: file, enc: json.NewEncoder(file)}
	t := &Tracing{logger: nopLogger, w: w, path: path}
	for _, o := range opts {
		o(t)
	}
	root, err := newSpan(w, path, rootName, nil, nil)
	if err != nil {
		_ = w.close()
		return nil, err
	}
	t.root = root
	t.logger.Debug("jsonlog: tracing opened", "path", path, "root", root.ID())
	return t, nil
}

func (t *Tracing) Start(ctx context.Context) (context.Context, error) {
	if t.state == 2 {
		return ctx, spantree.ErrTracingEnded
	}
	t.state = 1
	return spantree.ContextWithSpan(ctx, t.root), nil
}

// End closes the log file. Span handles become write-dead afterwards.
func (t *Tracing) End(context.Context) error {
	if t.state == 2 {
		return spantree.ErrTracingEnded
	}
	t.state = 2
	t.logger.Debug("jsonlog: tracing ended", "path", t.path)
	return t.w.close()
}

func (t *Tracing) Root() spantree.Span { return t.root }

// Tree reconstructs the current tree by replaying the log file.
func (t *Tracing) Tree(context.Context) (spantree.Tree, error) {
	return ParseTree(t.path)
}
