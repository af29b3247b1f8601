package liveview

import (
	"context"
	"log/slog"

	"github.com/mvailla/spantree"
	"github.com/mvailla/spantree/store/sqlite"
)

// Option configures a Tracing.
type Option func(*Tracing)

// WithTracingLogger sets a structured logger for the tracing, its store,
// and its view server.
func WithTracingLogger(l *slog.Logger) Option {
	return func(t *Tracing) { t.logger = l }
}

// WithAddr sets the view server's listen address. Defaults to an ephemeral
// loopback port.
func WithAddr(addr string) Option {
	return func(t *Tracing) { t.addr = addr }
}

// WithExport sets where the standalone HTML export lands when the tracing
// ends. Empty disables the export.
func WithExport(path string) Option {
	return func(t *Tracing) { t.exportPath = path }
}

// Tracing is a sqlite tracing with a live view attached: construction
// spawns the view server, End exports and tears it down.
type Tracing struct {
	inner *sqlite.Tracing
	view  *Server

	logger     *slog.Logger
	addr       string
	exportPath string
}

var _ spantree.Tracing = (*Tracing)(nil)

// NewTracing creates the trace database at dbPath with a root named
// rootName and starts the view server over it.
func NewTracing(dbPath, rootName string, opts ...Option) (*Tracing, error) {
	t := &Tracing{logger: nopLogger, addr: "127.0.0.1:0"}
	for _, o := range opts {
		o(t)
	}
	inner, err := sqlite.NewTracing(dbPath, rootName, sqlite.WithLogger(t.logger))
	if err != nil {
		return nil, err
	}
	t.inner = inner
	t.view = NewServer(inner.DB(), inner.Root().ID(),
		WithLogger(t.logger), WithExportPath(t.exportPath))
	if err := t.view.Start(t.addr); err != nil {
		_ = inner.End(context.Background())
		return nil, err
	}
	return t, nil
}

// URL returns the view page URL.
func (t *Tracing) URL() string { return t.view.URL() }

// Start installs the root span as current.
func (t *Tracing) Start(ctx context.Context) (context.Context, error) {
	return t.inner.Start(ctx)
}

// End stops the view server (writing the export, if configured) and then
// ends the underlying tracing.
func (t *Tracing) End(ctx context.Context) error {
	viewErr := t.view.Shutdown(ctx)
	if err := t.inner.End(ctx); err != nil {
		return err
	}
	return viewErr
}

// Root returns the root span.
func (t *Tracing) Root() spantree.Span { return t.inner.Root() }

// Tree returns the root as a read view.
func (t *Tracing) Tree(ctx context.Context) (spantree.Tree, error) { return t.inner.Tree(ctx) }
