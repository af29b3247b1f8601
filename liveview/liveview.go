// Package liveview serves a browser view of a running trace. A websocket
// pushes the full nested tree whenever the underlying database reports a
// change; on clean shutdown the final tree is written out as a standalone
// HTML file that needs no server.
package liveview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/mvailla/spantree"
	"github.com/mvailla/spantree/store/sqlite"
)

// pollInterval is how often the watcher asks the database what changed.
const pollInterval = time.Second

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// node is the shape pushed to the browser and baked into the export.
type node struct {
	Name     string         `json:"name"`
	Data     map[string]any `json:"data"`
	Children []*node        `json:"children"`
}

// buildTree loads the nested tree under rootID. Children are ordered by id,
// which is creation order.
func buildTree(ctx context.Context, db *sqlite.SpanDB, rootID spantree.ID) (*node, error) {
	row, err := db.GetSpan(ctx, rootID)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(row.DataJSON), &data); err != nil {
		return nil, fmt.Errorf("decode data: %w", err)
	}
	n := &node{Name: row.Name, Data: data, Children: []*node{}}
	kids, err := db.ChildrenIDs(ctx, rootID)
	if err != nil {
		return nil, err
	}
	for _, id := range kids {
		child, err := buildTree(ctx, db, id)
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, child)
	}
	return n, nil
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets a structured logger for the view server. If not set, no
// logs are emitted.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// WithExportPath sets where the standalone HTML export is written on
// shutdown. Empty disables the export.
func WithExportPath(path string) ServerOption {
	return func(s *Server) { s.exportPath = path }
}

// Server serves the live view for one trace database.
type Server struct {
	db         *sqlite.SpanDB
	rootID     spantree.ID
	engine     *gin.Engine
	srv        *http.Server
	group      errgroup.Group
	addr       string
	exportPath string
	logger     *slog.Logger
	upgrader   websocket.Upgrader
}

// NewServer creates a view server over db, rooted at rootID. The caller
// retains ownership of db.
func NewServer(db *sqlite.SpanDB, rootID spantree.ID, opts ...ServerOption) *Server {
	s := &Server{
		db:     db,
		rootID: rootID,
		logger: nopLogger,
		// The page and the socket are same-origin on loopback.
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
	for _, o := range opts {
		o(s)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/", s.handleIndex)
	engine.GET("/ws", s.handleWS)
	engine.GET("/api/status/ready", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	s.engine = engine
	return s
}

// Start begins serving on addr ("127.0.0.1:0" picks an ephemeral port) and
// returns once the listener is bound.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.addr = ln.Addr().String()
	s.srv = &http.Server{Handler: s.engine, ReadHeaderTimeout: 5 * time.Second}
	s.group.Go(func() error {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	s.logger.Info("liveview: serving", "url", s.URL())
	return nil
}

// Addr returns the bound address, valid after Start.
func (s *Server) Addr() string { return s.addr }

// URL returns the page URL, valid after Start.
func (s *Server) URL() string { return "http://" + s.addr }

// Shutdown stops the server, writes the HTML export if configured, and
// checkpoints the WAL so the database file is complete on disk.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv != nil {
		if err := s.srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		if err := s.group.Wait(); err != nil {
			return err
		}
	}
	if s.exportPath != "" {
		if err := s.Export(ctx, s.exportPath); err != nil {
			return err
		}
	}
	return s.db.WALCheckpoint(ctx)
}

// Export writes a standalone HTML rendering of the current tree to path.
func (s *Server) Export(ctx context.Context, path string) error {
	tree, err := buildTree(ctx, s.db, s.rootID)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	raw, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := pageTmpl.Execute(f, pageData{Static: true, TreeJSON: template.JS(raw)}); err != nil {
		_ = f.Close()
		return fmt.Errorf("export: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	s.logger.Info("liveview: exported", "path", path)
	return nil
}

func (s *Server) handleIndex(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := pageTmpl.Execute(c.Writer, pageData{}); err != nil {
		s.logger.Error("liveview: render index", "error", err)
	}
}

// handleWS pushes the tree once on connect and again whenever the database
// reports a newer last_updated. Poll-based: the watcher never holds a read
// transaction between ticks, so writers are unaffected.
func (s *Server) handleWS(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("liveview: upgrade", "error", err)
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	var lastSeen float64 = -1
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		_, at, ok, err := s.db.LastUpdated(ctx)
		if err != nil {
			s.logger.Error("liveview: watch", "error", err)
			return
		}
		if ok && at > lastSeen {
			tree, err := buildTree(ctx, s.db, s.rootID)
			if err != nil {
				s.logger.Error("liveview: build tree", "error", err)
				return
			}
			if err := conn.WriteJSON(tree); err != nil {
				return
			}
			lastSeen = at
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
