package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/mvailla/spantree"
	"github.com/mvailla/spantree/store/sqlite"
)

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets a structured logger for the server. If not set, no
// logs are emitted.
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// Server serves the span API for one database. It is embeddable: the remote
// Tracing runs one in-process on an ephemeral port, and cmd/spantreed runs
// one standalone.
type Server struct {
	db     *sqlite.SpanDB
	engine *gin.Engine
	srv    *http.Server
	group  errgroup.Group
	addr   string
	logger *slog.Logger
}

// NewServer creates a server over db. The caller retains ownership of db.
func NewServer(db *sqlite.SpanDB, opts ...ServerOption) *Server {
	s := &Server{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	api := engine.Group("/api")
	api.GET("/status/ready", s.handleReady)
	api.GET("/tracing/root", s.handleRoot)
	api.PUT("/span/:id", s.handlePutSpan)
	api.PATCH("/span/:id", s.handlePatchSpan)
	api.GET("/span/:id", s.handleGetSpan)
	api.GET("/span/:id/children", s.handleChildren)

	s.engine = engine
	return s
}

// Start begins serving on addr ("127.0.0.1:0" picks an ephemeral port) and
// returns once the listener is bound. Serving continues in the background
// until Shutdown.
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
	s.logger.Info("remote: span server listening", "addr", s.addr)
	return nil
}

// Addr returns the bound address, valid after Start.
func (s *Server) Addr() string { return s.addr }

// URL returns the server's base URL, valid after Start.
func (s *Server) URL() string { return "http://" + s.addr }

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return s.group.Wait()
}

func (s *Server) handleReady(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// handleRoot lists the root span ids as a bare array. An empty list means
// the owner has not created its root yet.
func (s *Server) handleRoot(c *gin.Context) {
	roots, err := s.db.RootIDs(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, idStrings(roots))
}

// handlePutSpan upserts a span. PUT is idempotent: retries and concurrent
// root-ensuring attaches are safe.
func (s *Server) handlePutSpan(c *gin.Context) {
	id, ok := s.pathID(c)
	if !ok {
		return
	}
	var p spanPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, errorPayload{Error: "bad payload: " + err.Error()})
		return
	}
	row := sqlite.Row{ID: id, Name: p.Name, DataJSON: p.DataJSON}
	if row.Name == "" {
		row.Name = spantree.DefaultSpanName
	}
	if row.DataJSON == "" {
		row.DataJSON = "{}"
	}
	if p.ParentID != nil && *p.ParentID != "" {
		parent, err := spantree.ParseID(*p.ParentID)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorPayload{Error: "bad parent_id: " + err.Error()})
			return
		}
		row.ParentID = parent
		row.HasParent = true
	}
	if err := s.db.InsertOrUpdate(c.Request.Context(), row); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (s *Server) handlePatchSpan(c *gin.Context) {
	id, ok := s.pathID(c)
	if !ok {
		return
	}
	var p patchPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, errorPayload{Error: "bad payload: " + err.Error()})
		return
	}
	if err := s.db.UpdateDataJSON(c.Request.Context(), id, p.DataJSON); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (s *Server) handleGetSpan(c *gin.Context) {
	id, ok := s.pathID(c)
	if !ok {
		return
	}
	row, err := s.db.GetSpan(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	// ParentID stays nil for roots: the field is emitted explicitly as null.
	p := spanPayload{Name: row.Name, DataJSON: row.DataJSON}
	if row.HasParent {
		parent := row.ParentID.String()
		p.ParentID = &parent
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) handleChildren(c *gin.Context) {
	id, ok := s.pathID(c)
	if !ok {
		return
	}
	ids, err := s.db.ChildrenIDs(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, idStrings(ids))
}

// idStrings renders ids for the wire, never as JSON null.
func idStrings(ids []spantree.ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func (s *Server) pathID(c *gin.Context) (spantree.ID, bool) {
	id, err := spantree.ParseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorPayload{Error: "bad span id: " + err.Error()})
		return spantree.ID{}, false
	}
	return id, true
}

func (s *Server) fail(c *gin.Context, err error) {
	if errors.Is(err, spantree.ErrNotFound) {
		c.JSON(http.StatusNotFound, errorPayload{Error: err.Error()})
		return
	}
	s.logger.Error("remote: request failed", "path", c.Request.URL.Path, "error", err)
	c.JSON(http.StatusInternalServerError, errorPayload{Error: err.Error()})
}
