// Package sqlite implements the durable spantree backend on a single-file
// embedded database using pure-Go SQLite. Zero CGO required.
//
// One table holds every span; write-ahead logging keeps readers and the
// writer out of each other's way, and every accessor borrows a short-lived
// connection from the pool instead of holding a transaction open. Data
// updates apply RFC 7396 merge patches inside the database (json_patch), so
// concurrent updaters with disjoint keys never lose writes.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"time"

	"github.com/mvailla/spantree"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// Row is one stored span. Data stays raw JSON text; decoding is the
// caller's responsibility.
type Row struct {
	ID        spantree.ID
	ParentID  spantree.ID // zero when the span is a root
	HasParent bool
	Name      string
	DataJSON  string
}

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Option configures a SpanDB.
type Option func(*SpanDB)

// WithLogger sets a structured logger for the store. When set, the store
// emits debug logs for every operation including timing and key parameters.
// If not set, no logs are emitted.
func WithLogger(l *slog.Logger) Option {
	return func(db *SpanDB) { db.logger = l }
}

// SpanDB is the span table access layer shared by the local tracing and the
// remote server.
type SpanDB struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open opens (creating if needed) the span database at path and initializes
// the schema idempotently. WAL mode and a busy timeout are set through
// driver pragmas so concurrent readers never block on the writer.
func Open(path string, opts ...Option) (*SpanDB, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve db path: %w", err)
	}
	dsn := "file:" + abs + "?" + url.Values{
		"_pragma": []string{"journal_mode(WAL)", "busy_timeout(5000)", "synchronous(NORMAL)"},
	}.Encode()
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	s := &SpanDB{db: db, path: abs, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	if err := s.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.logger.Debug("sqlite: span db opened", "path", abs)
	return s, nil
}

// Path returns the absolute database file path.
func (s *SpanDB) Path() string { return s.path }

// init creates the span table and its bookkeeping triggers. last_updated is
// maintained entirely inside the database so "what changed most recently"
// needs no table scan and no cooperation from writers.
func (s *SpanDB) init(ctx context.Context) error {
	start := time.Now()
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS trace_spans (
			id BLOB PRIMARY KEY,
			parent_id BLOB,
			name TEXT NOT NULL,
			data_json TEXT NOT NULL,
			last_updated REAL NOT NULL DEFAULT 0
		) WITHOUT ROWID`,
		`CREATE INDEX IF NOT EXISTS idx_trace_spans_parent ON trace_spans(parent_id)`,
		`CREATE TRIGGER IF NOT EXISTS trace_spans_touch_insert
			AFTER INSERT ON trace_spans
			BEGIN
				UPDATE trace_spans SET last_updated = unixepoch('subsec') WHERE id = NEW.id;
			END`,
		`CREATE TRIGGER IF NOT EXISTS trace_spans_touch_update
			AFTER UPDATE OF parent_id, name, data_json ON trace_spans
			BEGIN
				UPDATE trace_spans SET last_updated = unixepoch('subsec') WHERE id = NEW.id;
			END`,
	}
	for _, ddl := range stmts {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	s.logger.Debug("sqlite: schema ready", "duration", time.Since(start))
	return nil
}

// Insert creates a new span row. Fails if the id is already present.
func (s *SpanDB) Insert(ctx context.Context, row Row) error {
	start := time.Now()
	s.logger.Debug("sqlite: insert span", "id", row.ID, "name", row.Name, "has_parent", row.HasParent)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trace_spans (id, parent_id, name, data_json) VALUES (?, ?, ?, ?)`,
		row.ID.Bytes(), parentArg(row), row.Name, row.DataJSON,
	)
	if err != nil {
		s.logger.Error("sqlite: insert span failed", "id", row.ID, "error", err, "duration", time.Since(start))
		return fmt.Errorf("insert span: %w", err)
	}
	s.logger.Debug("sqlite: insert span ok", "id", row.ID, "duration", time.Since(start))
	return nil
}

// InsertOrUpdate upserts a span row. Used when a process must ensure a root
// exists without coordinating with whoever may have created it first.
func (s *SpanDB) InsertOrUpdate(ctx context.Context, row Row) error {
	start := time.Now()
	s.logger.Debug("sqlite: upsert span", "id", row.ID, "name", row.Name)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trace_spans (id, parent_id, name, data_json) VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			data_json = excluded.data_json`,
		row.ID.Bytes(), parentArg(row), row.Name, row.DataJSON,
	)
	if err != nil {
		s.logger.Error("sqlite: upsert span failed", "id", row.ID, "error", err, "duration", time.Since(start))
		return fmt.Errorf("upsert span: %w", err)
	}
	s.logger.Debug("sqlite: upsert span ok", "id", row.ID, "duration", time.Since(start))
	return nil
}

// GetSpan returns the row for id. A missing id surfaces spantree.ErrNotFound:
// callers only ask for ids they obtained from a prior insert or child query.
func (s *SpanDB) GetSpan(ctx context.Context, id spantree.ID) (Row, error) {
	start := time.Now()
	s.logger.Debug("sqlite: get span", "id", id)

	var (
		row    Row
		rawID  []byte
		parent []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, parent_id, name, data_json FROM trace_spans WHERE id = ?`, id.Bytes(),
	).Scan(&rawID, &parent, &row.Name, &row.DataJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return Row{}, fmt.Errorf("get span %s: %w", id, spantree.ErrNotFound)
	}
	if err != nil {
		s.logger.Error("sqlite: get span failed", "id", id, "error", err, "duration", time.Since(start))
		return Row{}, fmt.Errorf("get span: %w", err)
	}
	if row.ID, err = spantree.IDFromBytes(rawID); err != nil {
		return Row{}, fmt.Errorf("get span: %w", err)
	}
	if parent != nil {
		if row.ParentID, err = spantree.IDFromBytes(parent); err != nil {
			return Row{}, fmt.Errorf("get span: %w", err)
		}
		row.HasParent = true
	}
	s.logger.Debug("sqlite: get span ok", "id", id, "duration", time.Since(start))
	return row, nil
}

// RootIDs returns the ids of all spans without a parent, ordered by id
// (creation order).
func (s *SpanDB) RootIDs(ctx context.Context) ([]spantree.ID, error) {
	return s.queryIDs(ctx, `SELECT id FROM trace_spans WHERE parent_id IS NULL ORDER BY id`)
}

// ChildrenIDs returns the ids of all direct children of id, ordered by id.
func (s *SpanDB) ChildrenIDs(ctx context.Context, id spantree.ID) ([]spantree.ID, error) {
	return s.queryIDs(ctx, `SELECT id FROM trace_spans WHERE parent_id = ? ORDER BY id`, id.Bytes())
}

func (s *SpanDB) queryIDs(ctx context.Context, query string, args ...any) ([]spantree.ID, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.Error("sqlite: query ids failed", "error", err, "duration", time.Since(start))
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer rows.Close()

	var ids []spantree.ID
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		id, err := spantree.IDFromBytes(raw)
		if err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ids: %w", err)
	}
	s.logger.Debug("sqlite: query ids ok", "count", len(ids), "duration", time.Since(start))
	return ids, nil
}

// UpdateDataJSON merge-patches patchJSON into the span's stored data using
// SQLite's native json_patch, one statement — concurrent updaters never
// read-modify-write each other's data away.
func (s *SpanDB) UpdateDataJSON(ctx context.Context, id spantree.ID, patchJSON string) error {
	start := time.Now()
	s.logger.Debug("sqlite: patch span data", "id", id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE trace_spans SET data_json = json_patch(data_json, ?) WHERE id = ?`,
		patchJSON, id.Bytes(),
	)
	if err != nil {
		s.logger.Error("sqlite: patch span data failed", "id", id, "error", err, "duration", time.Since(start))
		return fmt.Errorf("patch span data: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("patch span data %s: %w", id, spantree.ErrNotFound)
	}
	s.logger.Debug("sqlite: patch span data ok", "id", id, "duration", time.Since(start))
	return nil
}

// LastUpdated returns the most recently touched span id and its trigger
// timestamp (Unix seconds with fraction). ok is false on an empty table.
func (s *SpanDB) LastUpdated(ctx context.Context) (id spantree.ID, at float64, ok bool, err error) {
	var raw []byte
	err = s.db.QueryRowContext(ctx,
		`SELECT id, last_updated FROM trace_spans ORDER BY last_updated DESC, id DESC LIMIT 1`,
	).Scan(&raw, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return spantree.ID{}, 0, false, nil
	}
	if err != nil {
		return spantree.ID{}, 0, false, fmt.Errorf("last updated: %w", err)
	}
	if id, err = spantree.IDFromBytes(raw); err != nil {
		return spantree.ID{}, 0, false, fmt.Errorf("last updated: %w", err)
	}
	return id, at, true, nil
}

// WALCheckpoint flushes the write-ahead log into the main database file,
// e.g. before handing the file to another reader.
func (s *SpanDB) WALCheckpoint(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}
	return nil
}

// Close closes the underlying database pool.
func (s *SpanDB) Close() error {
	s.logger.Debug("sqlite: closing span db", "path", s.path)
	return s.db.Close()
}

func parentArg(row Row) any {
	if !row.HasParent {
		return nil
	}
	return row.ParentID.Bytes()
}
