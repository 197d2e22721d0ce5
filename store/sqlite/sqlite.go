// Package sqlite implements the storage Adapter on pure-Go SQLite. Zero CGO
// required. It serves two of the persistence variants: a native file-backed
// store (New) and an in-memory buffer-backed store (NewInMemory/NewBuffered)
// whose contents are exported as a byte snapshot and persisted periodically.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/codebench/codebench"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a structured logger for the store. When set, the store
// emits debug logs for every operation including timing and key parameters.
// If not set, no logs are emitted.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// schemaDDL mirrors the original persisted layout: two tables, a language
// check constraint, and the two lookup indexes.
var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS code_sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT NOT NULL,
		language TEXT NOT NULL CHECK (language IN ('python', 'javascript', 'html')),
		output TEXT,
		timestamp TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS app_data (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		key TEXT UNIQUE NOT NULL,
		value TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_code_sessions_language_timestamp
		ON code_sessions(language, timestamp DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_app_data_key ON app_data(key)`,
}

// Store implements the Adapter on a SQLite database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	memory bool

	// Buffer-backed mode only.
	sink     BlobSink
	flushMu  sync.Mutex
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

var _ codebench.Adapter = (*Store)(nil)
var _ codebench.Exporter = (*Store)(nil)

// New creates a Store on a local SQLite file at dbPath. It opens a single
// shared connection (SetMaxOpenConns(1)) so all goroutines serialize through
// one connection, eliminating SQLITE_BUSY errors from concurrent writers.
func New(dbPath string, opts ...Option) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// NewInMemory creates a Store on an in-memory database, optionally restored
// from a snapshot produced by Export. A corrupt snapshot fails construction:
// a backend that cannot load must fail initialization as a whole, not
// individual queries.
func NewInMemory(snapshot []byte, opts ...Option) (*Store, error) {
	s := New(":memory:", opts...)
	s.memory = true
	if len(snapshot) == 0 {
		return s, nil
	}
	if err := s.restore(context.Background(), snapshot); err != nil {
		s.db.Close()
		return nil, err
	}
	return s, nil
}

// Run executes a write operation.
func (s *Store) Run(ctx context.Context, op codebench.Op, args ...any) (codebench.Ack, error) {
	start := time.Now()
	switch op {
	case codebench.OpInitSchema:
		for _, ddl := range schemaDDL {
			if _, err := s.db.ExecContext(ctx, ddl); err != nil {
				s.logger.Error("sqlite: init schema failed", "error", err, "duration", time.Since(start))
				return codebench.Ack{}, fmt.Errorf("create schema: %w", err)
			}
		}
		s.logger.Debug("sqlite: init schema ok", "duration", time.Since(start))
		return codebench.Ack{}, nil

	case codebench.OpInsertSession:
		return s.exec(ctx, op,
			`INSERT INTO code_sessions (code, language, output, timestamp) VALUES (?, ?, ?, ?)`,
			args...)

	case codebench.OpUpdateSession:
		query, params, err := updateQuery(args)
		if err != nil {
			return codebench.Ack{}, err
		}
		return s.exec(ctx, op, query, params...)

	case codebench.OpDeleteSession:
		return s.exec(ctx, op, `DELETE FROM code_sessions WHERE id = ?`, args...)

	case codebench.OpUpsertAppData:
		return s.exec(ctx, op, `INSERT OR REPLACE INTO app_data (key, value) VALUES (?, ?)`, args...)

	case codebench.OpDeleteAppData:
		return s.exec(ctx, op, `DELETE FROM app_data WHERE key = ?`, args...)
	}
	return codebench.Ack{}, fmt.Errorf("%w: %s", codebench.ErrUnsupportedOp, op)
}

func (s *Store) exec(ctx context.Context, op codebench.Op, query string, args ...any) (codebench.Ack, error) {
	start := time.Now()
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		s.logger.Error("sqlite: write failed", "op", op.String(), "error", err, "duration", time.Since(start))
		return codebench.Ack{}, fmt.Errorf("%s: %w", op, err)
	}
	var ack codebench.Ack
	ack.LastInsertID, _ = res.LastInsertId()
	ack.RowsAffected, _ = res.RowsAffected()
	s.logger.Debug("sqlite: write ok", "op", op.String(), "rows", ack.RowsAffected, "duration", time.Since(start))
	return ack, nil
}

// Get executes a single-row read. Absence is (nil, nil).
func (s *Store) Get(ctx context.Context, op codebench.Op, args ...any) (codebench.Row, error) {
	start := time.Now()
	switch op {
	case codebench.OpSelectLatestSession:
		row := s.db.QueryRowContext(ctx,
			`SELECT id, code, language, output, timestamp FROM code_sessions
			 WHERE language = ? ORDER BY timestamp DESC, id DESC LIMIT 1`, args...)
		result, err := scanSession(row)
		if err != nil {
			s.logger.Error("sqlite: get failed", "op", op.String(), "error", err, "duration", time.Since(start))
			return nil, err
		}
		s.logger.Debug("sqlite: get ok", "op", op.String(), "found", result != nil, "duration", time.Since(start))
		return result, nil

	case codebench.OpSelectAppData:
		var key, value string
		err := s.db.QueryRowContext(ctx,
			`SELECT key, value FROM app_data WHERE key = ?`, args...).Scan(&key, &value)
		if err == sql.ErrNoRows {
			return nil, nil
		}
		if err != nil {
			s.logger.Error("sqlite: get failed", "op", op.String(), "error", err, "duration", time.Since(start))
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return codebench.Row{"key": key, "value": value}, nil
	}
	return nil, fmt.Errorf("%w: %s", codebench.ErrUnsupportedOp, op)
}

// All executes a multi-row read.
func (s *Store) All(ctx context.Context, op codebench.Op, args ...any) ([]codebench.Row, error) {
	start := time.Now()
	var query string
	switch op {
	case codebench.OpSelectSessionsByLanguage:
		query = `SELECT id, code, language, output, timestamp FROM code_sessions
			 WHERE language = ? ORDER BY timestamp DESC, id DESC`
	case codebench.OpSelectAllSessions:
		query = `SELECT id, code, language, output, timestamp FROM code_sessions
			 ORDER BY timestamp DESC, id DESC`
	case codebench.OpSelectAllAppData:
		return s.allAppData(ctx)
	default:
		return nil, fmt.Errorf("%w: %s", codebench.ErrUnsupportedOp, op)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.Error("sqlite: select failed", "op", op.String(), "error", err, "duration", time.Since(start))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []codebench.Row
	for rows.Next() {
		row, err := scanSessionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.logger.Debug("sqlite: select ok", "op", op.String(), "count", len(out), "duration", time.Since(start))
	return out, nil
}

func (s *Store) allAppData(ctx context.Context) ([]codebench.Row, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM app_data ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("select_all_app_data: %w", err)
	}
	defer rows.Close()
	var out []codebench.Row
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		out = append(out, codebench.Row{"key": key, "value": value})
	}
	return out, rows.Err()
}

// Close closes the database. Buffer-backed stores should use FlushAndClose
// instead; Close on them skips the final snapshot.
func (s *Store) Close() error {
	s.stopFlusher()
	return s.db.Close()
}

// --- snapshot serialization (buffer-backed mode) ---

type snapshot struct {
	Sessions []snapshotSession `json:"sessions"`
	AppData  []snapshotAppData `json:"app_data"`
}

type snapshotSession struct {
	ID        int64   `json:"id"`
	Code      string  `json:"code"`
	Language  string  `json:"language"`
	Output    *string `json:"output,omitempty"`
	Timestamp string  `json:"timestamp"`
}

type snapshotAppData struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Export serializes both tables into a byte snapshot. Only supported for
// in-memory stores; the file-backed variant is already durable.
func (s *Store) Export(ctx context.Context) ([]byte, error) {
	if !s.memory {
		return nil, fmt.Errorf("sqlite: export requires an in-memory store")
	}
	start := time.Now()
	var snap snapshot

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, code, language, output, timestamp FROM code_sessions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("export sessions: %w", err)
	}
	for rows.Next() {
		var sess snapshotSession
		var output sql.NullString
		if err := rows.Scan(&sess.ID, &sess.Code, &sess.Language, &output, &sess.Timestamp); err != nil {
			rows.Close()
			return nil, fmt.Errorf("export sessions: %w", err)
		}
		if output.Valid {
			sess.Output = &output.String
		}
		snap.Sessions = append(snap.Sessions, sess)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("export sessions: %w", err)
	}

	appRows, err := s.db.QueryContext(ctx, `SELECT key, value FROM app_data ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("export app data: %w", err)
	}
	for appRows.Next() {
		var kv snapshotAppData
		if err := appRows.Scan(&kv.Key, &kv.Value); err != nil {
			appRows.Close()
			return nil, fmt.Errorf("export app data: %w", err)
		}
		snap.AppData = append(snap.AppData, kv)
	}
	appRows.Close()
	if err := appRows.Err(); err != nil {
		return nil, fmt.Errorf("export app data: %w", err)
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	s.logger.Debug("sqlite: export ok", "sessions", len(snap.Sessions), "app_data", len(snap.AppData), "bytes", len(data), "duration", time.Since(start))
	return data, nil
}

// restore loads a snapshot into a fresh in-memory database.
func (s *Store) restore(ctx context.Context, data []byte) error {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("sqlite: restore snapshot: %w", err)
	}
	if _, err := s.Run(ctx, codebench.OpInitSchema); err != nil {
		return fmt.Errorf("sqlite: restore schema: %w", err)
	}
	for _, sess := range snap.Sessions {
		var output any
		if sess.Output != nil {
			output = *sess.Output
		}
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO code_sessions (id, code, language, output, timestamp) VALUES (?, ?, ?, ?, ?)`,
			sess.ID, sess.Code, sess.Language, output, sess.Timestamp)
		if err != nil {
			return fmt.Errorf("sqlite: restore session %d: %w", sess.ID, err)
		}
	}
	for _, kv := range snap.AppData {
		_, err := s.db.ExecContext(ctx,
			`INSERT OR REPLACE INTO app_data (key, value) VALUES (?, ?)`, kv.Key, kv.Value)
		if err != nil {
			return fmt.Errorf("sqlite: restore app data %q: %w", kv.Key, err)
		}
	}
	s.logger.Debug("sqlite: restored snapshot", "sessions", len(snap.Sessions), "app_data", len(snap.AppData))
	return nil
}

// --- row scanning ---

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row *sql.Row) (codebench.Row, error) {
	out, err := scanSessionFrom(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return out, err
}

func scanSessionRows(rows *sql.Rows) (codebench.Row, error) {
	return scanSessionFrom(rows)
}

func scanSessionFrom(sc scanner) (codebench.Row, error) {
	var (
		id                        int64
		code, language, timestamp string
		output                    sql.NullString
	)
	if err := sc.Scan(&id, &code, &language, &output, &timestamp); err != nil {
		return nil, err
	}
	row := codebench.Row{
		"id":        id,
		"code":      code,
		"language":  language,
		"output":    nil,
		"timestamp": timestamp,
	}
	if output.Valid {
		row["output"] = output.String
	}
	return row, nil
}

// updateQuery builds the dynamic SET clause for a partial session update
// from the fixed field set {code, output, timestamp}.
func updateQuery(args []any) (string, []any, error) {
	if len(args) != 2 {
		return "", nil, fmt.Errorf("update_session: want id and field map")
	}
	id, ok := args[0].(int64)
	if !ok {
		return "", nil, fmt.Errorf("update_session: want id int64")
	}
	fields, ok := args[1].(map[string]any)
	if !ok {
		return "", nil, fmt.Errorf("update_session: want field map")
	}
	var set string
	var params []any
	for _, name := range []string{"code", "output", "timestamp"} {
		v, present := fields[name]
		if !present {
			continue
		}
		if set != "" {
			set += ", "
		}
		set += name + " = ?"
		params = append(params, v)
	}
	if set == "" {
		return "", nil, fmt.Errorf("update_session: empty field map")
	}
	params = append(params, id)
	return "UPDATE code_sessions SET " + set + " WHERE id = ?", params, nil
}
