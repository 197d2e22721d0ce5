// Package postgres implements the storage Adapter on PostgreSQL for
// multi-user deployments where sessions live in a shared server database.
//
// The Store accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool.
package postgres

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codebench/codebench"
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a structured logger for the store.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements the Adapter backed by PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ codebench.Adapter = (*Store)(nil)

// New creates a Store using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{pool: pool, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, o := range opts {
		o(s)
	}
	return s
}

// schemaDDL matches the SQLite layout with server-side types: BIGSERIAL ids
// and the same language check constraint.
var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS code_sessions (
		id BIGSERIAL PRIMARY KEY,
		code TEXT NOT NULL,
		language TEXT NOT NULL CHECK (language IN ('python', 'javascript', 'html')),
		output TEXT,
		timestamp TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS app_data (
		id BIGSERIAL PRIMARY KEY,
		key TEXT UNIQUE NOT NULL,
		value TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_code_sessions_language_timestamp
		ON code_sessions(language, timestamp DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_app_data_key ON app_data(key)`,
}

// Run executes a write operation. Inserts use RETURNING id since lastval
// semantics do not survive pool connection churn.
func (s *Store) Run(ctx context.Context, op codebench.Op, args ...any) (codebench.Ack, error) {
	start := time.Now()
	switch op {
	case codebench.OpInitSchema:
		for _, ddl := range schemaDDL {
			if _, err := s.pool.Exec(ctx, ddl); err != nil {
				s.logger.Error("postgres: init schema failed", "error", err, "duration", time.Since(start))
				return codebench.Ack{}, fmt.Errorf("create schema: %w", err)
			}
		}
		s.logger.Debug("postgres: init schema ok", "duration", time.Since(start))
		return codebench.Ack{}, nil

	case codebench.OpInsertSession:
		var id int64
		err := s.pool.QueryRow(ctx,
			`INSERT INTO code_sessions (code, language, output, timestamp)
			 VALUES ($1, $2, $3, $4) RETURNING id`, args...).Scan(&id)
		if err != nil {
			s.logger.Error("postgres: insert session failed", "error", err, "duration", time.Since(start))
			return codebench.Ack{}, fmt.Errorf("%s: %w", op, err)
		}
		s.logger.Debug("postgres: insert session ok", "id", id, "duration", time.Since(start))
		return codebench.Ack{LastInsertID: id, RowsAffected: 1}, nil

	case codebench.OpUpdateSession:
		query, params, err := updateQuery(args)
		if err != nil {
			return codebench.Ack{}, err
		}
		return s.exec(ctx, op, query, params...)

	case codebench.OpDeleteSession:
		return s.exec(ctx, op, `DELETE FROM code_sessions WHERE id = $1`, args...)

	case codebench.OpUpsertAppData:
		return s.exec(ctx, op,
			`INSERT INTO app_data (key, value) VALUES ($1, $2)
			 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, args...)

	case codebench.OpDeleteAppData:
		return s.exec(ctx, op, `DELETE FROM app_data WHERE key = $1`, args...)
	}
	return codebench.Ack{}, fmt.Errorf("%w: %s", codebench.ErrUnsupportedOp, op)
}

func (s *Store) exec(ctx context.Context, op codebench.Op, query string, args ...any) (codebench.Ack, error) {
	start := time.Now()
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		s.logger.Error("postgres: write failed", "op", op.String(), "error", err, "duration", time.Since(start))
		return codebench.Ack{}, fmt.Errorf("%s: %w", op, err)
	}
	s.logger.Debug("postgres: write ok", "op", op.String(), "rows", tag.RowsAffected(), "duration", time.Since(start))
	return codebench.Ack{RowsAffected: tag.RowsAffected()}, nil
}

// Get executes a single-row read. Absence is (nil, nil).
func (s *Store) Get(ctx context.Context, op codebench.Op, args ...any) (codebench.Row, error) {
	start := time.Now()
	switch op {
	case codebench.OpSelectLatestSession:
		row := s.pool.QueryRow(ctx,
			`SELECT id, code, language, output, timestamp FROM code_sessions
			 WHERE language = $1 ORDER BY timestamp DESC, id DESC LIMIT 1`, args...)
		result, err := scanSession(row)
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		if err != nil {
			s.logger.Error("postgres: get failed", "op", op.String(), "error", err, "duration", time.Since(start))
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return result, nil

	case codebench.OpSelectAppData:
		var key, value string
		err := s.pool.QueryRow(ctx,
			`SELECT key, value FROM app_data WHERE key = $1`, args...).Scan(&key, &value)
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		if err != nil {
			s.logger.Error("postgres: get failed", "op", op.String(), "error", err, "duration", time.Since(start))
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
			 WHERE language = $1 ORDER BY timestamp DESC, id DESC`
	case codebench.OpSelectAllSessions:
		query = `SELECT id, code, language, output, timestamp FROM code_sessions
			 ORDER BY timestamp DESC, id DESC`
	case codebench.OpSelectAllAppData:
		return s.allAppData(ctx)
	default:
		return nil, fmt.Errorf("%w: %s", codebench.ErrUnsupportedOp, op)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		s.logger.Error("postgres: select failed", "op", op.String(), "error", err, "duration", time.Since(start))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []codebench.Row
	for rows.Next() {
		row, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.logger.Debug("postgres: select ok", "op", op.String(), "count", len(out), "duration", time.Since(start))
	return out, nil
}

func (s *Store) allAppData(ctx context.Context) ([]codebench.Row, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value FROM app_data ORDER BY key`)
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

func scanSession(row pgx.Row) (codebench.Row, error) {
	var (
		id                        int64
		code, language, timestamp string
		output                    *string
	)
	if err := row.Scan(&id, &code, &language, &output, &timestamp); err != nil {
		return nil, err
	}
	out := codebench.Row{
		"id":        id,
		"code":      code,
		"language":  language,
		"output":    nil,
		"timestamp": timestamp,
	}
	if output != nil {
		out["output"] = *output
	}
	return out, nil
}

// updateQuery builds the dynamic SET clause for a partial session update.
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
		params = append(params, v)
		set += fmt.Sprintf("%s = $%d", name, len(params))
	}
	if set == "" {
		return "", nil, fmt.Errorf("update_session: empty field map")
	}
	params = append(params, id)
	return fmt.Sprintf("UPDATE code_sessions SET %s WHERE id = $%d", set, len(params)), params, nil
}
