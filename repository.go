package codebench

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// ErrNotInitialized is returned when the Repository is used before
// InitializeTables has succeeded. This is a precondition violation on the
// caller's side, not a recoverable runtime condition.
var ErrNotInitialized = errors.New("repository not initialized")

var nopLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// RepositoryOption configures a Repository.
type RepositoryOption func(*Repository)

// WithRepositoryLogger sets a structured logger for the repository.
// When set, every operation emits debug logs with timing and key parameters.
// If not set, no logs are emitted.
func WithRepositoryLogger(l *slog.Logger) RepositoryOption {
	return func(r *Repository) { r.logger = l }
}

// Repository is the typed query layer over a storage Adapter. It owns the
// two tables of the persisted layout: code sessions and app data. It never
// retries; adapter errors propagate unchanged to the caller.
type Repository struct {
	adapter     Adapter
	logger      *slog.Logger
	initialized bool
}

// NewRepository creates a Repository over adapter. InitializeTables must be
// called before any other operation.
func NewRepository(adapter Adapter, opts ...RepositoryOption) *Repository {
	r := &Repository{adapter: adapter, logger: nopLogger}
	for _, o := range opts {
		o(r)
	}
	return r
}

// InitializeTables creates both tables and their indexes. Safe to call
// redundantly: the schema DDL is idempotent.
func (r *Repository) InitializeTables(ctx context.Context) error {
	start := time.Now()
	if _, err := r.adapter.Run(ctx, OpInitSchema); err != nil {
		r.logger.Error("repo: init tables failed", "error", err, "duration", time.Since(start))
		return fmt.Errorf("initialize tables: %w", err)
	}
	r.initialized = true
	r.logger.Debug("repo: init tables ok", "duration", time.Since(start))
	return nil
}

func (r *Repository) ensureInitialized() error {
	if !r.initialized {
		return ErrNotInitialized
	}
	return nil
}

// SaveCodeSession inserts a new session row and returns the assigned id.
// Every save is a new row; prior rows are never rewritten (append-only
// history of edits). The session's language must be valid.
func (r *Repository) SaveCodeSession(ctx context.Context, s CodeSession) (int64, error) {
	if err := r.ensureInitialized(); err != nil {
		return 0, err
	}
	if !s.Language.Valid() {
		return 0, fmt.Errorf("save code session: invalid language %q", s.Language)
	}
	start := time.Now()
	var output any
	if s.Output != nil {
		output = *s.Output
	}
	ack, err := r.adapter.Run(ctx, OpInsertSession, s.Code, string(s.Language), output, s.Timestamp)
	if err != nil {
		r.logger.Error("repo: save code session failed", "language", s.Language, "error", err, "duration", time.Since(start))
		return 0, err
	}
	r.logger.Debug("repo: save code session ok", "id", ack.LastInsertID, "language", s.Language, "duration", time.Since(start))
	return ack.LastInsertID, nil
}

// GetLatestCodeSession returns the most recently timestamped session for a
// language, or nil when none exists.
func (r *Repository) GetLatestCodeSession(ctx context.Context, language Language) (*CodeSession, error) {
	if err := r.ensureInitialized(); err != nil {
		return nil, err
	}
	start := time.Now()
	row, err := r.adapter.Get(ctx, OpSelectLatestSession, string(language))
	if err != nil {
		r.logger.Error("repo: get latest session failed", "language", language, "error", err, "duration", time.Since(start))
		return nil, err
	}
	if row == nil {
		r.logger.Debug("repo: get latest session empty", "language", language, "duration", time.Since(start))
		return nil, nil
	}
	s, err := sessionFromRow(row)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("repo: get latest session ok", "id", s.ID, "language", language, "duration", time.Since(start))
	return s, nil
}

// GetAllCodeSessions returns all sessions ordered newest-first, optionally
// filtered by language ("" means all languages).
func (r *Repository) GetAllCodeSessions(ctx context.Context, language Language) ([]CodeSession, error) {
	if err := r.ensureInitialized(); err != nil {
		return nil, err
	}
	start := time.Now()
	var rows []Row
	var err error
	if language != "" {
		rows, err = r.adapter.All(ctx, OpSelectSessionsByLanguage, string(language))
	} else {
		rows, err = r.adapter.All(ctx, OpSelectAllSessions)
	}
	if err != nil {
		r.logger.Error("repo: get all sessions failed", "language", language, "error", err, "duration", time.Since(start))
		return nil, err
	}
	sessions := make([]CodeSession, 0, len(rows))
	for _, row := range rows {
		s, err := sessionFromRow(row)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	r.logger.Debug("repo: get all sessions ok", "count", len(sessions), "language", language, "duration", time.Since(start))
	return sessions, nil
}

// UpdateCodeSession applies the non-nil fields of update to the session with
// the given id. A fully empty update is a no-op.
func (r *Repository) UpdateCodeSession(ctx context.Context, id int64, update SessionUpdate) error {
	if err := r.ensureInitialized(); err != nil {
		return err
	}
	fields := make(map[string]any)
	if update.Code != nil {
		fields["code"] = *update.Code
	}
	if update.Output != nil {
		fields["output"] = *update.Output
	}
	if update.Timestamp != nil {
		fields["timestamp"] = *update.Timestamp
	}
	if len(fields) == 0 {
		return nil
	}
	start := time.Now()
	if _, err := r.adapter.Run(ctx, OpUpdateSession, id, fields); err != nil {
		r.logger.Error("repo: update session failed", "id", id, "error", err, "duration", time.Since(start))
		return err
	}
	r.logger.Debug("repo: update session ok", "id", id, "fields", len(fields), "duration", time.Since(start))
	return nil
}

// DeleteCodeSession deletes a session by id.
func (r *Repository) DeleteCodeSession(ctx context.Context, id int64) error {
	if err := r.ensureInitialized(); err != nil {
		return err
	}
	start := time.Now()
	if _, err := r.adapter.Run(ctx, OpDeleteSession, id); err != nil {
		r.logger.Error("repo: delete session failed", "id", id, "error", err, "duration", time.Since(start))
		return err
	}
	r.logger.Debug("repo: delete session ok", "id", id, "duration", time.Since(start))
	return nil
}

// SetAppData inserts or replaces the value for a key.
func (r *Repository) SetAppData(ctx context.Context, key, value string) error {
	if err := r.ensureInitialized(); err != nil {
		return err
	}
	start := time.Now()
	if _, err := r.adapter.Run(ctx, OpUpsertAppData, key, value); err != nil {
		r.logger.Error("repo: set app data failed", "key", key, "error", err, "duration", time.Since(start))
		return err
	}
	r.logger.Debug("repo: set app data ok", "key", key, "duration", time.Since(start))
	return nil
}

// GetAppData returns the value for a key, or "" when the key is absent.
func (r *Repository) GetAppData(ctx context.Context, key string) (string, error) {
	if err := r.ensureInitialized(); err != nil {
		return "", err
	}
	start := time.Now()
	row, err := r.adapter.Get(ctx, OpSelectAppData, key)
	if err != nil {
		r.logger.Error("repo: get app data failed", "key", key, "error", err, "duration", time.Since(start))
		return "", err
	}
	if row == nil {
		return "", nil
	}
	value, _ := row["value"].(string)
	r.logger.Debug("repo: get app data ok", "key", key, "duration", time.Since(start))
	return value, nil
}

// GetAllAppData returns every key/value row ordered by key.
func (r *Repository) GetAllAppData(ctx context.Context) ([]AppData, error) {
	if err := r.ensureInitialized(); err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := r.adapter.All(ctx, OpSelectAllAppData)
	if err != nil {
		r.logger.Error("repo: get all app data failed", "error", err, "duration", time.Since(start))
		return nil, err
	}
	data := make([]AppData, 0, len(rows))
	for _, row := range rows {
		key, _ := row["key"].(string)
		value, _ := row["value"].(string)
		data = append(data, AppData{Key: key, Value: value})
	}
	r.logger.Debug("repo: get all app data ok", "count", len(data), "duration", time.Since(start))
	return data, nil
}

// DeleteAppData deletes the row for a key.
func (r *Repository) DeleteAppData(ctx context.Context, key string) error {
	if err := r.ensureInitialized(); err != nil {
		return err
	}
	start := time.Now()
	if _, err := r.adapter.Run(ctx, OpDeleteAppData, key); err != nil {
		r.logger.Error("repo: delete app data failed", "key", key, "error", err, "duration", time.Since(start))
		return err
	}
	r.logger.Debug("repo: delete app data ok", "key", key, "duration", time.Since(start))
	return nil
}

// Close tears down the underlying adapter. Buffer-backed adapters get a
// final flush via FlushAndClose; plain closers are closed; anything else is
// a no-op. Instrumentation wrappers are unwrapped first so teardown reaches
// the real backend.
func (r *Repository) Close(ctx context.Context) error {
	adapter := r.adapter
	for {
		switch a := adapter.(type) {
		case FlushCloser:
			return a.FlushAndClose(ctx)
		case io.Closer:
			return a.Close()
		case interface{ Unwrap() Adapter }:
			adapter = a.Unwrap()
		default:
			return nil
		}
	}
}

func sessionFromRow(row Row) (*CodeSession, error) {
	id, ok := toInt64(row["id"])
	if !ok {
		return nil, fmt.Errorf("session row: bad id %v", row["id"])
	}
	code, _ := row["code"].(string)
	language, _ := row["language"].(string)
	timestamp, _ := row["timestamp"].(string)
	s := &CodeSession{
		ID:        id,
		Code:      code,
		Language:  Language(language),
		Timestamp: timestamp,
	}
	if out, ok := row["output"].(string); ok {
		s.Output = &out
	}
	return s, nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	}
	return 0, false
}
