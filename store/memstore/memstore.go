// Package memstore implements the storage Adapter as an ephemeral in-memory
// row store. It is the zero-dependency backend used for tests and for
// sessions that should not outlive the process. It also implements Export,
// so it can stand in for buffer-backed engines where a byte snapshot is
// required.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/codebench/codebench"
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a structured logger for the store.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

type sessionRow struct {
	ID        int64   `json:"id"`
	Code      string  `json:"code"`
	Language  string  `json:"language"`
	Output    *string `json:"output,omitempty"`
	Timestamp string  `json:"timestamp"`
}

type snapshot struct {
	NextID   int64             `json:"next_id"`
	Sessions []sessionRow      `json:"sessions"`
	AppData  map[string]string `json:"app_data"`
}

// Store is an in-memory Adapter guarded by a single mutex.
type Store struct {
	mu       sync.Mutex
	logger   *slog.Logger
	nextID   int64
	sessions []sessionRow
	appData  map[string]string
}

var _ codebench.Adapter = (*Store)(nil)
var _ codebench.Exporter = (*Store)(nil)

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		nextID:  1,
		appData: make(map[string]string),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// NewFromSnapshot restores a Store from a snapshot produced by Export.
// A corrupt snapshot fails construction; per the adapter contract, a backend
// that cannot load must fail initialization as a whole.
func NewFromSnapshot(data []byte, opts ...Option) (*Store, error) {
	s := New(opts...)
	if len(data) == 0 {
		return s, nil
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("memstore: restore snapshot: %w", err)
	}
	s.nextID = snap.NextID
	s.sessions = snap.Sessions
	if snap.AppData != nil {
		s.appData = snap.AppData
	}
	if s.nextID < 1 {
		s.nextID = 1
	}
	return s, nil
}

// Export serializes the store contents as a JSON snapshot.
func (s *Store) Export(_ context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.Marshal(snapshot{
		NextID:   s.nextID,
		Sessions: s.sessions,
		AppData:  s.appData,
	})
}

// Run executes a write operation.
func (s *Store) Run(_ context.Context, op codebench.Op, args ...any) (codebench.Ack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch op {
	case codebench.OpInitSchema:
		// Nothing to create; the zero store is the schema.
		return codebench.Ack{}, nil

	case codebench.OpInsertSession:
		code, language, output, timestamp, err := insertArgs(args)
		if err != nil {
			return codebench.Ack{}, err
		}
		if !codebench.Language(language).Valid() {
			return codebench.Ack{}, fmt.Errorf("memstore: language check failed: %q", language)
		}
		row := sessionRow{
			ID:        s.nextID,
			Code:      code,
			Language:  language,
			Output:    output,
			Timestamp: timestamp,
		}
		s.nextID++
		s.sessions = append(s.sessions, row)
		s.logger.Debug("memstore: insert session", "id", row.ID, "language", language)
		return codebench.Ack{LastInsertID: row.ID, RowsAffected: 1}, nil

	case codebench.OpUpdateSession:
		id, fields, err := updateArgs(args)
		if err != nil {
			return codebench.Ack{}, err
		}
		for i := range s.sessions {
			if s.sessions[i].ID != id {
				continue
			}
			if v, ok := fields["code"].(string); ok {
				s.sessions[i].Code = v
			}
			if v, ok := fields["output"].(string); ok {
				s.sessions[i].Output = &v
			}
			if v, ok := fields["timestamp"].(string); ok {
				s.sessions[i].Timestamp = v
			}
			return codebench.Ack{RowsAffected: 1}, nil
		}
		return codebench.Ack{}, nil

	case codebench.OpDeleteSession:
		id, ok := argInt64(args, 0)
		if !ok {
			return codebench.Ack{}, fmt.Errorf("memstore: %s: want id int64", op)
		}
		for i := range s.sessions {
			if s.sessions[i].ID == id {
				s.sessions = append(s.sessions[:i], s.sessions[i+1:]...)
				return codebench.Ack{RowsAffected: 1}, nil
			}
		}
		return codebench.Ack{}, nil

	case codebench.OpUpsertAppData:
		key, ok1 := argString(args, 0)
		value, ok2 := argString(args, 1)
		if !ok1 || !ok2 {
			return codebench.Ack{}, fmt.Errorf("memstore: %s: want key, value strings", op)
		}
		s.appData[key] = value
		return codebench.Ack{RowsAffected: 1}, nil

	case codebench.OpDeleteAppData:
		key, ok := argString(args, 0)
		if !ok {
			return codebench.Ack{}, fmt.Errorf("memstore: %s: want key string", op)
		}
		delete(s.appData, key)
		return codebench.Ack{RowsAffected: 1}, nil
	}

	return codebench.Ack{}, fmt.Errorf("%w: %s", codebench.ErrUnsupportedOp, op)
}

// Get executes a single-row read. Absence is (nil, nil).
func (s *Store) Get(_ context.Context, op codebench.Op, args ...any) (codebench.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch op {
	case codebench.OpSelectLatestSession:
		language, ok := argString(args, 0)
		if !ok {
			return nil, fmt.Errorf("memstore: %s: want language string", op)
		}
		var best *sessionRow
		for i := range s.sessions {
			row := &s.sessions[i]
			if row.Language != language {
				continue
			}
			if best == nil || row.Timestamp > best.Timestamp ||
				(row.Timestamp == best.Timestamp && row.ID > best.ID) {
				best = row
			}
		}
		if best == nil {
			return nil, nil
		}
		return sessionToRow(*best), nil

	case codebench.OpSelectAppData:
		key, ok := argString(args, 0)
		if !ok {
			return nil, fmt.Errorf("memstore: %s: want key string", op)
		}
		value, found := s.appData[key]
		if !found {
			return nil, nil
		}
		return codebench.Row{"key": key, "value": value}, nil
	}

	return nil, fmt.Errorf("%w: %s", codebench.ErrUnsupportedOp, op)
}

// All executes a multi-row read.
func (s *Store) All(_ context.Context, op codebench.Op, args ...any) ([]codebench.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch op {
	case codebench.OpSelectSessionsByLanguage:
		language, ok := argString(args, 0)
		if !ok {
			return nil, fmt.Errorf("memstore: %s: want language string", op)
		}
		return s.selectSessions(func(r sessionRow) bool { return r.Language == language }), nil

	case codebench.OpSelectAllSessions:
		return s.selectSessions(func(sessionRow) bool { return true }), nil

	case codebench.OpSelectAllAppData:
		keys := make([]string, 0, len(s.appData))
		for k := range s.appData {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		rows := make([]codebench.Row, 0, len(keys))
		for _, k := range keys {
			rows = append(rows, codebench.Row{"key": k, "value": s.appData[k]})
		}
		return rows, nil
	}

	return nil, fmt.Errorf("%w: %s", codebench.ErrUnsupportedOp, op)
}

// selectSessions returns matching sessions newest-first.
func (s *Store) selectSessions(match func(sessionRow) bool) []codebench.Row {
	matched := make([]sessionRow, 0, len(s.sessions))
	for _, row := range s.sessions {
		if match(row) {
			matched = append(matched, row)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Timestamp != matched[j].Timestamp {
			return matched[i].Timestamp > matched[j].Timestamp
		}
		return matched[i].ID > matched[j].ID
	})
	rows := make([]codebench.Row, 0, len(matched))
	for _, row := range matched {
		rows = append(rows, sessionToRow(row))
	}
	return rows
}

func sessionToRow(r sessionRow) codebench.Row {
	row := codebench.Row{
		"id":        r.ID,
		"code":      r.Code,
		"language":  r.Language,
		"output":    nil,
		"timestamp": r.Timestamp,
	}
	if r.Output != nil {
		row["output"] = *r.Output
	}
	return row
}

func insertArgs(args []any) (code, language string, output *string, timestamp string, err error) {
	if len(args) != 4 {
		return "", "", nil, "", fmt.Errorf("memstore: insert_session: want 4 args, got %d", len(args))
	}
	code, ok1 := args[0].(string)
	language, ok2 := args[1].(string)
	timestamp, ok3 := args[3].(string)
	if !ok1 || !ok2 || !ok3 {
		return "", "", nil, "", fmt.Errorf("memstore: insert_session: bad argument types")
	}
	if out, ok := args[2].(string); ok {
		output = &out
	}
	return code, language, output, timestamp, nil
}

func updateArgs(args []any) (int64, map[string]any, error) {
	if len(args) != 2 {
		return 0, nil, fmt.Errorf("memstore: update_session: want id and field map")
	}
	id, ok := args[0].(int64)
	if !ok {
		return 0, nil, fmt.Errorf("memstore: update_session: want id int64")
	}
	fields, ok := args[1].(map[string]any)
	if !ok {
		return 0, nil, fmt.Errorf("memstore: update_session: want field map")
	}
	return id, fields, nil
}

func argString(args []any, i int) (string, bool) {
	if i >= len(args) {
		return "", false
	}
	v, ok := args[i].(string)
	return v, ok
}

func argInt64(args []any, i int) (int64, bool) {
	if i >= len(args) {
		return 0, false
	}
	v, ok := args[i].(int64)
	return v, ok
}
