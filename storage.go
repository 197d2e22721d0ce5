package codebench

import (
	"context"
	"errors"
)

// Op enumerates every query shape the Repository issues against an Adapter.
// The contract is operation-typed rather than SQL-text-typed: a backend maps
// each Op to its own storage mechanics, and an Op it does not recognize is a
// programming error, not a user-recoverable condition.
type Op int

const (
	// OpInitSchema creates both tables and their indexes. Idempotent.
	// Args: none.
	OpInitSchema Op = iota

	// OpInsertSession appends a code session row.
	// Args: code string, language string, output any (string or nil),
	// timestamp string. Ack.LastInsertID carries the assigned id.
	OpInsertSession

	// OpSelectLatestSession returns the most recently timestamped session
	// for a language, or no row. Args: language string.
	OpSelectLatestSession

	// OpSelectSessionsByLanguage returns all sessions for a language,
	// newest first. Args: language string.
	OpSelectSessionsByLanguage

	// OpSelectAllSessions returns all sessions, newest first. Args: none.
	OpSelectAllSessions

	// OpUpdateSession partially updates a session row.
	// Args: id int64, fields map[string]any with keys drawn from
	// {"code", "output", "timestamp"}.
	OpUpdateSession

	// OpDeleteSession deletes a session by id. Args: id int64.
	OpDeleteSession

	// OpUpsertAppData inserts or replaces a key/value row keyed on key.
	// Args: key string, value string.
	OpUpsertAppData

	// OpSelectAppData returns the row for a key, or no row. Args: key string.
	OpSelectAppData

	// OpSelectAllAppData returns all key/value rows ordered by key.
	// Args: none.
	OpSelectAllAppData

	// OpDeleteAppData deletes the row for a key. Args: key string.
	OpDeleteAppData
)

var opNames = map[Op]string{
	OpInitSchema:               "init_schema",
	OpInsertSession:            "insert_session",
	OpSelectLatestSession:      "select_latest_session",
	OpSelectSessionsByLanguage: "select_sessions_by_language",
	OpSelectAllSessions:        "select_all_sessions",
	OpUpdateSession:            "update_session",
	OpDeleteSession:            "delete_session",
	OpUpsertAppData:            "upsert_app_data",
	OpSelectAppData:            "select_app_data",
	OpSelectAllAppData:         "select_all_app_data",
	OpDeleteAppData:            "delete_app_data",
}

func (op Op) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return "unknown"
}

// ErrUnsupportedOp is returned by an Adapter handed an Op it does not
// implement. This indicates a repository/backend version mismatch and is not
// recoverable by the caller.
var ErrUnsupportedOp = errors.New("unsupported storage operation")

// Row is one result row keyed by column name. Absent optional columns are
// present with a nil value.
type Row map[string]any

// Ack acknowledges a write.
type Ack struct {
	LastInsertID int64
	RowsAffected int64
}

// Adapter is the minimal contract a persistence backend satisfies: three
// verbs over the fixed Op set. Get returns (nil, nil) when no row matches;
// absence is not an error.
type Adapter interface {
	Run(ctx context.Context, op Op, args ...any) (Ack, error)
	Get(ctx context.Context, op Op, args ...any) (Row, error)
	All(ctx context.Context, op Op, args ...any) ([]Row, error)
}

// Exporter is implemented by buffer-backed adapters whose contents must be
// exported as a byte snapshot to survive process exit.
type Exporter interface {
	Export(ctx context.Context) ([]byte, error)
}

// FlushCloser is implemented by adapters that persist a final snapshot on
// teardown. The Repository prefers it over plain Close.
type FlushCloser interface {
	FlushAndClose(ctx context.Context) error
}
