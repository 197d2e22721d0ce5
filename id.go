package codebench

import (
	"time"

	"github.com/google/uuid"
)

// NewID generates a globally unique, time-sortable UUIDv7 (RFC 9562).
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NowISO returns the current time as an ISO-8601 UTC string, the timestamp
// format used for persisted code sessions.
func NowISO() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
