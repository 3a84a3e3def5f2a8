package storage

import (
	"errors"
)

// ErrUnavailable reports that a backend could not be reached or opened.
var ErrUnavailable = errors.New("storage backend unavailable")

// maxErrorLen bounds the persisted error_message column.
const maxErrorLen = 500

// Config selects and configures the backends tried by Open.
type Config struct {
	// MongoURI enables the MongoDB backend when non-empty.
	MongoURI string
	// PostgresURL enables the PostgreSQL backend when non-empty.
	PostgresURL string
	// SQLitePath is the embedded fallback database file.
	SQLitePath string
}

// Stats is a read-only summary for the dashboard.
type Stats struct {
	Total     int64 `json:"total"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

func truncateError(msg string) string {
	if len(msg) > maxErrorLen {
		return msg[:maxErrorLen]
	}
	return msg
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt64(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
