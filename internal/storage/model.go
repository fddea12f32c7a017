package storage

import (
	"database/sql"
	"time"

	"github.com/roman-kulish/launcher-link/internal/telemetry"
)

// Capture describes one recorded graph stream.
type Capture struct {
	ID        int64
	StartTime time.Time
	Port      string
	Mode      telemetry.Mode
	Labels    []string
	Config    *telemetry.GraphConfig // nil when the stored config is missing
}

type captureData struct {
	ID        int64
	StartTime time.Time
	Port      string
	Mode      string
	Labels    sql.NullString
	Config    sql.NullString
}

type rowData struct {
	ID      int64
	Ticks   sql.NullInt64
	Seconds float64
	Fields  string
}
