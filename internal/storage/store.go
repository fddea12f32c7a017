package storage

import (
	"context"

	"github.com/roman-kulish/launcher-link/internal/telemetry"
)

// Store records telemetry captures: one capture per opened graph stream and
// the decoded rows it produced.
type Store interface {
	// CreateCapture starts a new capture and returns its unique identifier.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - port: Serial port the stream was opened on
	//   - config: Graph configuration in effect when the capture started
	//
	// Returns:
	//   - captureID: Unique identifier for the created capture
	//   - error: If capture creation fails or context is cancelled
	CreateCapture(ctx context.Context, port string, config telemetry.GraphConfig) (captureID int64, err error)

	// Capture retrieves a capture by its ID.
	Capture(ctx context.Context, id int64) (*Capture, error)

	// Captures returns all captures ordered by start time.
	Captures(ctx context.Context) ([]*Capture, error)

	// StoreRows saves decoded rows of a capture in a single transaction.
	// Rows keep their arrival order.
	StoreRows(ctx context.Context, captureID int64, rows []telemetry.Row) error

	// Close releases all database connections. It is safe to call Close
	// multiple times.
	Close() error
}
