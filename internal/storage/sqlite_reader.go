package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roman-kulish/launcher-link/internal/telemetry"
)

const defaultBatchSize = 1000

// ErrNoData indicates either that the capture has no rows in the requested
// range, or that all rows have been read.
var ErrNoData = errors.New("no data available")

// RowReader provides an iterator over the rows of a capture with optional
// time filtering.
type RowReader interface {
	// Capture returns metadata about the capture this reader is accessing.
	Capture() *Capture

	// Next advances the iterator and returns true if there is another row
	// to read, false when the iteration is complete or if an error occurred.
	Next(context.Context) bool

	// Current returns the current row in the iteration.
	Current() telemetry.Row

	// Error returns any error that occurred during iteration.
	Error() error

	// Close releases any resources associated with the reader.
	Close() error
}

// ReaderOption configures a SqliteRowReader.
type ReaderOption func(*SqliteRowReader)

// WithTimeRange limits rows to those whose elapsed seconds fall within
// [from, to].
func WithTimeRange(from, to float64) ReaderOption {
	return func(r *SqliteRowReader) {
		r.from = &from
		r.to = &to
	}
}

// WithBatchSize sets how many rows are fetched per query.
func WithBatchSize(n int) ReaderOption {
	return func(r *SqliteRowReader) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// SqliteRowReader implements RowReader for the SQLite backend. Rows are
// fetched in pages keyed by row id so no query stays open between calls.
type SqliteRowReader struct {
	db *sql.DB

	captureID int64
	capture   *Capture
	batchSize int

	from *float64 // Optional start of time range filter
	to   *float64 // Optional end of time range filter

	page    []telemetry.Row
	pos     int
	lastID  int64
	drained bool
	current telemetry.Row
	err     error
}

var _ RowReader = (*SqliteRowReader)(nil)

func newSqliteRowReader(ctx context.Context, db *sql.DB, captureID int64, opts ...ReaderOption) (*SqliteRowReader, error) {
	r := &SqliteRowReader{
		db:        db,
		captureID: captureID,
		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.init(ctx); err != nil {
		return nil, fmt.Errorf("initializing reader: %w", err)
	}
	return r, nil
}

func (r *SqliteRowReader) init(ctx context.Context) error {
	if r.db == nil {
		return errors.New("database connection required")
	}
	if r.captureID <= 0 {
		return errors.New("capture ID required")
	}

	steps := []struct {
		msg string
		fn  func(context.Context) error
	}{
		{msg: "loading capture", fn: r.loadCapture},
		{msg: "initializing filters", fn: r.initFilters},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", s.msg, err)
		}
	}
	return nil
}

func (r *SqliteRowReader) loadCapture(ctx context.Context) (err error) {
	r.capture, err = loadCapture(ctx, r.db, r.captureID)
	return
}

func (r *SqliteRowReader) initFilters(ctx context.Context) (err error) {
	if r.from != nil && r.to != nil {
		if *r.from > *r.to {
			return fmt.Errorf("start %g is after end %g", *r.from, *r.to)
		}
		return nil
	}

	stmt, err := r.db.PrepareContext(ctx, selectRowBoundsSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	var from, to float64
	if err = stmt.QueryRowContext(ctx, r.captureID).Scan(&from, &to); err != nil {
		return fmt.Errorf("scanning row bounds: %w", err)
	}
	r.from, r.to = &from, &to
	return nil
}

func (r *SqliteRowReader) Capture() *Capture {
	return r.capture
}

func (r *SqliteRowReader) Next(ctx context.Context) bool {
	if r.err != nil {
		return false
	}

	if r.pos >= len(r.page) {
		if r.drained {
			r.err = ErrNoData
			return false
		}
		if r.err = r.fetch(ctx); r.err != nil {
			return false
		}
		if len(r.page) == 0 {
			r.err = ErrNoData
			return false
		}
	}

	r.current = r.page[r.pos]
	r.pos++
	return true
}

func (r *SqliteRowReader) fetch(ctx context.Context) (err error) {
	rows, err := r.db.QueryContext(ctx, selectRowsSQL, r.captureID, r.lastID, *r.from, *r.to, r.batchSize)
	if err != nil {
		return fmt.Errorf("querying rows: %w", err)
	}
	defer closeWithError(rows, &err)

	r.page, r.pos = r.page[:0], 0
	for rows.Next() {
		var data rowData
		if err = rows.Scan(&data.ID, &data.Ticks, &data.Seconds, &data.Fields); err != nil {
			return fmt.Errorf("scanning row: %w", err)
		}

		var row telemetry.Row
		if row, err = toRow(data); err != nil {
			return fmt.Errorf("decoding row %d: %w", data.ID, err)
		}
		r.page = append(r.page, row)
		r.lastID = data.ID
	}
	if err = rows.Err(); err != nil {
		return err
	}

	r.drained = len(r.page) < r.batchSize
	return nil
}

func (r *SqliteRowReader) Current() telemetry.Row {
	return r.current
}

func (r *SqliteRowReader) Error() error {
	if r.err != nil && !errors.Is(r.err, ErrNoData) {
		return r.err
	}
	return nil
}

func (r *SqliteRowReader) Close() error {
	r.page = nil
	r.current = telemetry.Row{}
	r.drained = true
	return nil
}
