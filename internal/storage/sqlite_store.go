package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/launcher-link/internal/telemetry"
)

// maxRowsPerStatement keeps a batch insert below the SQLite bound variable
// limit (four variables per row).
const maxRowsPerStatement = 200

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

var _ Store = (*SqliteStore)(nil)

// NewSqliteStore creates a store backed by the SQLite database at dbPath.
// Connections are opened lazily.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}
		db.SetMaxOpenConns(1)

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) CreateCapture(ctx context.Context, port string, config telemetry.GraphConfig) (captureID int64, err error) {
	labels, err := json.Marshal(config.Labels)
	if err != nil {
		err = fmt.Errorf("marshaling labels: %w", err)
		return
	}
	configData, err := json.Marshal(config)
	if err != nil {
		err = fmt.Errorf("marshaling config: %w", err)
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertCaptureSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(ctx, time.Now().UTC(), port, config.Mode.String(), string(labels), string(configData))
	if err != nil {
		err = fmt.Errorf("inserting capture: %w", err)
		return
	}

	captureID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting capture ID: %w", err)
	}
	return
}

func (s *SqliteStore) Capture(ctx context.Context, id int64) (capture *Capture, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}
	return loadCapture(ctx, db, id)
}

func loadCapture(ctx context.Context, db *sql.DB, id int64) (capture *Capture, err error) {
	stmt, err := db.PrepareContext(ctx, selectCaptureSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	var data captureData
	if err = stmt.QueryRowContext(ctx, id).Scan(&data.ID, &data.StartTime, &data.Port, &data.Mode, &data.Labels, &data.Config); err != nil {
		err = fmt.Errorf("scanning capture: %w", err)
		return
	}
	return toCapture(data)
}

func (s *SqliteStore) Captures(ctx context.Context) (captures []*Capture, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectCapturesSQL)
	if err != nil {
		err = fmt.Errorf("querying captures: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var data captureData
		if err = rows.Scan(&data.ID, &data.StartTime, &data.Port, &data.Mode, &data.Labels, &data.Config); err != nil {
			err = fmt.Errorf("scanning capture: %w", err)
			return
		}

		var c *Capture
		if c, err = toCapture(data); err != nil {
			return
		}
		captures = append(captures, c)
	}
	err = rows.Err()
	return
}

// ReadRows creates a RowReader over the rows of a capture. The reader pages
// through the table and must be closed after use.
func (s *SqliteStore) ReadRows(ctx context.Context, captureID int64, opts ...ReaderOption) (*SqliteRowReader, error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}
	return newSqliteRowReader(ctx, db, captureID, opts...)
}

func (s *SqliteStore) StoreRows(ctx context.Context, captureID int64, rows []telemetry.Row) (err error) {
	if len(rows) == 0 {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	for chunk := range slices.Chunk(rows, maxRowsPerStatement) {
		if err = insertRows(ctx, tx, captureID, chunk); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func insertRows(ctx context.Context, tx *sql.Tx, captureID int64, rows []telemetry.Row) error {
	const valuesPlaceholder = "(?, ?, ?, ?)"

	values := make([]interface{}, 0, len(rows)*4)

	var sb strings.Builder
	sb.WriteString(insertRowSQL)

	for i, row := range rows {
		fields, err := encodeFields(row.Fields)
		if err != nil {
			return err
		}

		var ticks sql.NullInt64
		if row.TicksValid {
			ticks = sql.NullInt64{Int64: int64(row.Ticks), Valid: true}
		}
		values = append(values, captureID, ticks, row.Seconds, fields)

		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(valuesPlaceholder)
	}

	if _, err := tx.ExecContext(ctx, sb.String(), values...); err != nil {
		return fmt.Errorf("batch inserting rows: %w", err)
	}
	return nil
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			_ = runSQLCommand(s.writeDB, initIndexesSQL)

			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}
