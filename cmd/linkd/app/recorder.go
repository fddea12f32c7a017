package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/roman-kulish/launcher-link/internal/storage"
	"github.com/roman-kulish/launcher-link/internal/telemetry"
)

const (
	storageDir = "data"

	recorderQueueSize = 4096
)

// WithMaxBatchSize sets the maximum number of rows stored within a single
// database transaction.
func WithMaxBatchSize(size int) func(*Recorder) {
	return func(r *Recorder) {
		if size > 0 {
			r.maxBatchSize = size
		}
	}
}

// WithFlushInterval sets how long admitted rows may wait before they are
// stored.
func WithFlushInterval(interval time.Duration) func(*Recorder) {
	return func(r *Recorder) {
		if interval > 0 {
			r.flushInterval = interval
		}
	}
}

type recordKind int

const (
	recordRow recordKind = iota
	recordBegin
	recordEnd
)

type record struct {
	kind   recordKind
	row    telemetry.Row
	port   string
	config telemetry.GraphConfig
}

// Recorder stores the rows admitted by the live decoder as captures. A
// capture begins when the graph view opens and ends when it closes.
//
// Row, Begin and End are called from the manager loop and never wait on the
// database; rows that do not fit the queue are dropped and counted.
type Recorder struct {
	store  storage.Store
	logger *slog.Logger

	maxBatchSize  int
	flushInterval time.Duration

	records chan record
	done    chan struct{}
	dropped atomic.Uint64
	stored  atomic.Uint64
}

var _ telemetry.RowSink = (*Recorder)(nil)

// NewRecorder creates a Recorder writing to store.
func NewRecorder(store storage.Store, logger *slog.Logger, options ...func(*Recorder)) *Recorder {
	r := Recorder{
		store:         store,
		logger:        logger.With(slog.String("component", "recorder")),
		maxBatchSize:  defaultMaxBatchSize,
		flushInterval: defaultFlushInterval,
		records:       make(chan record, recorderQueueSize),
		done:          make(chan struct{}),
	}
	for _, option := range options {
		option(&r)
	}
	return &r
}

// Row queues an admitted row for the current capture.
func (r *Recorder) Row(row telemetry.Row) {
	select {
	case r.records <- record{kind: recordRow, row: row}:
	default:
		r.dropped.Add(1)
	}
}

// Begin starts a new capture of port. Rows queued afterwards belong to it.
func (r *Recorder) Begin(port string, config telemetry.GraphConfig) {
	r.control(record{kind: recordBegin, port: port, config: config})
}

// End closes the current capture.
func (r *Recorder) End() {
	r.control(record{kind: recordEnd})
}

func (r *Recorder) control(rec record) {
	select {
	case r.records <- rec:
	case <-r.done:
	}
}

// Dropped returns the number of rows dropped because the queue was full.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Stored returns the number of rows written to the store.
func (r *Recorder) Stored() uint64 {
	return r.stored.Load()
}

// Run drains the queue until ctx is done. Rows are stored when a batch
// fills up, on every flush interval and when a capture ends.
func (r *Recorder) Run(ctx context.Context) error {
	defer close(r.done)

	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	var (
		captureID int64
		batch     = make([]telemetry.Row, 0, r.maxBatchSize)
		reported  uint64
	)

	flush := func(ctx context.Context) {
		if captureID == 0 || len(batch) == 0 {
			batch = batch[:0]
			return
		}
		if err := r.store.StoreRows(ctx, captureID, batch); err != nil {
			r.logger.Error(fmt.Sprintf("storing rows: %s", err.Error()), slog.Int64("capture", captureID))
		} else {
			r.stored.Add(uint64(len(batch)))
		}
		batch = batch[:0]

		if dropped := r.dropped.Load(); dropped != reported {
			r.logger.Warn("recorder queue overflow", slog.Uint64("dropped", dropped-reported))
			reported = dropped
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush(context.WithoutCancel(ctx))
			return nil

		case <-ticker.C:
			flush(ctx)

		case rec := <-r.records:
			switch rec.kind {
			case recordBegin:
				flush(ctx)

				id, err := r.store.CreateCapture(ctx, rec.port, rec.config)
				if err != nil {
					r.logger.Error(fmt.Sprintf("creating capture: %s", err.Error()), slog.String("port", rec.port))
					captureID = 0
					continue
				}
				captureID = id
				r.logger.Info("capture started", slog.Int64("capture", id), slog.String("port", rec.port))

			case recordEnd:
				flush(ctx)
				if captureID != 0 {
					r.logger.Info("capture finished", slog.Int64("capture", captureID))
				}
				captureID = 0

			case recordRow:
				if captureID == 0 {
					continue
				}
				batch = append(batch, rec.row)
				if len(batch) >= r.maxBatchSize {
					flush(ctx)
				}
			}
		}
	}
}

func createStorage(config *StorageConfig) (*storage.SqliteStore, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current working directory: %w", err)
	}

	var dbPath string
	if config.DataDirectory != "" {
		dbPath = filepath.Join(wd, config.DataDirectory)
	} else {
		dbPath = filepath.Join(wd, storageDir)
	}
	if filepath.IsAbs(config.DataDirectory) {
		dbPath = config.DataDirectory
	}

	stat, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("storage directory '%s' does not exist: %w", dbPath, err)
		}
		return nil, fmt.Errorf("checking storage directory '%s': %w", dbPath, err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("invalid storage directory '%s'", dbPath)
	}

	dbPath = filepath.Join(dbPath, fmt.Sprintf("capture_%s.sqlite", time.Now().UTC().Format("20060102_150405")))
	return storage.NewSqliteStore(dbPath), nil
}
