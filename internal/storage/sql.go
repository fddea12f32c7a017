package storage

const (
	initSchemaSQL = `
CREATE TABLE IF NOT EXISTS captures (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    start_time TIMESTAMP NOT NULL,
    port       TEXT      NOT NULL,
    mode       TEXT      NOT NULL,
    labels     TEXT,
    config     TEXT
);

CREATE TABLE IF NOT EXISTS rows (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    capture_id INTEGER NOT NULL REFERENCES captures (id),
    ticks      INTEGER,
    seconds    REAL    NOT NULL,
    fields     TEXT    NOT NULL
);`

	initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_rows_capture_seconds ON rows (capture_id, seconds);`

	insertCaptureSQL = `
INSERT INTO captures (
                      start_time,
                      port,
                      mode,
                      labels,
                      config)
VALUES (?, ?, ?, ?, ?)`

	selectCaptureSQL = `
SELECT
    id,
    start_time,
    port,
    mode,
    labels,
    config
FROM captures
WHERE
    id = ?`

	selectCapturesSQL = `
SELECT
    id,
    start_time,
    port,
    mode,
    labels,
    config
FROM captures
ORDER BY start_time, id`

	insertRowSQL = `
INSERT INTO rows (
                  capture_id,
                  ticks,
                  seconds,
                  fields)
VALUES `

	selectRowsSQL = `
SELECT
    id,
    ticks,
    seconds,
    fields
FROM rows
WHERE
    capture_id = ?
    AND id > ?
    AND seconds BETWEEN ? AND ?
ORDER BY id
LIMIT ?`

	selectRowBoundsSQL = `
SELECT
    COALESCE(MIN(seconds), 0),
    COALESCE(MAX(seconds), 0)
FROM rows
WHERE
    capture_id = ?`
)
