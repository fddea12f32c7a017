package telemetry

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
)

// wireChars is the set of characters admitted into a line once the stream
// is synchronized. Anything else is noise interleaved by the device.
const wireChars = "-0123456789.,\r\n"

// Stats counts what a Decoder did with its input since it was created.
type Stats struct {
	Admitted  uint64 // rows plotted and logged
	Dropped   uint64 // complete rows discarded while paused
	Discarded uint64 // bytes discarded before synchronization or as noise
	Evicted   uint64 // export rows evicted by retention
}

// WithLogger sets the logger for the decoder
func WithLogger(logger *slog.Logger) func(d *Decoder) {
	return func(d *Decoder) {
		d.logger = logger.With(slog.String("component", "decoder"))
	}
}

// WithRowSink sets a sink that receives every admitted row
func WithRowSink(sink RowSink) func(d *Decoder) {
	return func(d *Decoder) {
		d.sink = sink
	}
}

// WithRetention sets the maximum number of export rows to retain
func WithRetention(rows int) func(d *Decoder) {
	return func(d *Decoder) {
		d.retention = rows
	}
}

// Decoder turns a character stream of comma delimited, tick stamped rows
// into series points and export rows.
//
// A Decoder holds a single logical stream and is not safe for concurrent
// use; its owner must serialize calls.
type Decoder struct {
	config    GraphConfig
	buffer    *SampleBuffer
	timeBase  TimeBase
	retention int

	line    strings.Builder
	ready   bool // set once the first terminator has been seen
	paused  bool
	plotted bool // a row was plotted since the last reset

	sink   RowSink
	stats  Stats
	logger *slog.Logger
}

// NewDecoder creates a decoder for the given graph configuration
func NewDecoder(config GraphConfig, options ...func(d *Decoder)) (*Decoder, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid graph configuration: %w", err)
	}

	d := Decoder{
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		retention: MaxExportRows,
	}
	for _, option := range options {
		option(&d)
	}

	buffer, err := NewSampleBuffer(d.retention)
	if err != nil {
		return nil, fmt.Errorf("creating sample buffer: %w", err)
	}
	d.buffer = buffer
	d.apply(config)

	return &d, nil
}

// Feed consumes a chunk of the stream. Chunks may end anywhere, including in
// the middle of a row. Returns the number of rows admitted.
func (d *Decoder) Feed(chunk string) int {
	var admitted int

	for i := 0; i < len(chunk); i++ {
		c := chunk[i]
		if c == '\n' {
			c = '\r'
		}

		if !d.ready {
			// the first record is most likely truncated, wait for a full one
			if c == '\r' {
				d.ready = true
			} else {
				d.stats.Discarded++
			}
			continue
		}

		if c == '\r' {
			if d.endLine() {
				admitted++
			}
			continue
		}

		if strings.IndexByte(wireChars, c) < 0 {
			d.stats.Discarded++
			continue
		}
		d.line.WriteByte(c)
	}

	return admitted
}

// endLine decodes the accumulated line. Returns true if a row was admitted.
func (d *Decoder) endLine() bool {
	text := d.line.String()
	d.line.Reset()

	if text == "" {
		return false // CR LF pairs produce empty lines
	}
	if d.paused {
		d.stats.Dropped++
		return false
	}

	row := parseRow(text)
	row.Seconds = d.timeBase.Resolve(row.Ticks, row.TicksValid)

	d.admit(row)
	return true
}

// Ingest admits a row that was decoded earlier, such as one read back from
// a recording. The row time is taken as is.
func (d *Decoder) Ingest(row Row) {
	d.admit(row)
}

func (d *Decoder) admit(row Row) {
	d.plot(row)
	if d.buffer.AppendRow(row) {
		d.stats.Evicted++
	}
	d.plotted = true
	d.stats.Admitted++

	if d.sink != nil {
		d.sink.Row(row)
	}
}

// plot appends one point per series and evicts points that fell out of the
// sample window.
func (d *Decoder) plot(row Row) {
	var count int
	switch d.config.Mode {
	case ModeScatter:
		count = d.channels((len(row.Fields) + 1) / 2)
		for i := 0; i < count; i++ {
			x, y := fieldAt(row.Fields, 2*i), fieldAt(row.Fields, 2*i+1)
			d.append(i, Point{Time: row.Seconds, X: x.Value, Y: y.Value, Valid: x.IsValid && y.IsValid})
		}

	default:
		count = d.channels(len(row.Fields))
		for i := 0; i < count; i++ {
			y := fieldAt(row.Fields, i)
			d.append(i, Point{Time: row.Seconds, X: row.Seconds, Y: y.Value, Valid: y.IsValid})
		}
	}

	for i := 0; i < count; i++ {
		d.buffer.EvictIfOverWindow(i, d.config.SampleWindow)
	}
}

func (d *Decoder) append(index int, p Point) {
	if err := d.buffer.AppendPoint(index, p); err != nil {
		d.logger.Warn(fmt.Sprintf("error plotting point: %s", err.Error()))
	}
}

// channels returns how many series a row feeds. Configured labels fix the
// count; without labels the series grow with the widest row seen.
func (d *Decoder) channels(fields int) int {
	if n := d.config.SeriesCount(); n > 0 {
		return n
	}
	d.buffer.Grow(d.config.Mode, fields)
	return d.buffer.SeriesCount()
}

// Start emits the labels header for export.
func (d *Decoder) Start() {
	d.buffer.SetHeader(d.config.Labels)
}

// Pause stops admitting rows. Rows that complete while paused are parsed and
// discarded. Has no effect until at least one row has been admitted.
// Returns true if the decoder is paused.
func (d *Decoder) Pause() bool {
	if _, ok := d.buffer.Latest(); !ok {
		return d.paused
	}

	d.paused = true
	d.line.Reset()
	d.timeBase.Pause()
	return true
}

// Play resumes admission so the time axis continues where it was paused.
// A graph with nothing plotted starts over.
func (d *Decoder) Play() {
	if !d.plotted {
		d.Reset()
	}
	d.paused = false
	d.timeBase.Resume()
	d.Start()
}

// Stop resets the decoder and leaves it ready to play.
func (d *Decoder) Stop() {
	d.paused = false
	d.Reset()
}

// Clear drops all plotted and retained data.
func (d *Decoder) Clear() {
	d.Reset()
}

// Reset returns the stream, the time base and the buffer to their initial
// state. The next row is only admitted after a new terminator is seen.
func (d *Decoder) Reset() {
	d.buffer.Reset()
	d.timeBase.Reset()
	d.line.Reset()
	d.ready = false
	d.plotted = false
}

// Apply replaces the graph configuration and recreates the series.
func (d *Decoder) Apply(config GraphConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid graph configuration: %w", err)
	}
	d.apply(config)
	return nil
}

func (d *Decoder) apply(config GraphConfig) {
	d.config = config
	d.buffer.Configure(config.Mode, config.Labels, config.SeriesCount())
	d.Reset()
}

// Paused reports whether admission is paused.
func (d *Decoder) Paused() bool {
	return d.paused
}

// Config returns the active graph configuration.
func (d *Decoder) Config() GraphConfig {
	return d.config
}

// Series returns a copy of the plotted series.
func (d *Decoder) Series() []Series {
	return d.buffer.Series()
}

// ExportRows returns the labels header and the retained rows as text.
func (d *Decoder) ExportRows() []string {
	return d.buffer.ExportRows()
}

// Window returns the retained rows between from and to seconds, so a paused
// graph can be scrubbed through its history.
func (d *Decoder) Window(from, to float64) []Row {
	return d.buffer.Rows(from, to)
}

// Latest returns the newest admitted row.
func (d *Decoder) Latest() (Row, bool) {
	return d.buffer.Latest()
}

// Buffer returns the underlying sample buffer.
func (d *Decoder) Buffer() *SampleBuffer {
	return d.buffer
}

// Stats returns the decoder counters.
func (d *Decoder) Stats() Stats {
	return d.stats
}

// parseRow splits a line into the tick field and the remaining readings.
func parseRow(line string) Row {
	fields := strings.Split(line, ",")

	var row Row
	row.Ticks, row.TicksValid = parseTicks(fields[0])
	row.Fields = make([]Reading, 0, len(fields)-1)
	for _, field := range fields[1:] {
		row.Fields = append(row.Fields, parseReading(field))
	}
	return row
}

func parseTicks(field string) (uint32, bool) {
	if ticks, err := strconv.ParseUint(field, 10, 32); err == nil {
		return uint32(ticks), true
	}

	v, err := strconv.ParseFloat(field, 64)
	if err != nil || v < 0 || v > math.MaxUint32 {
		return 0, false
	}
	return uint32(v), true
}

func parseReading(field string) Reading {
	v, err := strconv.ParseFloat(field, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return Reading{}
	}
	return Reading{Value: v, IsValid: true}
}

func fieldAt(fields []Reading, i int) Reading {
	if i < len(fields) {
		return fields[i]
	}
	return Reading{}
}
