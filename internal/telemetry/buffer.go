package telemetry

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
)

// node represents an internal linked list node of the export log.
type node struct {
	row  Row
	text string
	next *node
}

// SampleBuffer implements a thread-safe store for the plotted series and the
// raw export log. The export log is a FIFO bounded by capacity: once full,
// the oldest row is evicted for every new one.
type SampleBuffer struct {
	capacity int // Maximum number of export rows to retain

	mu     sync.Mutex
	header string // labels row, kept apart from the bounded data rows
	series []Series
	head   *node
	tail   *node
	size   int
}

// NewSampleBuffer creates a buffer retaining up to capacity export rows.
// Returns an error if capacity is invalid.
func NewSampleBuffer(capacity int) (*SampleBuffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("invalid buffer parameters: capacity=%d", capacity)
	}
	return &SampleBuffer{capacity: capacity}, nil
}

// Reset clears all series points, the header and the export log. Series
// labels survive so a cleared graph keeps its legend.
func (sb *SampleBuffer) Reset() {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	for i := range sb.series {
		sb.series[i].Points = nil
	}
	sb.header = ""
	sb.head = nil
	sb.tail = nil
	sb.size = 0
}

// Configure replaces the series set. Existing points are dropped.
func (sb *SampleBuffer) Configure(kind Mode, labels []string, count int) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	sb.series = make([]Series, 0, count)
	for i := 0; i < count; i++ {
		sb.series = append(sb.series, Series{Label: seriesLabel(kind, labels, i), Kind: kind})
	}
}

// Grow adds unlabeled series until there are n of them, up to MaxSeries.
func (sb *SampleBuffer) Grow(kind Mode, n int) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	for i := len(sb.series); i < min(n, MaxSeries); i++ {
		sb.series = append(sb.series, Series{Label: seriesLabel(kind, nil, i), Kind: kind})
	}
}

// SeriesCount returns the number of series.
func (sb *SampleBuffer) SeriesCount() int {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return len(sb.series)
}

// AppendPoint adds a point to the series at index.
func (sb *SampleBuffer) AppendPoint(index int, p Point) error {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if index < 0 || index >= len(sb.series) {
		return fmt.Errorf("series index %d out of range [0, %d)", index, len(sb.series))
	}
	sb.series[index].Points = append(sb.series[index].Points, p)
	return nil
}

// EvictIfOverWindow drops the oldest points of a series while the time
// extent of the series exceeds window seconds. Returns the number of points
// evicted.
func (sb *SampleBuffer) EvictIfOverWindow(index int, window float64) int {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if index < 0 || index >= len(sb.series) {
		return 0
	}

	points := sb.series[index].Points
	var evicted int
	for len(points) > 1 && points[len(points)-1].Time-points[0].Time > window {
		points = points[1:]
		evicted++
	}
	if evicted > 0 {
		// copy to release the evicted prefix
		sb.series[index].Points = append([]Point(nil), points...)
	}
	return evicted
}

// SetHeader sets the labels row that precedes the data rows on export.
func (sb *SampleBuffer) SetHeader(labels []string) {
	var b strings.Builder
	b.WriteString(`"time"`)
	for _, label := range labels {
		b.WriteString(`,"`)
		b.WriteString(strings.ReplaceAll(label, `"`, "_"))
		b.WriteString(`"`)
	}

	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.header = b.String()
}

// AppendRow adds a row to the export log, evicting the oldest row when the
// log is at capacity. Returns true if a row was evicted.
func (sb *SampleBuffer) AppendRow(row Row) bool {
	n := &node{row: row, text: formatRow(row)}

	sb.mu.Lock()
	defer sb.mu.Unlock()

	if sb.tail == nil {
		sb.head = n
	} else {
		sb.tail.next = n
	}
	sb.tail = n
	sb.size++

	if sb.size > sb.capacity {
		sb.head = sb.head.next
		sb.size--
		return true
	}
	return false
}

// ExportRows returns the labels header, when set, followed by the retained
// data rows in arrival order.
func (sb *SampleBuffer) ExportRows() []string {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	results := make([]string, 0, sb.size+1) // Preallocate with capacity
	if sb.header != "" {
		results = append(results, sb.header)
	}
	for current := sb.head; current != nil; current = current.next {
		results = append(results, current.text)
	}
	return results
}

// Rows returns the retained rows whose time lies within [from, to].
func (sb *SampleBuffer) Rows(from, to float64) []Row {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	var results []Row
	for current := sb.head; current != nil; current = current.next {
		if current.row.Seconds >= from && current.row.Seconds <= to {
			results = append(results, current.row)
		}
	}
	return results
}

// Latest returns the newest retained row.
func (sb *SampleBuffer) Latest() (Row, bool) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if sb.tail == nil {
		return Row{}, false
	}
	return sb.tail.row, true
}

// Size returns the current number of data rows in the export log.
func (sb *SampleBuffer) Size() int {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.size
}

// Series returns a deep copy of the series.
func (sb *SampleBuffer) Series() []Series {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	results := make([]Series, len(sb.series))
	for i, s := range sb.series {
		results[i] = Series{
			Label:  s.Label,
			Kind:   s.Kind,
			Points: append([]Point(nil), s.Points...),
		}
	}
	return results
}

// formatRow renders a row as an export line: the time rounded to four
// decimals followed by the fields. Gaps are written as empty fields.
func formatRow(row Row) string {
	var b strings.Builder
	b.WriteString(FormatSeconds(row.Seconds))
	for _, f := range row.Fields {
		b.WriteByte(',')
		if f.IsValid {
			b.WriteString(strconv.FormatFloat(f.Value, 'f', -1, 64))
		}
	}
	return b.String()
}

// FormatSeconds rounds seconds to four decimals.
func FormatSeconds(seconds float64) string {
	return strconv.FormatFloat(math.Round(seconds*10000)/10000, 'f', -1, 64)
}

func seriesLabel(kind Mode, labels []string, i int) string {
	if kind == ModeScatter {
		switch {
		case 2*i+1 < len(labels):
			return labels[2*i] + " / " + labels[2*i+1]
		case 2*i < len(labels):
			return labels[2*i]
		}
	} else if i < len(labels) {
		return labels[i]
	}
	return fmt.Sprintf("series %d", i+1)
}
