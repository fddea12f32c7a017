package telemetry

const (
	// TicksPerSecond is the rate of the device tick counter: the 80 MHz system
	// clock counter shifted right by 16 bits.
	TicksPerSecond = 1220.703125

	// WrapPeriod is the number of seconds it takes the 32-bit hardware counter
	// to overflow at 80 MHz.
	WrapPeriod = 4294967296.0 / 80_000_000.0

	// MaxExportRows limits the number of raw rows retained for export.
	MaxExportRows = 15_000

	// MaxSeries is the number of series a graph can hold.
	MaxSeries = 10
)

// TicksToSeconds converts a raw tick count into seconds.
func TicksToSeconds(ticks uint32) float64 {
	return float64(ticks) / TicksPerSecond
}

// Reading represents a single numeric field of a telemetry row,
// allowing for explicit invalid/missing data representation
type Reading struct {
	Value   float64 // Parsed value
	IsValid bool    // Whether the field was present and numeric
}

// Row is one decoded line of device output.
type Row struct {
	Ticks      uint32    // Raw hardware tick count (first field)
	TicksValid bool      // Whether the tick field was numeric
	Seconds    float64   // Unwrapped elapsed time in seconds
	Fields     []Reading // Remaining fields in wire order
}

// Point is a single plotted sample. Time is the row time the point was
// decoded at and drives window eviction for both graph modes. A point with
// Valid set to false is a gap.
type Point struct {
	Time  float64
	X     float64
	Y     float64
	Valid bool
}

// Series is one named numeric channel.
type Series struct {
	Label  string
	Kind   Mode
	Points []Point
}

// RowSink receives every row admitted by a Decoder, in arrival order.
type RowSink interface {
	Row(Row)
}

// RowSinkFunc adapts a function to RowSink.
type RowSinkFunc func(Row)

func (f RowSinkFunc) Row(r Row) { f(r) }
