package telemetry

// TimeBase unwraps the free running 32-bit device counter into a continuous
// elapsed-seconds axis. The zero value is ready to use.
//
// The counter overflows roughly every 53.7 seconds. A wrap is detected when
// the raw tick count of a row is lower than the one of the row before it.
type TimeBase struct {
	started      bool
	origin       float64 // seconds mapped to zero on the axis
	wrapOffset   float64 // seconds accumulated from counter wraps
	resumeOffset float64 // elapsed seconds to continue from after a pause
	resuming     bool    // skips wrap detection on the first row after a resume

	havePrev  bool
	prevTicks uint32
	last      float64 // last elapsed value returned
}

// Resolve returns the elapsed seconds for a row. Rows whose tick field could
// not be parsed resolve at tick zero and do not take part in wrap detection.
func (tb *TimeBase) Resolve(ticks uint32, valid bool) float64 {
	seconds := TicksToSeconds(ticks)

	if !tb.started {
		tb.started = true
		tb.origin = seconds
		if tb.resuming {
			tb.origin -= tb.resumeOffset
			tb.resumeOffset = 0
		}
	} else if !tb.resuming && valid && tb.havePrev && tb.prevTicks > ticks {
		tb.wrapOffset += WrapPeriod
	}
	tb.resuming = false

	if valid {
		tb.havePrev = true
		tb.prevTicks = ticks
	}

	tb.last = seconds + tb.wrapOffset - tb.origin
	return tb.last
}

// Pause remembers where the axis stopped so Resume can continue from there.
func (tb *TimeBase) Pause() {
	tb.resumeOffset = tb.last
	tb.started = false
	tb.origin = 0
	tb.wrapOffset = 0
}

// Resume arms the rebase for the next row.
func (tb *TimeBase) Resume() {
	tb.resuming = true
}

// Reset returns the time base to its zero state.
func (tb *TimeBase) Reset() {
	*tb = TimeBase{}
}

// Last returns the elapsed seconds of the most recent row.
func (tb *TimeBase) Last() float64 {
	return tb.last
}
