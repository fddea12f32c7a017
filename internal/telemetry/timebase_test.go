package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const tolerance = 1e-9

func TestTimeBase_Monotonic(t *testing.T) {
	ticks := []uint32{1_000, 1_001, 5_000, 90_000, 1_000_000, 4_000_000_000}

	var tb TimeBase
	prev := -1.0
	for _, tick := range ticks {
		got := tb.Resolve(tick, true)
		assert.InDelta(t, TicksToSeconds(tick)-TicksToSeconds(ticks[0]), got, tolerance)
		assert.GreaterOrEqual(t, got, prev)
		prev = got
	}
}

func TestTimeBase_Wraparound(t *testing.T) {
	var tb TimeBase
	first := tb.Resolve(4_000_000_000, true)
	second := tb.Resolve(100_000_000, true)

	assert.Zero(t, first)
	assert.InDelta(t, TicksToSeconds(100_000_000)+WrapPeriod-TicksToSeconds(4_000_000_000), second, tolerance)

	// a second wrap accumulates
	tb.Resolve(200_000_000, true)
	third := tb.Resolve(50, true)
	assert.InDelta(t, TicksToSeconds(50)+2*WrapPeriod-TicksToSeconds(4_000_000_000), third, tolerance)
}

func TestTimeBase_WrapPeriod(t *testing.T) {
	assert.InDelta(t, 53.687, WrapPeriod, 0.001)
	assert.InDelta(t, 1.0, TicksToSeconds(1220), 0.001)
}

func TestTimeBase_PauseResume(t *testing.T) {
	var tb TimeBase
	tb.Resolve(1_000, true)
	before := tb.Resolve(2_000, true)

	tb.Pause()
	tb.Resume()

	// device kept counting while paused; the axis continues where it stopped
	resumed := tb.Resolve(500_000, true)
	assert.InDelta(t, before, resumed, tolerance)

	next := tb.Resolve(501_000, true)
	assert.InDelta(t, before+TicksToSeconds(1_000), next, tolerance)
}

func TestTimeBase_ResumeSkipsWrapDetection(t *testing.T) {
	var tb TimeBase
	tb.Resolve(900_000, true)
	before := tb.Resolve(901_000, true)

	tb.Pause()
	tb.Resume()

	// lower than the last raw tick, but it is the resume frame
	resumed := tb.Resolve(10, true)
	assert.InDelta(t, before, resumed, tolerance)

	// detection is back on for the next row
	next := tb.Resolve(5, true)
	assert.InDelta(t, before-TicksToSeconds(5)+WrapPeriod, next, tolerance)
}

func TestTimeBase_InvalidTicks(t *testing.T) {
	var tb TimeBase
	tb.Resolve(5_000, true)

	// an unparseable tick field resolves at zero and is not a wrap
	got := tb.Resolve(0, false)
	assert.InDelta(t, -TicksToSeconds(5_000), got, tolerance)

	next := tb.Resolve(6_000, true)
	assert.InDelta(t, TicksToSeconds(1_000), next, tolerance)
}

func TestTimeBase_Reset(t *testing.T) {
	var tb TimeBase
	tb.Resolve(4_000_000_000, true)
	tb.Resolve(10, true)
	tb.Reset()

	assert.Zero(t, tb.Resolve(12_345, true))
	assert.Zero(t, tb.Last())
}

func TestTimeBase_StartsAtTickZero(t *testing.T) {
	var tb TimeBase
	assert.Zero(t, tb.Resolve(0, true))
	assert.InDelta(t, TicksToSeconds(100), tb.Resolve(100, true), tolerance)
}
