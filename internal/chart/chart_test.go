package chart

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/launcher-link/internal/telemetry"
)

func points(values ...float64) []telemetry.Point {
	out := make([]telemetry.Point, len(values))
	for i, v := range values {
		out[i] = telemetry.Point{Time: float64(i), X: float64(i), Y: v, Valid: true}
	}
	return out
}

func TestSegments(t *testing.T) {
	pts := points(1, 2, 3, 4, 5)
	pts[2].Valid = false

	segs := segments(pts)
	require.Len(t, segs, 2)
	assert.Len(t, segs[0], 2)
	assert.Len(t, segs[1], 2)
	assert.Equal(t, 4.0, segs[1][0].Y)

	assert.Empty(t, segments([]telemetry.Point{{Valid: false}}))
}

func TestAxisRange(t *testing.T) {
	fixed := axisRange(telemetry.Axis{Low: -5, High: 5}, 0, 100)
	assert.Equal(t, -5.0, fixed.Min)
	assert.Equal(t, 5.0, fixed.Max)

	auto := axisRange(telemetry.Axis{Auto: true}, 0, 10)
	assert.InDelta(t, -0.5, auto.Min, 1e-9)
	assert.InDelta(t, 10.5, auto.Max, 1e-9)

	flat := axisRange(telemetry.Axis{Auto: true}, 3, 3)
	assert.Less(t, flat.Min, 3.0)
	assert.Greater(t, flat.Max, 3.0)
}

func TestRenderer_Render(t *testing.T) {
	config := telemetry.DefaultGraphConfig()
	series := []telemetry.Series{
		{Label: "left", Kind: telemetry.ModeTimeSeries, Points: points(1, 2, 3)},
		{Label: "right", Kind: telemetry.ModeTimeSeries, Points: points(4, 5, 6)},
	}
	r := NewRenderer(WithSize(320, 200), WithTitle("telemetry"))

	t.Run("svg", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, r.Render(&buf, FormatSVG, config, series))
		assert.Contains(t, buf.String(), "<svg")
	})

	t.Run("png", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, r.Render(&buf, FormatPNG, config, series))

		img, err := png.Decode(&buf)
		require.NoError(t, err)
		assert.Equal(t, 320, img.Bounds().Dx())
		assert.Equal(t, 200, img.Bounds().Dy())
	})

	t.Run("unknown format", func(t *testing.T) {
		assert.Error(t, r.Render(&bytes.Buffer{}, Format("gif"), config, series))
	})
}

func TestRenderer_Scatter(t *testing.T) {
	config := telemetry.DefaultGraphConfig()
	config.Mode = telemetry.ModeScatter
	config.XAxis = telemetry.Axis{Low: -10, High: 10}

	series := []telemetry.Series{{Label: "pos", Kind: telemetry.ModeScatter, Points: points(7)}}

	var buf bytes.Buffer
	require.NoError(t, NewRenderer().Render(&buf, FormatSVG, config, series))
}

func TestRenderer_NoData(t *testing.T) {
	series := []telemetry.Series{{Label: "empty"}}
	err := NewRenderer().Render(&bytes.Buffer{}, FormatSVG, telemetry.DefaultGraphConfig(), series)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestSeriesColor(t *testing.T) {
	assert.Equal(t, uint8(0xff), SeriesColor(0).B)
	assert.Equal(t, uint8(0), SeriesColor(0).R)
	assert.NotEqual(t, SeriesColor(0), SeriesColor(len(seriesHex)), "wrapped slots shift hue")
	assert.NotEqual(t, SeriesColor(3), LabelBackground(3))
}

func TestLabelPanel(t *testing.T) {
	panel, err := NewLabelPanel()
	require.NoError(t, err)

	row := telemetry.Row{Fields: []telemetry.Reading{{Value: 1.5, IsValid: true}, {}}}
	img := panel.Render(telemetry.ModeTimeSeries, []string{"left", "right"}, row)
	assert.Equal(t, panelWidth, img.Bounds().Dx())
	assert.Equal(t, boxGap+2*(boxHeight+boxGap), img.Bounds().Dy())

	var buf bytes.Buffer
	require.NoError(t, panel.WritePNG(&buf, telemetry.ModeScatter, []string{"x", "y"}, telemetry.Row{}))
	_, err = png.Decode(&buf)
	assert.NoError(t, err)
}

func TestFieldLabels(t *testing.T) {
	series := []telemetry.Series{{Label: "series 1"}, {Label: "series 2"}}

	config := telemetry.DefaultGraphConfig()
	assert.Equal(t, []string{"series 1", "series 2"}, FieldLabels(config, series))

	config.Mode = telemetry.ModeScatter
	assert.Equal(t, []string{"series 1", "series 1", "series 2", "series 2"}, FieldLabels(config, series))

	config.Labels = []string{"a", "b"}
	assert.Equal(t, []string{"a", "b"}, FieldLabels(config, series))
}
