package chart

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/dustin/go-humanize"
	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/roman-kulish/launcher-link/internal/telemetry"
)

const (
	FormatSVG Format = "svg"
	FormatPNG Format = "png"

	defaultWidth  = 960
	defaultHeight = 400

	lineWidth      = 1.5
	dotWidth       = 2.5
	scatterDot     = 3.5
	emptyAxisSpan  = 1.0
	axisPadPercent = 0.05
)

// ErrNoData is returned when none of the series has a valid point.
var ErrNoData = errors.New("chart: no data to render")

// Format is the output encoding of a rendered chart.
type Format string

func (f Format) provider() (chart.RendererProvider, error) {
	switch f {
	case FormatSVG:
		return chart.SVG, nil
	case FormatPNG:
		return chart.PNG, nil
	default:
		return nil, fmt.Errorf("chart: unsupported format '%s'", f)
	}
}

// WithSize sets the output size in pixels
func WithSize(width, height int) func(r *Renderer) {
	return func(r *Renderer) {
		if width > 0 {
			r.width = width
		}
		if height > 0 {
			r.height = height
		}
	}
}

// WithTitle sets the chart title
func WithTitle(title string) func(r *Renderer) {
	return func(r *Renderer) {
		r.title = title
	}
}

// Renderer draws decoder series as a line chart (time series) or a dot
// chart (scatter). Gaps split a line into separate segments.
type Renderer struct {
	width  int
	height int
	title  string
}

// NewRenderer creates a chart renderer.
func NewRenderer(options ...func(r *Renderer)) *Renderer {
	r := Renderer{
		width:  defaultWidth,
		height: defaultHeight,
	}
	for _, option := range options {
		option(&r)
	}
	return &r
}

// Render writes the chart of the series to w.
func (r *Renderer) Render(w io.Writer, format Format, config telemetry.GraphConfig, series []telemetry.Series) error {
	provider, err := format.provider()
	if err != nil {
		return err
	}

	var (
		plotted []chart.Series
		bounds  extent
	)
	for i, s := range series {
		for _, seg := range segments(s.Points) {
			plotted = append(plotted, r.series(config.Mode, i, seg))
			bounds.add(seg)
		}
	}
	if len(plotted) == 0 {
		return ErrNoData
	}

	ch := chart.Chart{
		Title:      r.title,
		Width:      r.width,
		Height:     r.height,
		Background: chart.Style{Padding: chart.Box{Top: 20, Left: 16, Right: 16, Bottom: 16}},
		XAxis:      r.xAxis(config, bounds),
		YAxis: chart.YAxis{
			Range:          axisRange(config.YAxis, bounds.minY, bounds.maxY),
			ValueFormatter: formatValue,
		},
		Series: plotted,
	}

	if err = ch.Render(provider, w); err != nil {
		return fmt.Errorf("rendering %s chart: %w", format, err)
	}
	return nil
}

func (r *Renderer) series(mode telemetry.Mode, index int, seg []telemetry.Point) chart.ContinuousSeries {
	xs := make([]float64, len(seg))
	ys := make([]float64, len(seg))
	for i, p := range seg {
		xs[i], ys[i] = p.X, p.Y
	}

	col := drawingColor(SeriesColor(index))
	style := chart.Style{StrokeColor: col, StrokeWidth: lineWidth}
	switch {
	case mode == telemetry.ModeScatter:
		style = chart.Style{StrokeWidth: chart.Disabled, DotColor: col, DotWidth: scatterDot}
	case len(seg) == 1:
		style.DotColor, style.DotWidth = col, dotWidth
	}

	return chart.ContinuousSeries{XValues: xs, YValues: ys, Style: style}
}

// xAxis follows the sample window for time series and the configured axis
// for scatter graphs.
func (r *Renderer) xAxis(config telemetry.GraphConfig, bounds extent) chart.XAxis {
	if config.Mode == telemetry.ModeScatter {
		return chart.XAxis{
			Range:          axisRange(config.XAxis, bounds.minX, bounds.maxX),
			ValueFormatter: formatValue,
		}
	}

	low := math.Max(bounds.minX, bounds.maxX-config.SampleWindow)
	return chart.XAxis{
		Range:          span(low, bounds.maxX),
		ValueFormatter: formatSeconds,
	}
}

func axisRange(axis telemetry.Axis, low, high float64) *chart.ContinuousRange {
	if !axis.Auto {
		return &chart.ContinuousRange{Min: axis.Low, Max: axis.High}
	}
	pad := (high - low) * axisPadPercent
	return span(low-pad, high+pad)
}

func span(low, high float64) *chart.ContinuousRange {
	if high <= low {
		low, high = low-emptyAxisSpan/2, low+emptyAxisSpan/2
	}
	return &chart.ContinuousRange{Min: low, Max: high}
}

// segments splits points at every gap into runs of valid points.
func segments(points []telemetry.Point) [][]telemetry.Point {
	var (
		out [][]telemetry.Point
		run []telemetry.Point
	)
	for _, p := range points {
		if !p.Valid || math.IsNaN(p.X) || math.IsNaN(p.Y) {
			if len(run) > 0 {
				out = append(out, run)
				run = nil
			}
			continue
		}
		run = append(run, p)
	}
	if len(run) > 0 {
		out = append(out, run)
	}
	return out
}

type extent struct {
	set        bool
	minX, maxX float64
	minY, maxY float64
}

func (e *extent) add(points []telemetry.Point) {
	for _, p := range points {
		if !e.set {
			e.minX, e.maxX, e.minY, e.maxY = p.X, p.X, p.Y, p.Y
			e.set = true
			continue
		}
		e.minX, e.maxX = math.Min(e.minX, p.X), math.Max(e.maxX, p.X)
		e.minY, e.maxY = math.Min(e.minY, p.Y), math.Max(e.maxY, p.Y)
	}
}

func formatValue(v interface{}) string {
	f, ok := v.(float64)
	if !ok {
		return ""
	}
	return humanize.CommafWithDigits(f, 2)
}

func formatSeconds(v interface{}) string {
	f, ok := v.(float64)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%.1fs", f)
}
