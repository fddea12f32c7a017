package telemetry

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// ModeTimeSeries plots every field against the row time.
	ModeTimeSeries Mode = "timeseries"

	// ModeScatter plots consecutive field pairs as (x, y).
	ModeScatter Mode = "scatter"

	defaultRefreshInterval = 250 * time.Millisecond
	defaultSampleWindow    = 40.0
)

var validModes = map[Mode]struct{}{
	ModeTimeSeries: {},
	ModeScatter:    {},
}

type Mode string

func (m Mode) String() string {
	return string(m)
}

// Axis is either automatically scaled or fixed to [Low, High].
type Axis struct {
	Auto bool    `yaml:"auto" json:"auto"`
	Low  float64 `yaml:"low,omitempty" json:"low,omitempty"`
	High float64 `yaml:"high,omitempty" json:"high,omitempty"`
}

// Validate checks a fixed axis has a non-empty range.
func (a Axis) Validate() error {
	if a.Auto {
		return nil
	}
	if a.Low >= a.High {
		return fmt.Errorf("telemetry.Axis: low %g must be below high %g", a.Low, a.High)
	}
	return nil
}

// RefreshInterval is a redraw period that reads from YAML as a duration
// string ("250ms").
type RefreshInterval time.Duration

func (d *RefreshInterval) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("telemetry.RefreshInterval: failed to parse: %s", err)
	}

	*d = RefreshInterval(duration)
	return nil
}

func (d RefreshInterval) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// GraphConfig is the read-only input of the decoder. It is replaced, never
// mutated, when graph settings are reapplied.
type GraphConfig struct {
	Mode            Mode            `yaml:"mode" json:"mode"`
	RefreshInterval RefreshInterval `yaml:"refreshInterval" json:"refreshInterval"`
	SampleWindow    float64         `yaml:"sampleWindow" json:"sampleWindow"` // seconds of history kept per series
	Labels          []string        `yaml:"labels" json:"labels"`
	YAxis           Axis            `yaml:"yAxis" json:"yAxis"`
	XAxis           Axis            `yaml:"xAxis" json:"xAxis"`
}

// DefaultGraphConfig returns a time series graph with automatic axes.
func DefaultGraphConfig() GraphConfig {
	return GraphConfig{
		Mode:            ModeTimeSeries,
		RefreshInterval: RefreshInterval(defaultRefreshInterval),
		SampleWindow:    defaultSampleWindow,
		YAxis:           Axis{Auto: true},
		XAxis:           Axis{Auto: true},
	}
}

// Refresh returns the redraw period, falling back to the default.
func (c GraphConfig) Refresh() time.Duration {
	if c.RefreshInterval <= 0 {
		return defaultRefreshInterval
	}
	return time.Duration(c.RefreshInterval)
}

// SeriesCount returns the number of series the configured labels describe.
// Scatter labels name the x and y field of each pair.
func (c GraphConfig) SeriesCount() int {
	n := len(c.Labels)
	if c.Mode == ModeScatter {
		n = (n + 1) / 2
	}
	return min(n, MaxSeries)
}

// Validate checks the configuration for errors.
func (c GraphConfig) Validate() error {
	if _, ok := validModes[c.Mode]; !ok {
		return fmt.Errorf("telemetry.GraphConfig: invalid mode '%s'", c.Mode)
	}
	if c.SampleWindow <= 0 {
		return fmt.Errorf("telemetry.GraphConfig: sample window must be positive: %g given", c.SampleWindow)
	}
	if c.RefreshInterval < 0 {
		return fmt.Errorf("telemetry.GraphConfig: refresh interval must not be negative")
	}
	if err := c.YAxis.Validate(); err != nil {
		return fmt.Errorf("y axis: %w", err)
	}
	if c.Mode == ModeScatter {
		if err := c.XAxis.Validate(); err != nil {
			return fmt.Errorf("x axis: %w", err)
		}
	}
	return nil
}
