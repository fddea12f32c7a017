package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/launcher-link/internal/bridge"
	"github.com/roman-kulish/launcher-link/internal/chart"
	"github.com/roman-kulish/launcher-link/internal/telemetry"
)

const (
	ViewNone     View = ""
	ViewTerminal View = "terminal"
	ViewGraph    View = "graph"

	defaultMaxBatchSize  = 100
	defaultFlushInterval = time.Second
)

var validViews = map[View]bridge.StreamTarget{
	ViewNone:     bridge.TargetNone,
	ViewTerminal: bridge.TargetTerminal,
	ViewGraph:    bridge.TargetGraph,
}

// View names the stream opened as soon as a device is available.
type View string

func (v View) Target() bridge.StreamTarget {
	return validViews[v]
}

type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("app.Duration: failed to parse: %s", err)
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Config represents the main application configuration
type Config struct {
	Settings  Settings              `yaml:"settings"`
	Bridge    BridgeConfig          `yaml:"bridge"`
	Graph     telemetry.GraphConfig `yaml:"graph"`
	Storage   StorageConfig         `yaml:"storage"`
	Snapshots SnapshotConfig        `yaml:"snapshots"`
	Metrics   MetricsConfig         `yaml:"metrics"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel slog.Level `yaml:"logLevel"`
	LogFile  string     `yaml:"logFile"` // optional JSON log file
	View     View       `yaml:"view"`
}

// BridgeConfig represents the bridge connection settings
type BridgeConfig struct {
	Address            string   `yaml:"address"`
	DiscoveryInterval  Duration `yaml:"discoveryInterval"`
	ProbeDelay         Duration `yaml:"probeDelay"`
	RequestTimeout     Duration `yaml:"requestTimeout"`
	PortListTimeout    int      `yaml:"portListTimeout"`
	MinimumVersion     string   `yaml:"minimumVersion"`
	RecommendedVersion string   `yaml:"recommendedVersion"`
}

// StorageConfig represents capture recording settings
type StorageConfig struct {
	Enabled       bool     `yaml:"enabled"`
	DataDirectory string   `yaml:"dataDirectory"`
	MaxBatchSize  int      `yaml:"maxBatchSize"`
	FlushInterval Duration `yaml:"flushInterval"`
}

// SnapshotConfig represents live graph snapshot settings
type SnapshotConfig struct {
	Directory string       `yaml:"directory"` // empty disables snapshots
	Format    chart.Format `yaml:"format"`
	Width     int          `yaml:"width"`
	Height    int          `yaml:"height"`
}

// MetricsConfig represents the Prometheus endpoint settings
type MetricsConfig struct {
	Listen string `yaml:"listen"` // empty disables the endpoint
	Path   string `yaml:"path"`
}

// DefaultConfig returns the configuration used for anything a file leaves
// out.
func DefaultConfig() *Config {
	b := bridge.DefaultConfig()
	return &Config{
		Settings: Settings{LogLevel: slog.LevelInfo},
		Bridge: BridgeConfig{
			Address:            b.Address,
			DiscoveryInterval:  Duration(b.DiscoveryInterval),
			ProbeDelay:         Duration(b.ProbeDelay),
			RequestTimeout:     Duration(b.RequestTimeout),
			PortListTimeout:    b.PortListTimeout,
			MinimumVersion:     b.MinimumVersion,
			RecommendedVersion: b.RecommendedVersion,
		},
		Graph: telemetry.DefaultGraphConfig(),
		Storage: StorageConfig{
			MaxBatchSize:  defaultMaxBatchSize,
			FlushInterval: Duration(defaultFlushInterval),
		},
		Snapshots: SnapshotConfig{Format: chart.FormatSVG},
		Metrics:   MetricsConfig{Path: "/metrics"},
	}
}

// LoadConfig reads a YAML configuration file on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	p, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	config := DefaultConfig()
	if err = yaml.Unmarshal(p, config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err = config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// ToBridge converts the bridge section to the bridge package config.
func (c *Config) ToBridge() bridge.Config {
	return bridge.Config{
		Address:            c.Bridge.Address,
		DiscoveryInterval:  time.Duration(c.Bridge.DiscoveryInterval),
		ProbeDelay:         time.Duration(c.Bridge.ProbeDelay),
		RequestTimeout:     time.Duration(c.Bridge.RequestTimeout),
		PortListTimeout:    c.Bridge.PortListTimeout,
		MinimumVersion:     c.Bridge.MinimumVersion,
		RecommendedVersion: c.Bridge.RecommendedVersion,
	}
}

func (c *Config) Validate() error {
	if _, ok := validViews[c.Settings.View]; !ok {
		return fmt.Errorf("app.Config: invalid view '%s'", c.Settings.View)
	}
	if err := c.ToBridge().Validate(); err != nil {
		return err
	}
	if err := c.Graph.Validate(); err != nil {
		return err
	}
	if c.Storage.Enabled && c.Storage.MaxBatchSize <= 0 {
		return fmt.Errorf("app.Config: storage batch size must be positive: %d given", c.Storage.MaxBatchSize)
	}
	if c.Storage.Enabled && c.Storage.FlushInterval <= 0 {
		return errors.New("app.Config: storage flush interval must be positive")
	}
	if c.Snapshots.Directory != "" && c.Snapshots.Format != chart.FormatSVG && c.Snapshots.Format != chart.FormatPNG {
		return fmt.Errorf("app.Config: invalid snapshot format '%s'", c.Snapshots.Format)
	}
	if c.Metrics.Listen != "" && c.Metrics.Path == "" {
		return errors.New("app.Config: metrics path is required")
	}
	return nil
}
