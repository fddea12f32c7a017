package bridge

import (
	"fmt"
	"net"
	"net/url"
	"time"
)

const (
	DefaultAddress           = "localhost:6009"
	DefaultDiscoveryInterval = 3500 * time.Millisecond
	DefaultProbeDelay        = time.Second
	DefaultRequestTimeout    = 2 * time.Second
	DefaultPortListTimeout   = 3

	// serverName is what a compatible short-poll peer reports.
	serverName = "BlocklyPropHTTP"
)

// Config configures the session manager and the bridge transport.
type Config struct {
	Address            string        // host:port of the bridge
	DiscoveryInterval  time.Duration // discovery, liveness and short-poll refresh period
	ProbeDelay         time.Duration // grace given to the persistent dial before probing short-poll
	RequestTimeout     time.Duration // timeout of short-poll requests and dials
	PortListTimeout    int           // discovery ticks without a port list before the peer is hung
	MinimumVersion     string
	RecommendedVersion string
}

// DefaultConfig returns the configuration of a bridge on its default port.
func DefaultConfig() Config {
	return Config{
		Address:            DefaultAddress,
		DiscoveryInterval:  DefaultDiscoveryInterval,
		ProbeDelay:         DefaultProbeDelay,
		RequestTimeout:     DefaultRequestTimeout,
		PortListTimeout:    DefaultPortListTimeout,
		MinimumVersion:     DefaultMinimumVersion,
		RecommendedVersion: DefaultRecommendedVersion,
	}
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Address); err != nil {
		return fmt.Errorf("bridge.Config: invalid address '%s': %w", c.Address, err)
	}
	if c.DiscoveryInterval <= 0 {
		return fmt.Errorf("bridge.Config: discovery interval must be positive")
	}
	if c.ProbeDelay < 0 {
		return fmt.Errorf("bridge.Config: probe delay must not be negative")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("bridge.Config: request timeout must be positive")
	}
	if c.PortListTimeout <= 0 {
		return fmt.Errorf("bridge.Config: port list timeout must be positive")
	}
	return nil
}

// URL returns the address of a bridge endpoint for the given scheme.
func (c Config) URL(scheme, path string) string {
	u := url.URL{Scheme: scheme, Host: c.Address, Path: "/" + path}
	return u.String()
}
