package bridge

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

const (
	DefaultMinimumVersion     = "0.7.0"
	DefaultRecommendedVersion = "1.0.0"
)

// VersionLevel classifies a peer version against the thresholds.
type VersionLevel int

const (
	VersionOK VersionLevel = iota
	VersionUnknown
	VersionOutdated    // below recommended
	VersionUnsupported // below minimum
)

func (l VersionLevel) String() string {
	switch l {
	case VersionUnknown:
		return "unknown"
	case VersionOutdated:
		return "outdated"
	case VersionUnsupported:
		return "unsupported"
	default:
		return "ok"
	}
}

// VersionGate decides which version warning, if any, to show for a peer.
// A warning is shown at most once per distinct version.
type VersionGate struct {
	minimum     *semver.Version
	recommended *semver.Version

	checked bool
	last    string
}

// NewVersionGate creates a gate with the given thresholds.
func NewVersionGate(minimum, recommended string) (*VersionGate, error) {
	lo, err := semver.NewVersion(minimum)
	if err != nil {
		return nil, fmt.Errorf("invalid minimum version %q: %w", minimum, err)
	}
	hi, err := semver.NewVersion(recommended)
	if err != nil {
		return nil, fmt.Errorf("invalid recommended version %q: %w", recommended, err)
	}
	if hi.LessThan(lo) {
		return nil, fmt.Errorf("recommended version %s is below minimum %s", hi, lo)
	}
	return &VersionGate{minimum: lo, recommended: hi}, nil
}

// Classify returns the level of a raw version string. Unparseable versions
// and 0.0.0 are unknown.
func (g *VersionGate) Classify(raw string) VersionLevel {
	v, err := semver.NewVersion(raw)
	if err != nil || (v.Major() == 0 && v.Minor() == 0 && v.Patch() == 0) {
		return VersionUnknown
	}

	switch {
	case v.LessThan(g.minimum):
		return VersionUnsupported
	case v.LessThan(g.recommended):
		return VersionOutdated
	default:
		return VersionOK
	}
}

// Check classifies raw and reports whether a warning should be shown now.
// Repeated checks of the same version never warn again.
func (g *VersionGate) Check(raw string) (VersionLevel, bool) {
	level := g.Classify(raw)
	if g.checked && raw == g.last {
		return level, false
	}

	g.checked = true
	g.last = raw
	return level, level != VersionOK
}
