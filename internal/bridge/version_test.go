package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionGate_Classify(t *testing.T) {
	gate, err := NewVersionGate(DefaultMinimumVersion, DefaultRecommendedVersion)
	require.NoError(t, err)

	tests := []struct {
		version string
		want    VersionLevel
	}{
		{"0.0.0", VersionUnknown},
		{"", VersionUnknown},
		{"not-a-version", VersionUnknown},
		{"0.5.9", VersionUnsupported},
		{"0.7.0", VersionOutdated},
		{"0.9.12", VersionOutdated},
		{"1.0.0", VersionOK},
		{"1.2.3", VersionOK},
		{"0.7", VersionOutdated},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			assert.Equal(t, tt.want, gate.Classify(tt.version))
		})
	}
}

func TestVersionGate_WarnsOncePerVersion(t *testing.T) {
	gate, err := NewVersionGate(DefaultMinimumVersion, DefaultRecommendedVersion)
	require.NoError(t, err)

	level, warn := gate.Check("0.0.0")
	assert.Equal(t, VersionUnknown, level)
	assert.True(t, warn)

	_, warn = gate.Check("0.0.0")
	assert.False(t, warn)

	level, warn = gate.Check("0.8.0")
	assert.Equal(t, VersionOutdated, level)
	assert.True(t, warn)

	level, warn = gate.Check("1.0.0")
	assert.Equal(t, VersionOK, level)
	assert.False(t, warn)

	// a downgrade back to a warned version is a version change
	_, warn = gate.Check("0.8.0")
	assert.True(t, warn)
}

func TestNewVersionGate_Invalid(t *testing.T) {
	_, err := NewVersionGate("x", "1.0.0")
	assert.Error(t, err)

	_, err = NewVersionGate("1.0.0", "y")
	assert.Error(t, err)

	_, err = NewVersionGate("2.0.0", "1.0.0")
	assert.Error(t, err)
}
