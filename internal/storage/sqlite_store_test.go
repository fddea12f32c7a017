package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/launcher-link/internal/telemetry"
)

func newTestStore(t *testing.T) *SqliteStore {
	t.Helper()

	s := NewSqliteStore(filepath.Join(t.TempDir(), "captures.db"))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testRows(n int) []telemetry.Row {
	rows := make([]telemetry.Row, n)
	for i := range rows {
		rows[i] = telemetry.Row{
			Ticks:      uint32(i * 100),
			TicksValid: true,
			Seconds:    float64(i) / 10,
			Fields:     []telemetry.Reading{{Value: float64(i), IsValid: true}, {}},
		}
		if i%2 == 0 {
			rows[i].Fields[1] = telemetry.Reading{Value: -float64(i), IsValid: true}
		}
	}
	return rows
}

func TestSqliteStore_Captures(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	config := telemetry.DefaultGraphConfig()
	config.Labels = []string{"left", "right"}

	first, err := s.CreateCapture(ctx, "COM3", config)
	require.NoError(t, err)
	second, err := s.CreateCapture(ctx, "/dev/ttyUSB0", telemetry.DefaultGraphConfig())
	require.NoError(t, err)
	assert.Greater(t, second, first)

	c, err := s.Capture(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "COM3", c.Port)
	assert.Equal(t, telemetry.ModeTimeSeries, c.Mode)
	assert.Equal(t, []string{"left", "right"}, c.Labels)
	require.NotNil(t, c.Config)
	assert.Equal(t, config, *c.Config)
	assert.False(t, c.StartTime.IsZero())

	all, err := s.Captures(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first, all[0].ID)
	assert.Equal(t, "/dev/ttyUSB0", all[1].Port)

	_, err = s.Capture(ctx, 999)
	assert.Error(t, err)
}

func TestSqliteStore_StoreAndReadRows(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateCapture(ctx, "COM3", telemetry.DefaultGraphConfig())
	require.NoError(t, err)

	// spans more than one insert statement
	rows := testRows(2*maxRowsPerStatement + 17)
	rows[3].TicksValid, rows[3].Ticks = false, 0
	require.NoError(t, s.StoreRows(ctx, id, rows))
	require.NoError(t, s.StoreRows(ctx, id, nil))

	r, err := s.ReadRows(ctx, id, WithBatchSize(64))
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, id, r.Capture().ID)

	var got []telemetry.Row
	for r.Next(ctx) {
		got = append(got, r.Current())
	}
	require.NoError(t, r.Error())
	assert.Equal(t, rows, got)
	assert.False(t, r.Next(ctx), "drained reader stays drained")
}

func TestSqliteStore_ReadRowsTimeRange(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateCapture(ctx, "COM3", telemetry.DefaultGraphConfig())
	require.NoError(t, err)
	require.NoError(t, s.StoreRows(ctx, id, testRows(100)))

	r, err := s.ReadRows(ctx, id, WithTimeRange(2, 3))
	require.NoError(t, err)
	defer r.Close()

	var seconds []float64
	for r.Next(ctx) {
		seconds = append(seconds, r.Current().Seconds)
	}
	require.NoError(t, r.Error())
	require.Len(t, seconds, 11)
	assert.InDelta(t, 2.0, seconds[0], 1e-9)
	assert.InDelta(t, 3.0, seconds[10], 1e-9)

	_, err = s.ReadRows(ctx, id, WithTimeRange(3, 2))
	assert.Error(t, err)
}

func TestSqliteStore_ReadEmptyCapture(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateCapture(ctx, "COM3", telemetry.DefaultGraphConfig())
	require.NoError(t, err)

	r, err := s.ReadRows(ctx, id)
	require.NoError(t, err)
	defer r.Close()

	assert.False(t, r.Next(ctx))
	assert.NoError(t, r.Error())
}

func TestSqliteStore_CloseTwice(t *testing.T) {
	s := NewSqliteStore(filepath.Join(t.TempDir(), "captures.db"))
	_, err := s.CreateCapture(context.Background(), "COM3", telemetry.DefaultGraphConfig())
	require.NoError(t, err)

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func TestFieldsEncoding(t *testing.T) {
	fields := []telemetry.Reading{{Value: 1.5, IsValid: true}, {}, {Value: -2, IsValid: true}}

	encoded, err := encodeFields(fields)
	require.NoError(t, err)
	assert.Equal(t, "[1.5,null,-2]", encoded)

	decoded, err := decodeFields(encoded)
	require.NoError(t, err)
	assert.Equal(t, fields, decoded)

	_, err = decodeFields("not json")
	assert.Error(t, err)
}
