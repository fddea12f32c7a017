package app

import (
	"bytes"
	"context"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/launcher-link/internal/storage"
	"github.com/roman-kulish/launcher-link/internal/telemetry"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newCapture stores a two channel capture of ten rows, one every 0.1s, with
// a gap in the second channel.
func newCapture(t *testing.T) (string, int64) {
	t.Helper()

	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "captures.sqlite")
	store := storage.NewSqliteStore(dbPath)
	defer store.Close()

	graph := telemetry.DefaultGraphConfig()
	graph.Labels = []string{"left", "right"}
	id, err := store.CreateCapture(ctx, "COM3", graph)
	require.NoError(t, err)

	rows := make([]telemetry.Row, 10)
	for i := range rows {
		rows[i] = telemetry.Row{
			Ticks:      uint32(i * 122),
			TicksValid: true,
			Seconds:    float64(i) / 10,
			Fields: []telemetry.Reading{
				{Value: float64(i), IsValid: true},
				{Value: float64(-i), IsValid: i != 4},
			},
		}
		if i == 4 {
			rows[i].Fields[1] = telemetry.Reading{}
		}
	}
	require.NoError(t, store.StoreRows(ctx, id, rows))
	return dbPath, id
}

func testConfig(dbPath string, id int64, format OutputFormat, dir string) *Config {
	config := NewConfig()
	config.DBPath = dbPath
	config.CaptureID = id
	config.Format = format
	config.OutputFile = filepath.Join(dir, "out."+format.Extension())
	return config
}

func TestRun_CSV(t *testing.T) {
	dbPath, id := newCapture(t)
	config := testConfig(dbPath, id, FormatCSV, t.TempDir())

	require.NoError(t, Run(context.Background(), config, discardLogger()))

	p, err := os.ReadFile(config.OutputFile)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(string(p), "\n"), "\n")
	require.Len(t, lines, 11)
	assert.Equal(t, `"time","left","right"`, lines[0])
	assert.Equal(t, "0.4,4,", lines[5])
}

func TestRun_TimeRange(t *testing.T) {
	dbPath, id := newCapture(t)
	config := testConfig(dbPath, id, FormatCSV, t.TempDir())
	from, to := 0.25, 0.55
	config.From, config.To = &from, &to

	require.NoError(t, Run(context.Background(), config, discardLogger()))

	p, err := os.ReadFile(config.OutputFile)
	require.NoError(t, err)
	assert.Equal(t, 4, strings.Count(string(p), "\n"), "header and rows at 0.3, 0.4 and 0.5")
}

func TestRun_Images(t *testing.T) {
	dbPath, id := newCapture(t)
	dir := t.TempDir()

	svg := testConfig(dbPath, id, FormatSVG, dir)
	require.NoError(t, Run(context.Background(), svg, discardLogger()))
	p, err := os.ReadFile(svg.OutputFile)
	require.NoError(t, err)
	assert.Contains(t, string(p), "<svg")

	for _, format := range []OutputFormat{FormatPNG, FormatLabels} {
		config := testConfig(dbPath, id, format, dir)
		config.OutputFile = filepath.Join(dir, string(format)+".png")
		require.NoError(t, Run(context.Background(), config, discardLogger()))

		p, err = os.ReadFile(config.OutputFile)
		require.NoError(t, err)
		_, err = png.Decode(bytes.NewReader(p))
		assert.NoError(t, err, format)
	}
}

func TestRun_Errors(t *testing.T) {
	dbPath, _ := newCapture(t)
	dir := t.TempDir()

	config := testConfig(filepath.Join(dir, "missing.sqlite"), 1, FormatCSV, dir)
	assert.Error(t, Run(context.Background(), config, discardLogger()))

	config = testConfig(dbPath, 42, FormatCSV, dir)
	assert.Error(t, Run(context.Background(), config, discardLogger()))

	from, to := 100.0, 200.0
	config = testConfig(dbPath, 1, FormatCSV, dir)
	config.From, config.To = &from, &to
	err := Run(context.Background(), config, discardLogger())
	assert.ErrorIs(t, err, storage.ErrNoData)
	assert.NoFileExists(t, config.OutputFile)
}

func TestListCaptures(t *testing.T) {
	dbPath, id := newCapture(t)
	store := storage.NewSqliteStore(dbPath)
	defer store.Close()

	var out bytes.Buffer
	require.NoError(t, listCaptures(context.Background(), store, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.True(t, strings.HasPrefix(lines[1], "1 "), "capture %d", id)
	assert.Contains(t, lines[1], "COM3")
	assert.Contains(t, lines[1], "left,right")
}

func TestGraphConfig(t *testing.T) {
	stored := telemetry.DefaultGraphConfig()
	stored.Mode = telemetry.ModeScatter
	stored.SampleWindow = 5

	graph := graphConfig(&storage.Capture{Config: &stored}, 0)
	assert.Equal(t, telemetry.ModeScatter, graph.Mode)
	assert.Greater(t, graph.SampleWindow, 1e300)

	graph = graphConfig(&storage.Capture{Mode: telemetry.ModeTimeSeries, Labels: []string{"a"}}, 2)
	assert.Equal(t, []string{"a"}, graph.Labels)
	assert.Equal(t, 2.0, graph.SampleWindow)
}
