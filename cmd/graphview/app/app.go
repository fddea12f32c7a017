package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/launcher-link/internal/chart"
	"github.com/roman-kulish/launcher-link/internal/storage"
	"github.com/roman-kulish/launcher-link/internal/telemetry"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath)
	defer store.Close()

	if config.List {
		return listCaptures(ctx, store, os.Stdout)
	}

	decoder, capture, err := replayCapture(ctx, store, config, logger)
	if err != nil {
		return err
	}

	f, err := os.Create(config.OutputFile)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer f.Close()

	if err = render(f, config, capture, decoder); err != nil {
		_ = os.Remove(config.OutputFile)
		return err
	}

	logger.Info("output written", slog.String("file", config.OutputFile))
	return nil
}

func listCaptures(ctx context.Context, store storage.Store, out io.Writer) error {
	captures, err := store.Captures(ctx)
	if err != nil {
		return fmt.Errorf("listing captures: %w", err)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTARTED\tPORT\tMODE\tLABELS")
	for _, c := range captures {
		_, _ = fmt.Fprintf(w, "%d\t%s (%s)\t%s\t%s\t%s\n",
			c.ID, c.StartTime.Local().Format(time.DateTime), humanize.Time(c.StartTime),
			c.Port, c.Mode, strings.Join(c.Labels, ","))
	}
	return w.Flush()
}

// replayCapture feeds the stored rows of a capture through a decoder, so the
// output matches what the live graph showed.
func replayCapture(ctx context.Context, store *storage.SqliteStore, config *Config, logger *slog.Logger) (*telemetry.Decoder, *storage.Capture, error) {
	var opts []storage.ReaderOption
	var filters []any
	if config.From != nil || config.To != nil {
		from, to := -math.MaxFloat64, math.MaxFloat64
		if config.From != nil {
			from = *config.From
			filters = append(filters, slog.Float64("from", from))
		}
		if config.To != nil {
			to = *config.To
			filters = append(filters, slog.Float64("to", to))
		}
		opts = append(opts, storage.WithTimeRange(from, to))
	}

	if config.Verbose {
		logger.Info("reader configuration", filters...)
	}

	reader, err := store.ReadRows(ctx, config.CaptureID, opts...)
	if err != nil {
		return nil, nil, err
	}
	defer reader.Close()

	capture := reader.Capture()
	graph := graphConfig(capture, config.Window)

	decoder, err := telemetry.NewDecoder(graph, telemetry.WithLogger(logger), telemetry.WithRetention(math.MaxInt))
	if err != nil {
		return nil, nil, fmt.Errorf("creating decoder: %w", err)
	}
	decoder.Start()

	var n int
	for reader.Next(ctx) {
		decoder.Ingest(reader.Current())
		n++
	}
	if err = reader.Error(); err != nil {
		return nil, nil, fmt.Errorf("reading rows: %w", err)
	}
	if n == 0 {
		return nil, nil, fmt.Errorf("capture %d: %w", capture.ID, storage.ErrNoData)
	}

	logger.Info("capture replayed",
		slog.Int64("capture", capture.ID),
		slog.String("port", capture.Port),
		slog.String("started", humanize.Time(capture.StartTime)),
		slog.String("rows", humanize.Comma(int64(n))))

	return decoder, capture, nil
}

// graphConfig returns the graph settings a capture was recorded with. A
// window of zero keeps every replayed point.
func graphConfig(capture *storage.Capture, window float64) telemetry.GraphConfig {
	graph := telemetry.DefaultGraphConfig()
	if capture.Config != nil {
		graph = *capture.Config
	} else {
		graph.Mode = capture.Mode
		graph.Labels = capture.Labels
	}

	if window > 0 {
		graph.SampleWindow = window
	} else {
		graph.SampleWindow = math.MaxFloat64
	}
	return graph
}

func render(w io.Writer, config *Config, capture *storage.Capture, decoder *telemetry.Decoder) error {
	graph := decoder.Config()

	switch config.Format {
	case FormatCSV:
		return telemetry.WriteCSV(w, decoder.ExportRows())

	case FormatLabels:
		panel, err := chart.NewLabelPanel()
		if err != nil {
			return fmt.Errorf("creating label panel: %w", err)
		}
		latest, _ := decoder.Latest()
		return panel.WritePNG(w, graph.Mode, chart.FieldLabels(graph, decoder.Series()), latest)

	case FormatSVG, FormatPNG:
		title := fmt.Sprintf("Capture %d, %s, %s", capture.ID, capture.Port, capture.StartTime.Local().Format(time.DateTime))
		renderer := chart.NewRenderer(chart.WithSize(config.Width, config.Height), chart.WithTitle(title))
		return renderer.Render(w, chart.Format(config.Format), graph, decoder.Series())

	default:
		return errors.New("unsupported output format")
	}
}
