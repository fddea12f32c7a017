package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/launcher-link/internal/bridge"
	"github.com/roman-kulish/launcher-link/internal/chart"
	"github.com/roman-kulish/launcher-link/internal/telemetry"
)

// Console presents the session on a text stream. Graph frames are handed to
// a snapshot writer and status changes to the auto-open watcher, both
// running on their own goroutines, so no call blocks the manager loop.
type Console struct {
	mu  sync.Mutex
	out io.Writer

	logger   *slog.Logger
	decoder  *telemetry.Decoder
	recorder *Recorder // nil when recording is disabled

	port      string
	recording bool
	stats     telemetry.Stats // guarded by mu

	frames   chan bridge.Frame
	statuses chan bridge.Status
}

var _ bridge.Presenter = (*Console)(nil)

// NewConsole creates a console writing to out. The decoder is only read from
// the manager loop.
func NewConsole(out io.Writer, decoder *telemetry.Decoder, recorder *Recorder, logger *slog.Logger) *Console {
	return &Console{
		out:      out,
		logger:   logger.With(slog.String("component", "console")),
		decoder:  decoder,
		recorder: recorder,
		frames:   make(chan bridge.Frame, 1),
		statuses: make(chan bridge.Status, 1),
	}
}

// offer replaces whatever is pending on ch with v. It must have a single
// sender.
func offer[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Printf writes a line to the console.
func (c *Console) Printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, _ = fmt.Fprintf(c.out, format+"\n", args...)
}

func (c *Console) Terminal(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, _ = io.WriteString(c.out, text)
}

func (c *Console) ConnectionInfo(text string) {
	if text == "" {
		return
	}
	c.Printf("[bridge] %s", text)
}

func (c *Console) Compile(state bridge.CompileState, console string) {
	c.Printf("[compile] %s", state)
	if console != "" && state != bridge.CompileDownloading {
		c.Printf("%s", strings.TrimRight(console, "\n"))
	}
}

func (c *Console) Alert(msg string) {
	c.Printf("[alert] %s", msg)
}

func (c *Console) VersionWarning(level bridge.VersionLevel, version string) {
	c.logger.Warn("bridge version check", slog.String("level", level.String()), slog.String("version", version))
	c.Printf("[bridge] version %s: %s", version, level)
}

func (c *Console) ViewChanged(target bridge.StreamTarget, open bool) {
	if open {
		c.Printf("[view] %s opened", target)
	} else {
		c.Printf("[view] %s closed", target)
	}

	if target != bridge.TargetGraph || c.recorder == nil {
		return
	}
	if open {
		c.recorder.Begin(c.port, c.decoder.Config())
		c.recording = true
	} else {
		c.endRecording()
	}
}

func (c *Console) endRecording() {
	if c.recording {
		c.recorder.End()
		c.recording = false
	}
}

func (c *Console) Redraw(frame bridge.Frame) {
	c.mu.Lock()
	c.stats = frame.Stats
	c.mu.Unlock()

	offer(c.frames, frame)
}

func (c *Console) StatusChanged(status bridge.Status) {
	c.port = firstPort(status.Ports)
	if status.Target != bridge.TargetGraph && c.recorder != nil {
		c.endRecording()
	}
	offer(c.statuses, status)
}

// PrintStatus writes a status summary with the decoder counters of the last
// redraw.
func (c *Console) PrintStatus(status bridge.Status) {
	c.mu.Lock()
	stats := c.stats
	c.mu.Unlock()

	c.Printf("session %s: %s via %s, ports %q, view %s, compile %s, paused %t",
		status.SessionID, status.State, status.Transport, status.Ports, status.Target, status.Compile, status.Paused)
	c.Printf("rows admitted %s, dropped %s, evicted %s, bytes discarded %s",
		humanize.Comma(int64(stats.Admitted)), humanize.Comma(int64(stats.Dropped)),
		humanize.Comma(int64(stats.Evicted)), humanize.Comma(int64(stats.Discarded)))
}

// WatchStatus opens view whenever a session reports a usable port and no
// stream is open yet. A view is opened at most once per session.
func (c *Console) WatchStatus(ctx context.Context, view View, open func(bridge.StreamTarget)) error {
	var opened string
	for {
		select {
		case <-ctx.Done():
			return nil
		case status := <-c.statuses:
			if view == ViewNone || (status.State != bridge.StatePersistent && status.State != bridge.StateShortPoll) {
				continue
			}
			if !status.PortsAvailable || status.Target != bridge.TargetNone || status.SessionID == opened {
				continue
			}
			opened = status.SessionID
			open(view.Target())
		}
	}
}

// Snapshots writes the latest graph frame to dir on every redraw.
type Snapshots struct {
	dir      string
	format   chart.Format
	renderer *chart.Renderer
	labels   *chart.LabelPanel
	logger   *slog.Logger
}

// NewSnapshots creates a snapshot writer for config.
func NewSnapshots(config SnapshotConfig, logger *slog.Logger) (*Snapshots, error) {
	panel, err := chart.NewLabelPanel()
	if err != nil {
		return nil, fmt.Errorf("creating label panel: %w", err)
	}

	var options []func(*chart.Renderer)
	if config.Width > 0 && config.Height > 0 {
		options = append(options, chart.WithSize(config.Width, config.Height))
	}

	return &Snapshots{
		dir:      config.Directory,
		format:   config.Format,
		renderer: chart.NewRenderer(options...),
		labels:   panel,
		logger:   logger.With(slog.String("component", "snapshots")),
	}, nil
}

// Run writes frames received from console until ctx is done.
func (s *Snapshots) Run(ctx context.Context, console *Console) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame := <-console.frames:
			if err := s.write(frame); err != nil && !errors.Is(err, chart.ErrNoData) {
				s.logger.Error(fmt.Sprintf("writing snapshot: %s", err.Error()))
			}
		}
	}
}

func (s *Snapshots) write(frame bridge.Frame) error {
	graph := filepath.Join(s.dir, "graph."+string(s.format))
	err := writeFile(graph, func(w io.Writer) error {
		return s.renderer.Render(w, s.format, frame.Config, frame.Series)
	})
	if err != nil {
		return err
	}

	labels := chart.FieldLabels(frame.Config, frame.Series)
	return writeFile(filepath.Join(s.dir, "labels.png"), func(w io.Writer) error {
		return s.labels.WritePNG(w, frame.Config.Mode, labels, frame.Latest)
	})
}

// writeFile replaces path with what fn writes, so readers never see a
// partial file.
func writeFile(path string, fn func(w io.Writer) error) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(f.Name())
		}
	}()

	if err = fn(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("rendering %s: %w", filepath.Base(path), err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", filepath.Base(path), err)
	}
	return os.Rename(f.Name(), path)
}

func firstPort(ports []string) string {
	for _, port := range ports {
		if port != "" {
			return port
		}
	}
	return ""
}
