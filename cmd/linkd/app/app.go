package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/launcher-link/internal/bridge"
	"github.com/roman-kulish/launcher-link/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

const helpText = `commands:
  open terminal|graph   open a stream view
  close terminal|graph  close a stream view
  pause | play | clear  control the graph
  apply <file>          apply graph settings from a YAML file
  export <file>         write retained rows as CSV
  disconnect            drop the bridge connection
  status                print the session status
  quit                  exit`

// Run starts the bridge session and blocks until ctx is done or the quit
// command is entered.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	return run(ctx, config, logger, os.Stdin, os.Stdout)
}

func run(ctx context.Context, config *Config, logger *slog.Logger, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	registry := prometheus.NewRegistry()
	metrics, err := bridge.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("creating metrics: %w", err)
	}

	var recorder *Recorder
	decoderOptions := []func(*telemetry.Decoder){telemetry.WithLogger(logger)}
	if config.Storage.Enabled {
		store, err := createStorage(&config.Storage)
		if err != nil {
			return fmt.Errorf("failed to create storage: %w", err)
		}
		defer store.Close()

		recorder = NewRecorder(store, logger,
			WithMaxBatchSize(config.Storage.MaxBatchSize),
			WithFlushInterval(time.Duration(config.Storage.FlushInterval)))
		decoderOptions = append(decoderOptions, telemetry.WithRowSink(recorder))
	}

	decoder, err := telemetry.NewDecoder(config.Graph, decoderOptions...)
	if err != nil {
		return fmt.Errorf("creating decoder: %w", err)
	}

	client, err := bridge.NewClient(config.ToBridge(), bridge.WithClientLogger(logger))
	if err != nil {
		return fmt.Errorf("creating bridge client: %w", err)
	}

	console := NewConsole(out, decoder, recorder, logger)
	manager, err := bridge.NewManager(config.ToBridge(), client, decoder,
		bridge.WithLogger(logger),
		bridge.WithPresenter(console),
		bridge.WithMetrics(metrics))
	if err != nil {
		return fmt.Errorf("creating session manager: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return manager.Run(ctx) })
	g.Go(func() error {
		return console.WatchStatus(ctx, config.Settings.View, manager.OpenStream)
	})

	if recorder != nil {
		g.Go(func() error { return recorder.Run(ctx) })
	}

	if config.Snapshots.Directory != "" {
		snapshots, err := NewSnapshots(config.Snapshots, logger)
		if err != nil {
			return fmt.Errorf("creating snapshot writer: %w", err)
		}
		g.Go(func() error { return snapshots.Run(ctx, console) })
	}

	if config.Metrics.Listen != "" {
		g.Go(func() error { return serveMetrics(ctx, config.Metrics, registry, logger) })
	}

	commands := readLines(ctx, in)
	g.Go(func() error {
		shell := commandShell{config: config, manager: manager, decoder: decoder, console: console}
		for {
			select {
			case <-ctx.Done():
				return nil
			case line, ok := <-commands:
				if !ok {
					// no more input, keep serving until ctx is done
					commands = nil
					continue
				}
				if quit := shell.execute(line); quit {
					cancel()
					return nil
				}
			}
		}
	})

	return g.Wait()
}

// readLines reads lines from in until EOF or until ctx is done. A read that
// is already blocked is not interrupted by cancellation.
func readLines(ctx context.Context, in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

func serveMetrics(ctx context.Context, config MetricsConfig, registry *prometheus.Registry, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle(config.Path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))

	server := &http.Server{
		Addr:              config.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving metrics", slog.String("addr", config.Listen), slog.String("path", config.Path))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serving metrics: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("shutting down metrics server: %w", err)
		}
		return nil
	}
}

// commandShell executes console commands against the session.
type commandShell struct {
	config  *Config
	manager *bridge.Manager
	decoder *telemetry.Decoder
	console *Console
}

// execute runs one command line. Returns true when the application should
// exit.
func (s commandShell) execute(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "open", "close":
		target, ok := parseTarget(args)
		if !ok {
			s.console.Printf("usage: %s terminal|graph", cmd)
			return false
		}
		if cmd == "open" {
			s.manager.OpenStream(target)
		} else {
			s.manager.CloseStream(target)
		}

	case "pause":
		s.manager.Pause()

	case "play":
		s.manager.Play()

	case "clear":
		s.manager.Clear()

	case "disconnect":
		s.manager.Disconnect()

	case "apply":
		if len(args) != 1 {
			s.console.Printf("usage: apply <file>")
			return false
		}
		if err := s.apply(args[0]); err != nil {
			s.console.Printf("apply: %s", err)
		}

	case "export":
		if len(args) != 1 {
			s.console.Printf("usage: export <file>")
			return false
		}
		if err := s.export(args[0]); err != nil {
			s.console.Printf("export: %s", err)
		}

	case "status":
		s.console.PrintStatus(s.manager.Status())

	case "help":
		s.console.Printf("%s", helpText)

	case "quit", "exit":
		return true

	default:
		s.console.Printf("unknown command '%s', type help for a list", cmd)
	}
	return false
}

func (s commandShell) apply(path string) error {
	p, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading graph settings: %w", err)
	}

	graph := s.config.Graph
	if err = yaml.Unmarshal(p, &graph); err != nil {
		return fmt.Errorf("parsing graph settings: %w", err)
	}
	return s.manager.Apply(graph)
}

func (s commandShell) export(path string) (err error) {
	rows := s.decoder.ExportRows()
	if len(rows) == 0 {
		return errors.New("nothing to export")
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	defer func() {
		if cErr := f.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}()

	if err = telemetry.WriteCSV(f, rows); err != nil {
		return err
	}
	s.console.Printf("exported %d rows to %s", len(rows)-1, path)
	return nil
}

func parseTarget(args []string) (bridge.StreamTarget, bool) {
	if len(args) != 1 {
		return bridge.TargetNone, false
	}
	target := View(args[0]).Target()
	return target, target != bridge.TargetNone
}
