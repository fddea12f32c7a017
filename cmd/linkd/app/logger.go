package app

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// NewLogger builds the application logger. Text goes to stdout; when a log
// file is configured, JSON records are also written there. The returned
// closer releases the file.
func NewLogger(settings Settings, level *slog.LevelVar) (*slog.Logger, io.Closer, error) {
	opts := &slog.HandlerOptions{Level: level}
	console := slog.NewTextHandler(os.Stdout, opts)

	if settings.LogFile == "" {
		return slog.New(console), io.NopCloser(nil), nil
	}

	f, err := os.OpenFile(settings.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file '%s': %w", settings.LogFile, err)
	}

	handler := slogmulti.Fanout(console, slog.NewJSONHandler(f, opts))
	return slog.New(handler), f, nil
}
