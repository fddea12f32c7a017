package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/roman-kulish/launcher-link/cmd/linkd/app"
)

func main() {
	var logLevel slog.LevelVar
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: &logLevel}))

	flags := pflag.NewFlagSet("linkd", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "Path to the configuration file")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	config := app.DefaultConfig()
	if *configPath != "" {
		var err error
		if config, err = app.LoadConfig(*configPath); err != nil {
			logger.Error(fmt.Sprintf("failed to load configuration file: %s", err.Error()), slog.String("path", *configPath))
			os.Exit(1)
		}
	}

	logLevel.Set(config.Settings.LogLevel)

	logger, closer, err := app.NewLogger(config.Settings, &logLevel)
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
	defer closer.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err = app.Run(ctx, config, logger); err != nil {
		logger.Error(err.Error())

		cancel()
		_ = closer.Close()
		os.Exit(1)
	}
}
