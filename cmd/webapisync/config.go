package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/SimioLLC/WebAPISync/config"
)

// loadConfig loads the configuration file and applies the logging flags.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Log.Format = flags.logFormat
	}
	return cfg, nil
}

func loggerFor(cfg *config.Config, w io.Writer) *slog.Logger {
	logger := setupLogger(cfg.Log.Level, cfg.Log.Format, w)
	slog.SetDefault(logger)
	return logger
}
