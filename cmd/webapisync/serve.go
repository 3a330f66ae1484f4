package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/SimioLLC/WebAPISync/metric"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP receiver and drain messages into the destination table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			logger := loggerFor(cfg, os.Stdout)
			logger.Info("Starting webapisync", "build_time", BuildTime, "config_path", flags.configPath)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p, err := newPipeline(ctx, cfg, logger, metric.NewMetricsRegistry())
			if err != nil {
				return err
			}
			return p.run(ctx)
		},
	}
}
