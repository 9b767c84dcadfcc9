package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"go-tour-booking/internal/config"
	"go-tour-booking/internal/logger"
)

// NewRootCmd creates the root command for the tour booking API.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tourapi",
		Short: "Tour booking API server",
		Long: `tourapi serves the tour booking REST API: signup, login,
password recovery and user administration.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}

// setup loads configuration and installs the process-wide logger.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, fmt.Errorf("configure logger: %w", err)
	}
	slog.SetDefault(log)

	return cfg, log, nil
}
