package main

import (
	"github.com/spf13/cobra"

	"go-tour-booking/internal/app"
)

func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}

			application, err := app.New(cmd.Context(), cfg, log)
			if err != nil {
				log.Error("failed to initialize application", "error", err)
				return err
			}

			if err := application.Run(); err != nil {
				log.Error("application run failed", "error", err)
				return err
			}
			return nil
		},
	}
}
