package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ops API (health, metrics, progress, run triggers)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			cfg.Server.Enabled = true
			if cfg.Server.Port <= 0 {
				return fmt.Errorf("server.port must be > 0")
			}
			a, err := buildApp(cmd.Context(), &cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			defer closeApp(cmd, a)
			return a.Serve(cmd.Context())
		},
	}
}
