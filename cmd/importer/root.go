package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/dataset-importer/internal/app"
	"github.com/JakeFAU/dataset-importer/internal/config"
)

const closeTimeout = 30 * time.Second

// buildApp is the application factory; tests replace it.
var buildApp = func(ctx context.Context, cfg *config.Config) (*app.App, error) {
	return app.Build(ctx, cfg)
}

type rootOptions struct {
	configPath string
}

func (o *rootOptions) load() (config.Config, error) {
	return config.Load(o.configPath)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "importer",
		Short: "Bulk importer for reference datasets.",
		Long: `importer downloads the Quran, hadith, OJK, SWIFT and Asmaul Husna
datasets, validates them and upserts them into Postgres in transactional
chunks, falling back to per-record writes when a chunk fails.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (IMPORTER_* env vars override it)")

	cmd.AddCommand(newImportCmd(opts))
	cmd.AddCommand(newListCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	return cmd
}

// closeApp flushes progress sinks even when the command context is done.
func closeApp(cmd *cobra.Command, a *app.App) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), closeTimeout)
	defer cancel()
	_ = a.Close(ctx)
}
