package main

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/dataset-importer/internal/dispatcher"
	"github.com/JakeFAU/dataset-importer/internal/importer"
)

func newImportCmd(root *rootOptions) *cobra.Command {
	var (
		sources           []string
		continueOnFailure bool
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Download and upsert datasets",
		Example: `  importer import
  importer import --source quran --source asmaul_husna
  importer import --continue-on-failure`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, &cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			defer closeApp(cmd, a)

			args := dispatcher.Args{Sources: sources}
			if cmd.Flags().Changed("continue-on-failure") {
				args.ContinueOnFailure = &continueOnFailure
			}
			op := dispatcher.OpImportAll
			if len(sources) == 1 {
				op = dispatcher.OpImportSource
			}
			out, err := a.Dispatcher().Dispatch(ctx, op, args)
			if out.Summary != nil {
				writeSummary(cmd.OutOrStdout(), *out.Summary)
			}
			if err != nil {
				return err
			}
			if out.Summary != nil && out.Summary.Failed > 0 {
				return fmt.Errorf("%d source(s) failed", out.Summary.Failed)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&sources, "source", nil, "source to import, repeatable (default: every enabled source)")
	cmd.Flags().BoolVar(&continueOnFailure, "continue-on-failure", false, "keep going after a source fails (overrides run.continue_on_failure)")
	return cmd
}

func writeSummary(w io.Writer, s importer.Summary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tSTATE\tCOMMITTED\tREJECTED\tFALLBACK\tFAILED\tMERGED\tELAPSED")
	for _, src := range s.Sources {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			src.Source, src.State,
			src.Result.Committed, src.Result.Rejected, src.Result.FallbackCommitted, src.Result.Failed, src.Result.Merged,
			src.Elapsed.Round(10 * time.Millisecond),
		)
		if src.Error != "" {
			fmt.Fprintf(tw, "  error: %s\t\t\t\t\t\t\t\n", src.Error)
		}
	}
	fmt.Fprintf(tw, "TOTAL\t\t%d\t%d\t%d\t%d\t%d\t%s\n",
		s.Result.Committed, s.Result.Rejected, s.Result.FallbackCommitted, s.Result.Failed, s.Result.Merged,
		s.Elapsed.Round(10 * time.Millisecond),
	)
	_ = tw.Flush()
	fmt.Fprintf(w, "run %s\n", s.RunID)
}
