package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/dataset-importer/internal/dispatcher"
)

func newListCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured sources",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			out, err := dispatcher.New(cfg, nil, nil, nil).Dispatch(cmd.Context(), dispatcher.OpListSources, dispatcher.Args{})
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "SOURCE\tSTATUS\tURLS")
			for _, src := range out.Sources {
				status := "disabled"
				if src.Enabled {
					status = "enabled"
				}
				urls := strings.Join(src.URLs, ",")
				if urls == "" {
					urls = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", src.Name, status, urls)
			}
			return tw.Flush()
		},
	}
}
