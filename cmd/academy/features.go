package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "List feature flags as configured for this environment",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		snap := cfg.Features.Snapshot()
		names := make([]string, 0, len(snap))
		for name := range snap {
			names = append(names, name)
		}
		sort.Strings(names)

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "FEATURE\tENABLED\tROLLOUT\tDESCRIPTION")
		for _, name := range names {
			f := snap[name]
			fmt.Fprintf(w, "%s\t%t\t%d%%\t%s\n", f.Name, f.Enabled, f.RolloutPercent, f.Description)
		}
		return w.Flush()
	},
}
