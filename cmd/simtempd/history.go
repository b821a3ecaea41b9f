package main

import (
	"fmt"
	"io"

	"codeberg.org/mutker/simtempd/internal/metrics"
	"github.com/spf13/cobra"
)

func newHistoryCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print recent status snapshots from the history database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reader, err := metrics.OpenReader(a.cfg.MetricsDB)
			if err != nil {
				return err
			}
			defer reader.Close()

			rows, err := reader.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), rows)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of snapshots to show")

	return cmd
}

func printHistory(out io.Writer, rows []metrics.Snapshot) {
	if len(rows) == 0 {
		fmt.Fprintln(out, "no snapshots recorded")
		return
	}

	fmt.Fprintf(out, "%-24s %-8s %8s %9s %8s %6s %8s %8s\n",
		"TIME", "RUN", "TICKS", "EVICTED", "BUFFERED", "ALERT", "TEMP", "MODE")
	for _, r := range rows {
		run := r.RunID
		if len(run) > 8 {
			run = run[:8]
		}
		fmt.Fprintf(out, "%-24s %-8s %8d %9d %8d %6t %7.1fC %8s\n",
			r.Timestamp.UTC().Format(lineTimeFormat), run, r.Ticks, r.Evictions,
			r.Buffered, r.Urgent, float64(r.LastTemperature)/1000, r.Mode)
	}
}
