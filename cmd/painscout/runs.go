package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/painscout/painscout/internal/types"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recent run summaries",
	RunE: func(cmd *cobra.Command, args []string) error {
		runs, err := store.ListRuns(cmd.Context(), runsLimit)
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}
		if len(runs) == 0 {
			fmt.Println(gray("No runs recorded."))
			return nil
		}

		rows := make([][]string, 0, len(runs))
		for _, r := range runs {
			status := green(string(r.Status))
			if r.Status == types.RunCompletedWithErrors {
				status = yellow(fmt.Sprintf("%s (%d)", r.Status, len(r.Errors)))
			}
			rows = append(rows, []string{
				humanize.Time(r.StartedAt),
				r.AgentName,
				r.Source,
				fmt.Sprint(r.SignalsFound),
				fmt.Sprint(r.SignalsNew),
				fmt.Sprint(r.SignalsNoise),
				fmt.Sprint(r.SignalsClustered),
				fmt.Sprint(r.ClustersCreated),
				time.Duration(r.DurationSeconds * float64(time.Second)).Round(time.Second).String(),
				status,
			})
		}
		fmt.Println(renderTable(
			[]string{"Started", "Agent", "Source", "Found", "New", "Noise", "Clustered", "Clusters", "Took", "Status"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight},
		))
		return nil
	},
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "maximum runs")
	rootCmd.AddCommand(runsCmd)
}
