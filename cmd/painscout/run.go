package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/painscout/painscout/internal/pipeline"
	"github.com/painscout/painscout/internal/types"
)

var (
	runNoLock            bool
	runSkipOpportunities bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Classify, embed and cluster unprocessed signals",
	Long: `Process up to max_batches batches of unprocessed signals: classify each one,
embed the real pain points and assign them to clusters. Afterwards the
opportunity pass creates and scores opportunities for qualifying clusters.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		return withRunLock(runNoLock, func() error {
			orch, err := a.Orchestrator(ctx)
			if err != nil {
				return err
			}
			summary, err := orch.Run(ctx)
			if err != nil {
				return err
			}
			printRunSummary(summary)

			if runSkipOpportunities || ctx.Err() != nil {
				return nil
			}
			builder, err := a.OpportunityBuilder(ctx)
			if err != nil {
				return err
			}
			res, err := builder.Sync(ctx)
			if err != nil {
				return err
			}
			printSyncResult(res)

			stats := a.meter.GetStats()
			fmt.Printf("\n%s %s calls, %s tokens, $%.4f\n", yellow("Usage:"),
				humanize.Comma(int64(stats.Calls)), humanize.Comma(stats.TotalTokens), stats.TotalCost)
			return nil
		})
	},
}

func printRunSummary(s *types.RunSummary) {
	header("Pipeline Run")
	status := green(string(s.Status))
	if s.Status == types.RunCompletedWithErrors {
		status = yellow(string(s.Status))
	}
	fmt.Printf("  Status:    %s\n", status)
	fmt.Printf("  Duration:  %v\n", time.Duration(s.DurationSeconds*float64(time.Second)).Round(time.Millisecond))
	fmt.Printf("  Found:     %d\n", s.SignalsFound)
	fmt.Printf("  New pain:  %d\n", s.SignalsNew)
	fmt.Printf("  Noise:     %d\n", s.SignalsNoise)
	fmt.Printf("  Clustered: %d (%d new clusters)\n", s.SignalsClustered, s.ClustersCreated)
	printErrors(s.Errors)
}

func printSyncResult(r *pipeline.SyncResult) {
	header("Opportunities")
	fmt.Printf("  Clusters scanned: %d\n", r.ClustersScanned)
	fmt.Printf("  Created:          %d\n", r.OpportunitiesCreated)
	fmt.Printf("  Scored:           %d\n", r.OpportunitiesScored)
	if cfg.Pipeline.Summaries {
		fmt.Printf("  Summaries:        %d\n", r.SummariesWritten)
	}
	printErrors(r.Errors)
}

func init() {
	runCmd.Flags().BoolVar(&runNoLock, "no-lock", false, "skip the per-database run lock")
	runCmd.Flags().BoolVar(&runSkipOpportunities, "skip-opportunities", false, "do not create or score opportunities afterwards")
	rootCmd.AddCommand(runCmd)
}
