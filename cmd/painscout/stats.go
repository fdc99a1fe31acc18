package main

import (
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/painscout/painscout/internal/types"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database totals",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.GetStatistics(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get statistics: %w", err)
		}

		header("painscout")
		fmt.Printf("  Database:      %s\n", gray(cfg.Storage.Path))
		fmt.Printf("  Signals:       %s\n", humanize.Comma(int64(st.TotalSignals)))
		fmt.Printf("    unprocessed  %s\n", humanize.Comma(int64(st.UnprocessedSignals)))
		fmt.Printf("    classified   %s\n", humanize.Comma(int64(st.ClassifiedSignals)))
		fmt.Printf("    noise        %s\n", humanize.Comma(int64(st.NoiseSignals)))
		fmt.Printf("    clustered    %s\n", humanize.Comma(int64(st.ClusteredSignals)))
		fmt.Printf("  Clusters:      %s\n", humanize.Comma(int64(st.TotalClusters)))
		fmt.Printf("  Opportunities: %s\n", humanize.Comma(int64(st.TotalOpportunities)))
		fmt.Printf("  AI spend:      $%.4f\n", st.TotalUsageCostUSD)

		if len(st.SignalsBySource) > 0 {
			sources := make([]string, 0, len(st.SignalsBySource))
			for src := range st.SignalsBySource {
				sources = append(sources, string(src))
			}
			sort.Strings(sources)
			fmt.Printf("\n%s\n", yellow("By source:"))
			for _, src := range sources {
				fmt.Printf("  %-14s %s\n", src, humanize.Comma(int64(st.SignalsBySource[types.Source(src)])))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
