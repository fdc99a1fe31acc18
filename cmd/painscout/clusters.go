package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	clustersMin     int
	clusterExamples int
)

var clustersCmd = &cobra.Command{
	Use:   "clusters",
	Short: "List pain clusters with their aggregate statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := store.ListClusterStats(cmd.Context(), clustersMin, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to list clusters: %w", err)
		}
		if len(stats) == 0 {
			fmt.Println(gray("No clusters yet."))
			return nil
		}

		rows := make([][]string, 0, len(stats))
		for _, st := range stats {
			rows = append(rows, []string{
				shortID(st.ClusterID),
				truncate(st.Title, 40),
				string(st.PainCategory),
				humanize.Comma(int64(st.SignalCount)),
				fmt.Sprint(st.PlatformCount),
				humanize.Comma(int64(st.TotalEngagement)),
				humanize.Time(st.LastSeen),
			})
		}
		fmt.Println(renderTable(
			[]string{"ID", "Title", "Category", "Signals", "Platforms", "Engagement", "Last seen"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
		))
		return nil
	},
}

var clusterShowCmd = &cobra.Command{
	Use:   "show CLUSTER_ID",
	Short: "Show one cluster and its highest-engagement signals",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := store.GetCluster(ctx, args[0])
		if err != nil {
			return notFound("cluster", args[0], err)
		}

		header(c.Title)
		fmt.Printf("  ID:        %s\n", c.ID)
		fmt.Printf("  Category:  %s\n", c.PainCategory)
		fmt.Printf("  Origin:    %s\n", c.Origin)
		fmt.Printf("  Seen:      %s to %s\n", humanize.Time(c.FirstSeen), humanize.Time(c.LastSeen))
		if c.Description != "" {
			fmt.Printf("  %s\n", gray(c.Description))
		}

		signals, err := store.ListClusterSignals(ctx, c.ID, clusterExamples)
		if err != nil {
			return fmt.Errorf("failed to list cluster signals: %w", err)
		}
		fmt.Printf("\n%s\n", yellow("Signals:"))
		for _, s := range signals {
			text := s.RawText
			if s.ThreadTitle != "" {
				text = s.ThreadTitle + ": " + text
			}
			wtp := "-"
			if s.Classification != nil {
				wtp = string(s.Classification.WTP)
			}
			fmt.Printf("  • [%s %d wtp=%s] %s\n", s.Source, s.EngagementScore, wtp, truncate(text, 100))
		}
		return nil
	},
}

func init() {
	clustersCmd.Flags().IntVar(&clustersMin, "min-signals", 1, "only clusters with at least this many signals")
	clusterShowCmd.Flags().IntVarP(&clusterExamples, "limit", "n", 10, "signals to show")
	clustersCmd.AddCommand(clusterShowCmd)
	rootCmd.AddCommand(clustersCmd)
}
