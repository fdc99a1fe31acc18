package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/painscout/painscout/internal/storage"
	"github.com/painscout/painscout/internal/types"
)

var (
	oppStatus      string
	oppVerdict     string
	oppLimit       int
	oppTitle       string
	oppDescription string
	oppNoLock      bool
	oppDate        string
)

var opportunitiesCmd = &cobra.Command{
	Use:     "opportunities",
	Aliases: []string{"opp"},
	Short:   "List, create, score and review opportunities",
}

var oppListCmd = &cobra.Command{
	Use:   "list",
	Short: "List opportunities, best score first",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := types.OpportunityFilter{
			Status:  types.OpportunityStatus(oppStatus),
			Verdict: types.Verdict(oppVerdict),
			Limit:   oppLimit,
		}
		if filter.Status != "" && !filter.Status.IsValid() {
			return fmt.Errorf("invalid --status %q", oppStatus)
		}
		if filter.Verdict != "" && !filter.Verdict.IsValid() {
			return fmt.Errorf("invalid --verdict %q (BUILD, INVEST, MONITOR or PASS)", oppVerdict)
		}

		opps, err := store.ListOpportunities(cmd.Context(), filter)
		if err != nil {
			return fmt.Errorf("failed to list opportunities: %w", err)
		}
		if len(opps) == 0 {
			fmt.Println(gray("No opportunities yet. Run 'painscout run' or 'painscout opportunities sync'."))
			return nil
		}

		rows := make([][]string, 0, len(opps))
		for _, o := range opps {
			rows = append(rows, []string{
				shortID(o.ID),
				truncate(o.Title, 48),
				verdictColor(o.Verdict),
				formatOptionalFloat(o.ScoreTotal),
				formatOptionalFloat(o.Confidence),
				string(o.Status),
				string(o.Origin),
				formatAgo(o.ScoredAt),
			})
		}
		fmt.Println(renderTable(
			[]string{"ID", "Title", "Verdict", "Score", "Conf", "Status", "Origin", "Scored"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight},
		))
		return nil
	},
}

var oppShowCmd = &cobra.Command{
	Use:   "show OPPORTUNITY_ID",
	Short: "Show an opportunity and its scoring history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		opp, err := store.GetOpportunity(ctx, args[0])
		if err != nil {
			return notFound("opportunity", args[0], err)
		}

		header(opp.Title)
		fmt.Printf("  ID:       %s\n", opp.ID)
		fmt.Printf("  Cluster:  %s\n", opp.ClusterID)
		fmt.Printf("  Status:   %s (%s)\n", opp.Status, opp.Origin)
		fmt.Printf("  Verdict:  %s  score %s  confidence %s\n",
			verdictColor(opp.Verdict), formatOptionalFloat(opp.ScoreTotal), formatOptionalFloat(opp.Confidence))
		if opp.Description != "" {
			fmt.Printf("\n  %s\n", opp.Description)
		}

		if oppDate != "" {
			snap, err := store.GetScoringSnapshot(ctx, opp.ID, oppDate)
			if err != nil {
				return notFound("snapshot", oppDate, err)
			}
			var breakdown bytes.Buffer
			if err := json.Indent(&breakdown, snap.ScoreBreakdown, "  ", "  "); err != nil {
				return fmt.Errorf("failed to format breakdown: %w", err)
			}
			fmt.Printf("\n%s %s  %.2f %s\n  %s\n", yellow("Snapshot"), snap.SnapshotDate,
				snap.ScoreTotal, verdictColor(snap.Verdict), breakdown.String())
			return nil
		}

		snaps, err := store.ListScoringSnapshots(ctx, opp.ID)
		if err != nil {
			return fmt.Errorf("failed to list snapshots: %w", err)
		}
		if len(snaps) == 0 {
			return nil
		}
		latest := snaps[0]
		if raw, ok := latest.Explanations[types.ExplanationAISummary]; ok {
			var s struct {
				Summary string `json:"summary"`
			}
			if json.Unmarshal(raw, &s) == nil && s.Summary != "" {
				fmt.Printf("\n%s\n  %s\n", yellow("Summary:"), s.Summary)
			}
		}

		rows := make([][]string, 0, len(snaps))
		for _, s := range snaps {
			keys := make([]string, 0, len(s.Explanations))
			for k := range s.Explanations {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			rows = append(rows, []string{
				s.SnapshotDate,
				fmt.Sprintf("%.2f", s.ScoreTotal),
				verdictColor(s.Verdict),
				fmt.Sprintf("%.2f", s.Confidence),
				fmt.Sprint(keys),
			})
		}
		fmt.Printf("\n%s\n", yellow("History:"))
		fmt.Println(renderTable([]string{"Date", "Score", "Verdict", "Conf", "Explanations"}, rows,
			[]columnAlignment{alignLeft, alignRight, alignLeft, alignRight}))
		return nil
	},
}

var oppSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Create and score opportunities for every qualifying cluster",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		return withRunLock(oppNoLock, func() error {
			b, err := a.OpportunityBuilder(cmd.Context())
			if err != nil {
				return err
			}
			res, err := b.Sync(cmd.Context())
			if err != nil {
				return err
			}
			printSyncResult(res)
			return nil
		})
	},
}

var oppCreateCmd = &cobra.Command{
	Use:   "create CLUSTER_ID",
	Short: "Create a manual opportunity for a cluster and score it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		b, err := a.OpportunityBuilder(cmd.Context())
		if err != nil {
			return err
		}
		opp, err := b.CreateManual(cmd.Context(), args[0], oppTitle, oppDescription)
		if err != nil {
			return notFound("cluster", args[0], err)
		}
		out, err := b.ScoreOpportunity(cmd.Context(), opp.ID)
		if err != nil {
			return err
		}
		fmt.Printf("%s Created opportunity %s: %s\n", green("✓"), opp.ID, opp.Title)
		printScore(out.Result)
		return nil
	},
}

var oppStatusCmd = &cobra.Command{
	Use:   "status OPPORTUNITY_ID STATUS",
	Short: "Move an opportunity through review (reviewing, accepted, rejected)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		status := types.OpportunityStatus(args[1])
		if !status.IsValid() {
			return fmt.Errorf("invalid status %q", args[1])
		}
		if err := store.UpdateOpportunityStatus(cmd.Context(), args[0], status); err != nil {
			return notFound("opportunity", args[0], err)
		}
		fmt.Printf("%s %s is now %s\n", green("✓"), args[0], status)
		return nil
	},
}

func notFound(kind, id string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%s %s not found", kind, id)
	}
	return err
}

func init() {
	oppListCmd.Flags().StringVar(&oppStatus, "status", "", "filter by status")
	oppListCmd.Flags().StringVar(&oppVerdict, "verdict", "", "filter by verdict")
	oppListCmd.Flags().IntVarP(&oppLimit, "limit", "n", 50, "maximum rows")
	oppCreateCmd.Flags().StringVar(&oppTitle, "title", "", "title (defaults to the cluster title)")
	oppCreateCmd.Flags().StringVar(&oppDescription, "description", "", "description")
	oppShowCmd.Flags().StringVar(&oppDate, "date", "", "show the full score breakdown of one snapshot (YYYY-MM-DD)")
	oppSyncCmd.Flags().BoolVar(&oppNoLock, "no-lock", false, "skip the per-database run lock")

	opportunitiesCmd.AddCommand(oppListCmd, oppShowCmd, oppSyncCmd, oppCreateCmd, oppStatusCmd)
	rootCmd.AddCommand(opportunitiesCmd)
}
