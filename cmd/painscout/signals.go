package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var signalCmd = &cobra.Command{
	Use:   "signal SIGNAL_ID",
	Short: "Show one signal with its classification",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store.GetSignal(cmd.Context(), args[0])
		if err != nil {
			return notFound("signal", args[0], err)
		}

		title := s.ThreadTitle
		if title == "" {
			title = s.SourceID
		}
		header(title)
		fmt.Printf("  ID:         %s\n", s.ID)
		fmt.Printf("  Source:     %s/%s (engagement %d)\n", s.Source, s.SourceID, s.EngagementScore)
		fmt.Printf("  Status:     %s\n", s.Status)
		if s.ClusterID != nil {
			fmt.Printf("  Cluster:    %s\n", *s.ClusterID)
		}
		fmt.Printf("\n  %s\n", truncate(s.RawText, 600))

		c := s.Classification
		if c == nil {
			return nil
		}
		fmt.Printf("\n%s\n", yellow("Classification:"))
		if c.Error != "" {
			fmt.Printf("  %s forced noise: %s\n", red("✗"), c.Error)
			return nil
		}
		fmt.Printf("  Category:     %s\n", c.PainCategory)
		fmt.Printf("  Intensity:    %s  Specificity: %s\n", optionalInt(c.Intensity), optionalInt(c.Specificity))
		fmt.Printf("  WTP:          %s\n", c.WTP)
		if c.BudgetMentioned != nil {
			fmt.Printf("  Budget:       $%.2f\n", *c.BudgetMentioned)
		}
		if len(c.ToolsMentioned) > 0 {
			fmt.Printf("  Tools:        %s\n", strings.Join(c.ToolsMentioned, ", "))
		}
		if c.ExistingWorkarounds != "" {
			fmt.Printf("  Workarounds:  %s\n", c.ExistingWorkarounds)
		}
		fmt.Printf("  Persona:      %s\n", c.TargetPersona)
		fmt.Printf("  Niche:        %s\n", c.SuggestedNiche)
		fmt.Printf("  Noise:        %v (confidence %.2f)\n", c.IsNoise, c.Confidence)
		return nil
	},
}

func optionalInt(v *int) string {
	if v == nil {
		return gray("-")
	}
	return fmt.Sprint(*v)
}

func init() {
	rootCmd.AddCommand(signalCmd)
}
