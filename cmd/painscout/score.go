package main

import (
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cobra"

	"github.com/painscout/painscout/internal/scoring"
)

var scoreInputs = map[string]*float64{}

var scoreCmd = &cobra.Command{
	Use:   "score [OPPORTUNITY_ID]",
	Short: "Score an opportunity, or a set of inputs given as flags",
	Long: `With an opportunity id, re-derive its inputs from the cluster, write today's
snapshot and print the result. Without one, score the --demand, --pain, --wtp,
--headroom, --saturation and --timing inputs (each 0..1, omitted = missing)
against the configured model without touching the database.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			in := scoring.Inputs{
				Demand:     *scoreInputs["demand"],
				Pain:       *scoreInputs["pain"],
				WTP:        *scoreInputs["wtp"],
				Headroom:   *scoreInputs["headroom"],
				Saturation: *scoreInputs["saturation"],
				Timing:     *scoreInputs["timing"],
			}
			if in.Missing() == 6 {
				return fmt.Errorf("provide an opportunity id or at least one input flag")
			}
			for name, v := range scoreInputs {
				if *v < 0 || *v > 1 {
					return fmt.Errorf("--%s must be between 0 and 1 (got %.2f)", name, *v)
				}
			}
			printInputs(in)
			printScore(scoring.Score(in, cfg.ScoringModel()))
			return nil
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		b, err := a.OpportunityBuilder(cmd.Context())
		if err != nil {
			return err
		}
		out, err := b.ScoreOpportunity(cmd.Context(), args[0])
		if err != nil {
			return notFound("opportunity", args[0], err)
		}
		header(out.Opportunity.Title)
		printInputs(out.Inputs)
		printScore(out.Result)
		return nil
	},
}

func printInputs(in scoring.Inputs) {
	fmt.Printf("%s\n", yellow("Inputs:"))
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"demand", in.Demand}, {"pain", in.Pain}, {"wtp", in.WTP},
		{"headroom", in.Headroom}, {"saturation", in.Saturation}, {"timing", in.Timing},
	} {
		if math.IsNaN(f.value) {
			fmt.Printf("  %-11s %s\n", f.name, gray("missing"))
			continue
		}
		fmt.Printf("  %-11s %.2f\n", f.name, f.value)
	}
	fmt.Println()
}

func printScore(r scoring.Result) {
	fmt.Printf("%s %s  final %.2f  confidence %.2f\n", yellow("Verdict:"), verdictColor(r.Verdict), r.Final, r.Confidence)
	fmt.Printf("  base %.2f, saturation penalty %.2f\n", r.Base, r.SaturationPenalty)

	rows := make([][]string, 0, len(r.Breakdown))
	for _, c := range r.Breakdown {
		rows = append(rows, []string{c.Dimension, fmt.Sprintf("%.2f", c.Input), fmt.Sprintf("%.2f", c.Weight), fmt.Sprintf("%.2f", c.Value)})
	}
	fmt.Println(renderTable([]string{"Dimension", "Input", "Weight", "Points"}, rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight}))

	if len(r.Contradictions) > 0 {
		fmt.Printf("%s %s\n", red("Contradictions:"), strings.Join(r.Contradictions, ", "))
	}
	for _, n := range r.NegativeImpacts {
		fmt.Printf("  %s %s: %s (%.2f)\n", red("▼"), n.Dimension, n.Reason, n.Value)
	}
	if r.Explanation != "" {
		fmt.Printf("\n%s\n", r.Explanation)
	}
}

func init() {
	for _, name := range []string{"demand", "pain", "wtp", "headroom", "saturation", "timing"} {
		v := math.NaN()
		scoreInputs[name] = &v
		scoreCmd.Flags().Float64Var(scoreInputs[name], name, math.NaN(), name+" input (0..1)")
	}
	rootCmd.AddCommand(scoreCmd)
}
