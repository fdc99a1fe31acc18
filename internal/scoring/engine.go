// Package scoring maps normalized opportunity-strength inputs to a 0-100
// score, a verdict, a confidence value and a readable explanation.
//
// Score is pure. Every numeric output is rounded to two decimals so the same
// inputs always serialize to the same snapshot.
package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/painscout/painscout/internal/types"
)

// Dimension names used in breakdowns and explanations
const (
	DimensionDemand     = "demand"
	DimensionPain       = "pain"
	DimensionWTP        = "wtp"
	DimensionHeadroom   = "headroom"
	DimensionSaturation = "saturation"
	DimensionTiming     = "timing"
)

// Contradiction flags
const (
	ContradictionDemandVsWTP    = "demand_vs_wtp"
	ContradictionPainVsHeadroom = "pain_vs_headroom_saturation"
)

const (
	baseConfidence          = 0.85
	contradictionConfidence = 0.10
	missingConfidence       = 0.05
	minConfidence           = 0.10
	maxConfidence           = 0.95

	// saturationCeiling blocks BUILD and INVEST at or above this level
	saturationCeiling = 0.6
	// saturationCap restricts the verdict to MONITOR or PASS
	saturationCap = 0.8

	topDriverCount = 3
)

// Inputs are the six normalized dimensions. NaN marks a missing value.
type Inputs struct {
	Demand     float64 `json:"demand"`
	Pain       float64 `json:"pain"`
	WTP        float64 `json:"wtp"`
	Headroom   float64 `json:"headroom"`
	Saturation float64 `json:"saturation"`
	Timing     float64 `json:"timing"`
}

// Missing counts the NaN inputs
func (in Inputs) Missing() int {
	n := 0
	for _, v := range []float64{in.Demand, in.Pain, in.WTP, in.Headroom, in.Saturation, in.Timing} {
		if math.IsNaN(v) {
			n++
		}
	}
	return n
}

// Contribution is one weighted dimension's share of the base score
type Contribution struct {
	Dimension string  `json:"dimension"`
	Input     float64 `json:"input"`
	Weight    float64 `json:"weight"`
	Value     float64 `json:"value"`
}

// Impact is something that pulled the score down
type Impact struct {
	Dimension string  `json:"dimension"`
	Value     float64 `json:"value"`
	Reason    string  `json:"reason"`
}

// Result is the full scoring output
type Result struct {
	Base              float64        `json:"base"`
	SaturationPenalty float64        `json:"saturation_penalty"`
	Final             float64        `json:"final"`
	Verdict           types.Verdict  `json:"verdict"`
	Confidence        float64        `json:"confidence"`
	Contradictions    []string       `json:"contradictions"`
	Breakdown         []Contribution `json:"breakdown"`
	TopDrivers        []Contribution `json:"top_drivers"`
	NegativeImpacts   []Impact       `json:"negative_impacts"`
	Explanation       string         `json:"explanation"`
}

// Score evaluates inputs against a validated model
func Score(in Inputs, m Model) Result {
	breakdown := []Contribution{
		contribution(DimensionDemand, in.Demand, m.Weights.Demand),
		contribution(DimensionPain, in.Pain, m.Weights.Pain),
		contribution(DimensionWTP, in.WTP, m.Weights.WTP),
		contribution(DimensionHeadroom, in.Headroom, m.Weights.Headroom),
		contribution(DimensionTiming, in.Timing, m.Weights.Timing),
	}

	base := 0.0
	for _, c := range breakdown {
		base += c.Value
	}
	saturation := valueOrZero(in.Saturation)
	penalty := m.Penalties.Saturation * 100 * saturation
	final := round2(clamp(base-penalty, 0, 100))

	contradictions := detectContradictions(in)
	confidence := baseConfidence -
		contradictionConfidence*float64(len(contradictions)) -
		missingConfidence*float64(in.Missing())

	res := Result{
		Base:              round2(base),
		SaturationPenalty: round2(penalty),
		Final:             final,
		Verdict:           selectVerdict(final, saturation, m.Thresholds),
		Confidence:        round2(clamp(confidence, minConfidence, maxConfidence)),
		Contradictions:    contradictions,
	}
	for i := range breakdown {
		breakdown[i].Value = round2(breakdown[i].Value)
	}
	res.Breakdown = breakdown
	res.TopDrivers = topDrivers(breakdown)
	res.NegativeImpacts = negativeImpacts(breakdown, res.SaturationPenalty)
	res.Explanation = explain(res)
	return res
}

func contribution(dimension string, input, weight float64) Contribution {
	v := valueOrZero(input)
	return Contribution{
		Dimension: dimension,
		Input:     round2(v),
		Weight:    weight,
		Value:     100 * weight * v,
	}
}

func detectContradictions(in Inputs) []string {
	out := []string{}
	// NaN comparisons are false, so missing inputs never trigger a flag
	if in.Demand >= 0.7 && in.WTP <= 0.3 {
		out = append(out, ContradictionDemandVsWTP)
	}
	if in.Pain >= 0.7 && in.Headroom <= 0.2 && in.Saturation >= 0.7 {
		out = append(out, ContradictionPainVsHeadroom)
	}
	return out
}

// selectVerdict evaluates the branches top to bottom; first match wins
func selectVerdict(final, saturation float64, t Thresholds) types.Verdict {
	if saturation >= saturationCap {
		if final >= t.Invest && saturation < saturationCeiling {
			return types.VerdictInvest
		}
		if final >= t.Monitor {
			return types.VerdictMonitor
		}
		return types.VerdictPass
	}
	switch {
	case final >= t.Build && saturation < saturationCeiling:
		return types.VerdictBuild
	case final >= t.Invest && saturation < saturationCeiling:
		return types.VerdictInvest
	case final >= t.Monitor:
		return types.VerdictMonitor
	default:
		return types.VerdictPass
	}
}

func topDrivers(breakdown []Contribution) []Contribution {
	sorted := make([]Contribution, len(breakdown))
	copy(sorted, breakdown)
	sort.SliceStable(sorted, func(i, j int) bool {
		return math.Abs(sorted[i].Value) > math.Abs(sorted[j].Value)
	})
	if len(sorted) > topDriverCount {
		sorted = sorted[:topDriverCount]
	}
	return sorted
}

func negativeImpacts(breakdown []Contribution, penalty float64) []Impact {
	impacts := []Impact{}
	if penalty > 0 {
		impacts = append(impacts, Impact{
			Dimension: DimensionSaturation,
			Value:     -penalty,
			Reason:    "market saturation penalty",
		})
	}

	weakest := -1
	for i, c := range breakdown {
		if c.Weight <= 0 {
			continue
		}
		if weakest < 0 || c.Value < breakdown[weakest].Value {
			weakest = i
		}
	}
	if weakest >= 0 {
		c := breakdown[weakest]
		impacts = append(impacts, Impact{
			Dimension: c.Dimension,
			Value:     c.Value,
			Reason:    "weakest positive component",
		})
	}
	return impacts
}

func explain(r Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s at %.2f (base %.2f", r.Verdict, r.Final, r.Base)
	if r.SaturationPenalty > 0 {
		fmt.Fprintf(&b, ", saturation penalty %.2f", r.SaturationPenalty)
	}
	b.WriteString(").")

	if len(r.TopDrivers) > 0 {
		parts := make([]string, len(r.TopDrivers))
		for i, d := range r.TopDrivers {
			parts[i] = fmt.Sprintf("%s %.2f", d.Dimension, d.Value)
		}
		fmt.Fprintf(&b, " Top drivers: %s.", strings.Join(parts, ", "))
	}
	for _, imp := range r.NegativeImpacts {
		if imp.Dimension != DimensionSaturation {
			fmt.Fprintf(&b, " Weakest: %s %.2f.", imp.Dimension, imp.Value)
		}
	}
	if len(r.Contradictions) > 0 {
		fmt.Fprintf(&b, " Contradictions: %s.", strings.Join(r.Contradictions, ", "))
	}
	fmt.Fprintf(&b, " Confidence %.2f.", r.Confidence)
	return b.String()
}

func valueOrZero(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
