package scoring

import (
	"fmt"
	"math"
)

// Weights apply to the five positive dimensions. Saturation is penalty-only.
type Weights struct {
	Demand   float64 `json:"demand" yaml:"demand"`
	Pain     float64 `json:"pain" yaml:"pain"`
	WTP      float64 `json:"wtp" yaml:"wtp"`
	Headroom float64 `json:"headroom" yaml:"headroom"`
	Timing   float64 `json:"timing" yaml:"timing"`
}

// Thresholds are the final-score cutoffs for each verdict
type Thresholds struct {
	Build   float64 `json:"build" yaml:"build"`
	Invest  float64 `json:"invest" yaml:"invest"`
	Monitor float64 `json:"monitor" yaml:"monitor"`
}

// Penalties scale subtractive terms
type Penalties struct {
	Saturation float64 `json:"saturation" yaml:"saturation"`
}

// Model is the full scoring parameter set
type Model struct {
	Weights    Weights    `json:"weights" yaml:"weights"`
	Thresholds Thresholds `json:"thresholds" yaml:"thresholds"`
	Penalties  Penalties  `json:"penalties" yaml:"penalties"`
}

// DefaultModel returns the stock scoring model
func DefaultModel() Model {
	return Model{
		Weights: Weights{
			Demand:   0.25,
			Pain:     0.25,
			WTP:      0.2,
			Headroom: 0.2,
			Timing:   0.1,
		},
		Thresholds: Thresholds{
			Build:   80,
			Invest:  75,
			Monitor: 55,
		},
		Penalties: Penalties{
			Saturation: 0.75,
		},
	}
}

// Validate checks every parameter range. Score assumes a validated model.
func (m Model) Validate() error {
	unit := []struct {
		name  string
		value float64
	}{
		{"weights.demand", m.Weights.Demand},
		{"weights.pain", m.Weights.Pain},
		{"weights.wtp", m.Weights.WTP},
		{"weights.headroom", m.Weights.Headroom},
		{"weights.timing", m.Weights.Timing},
		{"penalties.saturation", m.Penalties.Saturation},
	}
	for _, f := range unit {
		if math.IsNaN(f.value) || f.value < 0 || f.value > 1 {
			return fmt.Errorf("%s must be between 0 and 1 (got %.2f)", f.name, f.value)
		}
	}

	thresholds := []struct {
		name  string
		value float64
	}{
		{"thresholds.build", m.Thresholds.Build},
		{"thresholds.invest", m.Thresholds.Invest},
		{"thresholds.monitor", m.Thresholds.Monitor},
	}
	for _, f := range thresholds {
		if math.IsNaN(f.value) || f.value < 0 || f.value > 100 {
			return fmt.Errorf("%s must be between 0 and 100 (got %.2f)", f.name, f.value)
		}
	}

	if m.Thresholds.Build < m.Thresholds.Invest {
		return fmt.Errorf("thresholds.build must be >= thresholds.invest (got %.2f < %.2f)",
			m.Thresholds.Build, m.Thresholds.Invest)
	}
	if m.Thresholds.Invest < m.Thresholds.Monitor {
		return fmt.Errorf("thresholds.invest must be >= thresholds.monitor (got %.2f < %.2f)",
			m.Thresholds.Invest, m.Thresholds.Monitor)
	}
	return nil
}

// String returns a human-readable representation of the model
func (m Model) String() string {
	return fmt.Sprintf(
		"Model{Weights: demand=%.2f pain=%.2f wtp=%.2f headroom=%.2f timing=%.2f, "+
			"Thresholds: build=%.0f invest=%.0f monitor=%.0f, Saturation: %.2f}",
		m.Weights.Demand, m.Weights.Pain, m.Weights.WTP, m.Weights.Headroom, m.Weights.Timing,
		m.Thresholds.Build, m.Thresholds.Invest, m.Thresholds.Monitor, m.Penalties.Saturation,
	)
}
