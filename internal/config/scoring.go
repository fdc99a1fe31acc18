package config

import (
	"fmt"

	"github.com/painscout/painscout/internal/scoring"
)

// ScoringSection mirrors scoring.Model with pointer fields, so a partially
// written section is rejected instead of silently zero-filled.
type ScoringSection struct {
	Weights *struct {
		Demand   *float64 `yaml:"demand"`
		Pain     *float64 `yaml:"pain"`
		WTP      *float64 `yaml:"wtp"`
		Headroom *float64 `yaml:"headroom"`
		Timing   *float64 `yaml:"timing"`
	} `yaml:"weights"`
	Thresholds *struct {
		Build   *float64 `yaml:"build"`
		Invest  *float64 `yaml:"invest"`
		Monitor *float64 `yaml:"monitor"`
	} `yaml:"thresholds"`
	Penalties *struct {
		Saturation *float64 `yaml:"saturation"`
	} `yaml:"penalties"`
}

type requiredField struct {
	name  string
	value *float64
	dst   *float64
}

// Model converts the section into a validated scoring.Model. A nil section
// yields the default model.
func (s *ScoringSection) Model() (scoring.Model, error) {
	if s == nil {
		return scoring.DefaultModel(), nil
	}

	var m scoring.Model
	var fields []requiredField

	if s.Weights == nil {
		return m, fmt.Errorf("scoring.weights is required")
	}
	fields = append(fields,
		requiredField{"scoring.weights.demand", s.Weights.Demand, &m.Weights.Demand},
		requiredField{"scoring.weights.pain", s.Weights.Pain, &m.Weights.Pain},
		requiredField{"scoring.weights.wtp", s.Weights.WTP, &m.Weights.WTP},
		requiredField{"scoring.weights.headroom", s.Weights.Headroom, &m.Weights.Headroom},
		requiredField{"scoring.weights.timing", s.Weights.Timing, &m.Weights.Timing},
	)

	if s.Thresholds == nil {
		return m, fmt.Errorf("scoring.thresholds is required")
	}
	fields = append(fields,
		requiredField{"scoring.thresholds.build", s.Thresholds.Build, &m.Thresholds.Build},
		requiredField{"scoring.thresholds.invest", s.Thresholds.Invest, &m.Thresholds.Invest},
		requiredField{"scoring.thresholds.monitor", s.Thresholds.Monitor, &m.Thresholds.Monitor},
	)

	if s.Penalties == nil {
		return m, fmt.Errorf("scoring.penalties is required")
	}
	fields = append(fields,
		requiredField{"scoring.penalties.saturation", s.Penalties.Saturation, &m.Penalties.Saturation})

	for _, f := range fields {
		if f.value == nil {
			return scoring.Model{}, fmt.Errorf("%s is required", f.name)
		}
		*f.dst = *f.value
	}

	if err := m.Validate(); err != nil {
		return scoring.Model{}, fmt.Errorf("scoring.%w", err)
	}
	return m, nil
}
