package types

import "fmt"

// Classification is the structured judgment of one RawSignal
type Classification struct {
	PainCategory        PainCategory `json:"pain_category"`
	Intensity           *int         `json:"intensity"`
	Specificity         *int         `json:"specificity"`
	WTP                 WTP          `json:"wtp"`
	BudgetMentioned     *float64     `json:"budget_mentioned"`
	ToolsMentioned      []string     `json:"tools_mentioned"`
	ExistingWorkarounds string       `json:"existing_workarounds"`
	TargetPersona       string       `json:"target_persona"`
	SuggestedNiche      string       `json:"suggested_niche"`
	IsNoise             bool         `json:"is_noise"`
	Confidence          float64      `json:"confidence"`

	// Error is set only when the classification is a forced-noise fallback
	Error string `json:"error,omitempty"`
}

// Validate checks if the classification has valid field values
func (c *Classification) Validate() error {
	if !c.PainCategory.IsValid() {
		return fmt.Errorf("invalid pain_category: %s", c.PainCategory)
	}
	if !c.WTP.IsValid() {
		return fmt.Errorf("invalid wtp: %s", c.WTP)
	}
	if c.Intensity != nil && (*c.Intensity < 1 || *c.Intensity > 10) {
		return fmt.Errorf("intensity must be between 1 and 10 (got %d)", *c.Intensity)
	}
	if c.Specificity != nil && (*c.Specificity < 1 || *c.Specificity > 10) {
		return fmt.Errorf("specificity must be between 1 and 10 (got %d)", *c.Specificity)
	}
	if c.Confidence < 0.0 || c.Confidence > 1.0 {
		return fmt.Errorf("confidence must be between 0.0 and 1.0 (got %.2f)", c.Confidence)
	}
	return nil
}

// ForcedNoise is the terminal classification recorded when classifying failed
func ForcedNoise(reason string) Classification {
	return Classification{
		PainCategory:   CategoryUncategorized,
		WTP:            WTPNone,
		ToolsMentioned: []string{},
		IsNoise:        true,
		Error:          reason,
	}
}

// PainCategory is one of the enumerated problem categories
type PainCategory string

const (
	CategoryWorkflowInefficiency   PainCategory = "workflow_inefficiency"
	CategoryIntegrationGap         PainCategory = "integration_gap"
	CategoryPricingCost            PainCategory = "pricing_cost"
	CategoryPerformanceReliability PainCategory = "performance_reliability"
	CategoryDataManagement         PainCategory = "data_management"
	CategoryCollaboration          PainCategory = "collaboration"
	CategoryOnboardingLearning     PainCategory = "onboarding_learning"
	CategoryCustomerAcquisition    PainCategory = "customer_acquisition"
	CategoryComplianceSecurity     PainCategory = "compliance_security"
	CategoryMissingTooling         PainCategory = "missing_tooling"
	CategoryUXUsability            PainCategory = "ux_usability"
	CategoryScalingOperations      PainCategory = "scaling_operations"
	CategoryUncategorized          PainCategory = "uncategorized"
)

// PainCategories lists every category in prompt order
var PainCategories = []PainCategory{
	CategoryWorkflowInefficiency,
	CategoryIntegrationGap,
	CategoryPricingCost,
	CategoryPerformanceReliability,
	CategoryDataManagement,
	CategoryCollaboration,
	CategoryOnboardingLearning,
	CategoryCustomerAcquisition,
	CategoryComplianceSecurity,
	CategoryMissingTooling,
	CategoryUXUsability,
	CategoryScalingOperations,
	CategoryUncategorized,
}

// IsValid checks if the category value is valid
func (c PainCategory) IsValid() bool {
	for _, known := range PainCategories {
		if c == known {
			return true
		}
	}
	return false
}

// WTP is the willingness-to-pay tier
type WTP string

const (
	WTPNone     WTP = "none"
	WTPImplicit WTP = "implicit"
	WTPExplicit WTP = "explicit"
	WTPProven   WTP = "proven"
)

// IsValid checks if the tier value is valid
func (w WTP) IsValid() bool {
	switch w {
	case WTPNone, WTPImplicit, WTPExplicit, WTPProven:
		return true
	}
	return false
}

// Weight maps the tier onto [0,1] for scoring
func (w WTP) Weight() float64 {
	switch w {
	case WTPImplicit:
		return 0.4
	case WTPExplicit:
		return 0.75
	case WTPProven:
		return 1.0
	default:
		return 0
	}
}
