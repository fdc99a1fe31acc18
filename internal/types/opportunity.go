package types

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// Opportunity is a scorable candidate product idea derived from one cluster
type Opportunity struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	ClusterID   string            `json:"cluster_id"`
	Description string            `json:"description,omitempty"`
	Status      OpportunityStatus `json:"status"`
	Origin      OpportunityOrigin `json:"origin"`
	ScoreTotal  *float64          `json:"score_total,omitempty"`
	Verdict     Verdict           `json:"verdict,omitempty"`
	Confidence  *float64          `json:"confidence,omitempty"`
	ScoredAt    *time.Time        `json:"scored_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Validate checks if the opportunity has valid field values
func (o *Opportunity) Validate() error {
	if len(o.Title) == 0 {
		return fmt.Errorf("title is required")
	}
	if len(o.Title) > 200 {
		return fmt.Errorf("title must be 200 characters or less (got %d)", len(o.Title))
	}
	if o.ClusterID == "" {
		return fmt.Errorf("cluster_id is required")
	}
	if !o.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", o.Status)
	}
	if !o.Origin.IsValid() {
		return fmt.Errorf("invalid origin: %s", o.Origin)
	}
	if o.Verdict != "" && !o.Verdict.IsValid() {
		return fmt.Errorf("invalid verdict: %s", o.Verdict)
	}
	return nil
}

// OpportunityFilter narrows ListOpportunities. Zero values match everything.
type OpportunityFilter struct {
	Status  OpportunityStatus
	Verdict Verdict
	Limit   int
}

// OpportunityStatus is the review workflow state
type OpportunityStatus string

const (
	OpportunityNew       OpportunityStatus = "new"
	OpportunityScored    OpportunityStatus = "scored"
	OpportunityReviewing OpportunityStatus = "reviewing"
	OpportunityAccepted  OpportunityStatus = "accepted"
	OpportunityRejected  OpportunityStatus = "rejected"
)

// IsValid checks if the status value is valid
func (s OpportunityStatus) IsValid() bool {
	switch s {
	case OpportunityNew, OpportunityScored, OpportunityReviewing, OpportunityAccepted, OpportunityRejected:
		return true
	}
	return false
}

// OpportunityOrigin distinguishes the auto pipeline from manual creation.
// Only the auto path guarantees one opportunity per cluster.
type OpportunityOrigin string

const (
	OpportunityAuto   OpportunityOrigin = "auto"
	OpportunityManual OpportunityOrigin = "manual"
)

// IsValid checks if the origin value is valid
func (o OpportunityOrigin) IsValid() bool {
	switch o {
	case OpportunityAuto, OpportunityManual:
		return true
	}
	return false
}

// Verdict is the discretized scoring outcome
type Verdict string

const (
	VerdictBuild   Verdict = "BUILD"
	VerdictInvest  Verdict = "INVEST"
	VerdictMonitor Verdict = "MONITOR"
	VerdictPass    Verdict = "PASS"
)

// IsValid checks if the verdict value is valid
func (v Verdict) IsValid() bool {
	switch v {
	case VerdictBuild, VerdictInvest, VerdictMonitor, VerdictPass:
		return true
	}
	return false
}

// Well-known keys in the snapshot explanations bag. Each writer owns its keys.
const (
	ExplanationScoring   = "scoring_v1"
	ExplanationAISummary = "ai_summary_v1"
	ExplanationArtifacts = "artifacts_v1"
)

// SnapshotDateLayout is the date granularity of scoring snapshots
const SnapshotDateLayout = "2006-01-02"

var snapshotDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ScoringSnapshot is the per-day scoring result for one opportunity
type ScoringSnapshot struct {
	OpportunityID  string                     `json:"opportunity_id"`
	SnapshotDate   string                     `json:"snapshot_date"`
	ScoreTotal     float64                    `json:"score_total"`
	Verdict        Verdict                    `json:"verdict"`
	Confidence     float64                    `json:"confidence"`
	ScoreBreakdown json.RawMessage            `json:"score_breakdown,omitempty"`
	Explanations   map[string]json.RawMessage `json:"explanations,omitempty"`
	CreatedAt      time.Time                  `json:"created_at"`
	UpdatedAt      time.Time                  `json:"updated_at"`
}

// Validate checks if the snapshot has valid field values
func (s *ScoringSnapshot) Validate() error {
	if s.OpportunityID == "" {
		return fmt.Errorf("opportunity_id is required")
	}
	if !snapshotDatePattern.MatchString(s.SnapshotDate) {
		return fmt.Errorf("snapshot_date must be YYYY-MM-DD (got %q)", s.SnapshotDate)
	}
	if s.ScoreTotal < 0 || s.ScoreTotal > 100 {
		return fmt.Errorf("score_total must be between 0 and 100 (got %.2f)", s.ScoreTotal)
	}
	if !s.Verdict.IsValid() {
		return fmt.Errorf("invalid verdict: %s", s.Verdict)
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("confidence must be between 0.0 and 1.0 (got %.2f)", s.Confidence)
	}
	return nil
}

// SnapshotDate formats t at snapshot granularity (UTC)
func SnapshotDate(t time.Time) string {
	return t.UTC().Format(SnapshotDateLayout)
}

// MergeExplanations overlays patch onto base and returns the result.
// Keys absent from patch keep their original bytes.
func MergeExplanations(base, patch map[string]json.RawMessage) map[string]json.RawMessage {
	merged := make(map[string]json.RawMessage, len(base)+len(patch))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	return merged
}
