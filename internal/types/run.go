package types

import (
	"fmt"
	"time"
)

// RunStatus is the outcome of one batch run
type RunStatus string

const (
	RunCompleted           RunStatus = "completed"
	RunCompletedWithErrors RunStatus = "completed_with_errors"
)

// RunSummary is the single audit record written per run
type RunSummary struct {
	ID               string    `json:"id"`
	AgentName        string    `json:"agent_name"`
	Source           string    `json:"source"`
	SignalsFound     int       `json:"signals_found"`
	SignalsNew       int       `json:"signals_new"`
	SignalsNoise     int       `json:"signals_noise"`
	SignalsClustered int       `json:"signals_clustered"`
	ClustersCreated  int       `json:"clusters_created"`
	Status           RunStatus `json:"status"`
	StartedAt        time.Time `json:"started_at"`
	CompletedAt      time.Time `json:"completed_at"`
	DurationSeconds  float64   `json:"duration_seconds"`
	Errors           []string  `json:"errors"`
}

// AddError records an item-level error on the run
func (r *RunSummary) AddError(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Finish stamps completion time, duration and status
func (r *RunSummary) Finish(now time.Time) {
	r.CompletedAt = now
	r.DurationSeconds = now.Sub(r.StartedAt).Seconds()
	if len(r.Errors) > 0 {
		r.Status = RunCompletedWithErrors
	} else {
		r.Status = RunCompleted
	}
}

// UsageEvent is one metered model call
type UsageEvent struct {
	ID           string    `json:"id"`
	Operation    string    `json:"operation"`
	Model        string    `json:"model"`
	SubjectID    string    `json:"subject_id,omitempty"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
	CreatedAt    time.Time `json:"created_at"`
}

// Statistics summarizes the store for the stats command
type Statistics struct {
	TotalSignals       int            `json:"total_signals"`
	UnprocessedSignals int            `json:"unprocessed_signals"`
	NoiseSignals       int            `json:"noise_signals"`
	ClassifiedSignals  int            `json:"classified_signals"`
	ClusteredSignals   int            `json:"clustered_signals"`
	TotalClusters      int            `json:"total_clusters"`
	TotalOpportunities int            `json:"total_opportunities"`
	SignalsBySource    map[Source]int `json:"signals_by_source"`
	TotalUsageCostUSD  float64        `json:"total_usage_cost_usd"`
}
