package types

import (
	"fmt"
	"time"
)

// PainCluster groups signals that describe the same underlying problem.
// It is the root aggregate: opportunities and snapshots hang off it by id.
type PainCluster struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Slug         string        `json:"slug"`
	PainCategory PainCategory  `json:"pain_category"`
	Description  string        `json:"description,omitempty"`
	Centroid     []float32     `json:"-"`
	Origin       ClusterOrigin `json:"origin"`
	FirstSeen    time.Time     `json:"first_seen"`
	LastSeen     time.Time     `json:"last_seen"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Validate checks if the cluster has valid field values
func (c *PainCluster) Validate() error {
	if len(c.Title) == 0 {
		return fmt.Errorf("title is required")
	}
	if len(c.Title) > 200 {
		return fmt.Errorf("title must be 200 characters or less (got %d)", len(c.Title))
	}
	if len(c.Slug) == 0 {
		return fmt.Errorf("slug is required")
	}
	if c.PainCategory != "" && !c.PainCategory.IsValid() {
		return fmt.Errorf("invalid pain_category: %s", c.PainCategory)
	}
	if !c.Origin.IsValid() {
		return fmt.Errorf("invalid origin: %s", c.Origin)
	}
	if c.LastSeen.Before(c.FirstSeen) {
		return fmt.Errorf("last_seen cannot precede first_seen")
	}
	return nil
}

// ClusterOrigin records which path created a cluster
type ClusterOrigin string

const (
	OriginEmbedding ClusterOrigin = "embedding"
	OriginSignature ClusterOrigin = "signature"
)

// IsValid checks if the origin value is valid
func (o ClusterOrigin) IsValid() bool {
	switch o {
	case OriginEmbedding, OriginSignature:
		return true
	}
	return false
}

// ClusterStats is the read-side aggregation over a cluster's member signals.
// None of it is stored; the store computes it on demand.
type ClusterStats struct {
	ClusterID     string       `json:"cluster_id"`
	Title         string       `json:"title"`
	PainCategory  PainCategory `json:"pain_category"`
	SignalCount   int          `json:"signal_count"`
	PlatformCount int          `json:"platform_count"`

	// IntensitySum / IntensityCount give the mean over signals with a parsed intensity
	IntensitySum   int `json:"intensity_sum"`
	IntensityCount int `json:"intensity_count"`

	WTPCounts        map[WTP]int `json:"wtp_counts"`
	DistinctTools    int         `json:"distinct_tools"`
	SignalsWithTools int         `json:"signals_with_tools"`
	RecentSignals    int         `json:"recent_signals"`
	TotalEngagement  int         `json:"total_engagement"`
	TopNiche         string      `json:"top_niche,omitempty"`
	FirstSeen        time.Time   `json:"first_seen"`
	LastSeen         time.Time   `json:"last_seen"`
}
