package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/painscout/painscout/internal/ai"
	"github.com/painscout/painscout/internal/scoring"
	"github.com/painscout/painscout/internal/storage"
	"github.com/painscout/painscout/internal/types"
)

const (
	// AgentScorer names opportunity sync runs in the run log
	AgentScorer = "opportunity_scorer"

	// ExplanationScoring holds the scoring engine's result
	ExplanationScoring = types.ExplanationScoring
	// ExplanationSummary holds the AI-written opportunity summary
	ExplanationSummary = types.ExplanationAISummary

	summaryExamples = 5
)

// OpportunityStore is the persistence the builder needs
type OpportunityStore interface {
	ListClusterStats(ctx context.Context, minSignals int, now time.Time) ([]*types.ClusterStats, error)
	GetClusterStats(ctx context.Context, clusterID string, now time.Time) (*types.ClusterStats, error)
	ListClusterSignals(ctx context.Context, clusterID string, limit int) ([]*types.RawSignal, error)
	GetCluster(ctx context.Context, id string) (*types.PainCluster, error)
	GetAutoOpportunityForCluster(ctx context.Context, clusterID string) (*types.Opportunity, error)
	GetOpportunity(ctx context.Context, id string) (*types.Opportunity, error)
	CreateOpportunity(ctx context.Context, opp *types.Opportunity) error
	UpdateOpportunityScore(ctx context.Context, id string, score float64, verdict types.Verdict, confidence float64, scoredAt time.Time) error
	UpsertScoringSnapshot(ctx context.Context, snap *types.ScoringSnapshot) error
	MergeSnapshotExplanations(ctx context.Context, opportunityID, date string, patch map[string]json.RawMessage) error
	RecordRun(ctx context.Context, run *types.RunSummary) error
}

// Summarizer writes opportunity summaries. *ai.Summarizer implements it.
type Summarizer interface {
	Summarize(ctx context.Context, in ai.SummaryInput) (string, error)
}

// SyncResult summarizes one OpportunityBuilder.Sync
type SyncResult struct {
	ClustersScanned      int      `json:"clusters_scanned"`
	OpportunitiesCreated int      `json:"opportunities_created"`
	OpportunitiesScored  int      `json:"opportunities_scored"`
	SummariesWritten     int      `json:"summaries_written"`
	Errors               []string `json:"errors,omitempty"`
}

// ScoreOutcome is the result of scoring one opportunity
type ScoreOutcome struct {
	Opportunity *types.Opportunity
	Inputs      scoring.Inputs
	Result      scoring.Result
	Snapshot    *types.ScoringSnapshot
}

// OpportunityBuilder creates opportunities for qualifying clusters and keeps
// their daily scoring snapshots current
type OpportunityBuilder struct {
	store      OpportunityStore
	model      scoring.Model
	minSignals int
	summarizer Summarizer
	logger     *zap.Logger
	now        func() time.Time
}

// NewOpportunityBuilder validates model and returns a builder. summarizer may be nil.
func NewOpportunityBuilder(store OpportunityStore, model scoring.Model, minSignals int, summarizer Summarizer, logger *zap.Logger) (*OpportunityBuilder, error) {
	if store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if err := model.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scoring model: %w", err)
	}
	if minSignals < 1 {
		return nil, fmt.Errorf("min_signals must be at least 1 (got %d)", minSignals)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpportunityBuilder{
		store:      store,
		model:      model,
		minSignals: minSignals,
		summarizer: summarizer,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// Sync ensures every cluster with at least minSignals signals has one auto
// opportunity, then scores it. Per-cluster failures are collected; only the
// initial cluster listing is fatal. One run summary is recorded.
func (b *OpportunityBuilder) Sync(ctx context.Context) (*SyncResult, error) {
	started := b.now()
	stats, err := b.store.ListClusterStats(ctx, b.minSignals, started)
	if err != nil {
		return nil, fmt.Errorf("failed to list cluster stats: %w", err)
	}

	result := &SyncResult{ClustersScanned: len(stats)}
	for _, st := range stats {
		opp, created, err := b.ensureOpportunity(ctx, st)
		if err != nil {
			b.logger.Warn("failed to ensure opportunity",
				zap.String("cluster_id", st.ClusterID),
				zap.Error(err))
			result.Errors = append(result.Errors, fmt.Sprintf("cluster %s: %v", st.ClusterID, err))
			continue
		}
		if created {
			result.OpportunitiesCreated++
		}

		out, err := b.score(ctx, opp, st)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("opportunity %s: %v", opp.ID, err))
			continue
		}
		result.OpportunitiesScored++

		if b.summarizer != nil && b.summarize(ctx, out, st) {
			result.SummariesWritten++
		}
	}

	run := &types.RunSummary{
		ID:        uuid.New().String(),
		AgentName: AgentScorer,
		Source:    "clusters",
		// clusters scanned and opportunities created, in signal-count slots
		SignalsFound: result.ClustersScanned,
		SignalsNew:   result.OpportunitiesCreated,
		StartedAt:    started,
		Errors:       append([]string{}, result.Errors...),
	}
	run.Finish(b.now())
	if err := b.store.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		b.logger.Error("failed to record run summary", zap.Error(err))
	}
	return result, nil
}

// ensureOpportunity returns the cluster's auto opportunity, creating it if
// none exists yet
func (b *OpportunityBuilder) ensureOpportunity(ctx context.Context, st *types.ClusterStats) (*types.Opportunity, bool, error) {
	existing, err := b.store.GetAutoOpportunityForCluster(ctx, st.ClusterID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, false, fmt.Errorf("failed to look up opportunity: %w", err)
	}

	opp := &types.Opportunity{
		Title:       st.Title,
		ClusterID:   st.ClusterID,
		Description: fmt.Sprintf("Auto-created from a cluster of %d signals", st.SignalCount),
		Status:      types.OpportunityNew,
		Origin:      types.OpportunityAuto,
	}
	if err := b.store.CreateOpportunity(ctx, opp); err != nil {
		// a concurrent sync may have inserted it first
		if errors.Is(err, storage.ErrConflict) {
			existing, getErr := b.store.GetAutoOpportunityForCluster(ctx, st.ClusterID)
			if getErr == nil {
				return existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("failed to create opportunity: %w", err)
	}
	b.logger.Info("created opportunity",
		zap.String("opportunity_id", opp.ID),
		zap.String("cluster_id", st.ClusterID),
		zap.String("title", opp.Title))
	return opp, true, nil
}

// CreateManual adds a manual opportunity for an existing cluster. A cluster
// may carry any number of manual opportunities next to its auto one.
func (b *OpportunityBuilder) CreateManual(ctx context.Context, clusterID, title, description string) (*types.Opportunity, error) {
	cluster, err := b.store.GetCluster(ctx, clusterID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cluster %s: %w", clusterID, err)
	}
	if title == "" {
		title = cluster.Title
	}
	opp := &types.Opportunity{
		Title:       title,
		ClusterID:   cluster.ID,
		Description: description,
		Status:      types.OpportunityNew,
		Origin:      types.OpportunityManual,
	}
	if err := b.store.CreateOpportunity(ctx, opp); err != nil {
		return nil, fmt.Errorf("failed to create opportunity: %w", err)
	}
	return opp, nil
}

// ScoreOpportunity scores one opportunity against its cluster's current stats
func (b *OpportunityBuilder) ScoreOpportunity(ctx context.Context, opportunityID string) (*ScoreOutcome, error) {
	opp, err := b.store.GetOpportunity(ctx, opportunityID)
	if err != nil {
		return nil, fmt.Errorf("failed to get opportunity %s: %w", opportunityID, err)
	}
	st, err := b.store.GetClusterStats(ctx, opp.ClusterID, b.now())
	if err != nil {
		return nil, fmt.Errorf("failed to get cluster stats: %w", err)
	}
	out, err := b.score(ctx, opp, st)
	if err != nil {
		return nil, err
	}
	if b.summarizer != nil {
		b.summarize(ctx, out, st)
	}
	return out, nil
}

func (b *OpportunityBuilder) score(ctx context.Context, opp *types.Opportunity, st *types.ClusterStats) (*ScoreOutcome, error) {
	now := b.now()
	inputs := scoring.DeriveInputs(*st)
	res := scoring.Score(inputs, b.model)

	breakdown, err := json.Marshal(struct {
		Inputs    map[string]*float64    `json:"inputs"`
		Breakdown []scoring.Contribution `json:"breakdown"`
		Base      float64                `json:"base"`
		Penalty   float64                `json:"saturation_penalty"`
	}{inputMap(inputs), res.Breakdown, res.Base, res.SaturationPenalty})
	if err != nil {
		return nil, fmt.Errorf("failed to encode breakdown: %w", err)
	}
	explanation, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("failed to encode explanation: %w", err)
	}

	snap := &types.ScoringSnapshot{
		OpportunityID:  opp.ID,
		SnapshotDate:   types.SnapshotDate(now),
		ScoreTotal:     res.Final,
		Verdict:        res.Verdict,
		Confidence:     res.Confidence,
		ScoreBreakdown: breakdown,
		Explanations:   map[string]json.RawMessage{ExplanationScoring: explanation},
	}
	if err := b.store.UpsertScoringSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("failed to save scoring snapshot: %w", err)
	}
	if err := b.store.UpdateOpportunityScore(ctx, opp.ID, res.Final, res.Verdict, res.Confidence, now); err != nil {
		return nil, fmt.Errorf("failed to update opportunity score: %w", err)
	}

	b.logger.Info("scored opportunity",
		zap.String("opportunity_id", opp.ID),
		zap.Float64("score", res.Final),
		zap.String("verdict", string(res.Verdict)),
		zap.Float64("confidence", res.Confidence))

	return &ScoreOutcome{Opportunity: opp, Inputs: inputs, Result: res, Snapshot: snap}, nil
}

// summarize merges an AI summary into today's snapshot. Failures are logged only.
func (b *OpportunityBuilder) summarize(ctx context.Context, out *ScoreOutcome, st *types.ClusterStats) bool {
	log := b.logger.With(zap.String("opportunity_id", out.Opportunity.ID))

	in := ai.SummaryInput{
		OpportunityID: out.Opportunity.ID,
		Title:         out.Opportunity.Title,
		PainCategory:  string(st.PainCategory),
		Verdict:       string(out.Result.Verdict),
		Score:         out.Result.Final,
		Explanation:   out.Result.Explanation,
	}
	if members, err := b.store.ListClusterSignals(ctx, st.ClusterID, summaryExamples); err == nil {
		for _, m := range members {
			in.Examples = append(in.Examples, m.RawText)
		}
	} else {
		log.Debug("failed to load summary examples", zap.Error(err))
	}

	text, err := b.summarizer.Summarize(ctx, in)
	if err != nil {
		log.Warn("summary failed", zap.String("operation", ai.OperationSummarize), zap.Error(err))
		return false
	}
	payload, err := json.Marshal(map[string]string{
		"summary":      text,
		"generated_at": b.now().Format(time.RFC3339),
	})
	if err != nil {
		return false
	}
	patch := map[string]json.RawMessage{ExplanationSummary: payload}
	if err := b.store.MergeSnapshotExplanations(ctx, out.Opportunity.ID, out.Snapshot.SnapshotDate, patch); err != nil {
		log.Warn("failed to store summary", zap.Error(err))
		return false
	}
	out.Snapshot.Explanations = types.MergeExplanations(out.Snapshot.Explanations, patch)
	return true
}

// inputMap renders missing (NaN) inputs as null
func inputMap(in scoring.Inputs) map[string]*float64 {
	m := map[string]*float64{}
	for name, v := range map[string]float64{
		scoring.DimensionDemand:     in.Demand,
		scoring.DimensionPain:       in.Pain,
		scoring.DimensionWTP:        in.WTP,
		scoring.DimensionHeadroom:   in.Headroom,
		scoring.DimensionSaturation: in.Saturation,
		scoring.DimensionTiming:     in.Timing,
	} {
		if math.IsNaN(v) {
			m[name] = nil
			continue
		}
		val := v
		m[name] = &val
	}
	return m
}
