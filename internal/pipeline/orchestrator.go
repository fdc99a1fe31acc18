// Package pipeline drives signals through classification, embedding and
// cluster assignment, and turns qualifying clusters into scored opportunities.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/painscout/painscout/internal/ai"
	"github.com/painscout/painscout/internal/clustering"
	"github.com/painscout/painscout/internal/types"
)

// AgentClassifier names orchestrator runs in the run log
const AgentClassifier = "pain_classifier"

// SignalStore is the persistence the orchestrator needs
type SignalStore interface {
	ListUnprocessedSignals(ctx context.Context, limit int, exclude []string) ([]*types.RawSignal, error)
	ListUnclusteredSignals(ctx context.Context) ([]*types.RawSignal, error)
	SaveClassification(ctx context.Context, signalID string, c *types.Classification) error
	MarkForcedNoise(ctx context.Context, signalID string, reason string) error
	SaveSignalEmbedding(ctx context.Context, signalID string, vec []float32) error
	RecordRun(ctx context.Context, run *types.RunSummary) error
}

// Classifier judges one signal
type Classifier interface {
	ClassifySignal(ctx context.Context, s *types.RawSignal) (*ai.RawClassification, error)
}

// Embedder vectorizes signal text
type Embedder interface {
	EmbedFor(ctx context.Context, subjectID, text string) ([]float32, error)
}

// Assigner places an embedded signal into a cluster
type Assigner interface {
	Assign(ctx context.Context, signalID string, vec []float32, c *types.Classification) clustering.Assignment
}

// Budget gates paid calls. *cost.Meter implements it.
type Budget interface {
	CanProceed() (bool, string)
}

// Pacer blocks until the next call may start. *rate.Limiter implements it.
type Pacer interface {
	Wait(ctx context.Context) error
}

// OrchestratorConfig holds orchestrator dependencies
type OrchestratorConfig struct {
	Store      SignalStore
	Classifier Classifier
	Embedder   Embedder
	Assigner   Assigner
	Budget     Budget // Optional
	Pacer      Pacer  // Optional, defaults to a limiter at Settings.ClassifyDelay
	Settings   Config
	Logger     *zap.Logger
}

// Orchestrator runs the classify, embed, cluster loop
type Orchestrator struct {
	store      SignalStore
	classifier Classifier
	embedder   Embedder
	assigner   Assigner
	budget     Budget
	pacer      Pacer
	cfg        Config
	logger     *zap.Logger
	now        func() time.Time
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(cfg *OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if cfg.Classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if cfg.Assigner == nil {
		return nil, fmt.Errorf("assigner is required")
	}
	if err := cfg.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	pacer := cfg.Pacer
	if pacer == nil {
		pacer = NewPacer(cfg.Settings.ClassifyDelay)
	}

	return &Orchestrator{
		store:      cfg.Store,
		classifier: cfg.Classifier,
		embedder:   cfg.Embedder,
		assigner:   cfg.Assigner,
		budget:     cfg.Budget,
		pacer:      pacer,
		cfg:        cfg.Settings,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// NewPacer allows one call per delay with no bursting
func NewPacer(delay time.Duration) *rate.Limiter {
	return rate.NewLimiter(rate.Every(delay), 1)
}

type outcome int

const (
	outcomeDone outcome = iota
	// the row is still awaiting classification
	outcomeLeft
	outcomeStop
)

// Run processes up to MaxBatches batches of unprocessed signals, then resumes
// classified signals an earlier run left unclustered, and records one run
// summary. Only a failure to fetch the first batch returns an error, and in
// that case no summary is written.
func (o *Orchestrator) Run(ctx context.Context) (*types.RunSummary, error) {
	summary := &types.RunSummary{
		ID:        uuid.New().String(),
		AgentName: AgentClassifier,
		Source:    "all",
		StartedAt: o.now(),
		Errors:    []string{},
	}

	// listed before this run classifies anything, so a signal is retried at
	// most once per run
	resumable, err := o.store.ListUnclusteredSignals(ctx)
	if err != nil {
		o.logger.Error("failed to list unclustered signals", zap.Error(err))
		summary.AddError("resume: list unclustered signals: %v", err)
	}
	if len(resumable) > o.cfg.BatchSize {
		resumable = resumable[:o.cfg.BatchSize]
	}

	// rows attempted this run but not advanced, so later batches skip them
	var unadvanced []string
	stopped := false

batches:
	for batch := 0; batch < o.cfg.MaxBatches; batch++ {
		signals, err := o.store.ListUnprocessedSignals(ctx, o.cfg.BatchSize, unadvanced)
		if err != nil {
			if batch == 0 {
				return nil, fmt.Errorf("failed to fetch unprocessed signals: %w", err)
			}
			o.logger.Error("failed to fetch batch", zap.Int("batch", batch), zap.Error(err))
			summary.AddError("batch %d: fetch failed: %v", batch, err)
			break
		}
		if len(signals) == 0 {
			break
		}
		summary.SignalsFound += len(signals)

		o.logger.Info("processing batch",
			zap.Int("batch", batch),
			zap.Int("signals", len(signals)))

		for _, s := range signals {
			if !o.withinBudget(summary) {
				stopped = true
				break batches
			}
			if err := o.pacer.Wait(ctx); err != nil {
				summary.AddError("pacing interrupted: %v", err)
				stopped = true
				break batches
			}

			switch o.processSignal(ctx, s, summary) {
			case outcomeLeft:
				unadvanced = append(unadvanced, s.ID)
			case outcomeStop:
				stopped = true
				break batches
			}
		}

		if len(signals) < o.cfg.BatchSize {
			break
		}
	}

	if !stopped {
		o.resume(ctx, resumable, summary)
	}

	summary.Finish(o.now())
	// the audit record is written even if the run context was cancelled
	if err := o.store.RecordRun(context.WithoutCancel(ctx), summary); err != nil {
		o.logger.Error("failed to record run summary",
			zap.String("run_id", summary.ID),
			zap.Error(err))
	}

	o.logger.Info("run complete",
		zap.String("status", string(summary.Status)),
		zap.Int("found", summary.SignalsFound),
		zap.Int("new", summary.SignalsNew),
		zap.Int("noise", summary.SignalsNoise),
		zap.Int("clustered", summary.SignalsClustered),
		zap.Int("clusters_created", summary.ClustersCreated),
		zap.Int("errors", len(summary.Errors)))
	return summary, nil
}

func (o *Orchestrator) processSignal(ctx context.Context, s *types.RawSignal, summary *types.RunSummary) outcome {
	log := o.logger.With(zap.String("signal_id", s.ID))

	raw, err := o.classifier.ClassifySignal(ctx, s)
	if err != nil {
		if errors.Is(err, ai.ErrCircuitOpen) {
			log.Warn("classifier circuit open, stopping run")
			summary.AddError("signal %s: %v; run stopped", s.ID, err)
			return outcomeStop
		}
		return o.handleClassifyFailure(ctx, log, s, err, summary)
	}

	c := ai.NormalizeClassification(raw)
	if err := o.store.SaveClassification(ctx, s.ID, &c); err != nil {
		log.Error("failed to save classification", zap.String("operation", "save_classification"), zap.Error(err))
		summary.AddError("signal %s: save classification: %v", s.ID, err)
		return outcomeLeft
	}

	// noise is terminal and never reaches embedding or clustering
	if c.IsNoise {
		summary.SignalsNoise++
		return outcomeDone
	}
	summary.SignalsNew++

	o.embedAndAssign(ctx, log, s, nil, &c, summary)
	return outcomeDone
}

// resume embeds and clusters signals that an earlier run classified but could
// not place. A signal that fails again stays unclustered for the next run.
func (o *Orchestrator) resume(ctx context.Context, signals []*types.RawSignal, summary *types.RunSummary) {
	if len(signals) == 0 {
		return
	}
	o.logger.Info("resuming unclustered signals", zap.Int("signals", len(signals)))

	for _, s := range signals {
		if err := ctx.Err(); err != nil {
			summary.AddError("resume interrupted: %v", err)
			return
		}
		if !o.withinBudget(summary) {
			return
		}
		log := o.logger.With(zap.String("signal_id", s.ID), zap.Bool("resumed", true))
		o.embedAndAssign(ctx, log, s, s.Embedding, s.Classification, summary)
	}
}

// embedAndAssign embeds s unless vec is already known, then places it in a
// cluster. Failures are recorded and leave the signal classified but unclustered.
func (o *Orchestrator) embedAndAssign(ctx context.Context, log *zap.Logger, s *types.RawSignal, vec []float32, c *types.Classification, summary *types.RunSummary) {
	if vec == nil {
		var err error
		vec, err = o.embedder.EmbedFor(ctx, s.ID, EmbeddingText(s))
		if err != nil {
			log.Warn("embedding failed", zap.String("operation", "embed"), zap.Error(err))
			summary.AddError("signal %s: embed: %v", s.ID, err)
			return
		}
		if err := o.store.SaveSignalEmbedding(ctx, s.ID, vec); err != nil {
			log.Error("failed to save embedding", zap.String("operation", "save_embedding"), zap.Error(err))
			summary.AddError("signal %s: save embedding: %v", s.ID, err)
			return
		}
	}

	a := o.assigner.Assign(ctx, s.ID, vec, c)
	switch a.Action {
	case clustering.ActionCreated:
		summary.ClustersCreated++
		summary.SignalsClustered++
	case clustering.ActionAssigned:
		summary.SignalsClustered++
	default:
		summary.AddError("signal %s: cluster assignment: %s", s.ID, a.Reason)
	}
}

func (o *Orchestrator) withinBudget(summary *types.RunSummary) bool {
	if o.budget == nil {
		return true
	}
	ok, reason := o.budget.CanProceed()
	if !ok {
		o.logger.Warn("stopping run", zap.String("reason", reason))
		summary.AddError("%s; run stopped", reason)
	}
	return ok
}

func (o *Orchestrator) handleClassifyFailure(ctx context.Context, log *zap.Logger, s *types.RawSignal, err error, summary *types.RunSummary) outcome {
	summary.AddError("signal %s: classify: %v", s.ID, err)

	if o.cfg.FailurePolicy == PolicyRetryTransient && !ai.IsParseError(err) {
		log.Warn("classification failed, leaving signal for the next run", zap.Error(err))
		return outcomeLeft
	}

	log.Warn("classification failed, forcing noise", zap.Error(err))
	if err := o.store.MarkForcedNoise(ctx, s.ID, err.Error()); err != nil {
		log.Error("failed to mark forced noise", zap.String("operation", "mark_forced_noise"), zap.Error(err))
		summary.AddError("signal %s: mark forced noise: %v", s.ID, err)
		return outcomeLeft
	}
	summary.SignalsNoise++
	return outcomeDone
}

// EmbeddingText is the text a signal is embedded from
func EmbeddingText(s *types.RawSignal) string {
	if s.ThreadTitle == "" {
		return s.RawText
	}
	return s.ThreadTitle + "\n" + s.RawText
}
