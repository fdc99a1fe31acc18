// Package clustering decides which pain cluster a freshly classified signal
// belongs to, creating clusters when nothing close enough exists.
//
// Assignment tries the cheapest, most confident evidence first:
//
//  1. the nearest signal, if it already sits in a cluster
//  2. the nearest cluster centroid above the cluster threshold
//  3. a brand new cluster seeded with the signal's embedding
//
// Links are conditional (cluster_id IS NULL), so concurrent runs never move a
// signal between clusters. A lost race is reported as a failed assignment.
package clustering

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/painscout/painscout/internal/types"
)

// Action is the outcome of an assignment
type Action string

const (
	ActionAssigned Action = "assigned"
	ActionCreated  Action = "created"
	ActionFailed   Action = "failed"
)

// Assignment is the result of Engine.Assign
type Assignment struct {
	Action       Action  `json:"action"`
	ClusterID    string  `json:"cluster_id,omitempty"`
	ClusterTitle string  `json:"cluster_title,omitempty"`
	Similarity   float64 `json:"similarity,omitempty"`
	Reason       string  `json:"reason,omitempty"`
}

// Store is the persistence the engine needs
type Store interface {
	CreateCluster(ctx context.Context, cluster *types.PainCluster) error
	GetCluster(ctx context.Context, id string) (*types.PainCluster, error)
	LinkSignalToCluster(ctx context.Context, signalID, clusterID string) (bool, error)
	TouchCluster(ctx context.Context, clusterID string, seen time.Time) error
}

// Searcher runs the two similarity queries. Implementations fail open:
// a failed search is reported as no matches.
type Searcher interface {
	SimilarSignals(ctx context.Context, vec []float32, excludeID string) []types.SimilarityMatch
	SimilarClusters(ctx context.Context, vec []float32) []types.SimilarityMatch
}

// Engine assigns signals to clusters
type Engine struct {
	store  Store
	search Searcher
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// NewEngine creates a cluster assignment engine
func NewEngine(store Store, search Searcher, cfg Config, logger *zap.Logger) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if search == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid clustering config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:  store,
		search: search,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Assign places one signal in a cluster. It never returns an error; failures
// come back as ActionFailed with a reason and leave the signal unclustered.
func (e *Engine) Assign(ctx context.Context, signalID string, vec []float32, c *types.Classification) Assignment {
	log := e.logger.With(zap.String("signal_id", signalID))

	// 1. nearest signal already in a cluster
	signals := SortMatches(e.search.SimilarSignals(ctx, vec, signalID))
	if len(signals) > 0 {
		top := signals[0]
		if top.Similarity >= e.cfg.SignalThreshold && top.HasCluster() {
			log.Debug("joining cluster of nearest signal",
				zap.String("neighbour_id", top.ID),
				zap.String("cluster_id", top.ClusterID),
				zap.Float64("similarity", top.Similarity))
			return e.join(ctx, signalID, top.ClusterID, top.Similarity, "nearest signal")
		}
	}

	// 2. nearest centroid
	for _, m := range SortMatches(e.search.SimilarClusters(ctx, vec)) {
		if m.Similarity < e.cfg.ClusterThreshold {
			break
		}
		clusterID := m.ClusterID
		if clusterID == "" {
			clusterID = m.ID
		}
		log.Debug("joining nearest cluster centroid",
			zap.String("cluster_id", clusterID),
			zap.Float64("similarity", m.Similarity))
		return e.join(ctx, signalID, clusterID, m.Similarity, "nearest centroid")
	}

	// 3. new cluster
	return e.create(ctx, signalID, vec, c)
}

func (e *Engine) join(ctx context.Context, signalID, clusterID string, similarity float64, via string) Assignment {
	linked, err := e.store.LinkSignalToCluster(ctx, signalID, clusterID)
	if err != nil {
		e.logger.Warn("failed to link signal to cluster",
			zap.String("signal_id", signalID),
			zap.String("cluster_id", clusterID),
			zap.Error(err))
		return Assignment{Action: ActionFailed, ClusterID: clusterID, Reason: fmt.Sprintf("link failed: %v", err)}
	}
	if !linked {
		return Assignment{Action: ActionFailed, ClusterID: clusterID, Reason: "signal already linked to a cluster"}
	}

	if err := e.store.TouchCluster(ctx, clusterID, e.now()); err != nil {
		e.logger.Warn("failed to update cluster last_seen",
			zap.String("cluster_id", clusterID),
			zap.Error(err))
	}

	title := ""
	if cluster, err := e.store.GetCluster(ctx, clusterID); err == nil {
		title = cluster.Title
	}
	return Assignment{
		Action:       ActionAssigned,
		ClusterID:    clusterID,
		ClusterTitle: title,
		Similarity:   similarity,
		Reason:       via,
	}
}

func (e *Engine) create(ctx context.Context, signalID string, vec []float32, c *types.Classification) Assignment {
	title := PlaceholderTitle
	category := types.CategoryUncategorized
	if c != nil {
		if t := TitleFromNiche(c.SuggestedNiche); t != "" {
			title = t
		}
		if c.PainCategory.IsValid() {
			category = c.PainCategory
		}
	}

	now := e.now()
	cluster := &types.PainCluster{
		Title:        title,
		Slug:         UniqueSlug(title),
		PainCategory: category,
		Centroid:     vec,
		Origin:       types.OriginEmbedding,
		FirstSeen:    now,
		LastSeen:     now,
	}
	if err := e.store.CreateCluster(ctx, cluster); err != nil {
		e.logger.Warn("failed to create cluster",
			zap.String("signal_id", signalID),
			zap.String("slug", cluster.Slug),
			zap.Error(err))
		return Assignment{Action: ActionFailed, Reason: fmt.Sprintf("cluster insert failed: %v", err)}
	}

	linked, err := e.store.LinkSignalToCluster(ctx, signalID, cluster.ID)
	if err == nil && !linked {
		err = errors.New("signal already linked to a cluster")
	}
	if err != nil {
		e.logger.Warn("created cluster but could not link signal",
			zap.String("signal_id", signalID),
			zap.String("cluster_id", cluster.ID),
			zap.Error(err))
		return Assignment{Action: ActionFailed, ClusterID: cluster.ID, Reason: err.Error()}
	}

	e.logger.Info("created cluster",
		zap.String("signal_id", signalID),
		zap.String("cluster_id", cluster.ID),
		zap.String("title", cluster.Title))
	return Assignment{Action: ActionCreated, ClusterID: cluster.ID, ClusterTitle: cluster.Title, Reason: "no match above threshold"}
}

// SortMatches orders matches by similarity (highest first), then by earliest
// cluster creation, then by id. The input slice is sorted in place and returned.
func SortMatches(matches []types.SimilarityMatch) []types.SimilarityMatch {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if !a.ClusterCreatedAt.Equal(b.ClusterCreatedAt) {
			// zero times (no cluster) go last
			if a.ClusterCreatedAt.IsZero() {
				return false
			}
			if b.ClusterCreatedAt.IsZero() {
				return true
			}
			return a.ClusterCreatedAt.Before(b.ClusterCreatedAt)
		}
		return a.ID < b.ID
	})
	return matches
}
