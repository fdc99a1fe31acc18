package clustering

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/painscout/painscout/internal/embedding"
	"github.com/painscout/painscout/internal/signature"
	"github.com/painscout/painscout/internal/types"
)

// maxTitleRunes caps signature-derived cluster titles
const maxTitleRunes = 200

// GroupStore is the persistence the signature path needs
type GroupStore interface {
	ListUnclusteredSignals(ctx context.Context) ([]*types.RawSignal, error)
	CreateCluster(ctx context.Context, cluster *types.PainCluster) error
	LinkSignalToCluster(ctx context.Context, signalID, clusterID string) (bool, error)
}

// GroupingResult summarizes one SignatureGrouper run
type GroupingResult struct {
	SignalsScanned  int      `json:"signals_scanned"`
	Groups          int      `json:"groups"`
	ClustersCreated int      `json:"clusters_created"`
	SignalsLinked   int      `json:"signals_linked"`
	Errors          []string `json:"errors,omitempty"`
}

// SignatureGrouper clusters signals that share a keyword signature. It needs
// no embeddings and catches near-identical reposts the vector path missed.
type SignatureGrouper struct {
	store   GroupStore
	minSize int
	logger  *zap.Logger
	now     func() time.Time
}

// NewSignatureGrouper creates a grouper using cfg.MinGroupSize
func NewSignatureGrouper(store GroupStore, cfg Config, logger *zap.Logger) (*SignatureGrouper, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid clustering config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SignatureGrouper{
		store:   store,
		minSize: cfg.MinGroupSize,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Run groups unclustered signals and creates one cluster per large-enough group.
// Per-group failures are collected in the result; only the initial load is fatal.
func (g *SignatureGrouper) Run(ctx context.Context) (*GroupingResult, error) {
	signals, err := g.store.ListUnclusteredSignals(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list unclustered signals: %w", err)
	}

	result := &GroupingResult{SignalsScanned: len(signals)}
	groups := signature.GroupBySignature(signals)

	// deterministic processing order
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, sig := range keys {
		members := groups[sig]
		if len(members) < g.minSize {
			continue
		}
		result.Groups++

		cluster := g.clusterFor(sig, members)
		if err := g.store.CreateCluster(ctx, cluster); err != nil {
			g.logger.Warn("failed to create signature cluster",
				zap.String("signature", sig),
				zap.Error(err))
			result.Errors = append(result.Errors, fmt.Sprintf("signature %s: %v", sig, err))
			continue
		}
		result.ClustersCreated++

		for _, m := range members {
			linked, err := g.store.LinkSignalToCluster(ctx, m.ID, cluster.ID)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("signal %s: %v", m.ID, err))
				continue
			}
			if linked {
				result.SignalsLinked++
			}
		}

		g.logger.Info("created signature cluster",
			zap.String("cluster_id", cluster.ID),
			zap.String("signature", sig),
			zap.Int("members", len(members)))
	}

	return result, nil
}

func (g *SignatureGrouper) clusterFor(sig string, members []*types.RawSignal) *types.PainCluster {
	niches := map[string]int{}
	categories := map[string]int{}
	first := g.now()
	for _, m := range members {
		if m.Classification != nil {
			if n := m.Classification.SuggestedNiche; n != "" {
				niches[n]++
			}
			categories[string(m.Classification.PainCategory)]++
		}
		if m.CreatedAt.Before(first) && !m.CreatedAt.IsZero() {
			first = m.CreatedAt
		}
	}

	title := TitleFromNiche(topKey(niches))
	if title == "" {
		title = TitleFromNiche(strings.ReplaceAll(sig, "-", " "))
	}
	if r := []rune(title); len(r) > maxTitleRunes {
		title = string(r[:maxTitleRunes])
	}

	// members embedded by an earlier run seed the centroid so later signals
	// can find this cluster by similarity
	vectors := make([][]float32, 0, len(members))
	for _, m := range members {
		vectors = append(vectors, m.Embedding)
	}

	category := types.PainCategory(topKey(categories))
	if !category.IsValid() {
		category = types.CategoryUncategorized
	}

	return &types.PainCluster{
		Title:        title,
		Slug:         UniqueSlug(title),
		PainCategory: category,
		Description:  "Grouped by keyword signature: " + sig,
		Centroid:     embedding.MeanVector(vectors),
		Origin:       types.OriginSignature,
		FirstSeen:    first,
		LastSeen:     g.now(),
	}
}

// topKey returns the most frequent key; ties go to the lexically smallest
func topKey(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	best, n := "", 0
	for _, k := range keys {
		if counts[k] > n {
			best, n = k, counts[k]
		}
	}
	return best
}
