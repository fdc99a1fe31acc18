package storage

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/painscout/painscout/internal/storage/sqlite"
	"github.com/painscout/painscout/internal/types"
)

// Storage defines the interface for signal and opportunity storage backends
type Storage interface {
	// Signals
	InsertSignal(ctx context.Context, signal *types.RawSignal) (bool, error)
	GetSignal(ctx context.Context, id string) (*types.RawSignal, error)
	ListUnprocessedSignals(ctx context.Context, limit int, exclude []string) ([]*types.RawSignal, error)
	ListUnclusteredSignals(ctx context.Context) ([]*types.RawSignal, error)
	ListClusterSignals(ctx context.Context, clusterID string, limit int) ([]*types.RawSignal, error)
	SaveClassification(ctx context.Context, signalID string, c *types.Classification) error
	MarkForcedNoise(ctx context.Context, signalID string, reason string) error
	SaveSignalEmbedding(ctx context.Context, signalID string, vec []float32) error
	LinkSignalToCluster(ctx context.Context, signalID, clusterID string) (bool, error)

	// Vector search
	NearestSignals(ctx context.Context, vec []float32, threshold float64, k int, excludeID string) ([]types.SimilarityMatch, error)
	NearestClusters(ctx context.Context, vec []float32, threshold float64, k int) ([]types.SimilarityMatch, error)

	// Clusters
	CreateCluster(ctx context.Context, cluster *types.PainCluster) error
	GetCluster(ctx context.Context, id string) (*types.PainCluster, error)
	ListClusters(ctx context.Context) ([]*types.PainCluster, error)
	TouchCluster(ctx context.Context, clusterID string, seen time.Time) error
	GetClusterStats(ctx context.Context, clusterID string, now time.Time) (*types.ClusterStats, error)
	ListClusterStats(ctx context.Context, minSignals int, now time.Time) ([]*types.ClusterStats, error)

	// Opportunities
	CreateOpportunity(ctx context.Context, opp *types.Opportunity) error
	GetOpportunity(ctx context.Context, id string) (*types.Opportunity, error)
	GetAutoOpportunityForCluster(ctx context.Context, clusterID string) (*types.Opportunity, error)
	ListOpportunities(ctx context.Context, filter types.OpportunityFilter) ([]*types.Opportunity, error)
	UpdateOpportunityScore(ctx context.Context, id string, score float64, verdict types.Verdict, confidence float64, scoredAt time.Time) error
	UpdateOpportunityStatus(ctx context.Context, id string, status types.OpportunityStatus) error

	// Scoring snapshots
	UpsertScoringSnapshot(ctx context.Context, snap *types.ScoringSnapshot) error
	MergeSnapshotExplanations(ctx context.Context, opportunityID, date string, patch map[string]json.RawMessage) error
	GetScoringSnapshot(ctx context.Context, opportunityID, date string) (*types.ScoringSnapshot, error)
	ListScoringSnapshots(ctx context.Context, opportunityID string) ([]*types.ScoringSnapshot, error)

	// Runs and usage
	RecordRun(ctx context.Context, run *types.RunSummary) error
	ListRuns(ctx context.Context, limit int) ([]*types.RunSummary, error)
	RecordUsage(ctx context.Context, event *types.UsageEvent) error

	// Statistics
	GetStatistics(ctx context.Context) (*types.Statistics, error)

	// Lifecycle
	Close() error
}

// ErrNotFound is returned when a row lookup matches nothing
var ErrNotFound = sqlite.ErrNotFound

// ErrConflict is returned when a conditional update finds the row already advanced
var ErrConflict = sqlite.ErrConflict

// Config holds database configuration
type Config struct {
	// Path is the SQLite database file path
	// Default: ".painscout/painscout.db"
	Path string `yaml:"path"`
}

// DefaultPath is where the database lives when nothing is configured
const DefaultPath = ".painscout/painscout.db"

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Path: DefaultPath,
	}
}

// NewStorage opens the SQLite storage backend and applies pending migrations
func NewStorage(ctx context.Context, cfg *Config, logger *zap.Logger) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	return sqlite.New(ctx, cfg.Path, logger)
}
