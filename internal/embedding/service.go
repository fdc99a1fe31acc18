// Package embedding turns signal text into vectors and runs the two
// similarity queries clustering depends on: signal-to-signal and
// signal-to-cluster-centroid.
package embedding

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/painscout/painscout/internal/types"
)

// MaxInputChars is how much text is sent to the provider
const MaxInputChars = 8000

// OperationEmbed labels embedding calls in usage records
const OperationEmbed = "embed"

// Provider produces fixed-length vectors
type Provider interface {
	Embed(ctx context.Context, text string) (*Result, error)
	Dimensions() int
}

// Result is one provider reply
type Result struct {
	Vector      []float32
	Model       string
	InputTokens int64
}

// VectorSearcher is the storage side of similarity search
type VectorSearcher interface {
	NearestSignals(ctx context.Context, vec []float32, threshold float64, k int, excludeID string) ([]types.SimilarityMatch, error)
	NearestClusters(ctx context.Context, vec []float32, threshold float64, k int) ([]types.SimilarityMatch, error)
}

// UsageRecorder receives token counts for embedding calls
type UsageRecorder interface {
	RecordUsage(operation, model, subjectID string, inputTokens, outputTokens int64)
}

// Config holds the similarity thresholds and caps
type Config struct {
	SignalThreshold  float64 `yaml:"signal_threshold"`
	SignalLimit      int     `yaml:"signal_limit"`
	ClusterThreshold float64 `yaml:"cluster_threshold"`
	ClusterLimit     int     `yaml:"cluster_limit"`
}

// DefaultConfig returns the default search parameters
func DefaultConfig() Config {
	return Config{
		SignalThreshold:  0.87,
		SignalLimit:      5,
		ClusterThreshold: 0.82,
		ClusterLimit:     3,
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.SignalThreshold <= 0 || c.SignalThreshold > 1 {
		return fmt.Errorf("signal_threshold must be in (0, 1] (got %.2f)", c.SignalThreshold)
	}
	if c.ClusterThreshold <= 0 || c.ClusterThreshold > 1 {
		return fmt.Errorf("cluster_threshold must be in (0, 1] (got %.2f)", c.ClusterThreshold)
	}
	if c.SignalLimit <= 0 {
		return fmt.Errorf("signal_limit must be positive (got %d)", c.SignalLimit)
	}
	if c.ClusterLimit <= 0 {
		return fmt.Errorf("cluster_limit must be positive (got %d)", c.ClusterLimit)
	}
	return nil
}

// Service embeds text and searches for neighbours
type Service struct {
	provider Provider
	search   VectorSearcher
	cfg      Config
	usage    UsageRecorder
	logger   *zap.Logger
}

// NewService wires a provider to a vector store. usage may be nil.
func NewService(provider Provider, search VectorSearcher, cfg Config, usage UsageRecorder, logger *zap.Logger) (*Service, error) {
	if provider == nil {
		return nil, fmt.Errorf("embedding provider is required")
	}
	if search == nil {
		return nil, fmt.Errorf("vector searcher is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid embedding config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{provider: provider, search: search, cfg: cfg, usage: usage, logger: logger}, nil
}

// Config returns the active search parameters
func (s *Service) Config() Config { return s.cfg }

// Preprocess truncates to MaxInputChars runes, flattens newlines and trims
func Preprocess(text string) string {
	if r := []rune(text); len(r) > MaxInputChars {
		text = string(r[:MaxInputChars])
	}
	text = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(text)
	return strings.TrimSpace(text)
}

// Embed returns the vector for text
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.EmbedFor(ctx, "", text)
}

// EmbedFor embeds text and attributes usage to subjectID
func (s *Service) EmbedFor(ctx context.Context, subjectID, text string) ([]float32, error) {
	input := Preprocess(text)
	if input == "" {
		return nil, fmt.Errorf("embed: empty input")
	}

	res, err := s.provider.Embed(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if want := s.provider.Dimensions(); want > 0 && len(res.Vector) != want {
		return nil, fmt.Errorf("embed: expected %d dimensions, got %d", want, len(res.Vector))
	}
	if s.usage != nil {
		s.usage.RecordUsage(OperationEmbed, res.Model, subjectID, res.InputTokens, 0)
	}
	return res.Vector, nil
}

// SimilarSignals finds signals close to vec using the configured signal threshold.
// Search failures are logged and reported as no matches.
func (s *Service) SimilarSignals(ctx context.Context, vec []float32, excludeID string) []types.SimilarityMatch {
	return s.NearestSignals(ctx, vec, s.cfg.SignalThreshold, s.cfg.SignalLimit, excludeID)
}

// SimilarClusters finds cluster centroids close to vec using the configured cluster threshold.
// Search failures are logged and reported as no matches.
func (s *Service) SimilarClusters(ctx context.Context, vec []float32) []types.SimilarityMatch {
	return s.NearestClusters(ctx, vec, s.cfg.ClusterThreshold, s.cfg.ClusterLimit)
}

// NearestSignals runs a signal search with explicit parameters
func (s *Service) NearestSignals(ctx context.Context, vec []float32, threshold float64, k int, excludeID string) []types.SimilarityMatch {
	matches, err := s.search.NearestSignals(ctx, vec, threshold, k, excludeID)
	if err != nil {
		s.logger.Warn("signal similarity search failed, treating as no match",
			zap.String("signal_id", excludeID),
			zap.Error(err))
		return nil
	}
	return matches
}

// NearestClusters runs a centroid search with explicit parameters
func (s *Service) NearestClusters(ctx context.Context, vec []float32, threshold float64, k int) []types.SimilarityMatch {
	matches, err := s.search.NearestClusters(ctx, vec, threshold, k)
	if err != nil {
		s.logger.Warn("cluster similarity search failed, treating as no match", zap.Error(err))
		return nil
	}
	return matches
}
