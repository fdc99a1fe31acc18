package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/painscout/painscout/internal/embedding"
	"github.com/painscout/painscout/internal/types"
)

// NearestSignals returns up to k embedded signals whose cosine similarity to vec
// is at least threshold, best first. excludeID is never returned.
func (s *SQLiteStorage) NearestSignals(ctx context.Context, vec []float32, threshold float64, k int, excludeID string) ([]types.SimilarityMatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.embedding, r.cluster_id, c.created_at
		FROM raw_signals r
		LEFT JOIN pain_clusters c ON c.id = r.cluster_id
		WHERE r.embedding IS NOT NULL AND r.id != ?
	`, excludeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query signal embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var matches []types.SimilarityMatch
	for rows.Next() {
		var id, encoded string
		var clusterID, clusterCreated sql.NullString
		if err := rows.Scan(&id, &encoded, &clusterID, &clusterCreated); err != nil {
			return nil, fmt.Errorf("failed to scan signal embedding: %w", err)
		}
		m, ok := s.score(vec, "signal", id, encoded, threshold)
		if !ok {
			continue
		}
		if clusterID.Valid {
			m.ClusterID = clusterID.String
			if m.ClusterCreatedAt, err = parseTime(clusterCreated.String); err != nil {
				return nil, err
			}
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signal embeddings: %w", err)
	}
	return topK(matches, k), nil
}

// NearestClusters returns up to k clusters whose centroid is at least threshold
// similar to vec, best first
func (s *SQLiteStorage) NearestClusters(ctx context.Context, vec []float32, threshold float64, k int) ([]types.SimilarityMatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, centroid, created_at FROM pain_clusters WHERE centroid IS NOT NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cluster centroids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var matches []types.SimilarityMatch
	for rows.Next() {
		var id, encoded, created string
		if err := rows.Scan(&id, &encoded, &created); err != nil {
			return nil, fmt.Errorf("failed to scan cluster centroid: %w", err)
		}
		m, ok := s.score(vec, "cluster", id, encoded, threshold)
		if !ok {
			continue
		}
		m.ClusterID = id
		if m.ClusterCreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cluster centroids: %w", err)
	}
	return topK(matches, k), nil
}

// score reports whether the stored vector is a match. An undecodable vector is
// logged and skipped so one corrupt row cannot blind the whole search.
func (s *SQLiteStorage) score(vec []float32, kind, id, encoded string, threshold float64) (types.SimilarityMatch, bool) {
	stored, err := embedding.DecodeVector(encoded)
	if err != nil {
		s.logger.Warn("skipping undecodable vector",
			zap.String("kind", kind),
			zap.String("id", id),
			zap.Error(err))
		return types.SimilarityMatch{}, false
	}
	sim := embedding.CosineSimilarity(vec, stored)
	if sim < threshold {
		return types.SimilarityMatch{}, false
	}
	return types.SimilarityMatch{ID: id, Similarity: sim}, true
}

// topK orders by similarity desc then id so results are stable across calls
func topK(matches []types.SimilarityMatch, k int) []types.SimilarityMatch {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].ID < matches[j].ID
	})
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches
}
