package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/painscout/painscout/internal/embedding"
	"github.com/painscout/painscout/internal/scoring"
	"github.com/painscout/painscout/internal/types"
)

const clusterColumns = `id, title, slug, pain_category, description, centroid, origin, first_seen, last_seen, created_at`

// CreateCluster inserts a new cluster. Slugs are unique; a duplicate slug is an error.
func (s *SQLiteStorage) CreateCluster(ctx context.Context, cluster *types.PainCluster) error {
	now := s.now()
	if cluster.ID == "" {
		cluster.ID = uuid.NewString()
	}
	if cluster.Origin == "" {
		cluster.Origin = types.OriginEmbedding
	}
	if cluster.FirstSeen.IsZero() {
		cluster.FirstSeen = now
	}
	if cluster.LastSeen.IsZero() {
		cluster.LastSeen = cluster.FirstSeen
	}
	cluster.CreatedAt = now

	if err := cluster.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	centroid, err := embedding.EncodeVector(cluster.Centroid)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pain_clusters (`+clusterColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		cluster.ID, cluster.Title, cluster.Slug, cluster.PainCategory, cluster.Description,
		sql.NullString{String: centroid, Valid: centroid != ""}, cluster.Origin,
		formatTime(cluster.FirstSeen), formatTime(cluster.LastSeen), formatTime(cluster.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert cluster (slug=%s): %w", cluster.Slug, err)
	}
	return nil
}

// GetCluster retrieves a cluster by ID
func (s *SQLiteStorage) GetCluster(ctx context.Context, id string) (*types.PainCluster, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+clusterColumns+` FROM pain_clusters WHERE id = ?`, id)
	cluster, err := scanCluster(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cluster %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cluster: %w", err)
	}
	return cluster, nil
}

// ListClusters returns every cluster, oldest first
func (s *SQLiteStorage) ListClusters(ctx context.Context) ([]*types.PainCluster, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+clusterColumns+` FROM pain_clusters ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query clusters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var clusters []*types.PainCluster
	for rows.Next() {
		cluster, err := scanCluster(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cluster: %w", err)
		}
		clusters = append(clusters, cluster)
	}
	return clusters, rows.Err()
}

// TouchCluster moves last_seen forward to seen. It never moves it back.
func (s *SQLiteStorage) TouchCluster(ctx context.Context, clusterID string, seen time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pain_clusters SET last_seen = MAX(last_seen, ?) WHERE id = ?
	`, formatTime(seen), clusterID)
	if err != nil {
		return fmt.Errorf("failed to touch cluster %s: %w", clusterID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("cluster %s: %w", clusterID, ErrNotFound)
	}
	return nil
}

// GetClusterStats aggregates one cluster's members as of now
func (s *SQLiteStorage) GetClusterStats(ctx context.Context, clusterID string, now time.Time) (*types.ClusterStats, error) {
	cluster, err := s.GetCluster(ctx, clusterID)
	if err != nil {
		return nil, err
	}
	stats, err := s.aggregateStats(ctx, []*types.PainCluster{cluster}, now)
	if err != nil {
		return nil, err
	}
	return stats[0], nil
}

// ListClusterStats aggregates every cluster with at least minSignals members
func (s *SQLiteStorage) ListClusterStats(ctx context.Context, minSignals int, now time.Time) ([]*types.ClusterStats, error) {
	clusters, err := s.ListClusters(ctx)
	if err != nil {
		return nil, err
	}
	all, err := s.aggregateStats(ctx, clusters, now)
	if err != nil {
		return nil, err
	}

	var out []*types.ClusterStats
	for _, st := range all {
		if st.SignalCount >= minSignals {
			out = append(out, st)
		}
	}
	return out, nil
}

// aggregateStats computes ClusterStats for clusters in one pass over member rows.
// The result order matches clusters.
func (s *SQLiteStorage) aggregateStats(ctx context.Context, clusters []*types.PainCluster, now time.Time) ([]*types.ClusterStats, error) {
	byID := make(map[string]*statsBuilder, len(clusters))
	out := make([]*types.ClusterStats, len(clusters))
	for i, c := range clusters {
		st := &types.ClusterStats{
			ClusterID:    c.ID,
			Title:        c.Title,
			PainCategory: c.PainCategory,
			WTPCounts:    map[types.WTP]int{},
			FirstSeen:    c.FirstSeen,
			LastSeen:     c.LastSeen,
		}
		out[i] = st
		byID[c.ID] = newStatsBuilder(st)
	}
	if len(clusters) == 0 {
		return out, nil
	}

	query := `
		SELECT cluster_id, source, intensity, wtp, tools_mentioned,
		       COALESCE(posted_at, created_at), engagement_score, suggested_niche
		FROM raw_signals
		WHERE cluster_id IS NOT NULL`
	args := []interface{}{}
	if len(clusters) == 1 {
		query += " AND cluster_id = ?"
		args = append(args, clusters[0].ID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cluster members: %w", err)
	}
	defer func() { _ = rows.Close() }()

	recentCutoff := formatTime(now.Add(-scoring.RecentWindow))
	for rows.Next() {
		var clusterID, source, toolsJSON, seen, niche string
		var intensity sql.NullInt64
		var wtp sql.NullString
		var engagement int
		if err := rows.Scan(&clusterID, &source, &intensity, &wtp, &toolsJSON, &seen, &engagement, &niche); err != nil {
			return nil, fmt.Errorf("failed to scan cluster member: %w", err)
		}
		b, ok := byID[clusterID]
		if !ok {
			continue
		}

		var tools []string
		if toolsJSON != "" {
			if err := json.Unmarshal([]byte(toolsJSON), &tools); err != nil {
				return nil, fmt.Errorf("failed to decode tools for cluster %s: %w", clusterID, err)
			}
		}
		b.add(source, intensity, wtp, tools, seen >= recentCutoff, engagement, niche)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cluster members: %w", err)
	}

	for _, b := range byID {
		b.finish()
	}
	return out, nil
}

type statsBuilder struct {
	stats     *types.ClusterStats
	platforms map[string]struct{}
	tools     map[string]struct{}
	niches    map[string]int
}

func newStatsBuilder(st *types.ClusterStats) *statsBuilder {
	return &statsBuilder{
		stats:     st,
		platforms: map[string]struct{}{},
		tools:     map[string]struct{}{},
		niches:    map[string]int{},
	}
}

func (b *statsBuilder) add(source string, intensity sql.NullInt64, wtp sql.NullString, tools []string, recent bool, engagement int, niche string) {
	st := b.stats
	st.SignalCount++
	st.TotalEngagement += engagement
	b.platforms[source] = struct{}{}

	if intensity.Valid {
		st.IntensitySum += int(intensity.Int64)
		st.IntensityCount++
	}
	if wtp.Valid && types.WTP(wtp.String).IsValid() {
		st.WTPCounts[types.WTP(wtp.String)]++
	}
	if len(tools) > 0 {
		st.SignalsWithTools++
		for _, t := range tools {
			b.tools[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
		}
	}
	if recent {
		st.RecentSignals++
	}
	if niche != "" {
		b.niches[niche]++
	}
}

func (b *statsBuilder) finish() {
	b.stats.PlatformCount = len(b.platforms)
	b.stats.DistinctTools = len(b.tools)
	b.stats.TopNiche = mostCommon(b.niches)
}

// mostCommon returns the key with the highest count; ties go to the lexically smallest key
func mostCommon(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	best, bestCount := "", 0
	for _, k := range keys {
		if counts[k] > bestCount {
			best, bestCount = k, counts[k]
		}
	}
	return best
}

func scanCluster(row rowScanner) (*types.PainCluster, error) {
	var c types.PainCluster
	var centroid sql.NullString
	var firstSeen, lastSeen, createdAt string

	err := row.Scan(
		&c.ID, &c.Title, &c.Slug, &c.PainCategory, &c.Description,
		&centroid, &c.Origin, &firstSeen, &lastSeen, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	if c.FirstSeen, err = parseTime(firstSeen); err != nil {
		return nil, err
	}
	if c.LastSeen, err = parseTime(lastSeen); err != nil {
		return nil, err
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if centroid.Valid {
		if c.Centroid, err = embedding.DecodeVector(centroid.String); err != nil {
			return nil, err
		}
	}
	return &c, nil
}
