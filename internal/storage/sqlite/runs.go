package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/painscout/painscout/internal/types"
)

// RecordRun writes the audit record for one run
func (s *SQLiteStorage) RecordRun(ctx context.Context, run *types.RunSummary) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.AgentName == "" {
		return fmt.Errorf("agent_name is required")
	}
	errs := run.Errors
	if errs == nil {
		errs = []string{}
	}
	errsJSON, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("failed to marshal run errors: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agent_runs (
			id, agent_name, source, signals_found, signals_new, signals_noise,
			signals_clustered, clusters_created, status, started_at, completed_at,
			duration_seconds, errors
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID, run.AgentName, run.Source, run.SignalsFound, run.SignalsNew, run.SignalsNoise,
		run.SignalsClustered, run.ClustersCreated, run.Status, formatTime(run.StartedAt),
		formatTime(run.CompletedAt), run.DurationSeconds, string(errsJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to record run (agent=%s): %w", run.AgentName, err)
	}
	return nil
}

// ListRuns returns the most recent runs first
func (s *SQLiteStorage) ListRuns(ctx context.Context, limit int) ([]*types.RunSummary, error) {
	query := `
		SELECT id, agent_name, source, signals_found, signals_new, signals_noise,
		       signals_clustered, clusters_created, status, started_at, completed_at,
		       duration_seconds, errors
		FROM agent_runs
		ORDER BY completed_at DESC, id DESC`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*types.RunSummary
	for rows.Next() {
		var run types.RunSummary
		var started, completed, errsJSON string
		err := rows.Scan(
			&run.ID, &run.AgentName, &run.Source, &run.SignalsFound, &run.SignalsNew,
			&run.SignalsNoise, &run.SignalsClustered, &run.ClustersCreated, &run.Status,
			&started, &completed, &run.DurationSeconds, &errsJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if run.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if run.CompletedAt, err = parseTime(completed); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(errsJSON), &run.Errors); err != nil {
			return nil, fmt.Errorf("failed to decode run errors: %w", err)
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// RecordUsage stores one metered model call
func (s *SQLiteStorage) RecordUsage(ctx context.Context, event *types.UsageEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_events (
			id, operation, model, subject_id, input_tokens, output_tokens, cost_usd, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.ID, event.Operation, event.Model, event.SubjectID, event.InputTokens,
		event.OutputTokens, event.CostUSD, formatTime(event.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to record usage (operation=%s): %w", event.Operation, err)
	}
	return nil
}

// GetStatistics summarizes the database
func (s *SQLiteStorage) GetStatistics(ctx context.Context) (*types.Statistics, error) {
	stats := &types.Statistics{SignalsBySource: map[types.Source]int{}}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status IN ('new', 'processing') THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'noise' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'classified' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN cluster_id IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM raw_signals
	`).Scan(&stats.TotalSignals, &stats.UnprocessedSignals, &stats.NoiseSignals,
		&stats.ClassifiedSignals, &stats.ClusteredSignals)
	if err != nil {
		return nil, fmt.Errorf("failed to count signals: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pain_clusters`).Scan(&stats.TotalClusters); err != nil {
		return nil, fmt.Errorf("failed to count clusters: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM opportunities`).Scan(&stats.TotalOpportunities); err != nil {
		return nil, fmt.Errorf("failed to count opportunities: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(cost_usd), 0) FROM usage_events`).Scan(&stats.TotalUsageCostUSD); err != nil {
		return nil, fmt.Errorf("failed to sum usage: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT source, COUNT(*) FROM raw_signals GROUP BY source`)
	if err != nil {
		return nil, fmt.Errorf("failed to count signals by source: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var source types.Source
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return nil, fmt.Errorf("failed to scan source count: %w", err)
		}
		stats.SignalsBySource[source] = n
	}
	return stats, rows.Err()
}
