package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/painscout/painscout/internal/embedding"
	"github.com/painscout/painscout/internal/types"
)

const signalColumns = `
	id, source, source_id, raw_text, thread_title, parent_context, url,
	engagement_score, posted_at, status, classification, is_noise,
	cluster_id, embedding, created_at, updated_at`

// InsertSignal stores a new signal. A signal whose (source, source_id) already
// exists is skipped and reported as not inserted.
func (s *SQLiteStorage) InsertSignal(ctx context.Context, signal *types.RawSignal) (bool, error) {
	if err := signal.Validate(); err != nil {
		return false, fmt.Errorf("validation failed: %w", err)
	}

	if signal.ID == "" {
		signal.ID = uuid.NewString()
	}
	now := s.now()
	if signal.CreatedAt.IsZero() {
		signal.CreatedAt = now
	}
	signal.UpdatedAt = now
	if signal.Status == "" {
		signal.Status = types.SignalNew
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO raw_signals (
			id, source, source_id, raw_text, thread_title, parent_context, url,
			engagement_score, posted_at, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, source_id) DO NOTHING
	`,
		signal.ID, signal.Source, signal.SourceID, signal.RawText, signal.ThreadTitle,
		signal.ParentContext, signal.URL, signal.EngagementScore, formatNullTime(signal.PostedAt),
		signal.Status, formatTime(signal.CreatedAt), formatTime(signal.UpdatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert signal (source=%s, source_id=%s): %w", signal.Source, signal.SourceID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n == 1, nil
}

// GetSignal retrieves a signal by ID
func (s *SQLiteStorage) GetSignal(ctx context.Context, id string) (*types.RawSignal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+signalColumns+` FROM raw_signals WHERE id = ?`, id)
	signal, err := scanSignal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("signal %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get signal: %w", err)
	}
	return signal, nil
}

// ListUnprocessedSignals returns up to limit signals still awaiting classification,
// highest engagement first. IDs in exclude are skipped.
func (s *SQLiteStorage) ListUnprocessedSignals(ctx context.Context, limit int, exclude []string) ([]*types.RawSignal, error) {
	query := `SELECT ` + signalColumns + `
		FROM raw_signals
		WHERE status IN ('new', 'processing')`
	args := []interface{}{}

	// one JSON array parameter, so the list is not bound by SQLite's variable limit
	if len(exclude) > 0 {
		ids, err := json.Marshal(exclude)
		if err != nil {
			return nil, fmt.Errorf("failed to encode excluded ids: %w", err)
		}
		query += " AND id NOT IN (SELECT value FROM json_each(?))"
		args = append(args, string(ids))
	}

	query += " ORDER BY engagement_score DESC, created_at ASC, id ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	return s.querySignals(ctx, query, args...)
}

// ListUnclusteredSignals returns classified, non-noise signals with no cluster
func (s *SQLiteStorage) ListUnclusteredSignals(ctx context.Context) ([]*types.RawSignal, error) {
	return s.querySignals(ctx, `SELECT `+signalColumns+`
		FROM raw_signals
		WHERE status = 'classified' AND is_noise = 0 AND cluster_id IS NULL
		ORDER BY created_at ASC, id ASC`)
}

// ListClusterSignals returns a cluster's members, highest engagement first
func (s *SQLiteStorage) ListClusterSignals(ctx context.Context, clusterID string, limit int) ([]*types.RawSignal, error) {
	query := `SELECT ` + signalColumns + `
		FROM raw_signals
		WHERE cluster_id = ?
		ORDER BY engagement_score DESC, created_at ASC, id ASC`
	args := []interface{}{clusterID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.querySignals(ctx, query, args...)
}

// SaveClassification records a classification and moves the signal to its
// terminal state (classified or noise). Only signals still awaiting
// classification are updated; anything else yields ErrConflict.
func (s *SQLiteStorage) SaveClassification(ctx context.Context, signalID string, c *types.Classification) error {
	if c == nil {
		return fmt.Errorf("classification is required")
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	blob, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal classification: %w", err)
	}
	tools := c.ToolsMentioned
	if tools == nil {
		tools = []string{}
	}
	toolsJSON, err := json.Marshal(tools)
	if err != nil {
		return fmt.Errorf("failed to marshal tools: %w", err)
	}

	status := types.SignalClassified
	if c.IsNoise {
		status = types.SignalNoise
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE raw_signals SET
			status = ?, pain_category = ?, intensity = ?, specificity = ?, wtp = ?,
			budget_mentioned = ?, tools_mentioned = ?, existing_workarounds = ?,
			target_persona = ?, suggested_niche = ?, is_noise = ?, classification = ?,
			updated_at = ?
		WHERE id = ? AND status IN ('new', 'processing')
	`,
		status, c.PainCategory, nullInt(c.Intensity), nullInt(c.Specificity), c.WTP,
		nullFloat(c.BudgetMentioned), string(toolsJSON), c.ExistingWorkarounds,
		c.TargetPersona, c.SuggestedNiche, boolToInt(c.IsNoise), string(blob),
		formatTime(s.now()), signalID,
	)
	if err != nil {
		return fmt.Errorf("failed to save classification for %s: %w", signalID, err)
	}
	return s.expectOneRow(ctx, res, "raw_signals", signalID)
}

// MarkForcedNoise terminates a signal whose classification failed
func (s *SQLiteStorage) MarkForcedNoise(ctx context.Context, signalID string, reason string) error {
	c := types.ForcedNoise(reason)
	return s.SaveClassification(ctx, signalID, &c)
}

// SaveSignalEmbedding stores the signal's vector
func (s *SQLiteStorage) SaveSignalEmbedding(ctx context.Context, signalID string, vec []float32) error {
	encoded, err := embedding.EncodeVector(vec)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE raw_signals SET embedding = ?, updated_at = ? WHERE id = ?
	`, encoded, formatTime(s.now()), signalID)
	if err != nil {
		return fmt.Errorf("failed to save embedding for %s: %w", signalID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("signal %s: %w", signalID, ErrNotFound)
	}
	return nil
}

// LinkSignalToCluster sets the signal's cluster only if it has none yet.
// It reports false when another writer linked the signal first.
func (s *SQLiteStorage) LinkSignalToCluster(ctx context.Context, signalID, clusterID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE raw_signals SET cluster_id = ?, updated_at = ?
		WHERE id = ? AND cluster_id IS NULL
	`, clusterID, formatTime(s.now()), signalID)
	if err != nil {
		return false, fmt.Errorf("failed to link signal %s to cluster %s: %w", signalID, clusterID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n == 1, nil
}

// expectOneRow turns a zero-row conditional update into ErrNotFound or ErrConflict
func (s *SQLiteStorage) expectOneRow(ctx context.Context, res sql.Result, table, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}
	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table+` WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check %s row: %w", table, err)
	}
	if exists == 0 {
		return fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", table, id, ErrConflict)
}

func (s *SQLiteStorage) querySignals(ctx context.Context, query string, args ...interface{}) ([]*types.RawSignal, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var signals []*types.RawSignal
	for rows.Next() {
		signal, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		signals = append(signals, signal)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signals: %w", err)
	}
	return signals, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSignal(row rowScanner) (*types.RawSignal, error) {
	var signal types.RawSignal
	var postedAt, classification, clusterID, vec sql.NullString
	var createdAt, updatedAt string
	var isNoise int

	err := row.Scan(
		&signal.ID, &signal.Source, &signal.SourceID, &signal.RawText,
		&signal.ThreadTitle, &signal.ParentContext, &signal.URL,
		&signal.EngagementScore, &postedAt, &signal.Status, &classification,
		&isNoise, &clusterID, &vec, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	signal.IsNoise = isNoise == 1
	if signal.PostedAt, err = parseNullTime(postedAt); err != nil {
		return nil, err
	}
	if signal.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if signal.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if clusterID.Valid {
		id := clusterID.String
		signal.ClusterID = &id
	}
	if classification.Valid && classification.String != "" {
		var c types.Classification
		if err := json.Unmarshal([]byte(classification.String), &c); err != nil {
			return nil, fmt.Errorf("failed to decode classification for %s: %w", signal.ID, err)
		}
		signal.Classification = &c
	}
	if vec.Valid {
		if signal.Embedding, err = embedding.DecodeVector(vec.String); err != nil {
			return nil, err
		}
	}
	return &signal, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
