package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/painscout/painscout/internal/types"
)

const snapshotColumns = `
	opportunity_id, snapshot_date, score_total, verdict, confidence,
	score_breakdown, explanations, created_at, updated_at`

// UpsertScoringSnapshot writes the day's score for an opportunity. Explanation
// keys in snap are merged over any already stored; other keys keep their bytes.
// On return snap.Explanations holds the merged bag.
func (s *SQLiteStorage) UpsertScoringSnapshot(ctx context.Context, snap *types.ScoringSnapshot) error {
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	breakdown := snap.ScoreBreakdown
	if len(breakdown) == 0 {
		breakdown = json.RawMessage(`{}`)
	}
	if !json.Valid(breakdown) {
		return fmt.Errorf("score_breakdown is not valid JSON")
	}

	return s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		existing, err := readExplanations(ctx, conn, snap.OpportunityID, snap.SnapshotDate)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		merged := types.MergeExplanations(existing, snap.Explanations)
		encoded, err := encodeExplanations(merged)
		if err != nil {
			return err
		}

		now := formatTime(s.now())
		_, err = conn.ExecContext(ctx, `
			INSERT INTO scoring_snapshots (`+snapshotColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(opportunity_id, snapshot_date) DO UPDATE SET
				score_total = excluded.score_total,
				verdict = excluded.verdict,
				confidence = excluded.confidence,
				score_breakdown = excluded.score_breakdown,
				explanations = excluded.explanations,
				updated_at = excluded.updated_at
		`,
			snap.OpportunityID, snap.SnapshotDate, snap.ScoreTotal, snap.Verdict, snap.Confidence,
			string(breakdown), encoded, now, now,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert snapshot for %s on %s: %w", snap.OpportunityID, snap.SnapshotDate, err)
		}
		snap.Explanations = merged
		return nil
	})
}

// MergeSnapshotExplanations overlays patch onto an existing snapshot's
// explanations. Keys not in patch are left byte-identical.
func (s *SQLiteStorage) MergeSnapshotExplanations(ctx context.Context, opportunityID, date string, patch map[string]json.RawMessage) error {
	for k, v := range patch {
		if !json.Valid(v) {
			return fmt.Errorf("explanation %q is not valid JSON", k)
		}
	}

	return s.withImmediateTx(ctx, func(conn *sql.Conn) error {
		existing, err := readExplanations(ctx, conn, opportunityID, date)
		if err != nil {
			return err
		}
		encoded, err := encodeExplanations(types.MergeExplanations(existing, patch))
		if err != nil {
			return err
		}
		_, err = conn.ExecContext(ctx, `
			UPDATE scoring_snapshots SET explanations = ?, updated_at = ?
			WHERE opportunity_id = ? AND snapshot_date = ?
		`, encoded, formatTime(s.now()), opportunityID, date)
		if err != nil {
			return fmt.Errorf("failed to merge explanations for %s on %s: %w", opportunityID, date, err)
		}
		return nil
	})
}

// GetScoringSnapshot retrieves one day's snapshot
func (s *SQLiteStorage) GetScoringSnapshot(ctx context.Context, opportunityID, date string) (*types.ScoringSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+snapshotColumns+` FROM scoring_snapshots
		WHERE opportunity_id = ? AND snapshot_date = ?
	`, opportunityID, date)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot %s/%s: %w", opportunityID, date, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return snap, nil
}

// ListScoringSnapshots returns an opportunity's history, newest first
func (s *SQLiteStorage) ListScoringSnapshots(ctx context.Context, opportunityID string) ([]*types.ScoringSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+snapshotColumns+` FROM scoring_snapshots
		WHERE opportunity_id = ?
		ORDER BY snapshot_date DESC
	`, opportunityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snaps []*types.ScoringSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

func readExplanations(ctx context.Context, conn *sql.Conn, opportunityID, date string) (map[string]json.RawMessage, error) {
	var raw string
	err := conn.QueryRowContext(ctx, `
		SELECT explanations FROM scoring_snapshots
		WHERE opportunity_id = ? AND snapshot_date = ?
	`, opportunityID, date).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot %s/%s: %w", opportunityID, date, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read explanations: %w", err)
	}
	return decodeExplanations(raw)
}

func decodeExplanations(raw string) (map[string]json.RawMessage, error) {
	out := map[string]json.RawMessage{}
	if raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("failed to decode explanations: %w", err)
	}
	return out, nil
}

// encodeExplanations writes each value verbatim. json.Marshal would re-compact
// RawMessage values and change their bytes.
func encodeExplanations(m map[string]json.RawMessage) (string, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		v := m[k]
		if !json.Valid(v) {
			return "", fmt.Errorf("explanation %q is not valid JSON", k)
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return "", err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.String(), nil
}

func scanSnapshot(row rowScanner) (*types.ScoringSnapshot, error) {
	var snap types.ScoringSnapshot
	var breakdown, explanations, createdAt, updatedAt string

	err := row.Scan(
		&snap.OpportunityID, &snap.SnapshotDate, &snap.ScoreTotal, &snap.Verdict,
		&snap.Confidence, &breakdown, &explanations, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	snap.ScoreBreakdown = json.RawMessage(breakdown)
	if snap.Explanations, err = decodeExplanations(explanations); err != nil {
		return nil, err
	}
	if snap.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if snap.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &snap, nil
}
