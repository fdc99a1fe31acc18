package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/painscout/painscout/internal/types"
)

const opportunityColumns = `
	id, title, cluster_id, description, status, origin,
	score_total, verdict, confidence, scored_at, created_at, updated_at`

// CreateOpportunity inserts an opportunity. A second auto opportunity for the
// same cluster violates a unique index and fails.
func (s *SQLiteStorage) CreateOpportunity(ctx context.Context, opp *types.Opportunity) error {
	if opp.ID == "" {
		opp.ID = uuid.NewString()
	}
	if opp.Status == "" {
		opp.Status = types.OpportunityNew
	}
	if opp.Origin == "" {
		opp.Origin = types.OpportunityAuto
	}
	now := s.now()
	opp.CreatedAt = now
	opp.UpdatedAt = now

	if err := opp.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO opportunities (`+opportunityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		opp.ID, opp.Title, opp.ClusterID, opp.Description, opp.Status, opp.Origin,
		nullFloat(opp.ScoreTotal), sql.NullString{String: string(opp.Verdict), Valid: opp.Verdict != ""},
		nullFloat(opp.Confidence), formatNullTime(opp.ScoredAt),
		formatTime(opp.CreatedAt), formatTime(opp.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("auto opportunity for cluster %s already exists: %w", opp.ClusterID, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to insert opportunity (cluster=%s): %w", opp.ClusterID, err)
	}
	return nil
}

// GetOpportunity retrieves an opportunity by ID
func (s *SQLiteStorage) GetOpportunity(ctx context.Context, id string) (*types.Opportunity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+opportunityColumns+` FROM opportunities WHERE id = ?`, id)
	opp, err := scanOpportunity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("opportunity %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get opportunity: %w", err)
	}
	return opp, nil
}

// GetAutoOpportunityForCluster returns the pipeline-created opportunity for a
// cluster, or ErrNotFound
func (s *SQLiteStorage) GetAutoOpportunityForCluster(ctx context.Context, clusterID string) (*types.Opportunity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+opportunityColumns+` FROM opportunities
		WHERE cluster_id = ? AND origin = 'auto'
	`, clusterID)
	opp, err := scanOpportunity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("auto opportunity for cluster %s: %w", clusterID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get opportunity for cluster: %w", err)
	}
	return opp, nil
}

// ListOpportunities returns opportunities matching filter, best score first
func (s *SQLiteStorage) ListOpportunities(ctx context.Context, filter types.OpportunityFilter) ([]*types.Opportunity, error) {
	query := `SELECT ` + opportunityColumns + ` FROM opportunities WHERE 1=1`
	args := []interface{}{}

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}
	if filter.Verdict != "" {
		query += " AND verdict = ?"
		args = append(args, filter.Verdict)
	}

	// Unscored rows sort last
	query += " ORDER BY score_total IS NULL, score_total DESC, created_at ASC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query opportunities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var opps []*types.Opportunity
	for rows.Next() {
		opp, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan opportunity: %w", err)
		}
		opps = append(opps, opp)
	}
	return opps, rows.Err()
}

// UpdateOpportunityScore stores the latest score. A new opportunity moves to
// scored; one already under review keeps its status.
func (s *SQLiteStorage) UpdateOpportunityScore(ctx context.Context, id string, score float64, verdict types.Verdict, confidence float64, scoredAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE opportunities SET
			score_total = ?, verdict = ?, confidence = ?, scored_at = ?,
			status = CASE WHEN status = 'new' THEN 'scored' ELSE status END,
			updated_at = ?
		WHERE id = ?
	`, score, verdict, confidence, formatTime(scoredAt), formatTime(s.now()), id)
	if err != nil {
		return fmt.Errorf("failed to update opportunity score for %s: %w", id, err)
	}
	return s.expectOneRow(ctx, res, "opportunities", id)
}

// UpdateOpportunityStatus moves an opportunity through review
func (s *SQLiteStorage) UpdateOpportunityStatus(ctx context.Context, id string, status types.OpportunityStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid status: %s", status)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE opportunities SET status = ?, updated_at = ? WHERE id = ?
	`, status, formatTime(s.now()), id)
	if err != nil {
		return fmt.Errorf("failed to update opportunity status for %s: %w", id, err)
	}
	return s.expectOneRow(ctx, res, "opportunities", id)
}

func scanOpportunity(row rowScanner) (*types.Opportunity, error) {
	var opp types.Opportunity
	var score, confidence sql.NullFloat64
	var verdict, scoredAt sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&opp.ID, &opp.Title, &opp.ClusterID, &opp.Description, &opp.Status, &opp.Origin,
		&score, &verdict, &confidence, &scoredAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if score.Valid {
		opp.ScoreTotal = &score.Float64
	}
	if confidence.Valid {
		opp.Confidence = &confidence.Float64
	}
	if verdict.Valid {
		opp.Verdict = types.Verdict(verdict.String)
	}
	if opp.ScoredAt, err = parseNullTime(scoredAt); err != nil {
		return nil, err
	}
	if opp.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if opp.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &opp, nil
}
