package badge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/onnwee/crowdpulse/internal/tracing"
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint conflict.
const uniqueViolation = "23505"

// PostgresAwardStore stores awards in the badge_awards table, relying on its
// unique constraint for exactly-once creation across instances.
type PostgresAwardStore struct {
	db *sql.DB
}

// NewPostgresAwardStore creates a new PostgresAwardStore.
func NewPostgresAwardStore(db *sql.DB) *PostgresAwardStore {
	return &PostgresAwardStore{db: db}
}

// HasBadge reports whether the award row exists.
func (s *PostgresAwardStore) HasBadge(ctx context.Context, participantID, sessionID, badgeID string) (_ bool, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "badge_awards", tracing.DBOperationQuery)
	defer func() { end(err) }()

	query := `
		SELECT EXISTS (
			SELECT 1 FROM badge_awards
			WHERE participant_id = $1 AND session_id = $2 AND badge_id = $3
		)
	`
	var exists bool
	if err = s.db.QueryRowContext(ctx, query, participantID, sessionID, badgeID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check badge award: %w", err)
	}
	return exists, nil
}

// CreateBadgeAward inserts the award. A conflicting row yields AlreadyExists.
func (s *PostgresAwardStore) CreateBadgeAward(ctx context.Context, award Award) (_ CreateResult, err error) {
	if err := award.validate(); err != nil {
		return 0, err
	}

	ctx, end := tracing.StartDBSpan(ctx, "badge_awards", tracing.DBOperationInsert)
	defer func() { end(err) }()

	query := `
		INSERT INTO badge_awards (participant_id, session_id, badge_id, earned_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT ON CONSTRAINT badge_awards_unique DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query, award.ParticipantID, award.SessionID, award.BadgeID, award.EarnedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return AlreadyExists, nil
		}
		return 0, fmt.Errorf("failed to create badge award: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read badge award result: %w", err)
	}
	if n == 0 {
		return AlreadyExists, nil
	}
	return Created, nil
}

// ListSessionAwards returns a session's awards ordered by earned_at.
func (s *PostgresAwardStore) ListSessionAwards(ctx context.Context, sessionID string) (_ []Award, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "badge_awards", tracing.DBOperationQuery)
	defer func() { end(err) }()

	query := `
		SELECT participant_id, session_id, badge_id, earned_at
		FROM badge_awards
		WHERE session_id = $1
		ORDER BY earned_at, participant_id, badge_id
	`
	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list badge awards: %w", err)
	}
	defer rows.Close()

	var awards []Award
	for rows.Next() {
		var a Award
		if err = rows.Scan(&a.ParticipantID, &a.SessionID, &a.BadgeID, &a.EarnedAt); err != nil {
			return nil, fmt.Errorf("failed to scan badge award: %w", err)
		}
		awards = append(awards, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate badge awards: %w", err)
	}
	return awards, nil
}
