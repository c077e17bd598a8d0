package activity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"

	"github.com/onnwee/crowdpulse/internal/tracing"
)

// PostgresGateway implements Gateway and Recorder over the activity_records,
// sessions and session_participants tables (see migrations/).
type PostgresGateway struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresGateway creates a new PostgresGateway.
func NewPostgresGateway(db *sql.DB, logger *slog.Logger) *PostgresGateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresGateway{db: db, logger: logger}
}

// RecordActivity inserts a record.
func (g *PostgresGateway) RecordActivity(ctx context.Context, rec Record) (err error) {
	if err := rec.Validate(); err != nil {
		return err
	}

	ctx, end := tracing.StartDBSpan(ctx, "activity_records", tracing.DBOperationInsert)
	defer func() { end(err) }()

	var meta []byte
	if rec.Metadata != nil {
		meta, err = json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode activity metadata: %w", err)
		}
	}

	query := `
		INSERT INTO activity_records (session_id, participant_id, activity_type, score, metadata, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err = g.db.ExecContext(ctx, query,
		rec.SessionID, rec.ParticipantID, string(rec.Type), rec.Score, nullableJSON(meta), rec.OccurredAt,
	); err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}
	return nil
}

// GetActivityRecords returns the session's records ordered by occurred_at.
func (g *PostgresGateway) GetActivityRecords(ctx context.Context, sessionID string, since *time.Time) (_ []Record, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "activity_records", tracing.DBOperationQuery)
	defer func() { end(err) }()

	query := `
		SELECT session_id, participant_id, activity_type, score, metadata, occurred_at
		FROM activity_records
		WHERE session_id = $1 AND ($2::timestamptz IS NULL OR occurred_at >= $2)
		ORDER BY occurred_at ASC, id ASC
	`
	var sinceArg any
	if since != nil {
		sinceArg = *since
	}

	rows, err := g.db.QueryContext(ctx, query, sessionID, sinceArg)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec     Record
			rawType string
			meta    []byte
		)
		if err = rows.Scan(&rec.SessionID, &rec.ParticipantID, &rawType, &rec.Score, &meta, &rec.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity record: %w", err)
		}
		rec.Type, err = ParseType(rawType)
		if err != nil {
			// Rows written by other producers may carry types this engine ignores.
			g.logger.WarnContext(ctx, "skipping activity record with unknown type",
				"session_id", sessionID,
				"activity_type", rawType)
			err = nil
			continue
		}
		if len(meta) > 0 {
			if err = json.Unmarshal(meta, &rec.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode activity metadata: %w", err)
			}
		}
		records = append(records, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate activity records: %w", err)
	}
	return records, nil
}

// GetOrganizerActivity merges poll, question and resource creation events.
func (g *PostgresGateway) GetOrganizerActivity(ctx context.Context, sessionID string) (_ []OrganizerActivity, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "organizer_activity", tracing.DBOperationQuery)
	defer func() { end(err) }()

	query := `
		SELECT 'poll' AS kind, created_by, created_at FROM polls WHERE session_id = $1
		UNION ALL
		SELECT 'question', created_by, created_at FROM questions WHERE session_id = $1
		UNION ALL
		SELECT 'resource', created_by, created_at FROM resources WHERE session_id = $1
		ORDER BY created_at ASC
	`
	rows, err := g.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query organizer activity: %w", err)
	}
	defer rows.Close()

	var out []OrganizerActivity
	for rows.Next() {
		var (
			a    OrganizerActivity
			kind string
		)
		if err = rows.Scan(&kind, &a.ParticipantID, &a.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan organizer activity: %w", err)
		}
		a.Kind = OrganizerKind(kind)
		out = append(out, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate organizer activity: %w", err)
	}
	return out, nil
}

// GetSessionMetadata returns ErrSessionNotFound for unknown sessions.
func (g *PostgresGateway) GetSessionMetadata(ctx context.Context, sessionID string) (_ *SessionMetadata, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "sessions", tracing.DBOperationQuery)
	defer func() { end(err) }()

	query := `
		SELECT title, COALESCE(description, ''), organizer_id, started_at
		FROM sessions
		WHERE id = $1
	`
	var (
		meta    SessionMetadata
		started sql.NullTime
	)
	err = g.db.QueryRowContext(ctx, query, sessionID).Scan(&meta.Title, &meta.Description, &meta.OrganizerID, &started)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session metadata: %w", err)
	}
	if started.Valid {
		meta.StartedAt = &started.Time
	}
	return &meta, nil
}

// GetTotalParticipantCount counts joined participants plus anyone with a record.
func (g *PostgresGateway) GetTotalParticipantCount(ctx context.Context, sessionID string) (_ int, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "session_participants", tracing.DBOperationQuery)
	defer func() { end(err) }()

	query := `
		SELECT COUNT(*) FROM (
			SELECT participant_id FROM session_participants WHERE session_id = $1
			UNION
			SELECT participant_id FROM activity_records WHERE session_id = $1
		) p
	`
	var count int
	if err = g.db.QueryRowContext(ctx, query, sessionID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count participants: %w", err)
	}
	return count, nil
}

// GetLeaderboardRankPercentile ranks the participant by total score within the session.
func (g *PostgresGateway) GetLeaderboardRankPercentile(ctx context.Context, participantID, sessionID string) (_ float64, err error) {
	ctx, end := tracing.StartDBSpan(ctx, "activity_records", tracing.DBOperationQuery)
	defer func() { end(err) }()

	query := `
		WITH totals AS (
			SELECT participant_id, SUM(score) AS total
			FROM activity_records
			WHERE session_id = $1
			GROUP BY participant_id
		), ranked AS (
			SELECT participant_id,
			       RANK() OVER (ORDER BY total DESC) AS rank,
			       COUNT(*) OVER () AS field
			FROM totals
		)
		SELECT rank, field FROM ranked WHERE participant_id = $2
	`
	var rank, field int
	err = g.db.QueryRowContext(ctx, query, sessionID, participantID).Scan(&rank, &field)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrParticipantNotRanked
	}
	if err != nil {
		return 0, fmt.Errorf("failed to rank participant: %w", err)
	}
	return RankPercentile(rank, field), nil
}

// HealthCheck verifies database connectivity.
func (g *PostgresGateway) HealthCheck(ctx context.Context) error {
	return g.db.PingContext(ctx)
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
