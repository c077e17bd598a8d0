package activity

import (
	"context"
	"time"
)

// Gateway is the read interface the engine consumes from the activity store.
// Implementations must return records ordered by OccurredAt ascending.
type Gateway interface {
	// GetActivityRecords returns records for a session, optionally only those
	// at or after since.
	GetActivityRecords(ctx context.Context, sessionID string, since *time.Time) ([]Record, error)

	// GetOrganizerActivity returns poll, question and resource creation events.
	GetOrganizerActivity(ctx context.Context, sessionID string) ([]OrganizerActivity, error)

	// GetSessionMetadata returns ErrSessionNotFound when the session is unknown.
	GetSessionMetadata(ctx context.Context, sessionID string) (*SessionMetadata, error)

	// GetTotalParticipantCount counts everyone who joined or acted in the session.
	GetTotalParticipantCount(ctx context.Context, sessionID string) (int, error)

	RankSource
}

// RankSource resolves a participant's leaderboard percentile within a session.
type RankSource interface {
	GetLeaderboardRankPercentile(ctx context.Context, participantID, sessionID string) (float64, error)
}

// Recorder appends activity. The engine itself never writes records; the
// service shell uses this to accept scoring events.
type Recorder interface {
	RecordActivity(ctx context.Context, rec Record) error
}
