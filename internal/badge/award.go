package badge

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidAward is returned when an award is missing one of its keys.
var ErrInvalidAward = errors.New("badge award requires participant, session and badge IDs")

// Award records that a participant earned a badge in a session.
// At most one award exists per (participant, session, badge).
type Award struct {
	ParticipantID string    `json:"participant_id"`
	SessionID     string    `json:"session_id"`
	BadgeID       string    `json:"badge_id"`
	EarnedAt      time.Time `json:"earned_at"`
}

func (a Award) validate() error {
	if a.ParticipantID == "" || a.SessionID == "" || a.BadgeID == "" {
		return ErrInvalidAward
	}
	return nil
}

// CreateResult distinguishes a fresh insert from a lost race.
type CreateResult int

const (
	Created CreateResult = iota + 1
	AlreadyExists
)

func (r CreateResult) String() string {
	switch r {
	case Created:
		return "created"
	case AlreadyExists:
		return "already_exists"
	}
	return "unknown"
}

// AwardStore persists awards. A uniqueness conflict on create is reported as
// AlreadyExists with a nil error.
type AwardStore interface {
	HasBadge(ctx context.Context, participantID, sessionID, badgeID string) (bool, error)
	CreateBadgeAward(ctx context.Context, award Award) (CreateResult, error)
	ListSessionAwards(ctx context.Context, sessionID string) ([]Award, error)
}

// ByParticipant groups awarded badge IDs per participant.
func ByParticipant(awards []Award) map[string][]string {
	out := make(map[string][]string)
	for _, a := range awards {
		out[a.ParticipantID] = append(out[a.ParticipantID], a.BadgeID)
	}
	return out
}
