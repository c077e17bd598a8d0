// Package activity models the scored participation records that sessions
// accumulate and the read-side gateways that supply them to the engine.
package activity

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Activity errors.
var (
	ErrUnknownType          = errors.New("unknown activity type")
	ErrEmptySessionID       = errors.New("session id is required")
	ErrEmptyParticipantID   = errors.New("participant id is required")
	ErrSessionNotFound      = errors.New("session not found")
	ErrParticipantNotRanked = errors.New("participant has no leaderboard standing")
)

// Type is the kind of scored action a participant performed.
// The set is closed; ParseType rejects anything outside it.
type Type string

const (
	TypePoll             Type = "poll"
	TypeQuestion         Type = "question"
	TypeAnswer           Type = "answer"
	TypeResourceDownload Type = "resource_download"
	TypeSessionDuration  Type = "session_duration"
	TypeGameStarted      Type = "game_started"
	TypeGameCompleted    Type = "game_completed"
)

// Types lists every activity type in declaration order.
func Types() []Type {
	return []Type{
		TypePoll,
		TypeQuestion,
		TypeAnswer,
		TypeResourceDownload,
		TypeSessionDuration,
		TypeGameStarted,
		TypeGameCompleted,
	}
}

// ParseType converts a raw string into a Type.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
	return t, nil
}

// Valid reports whether t is one of the known activity types.
func (t Type) Valid() bool {
	switch t {
	case TypePoll, TypeQuestion, TypeAnswer, TypeResourceDownload,
		TypeSessionDuration, TypeGameStarted, TypeGameCompleted:
		return true
	}
	return false
}

// Category is a score bucket used for badge thresholds.
type Category string

const (
	CategoryPoll       Category = "poll"
	CategoryQnA        Category = "qna"
	CategoryResource   Category = "resource"
	CategoryAttendance Category = "attendance"
	CategoryOverall    Category = "overall"
)

// Category returns the score bucket an activity type contributes to.
// Game activity only counts toward the overall total.
func (t Type) Category() Category {
	switch t {
	case TypePoll:
		return CategoryPoll
	case TypeQuestion, TypeAnswer:
		return CategoryQnA
	case TypeResourceDownload:
		return CategoryResource
	case TypeSessionDuration:
		return CategoryAttendance
	case TypeGameStarted, TypeGameCompleted:
		return CategoryOverall
	}
	return CategoryOverall
}

// Record is one scored action. Records are immutable and append-only.
type Record struct {
	ParticipantID string         `json:"participant_id"`
	SessionID     string         `json:"session_id"`
	Type          Type           `json:"activity_type"`
	Score         float64        `json:"score"`
	OccurredAt    time.Time      `json:"occurred_at"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Validate checks the fields a record must carry before it is stored.
func (r Record) Validate() error {
	if r.SessionID == "" {
		return ErrEmptySessionID
	}
	if r.ParticipantID == "" {
		return ErrEmptyParticipantID
	}
	if !r.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownType, r.Type)
	}
	if r.OccurredAt.IsZero() {
		return errors.New("occurred_at is required")
	}
	return nil
}

// Minutes returns the attendance minutes carried by a session_duration record.
// The "minutes" metadata key wins over the score when present.
func (r Record) Minutes() float64 {
	if r.Type != TypeSessionDuration {
		return 0
	}
	switch v := r.Metadata["minutes"].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return r.Score
}

// OrganizerKind is the kind of content an organizer created.
type OrganizerKind string

const (
	OrganizerPoll     OrganizerKind = "poll"
	OrganizerQuestion OrganizerKind = "question"
	OrganizerResource OrganizerKind = "resource"
)

// OrganizerActivity is a content-creation event by a session organizer.
type OrganizerActivity struct {
	Kind          OrganizerKind `json:"type"`
	OccurredAt    time.Time     `json:"occurred_at"`
	ParticipantID string        `json:"participant_id"`
}

// SessionMetadata describes a session for topic detection and duration.
type SessionMetadata struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	OrganizerID string     `json:"organizer_id"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
}
