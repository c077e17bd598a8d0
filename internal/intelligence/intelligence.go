// Package intelligence runs the engagement pipeline for live sessions.
//
// An Engine owns a registry of per-session trackers. Each tracker evaluates
// its session immediately and then on a fixed interval, caches the newest
// snapshot and pushes it to the session's observers. Evaluation never fails
// outright: when data cannot be loaded the snapshot is marked degraded and
// carries a single "Analysis Error" alert.
package intelligence

import (
	"errors"
	"log/slog"
	"time"

	"github.com/onnwee/crowdpulse/internal/engagement"
	"github.com/onnwee/crowdpulse/internal/insight"
)

var (
	// ErrEmptySessionID is returned when an operation is given no session.
	ErrEmptySessionID = errors.New("session ID is required")
	// ErrNotTracked is returned by Subscribe for sessions without a tracker.
	ErrNotTracked = errors.New("session is not being tracked")
	// ErrEngineClosed is returned by StartTracking after Close.
	ErrEngineClosed = errors.New("intelligence engine is closed")
)

// Defaults for Config.
const (
	DefaultInterval          = 30 * time.Second
	DefaultEvaluationTimeout = 10 * time.Second
	TopListSize              = 5
)

// SessionIntelligence is one evaluation of a session. Snapshots are shared
// between observers and must be treated as read-only.
type SessionIntelligence struct {
	SessionID   string    `json:"session_id"`
	Generation  uint64    `json:"generation"`
	EvaluatedAt time.Time `json:"evaluated_at"`
	Degraded    bool      `json:"degraded"`

	Metrics engagement.Metrics       `json:"metrics"`
	Summary engagement.HealthSummary `json:"summary"`
	Topic   insight.Topic            `json:"topic"`

	OrganizerInsights  []insight.Insight                `json:"organizer_insights"`
	Participants       []engagement.ParticipantAnalysis `json:"participants"`
	TopPerformers      []engagement.ParticipantAnalysis `json:"top_performers"`
	AtRiskParticipants []engagement.ParticipantAnalysis `json:"at_risk_participants"`
	Clusters           []engagement.Cluster             `json:"clusters"`
	Recommendations    insight.Recommendations          `json:"recommendations"`
}

// Participant returns the analysis for participantID, if present.
func (s *SessionIntelligence) Participant(participantID string) (engagement.ParticipantAnalysis, bool) {
	for _, p := range s.Participants {
		if p.ParticipantID == participantID {
			return p, true
		}
	}
	return engagement.ParticipantAnalysis{}, false
}

// UpdateFunc receives each new snapshot for a tracked session. Calls for one
// session are serialized. An UpdateFunc must not call StopTracking for its
// own session synchronously.
type UpdateFunc func(*SessionIntelligence)

// JobMetrics reports evaluation runs to the shared background job metrics.
type JobMetrics interface {
	IncJobsTotal(jobType, status string)
	ObserveJobDuration(jobType string, seconds float64)
	IncJobErrors(jobType, errorType string)
}

// Config configures an Engine.
type Config struct {
	// Interval between evaluations of a tracked session.
	Interval time.Duration
	// EvaluationTimeout bounds a single evaluation, including all reads.
	EvaluationTimeout time.Duration
	Logger            *slog.Logger
	Metrics           *Metrics
	JobMetrics        JobMetrics
	// OnUpdate, if set, receives every tracked session's snapshots before
	// the session's own observers.
	OnUpdate UpdateFunc
	// Now is the evaluation clock. Defaults to time.Now.
	Now func() time.Time
}

func (c *Config) setDefaults() {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.EvaluationTimeout <= 0 {
		c.EvaluationTimeout = DefaultEvaluationTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}
