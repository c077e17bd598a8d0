package engagement

import (
	"math"
	"sort"
	"time"

	"github.com/onnwee/crowdpulse/internal/activity"
)

// Level is a participant's engagement tier.
type Level string

const (
	LevelLow       Level = "low"
	LevelMedium    Level = "medium"
	LevelHigh      Level = "high"
	LevelSuperstar Level = "superstar"
)

// Trend is the short-term direction of a participant's activity.
type Trend string

const (
	TrendRising    Trend = "rising"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

const maxStreak = 30

// ParticipantAnalysis is one participant's engagement classification.
type ParticipantAnalysis struct {
	ParticipantID       string    `json:"participant_id"`
	EngagementLevel     Level     `json:"engagement_level"`
	TotalScore          float64   `json:"total_score"`
	TotalActivityCount  int       `json:"total_activity_count"`
	RecentActivityCount int       `json:"recent_activity_count"`
	OlderActivityCount  int       `json:"older_activity_count"`
	Streak              int       `json:"streak"`
	Momentum            Trend     `json:"momentum"`
	RiskOfDropoff       bool      `json:"risk_of_dropoff"`
	SuggestedActions    []string  `json:"suggested_actions"`
	LastActivityAt      time.Time `json:"last_activity_at"`
}

// AnalyzeParticipants classifies every participant with at least one record.
// Results are ordered by participant ID.
func AnalyzeParticipants(records []activity.Record, now time.Time) []ParticipantAnalysis {
	grouped := make(map[string][]activity.Record)
	for _, r := range records {
		grouped[r.ParticipantID] = append(grouped[r.ParticipantID], r)
	}

	ids := make([]string, 0, len(grouped))
	for id := range grouped {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]ParticipantAnalysis, 0, len(ids))
	for _, id := range ids {
		out = append(out, AnalyzeParticipant(id, grouped[id], now))
	}
	return out
}

// AnalyzeParticipant classifies a single participant from their own records.
func AnalyzeParticipant(participantID string, records []activity.Record, now time.Time) ParticipantAnalysis {
	a := ParticipantAnalysis{
		ParticipantID:      participantID,
		TotalActivityCount: len(records),
	}

	cutoff := now.Add(-RecentWindow)
	for _, r := range records {
		a.TotalScore += r.Score
		if r.OccurredAt.After(cutoff) && !r.OccurredAt.After(now) {
			a.RecentActivityCount++
		}
		if r.OccurredAt.After(a.LastActivityAt) {
			a.LastActivityAt = r.OccurredAt
		}
	}
	a.OlderActivityCount = a.TotalActivityCount - a.RecentActivityCount

	a.EngagementLevel = levelFor(a.TotalScore)
	// Placeholder: score-derived, not a count of consecutive active intervals.
	a.Streak = int(math.Min(math.Floor(a.TotalScore/10), maxStreak))
	if a.Streak < 0 {
		a.Streak = 0
	}

	switch {
	case a.RecentActivityCount > a.OlderActivityCount:
		a.Momentum = TrendRising
	case a.RecentActivityCount < a.OlderActivityCount:
		a.Momentum = TrendDeclining
	default:
		a.Momentum = TrendStable
	}

	a.RiskOfDropoff = a.RecentActivityCount == 0 && a.TotalActivityCount > 0
	a.SuggestedActions = suggestedActions(a.EngagementLevel, a.Momentum)
	return a
}

func levelFor(totalScore float64) Level {
	switch {
	case totalScore > 100:
		return LevelSuperstar
	case totalScore > 50:
		return LevelHigh
	case totalScore > 20:
		return LevelMedium
	default:
		return LevelLow
	}
}

func suggestedActions(level Level, momentum Trend) []string {
	var actions []string
	switch level {
	case LevelLow:
		actions = []string{"Ask a question to get started", "Answer the next poll"}
	case LevelMedium:
		actions = []string{"Nice work, keep the momentum going", "Download a shared resource for bonus points"}
	case LevelHigh:
		actions = []string{"You're a top contributor, help others by answering questions", "Share your perspective in the discussion"}
	case LevelSuperstar:
		actions = []string{"Outstanding engagement, you're setting the pace", "Consider volunteering as a session ambassador"}
	}
	if momentum == TrendDeclining {
		actions = append(actions, "Jump back in, the discussion is picking up!")
	}
	return actions
}

// TopPerformers returns high and superstar participants, most recently active first.
func TopPerformers(analyses []ParticipantAnalysis, limit int) []ParticipantAnalysis {
	var out []ParticipantAnalysis
	for _, a := range analyses {
		if a.EngagementLevel == LevelHigh || a.EngagementLevel == LevelSuperstar {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RecentActivityCount > out[j].RecentActivityCount
	})
	return truncate(out, limit)
}

// AtRisk returns participants at risk of dropping off or trending down.
func AtRisk(analyses []ParticipantAnalysis, limit int) []ParticipantAnalysis {
	var out []ParticipantAnalysis
	for _, a := range analyses {
		if a.RiskOfDropoff || a.Momentum == TrendDeclining {
			out = append(out, a)
		}
	}
	return truncate(out, limit)
}

func truncate(list []ParticipantAnalysis, limit int) []ParticipantAnalysis {
	if limit > 0 && len(list) > limit {
		return list[:limit]
	}
	return list
}
