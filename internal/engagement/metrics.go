// Package engagement reduces a session's activity history into aggregate
// metrics, per-participant analyses and behavioral clusters.
//
// Every function here is pure: the evaluation instant is passed in, and
// identical inputs always produce identical outputs.
package engagement

import (
	"math"
	"sort"
	"time"

	"github.com/onnwee/crowdpulse/internal/activity"
)

// Analysis windows.
const (
	RecentWindow           = 5 * time.Minute
	OrganizerFactorWindow  = 10 * time.Minute
	attentionPauseSeconds  = 600.0
	defaultAttentionSpan   = 60.0
	momentumSliceSize      = 10
	noParticipantHealthCap = 75.0
)

// RiskLevel classifies how likely a session is to lose its audience.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Metrics is the aggregate engagement snapshot for one session evaluation.
type Metrics struct {
	SessionHealth      float64   `json:"session_health"`
	ParticipationRate  float64   `json:"participation_rate"`
	EngagementVelocity float64   `json:"engagement_velocity"`
	AttentionSpan      float64   `json:"attention_span"`
	MomentumScore      float64   `json:"momentum_score"`
	RiskLevel          RiskLevel `json:"risk_level"`

	TotalParticipants  int `json:"total_participants"`
	ActiveParticipants int `json:"active_participants"`
	RecentActions      int `json:"recent_actions"`
}

// MetricsInput carries everything CalculateMetrics reads.
type MetricsInput struct {
	// Records is the session's full history; the recent window is derived from Now.
	Records []activity.Record
	// TotalParticipants as reported by the store. Raised to the number of
	// distinct participants in Records if lower.
	TotalParticipants int
	Organizer         []activity.OrganizerActivity
	DurationMinutes   float64
	Now               time.Time
}

// CalculateMetrics reduces a session's activity into a Metrics snapshot.
func CalculateMetrics(in MetricsInput) Metrics {
	window := RecentRecords(in.Records, in.Now)

	total := in.TotalParticipants
	if distinct := countDistinct(in.Records); distinct > total {
		total = distinct
	}
	active := countDistinct(window)
	recent := len(window)

	var health float64
	if total == 0 {
		prep := countOrganizerSince(in.Organizer, in.Now, RecentWindow)
		health = math.Min(float64(prep)*25, noParticipantHealthCap)
	} else {
		expected := 1.0
		if in.DurationMinutes > 30 {
			expected = 2.0
		}
		base := math.Min(float64(recent)/math.Max(float64(total)*expected, 1)*100, 100)

		organizerRecent := countOrganizerSince(in.Organizer, in.Now, OrganizerFactorWindow)
		factor := math.Min(float64(organizerRecent)/math.Max(in.DurationMinutes/10, 1), 1)

		if base < 30 && factor < 0.5 {
			health = math.Max(base*0.7, 15)
		} else {
			health = base * (0.7 + 0.3*factor)
		}
	}

	participation := 0.0
	if total > 0 {
		participation = float64(active) / float64(total) * 100
	}

	newestFirst := sortNewestFirst(window)

	m := Metrics{
		SessionHealth:      clampPercent(math.Round(health)),
		ParticipationRate:  clampPercent(math.Round(participation)),
		EngagementVelocity: math.Max(roundTenth(float64(recent)/RecentWindow.Minutes()), 0),
		AttentionSpan:      math.Max(math.Round(attentionSpan(newestFirst)), 0),
		MomentumScore:      clampPercent(math.Round(momentumScore(newestFirst))),
		TotalParticipants:  total,
		ActiveParticipants: active,
		RecentActions:      recent,
	}
	m.RiskLevel = ClassifyRisk(m.SessionHealth, m.ParticipationRate, total)
	return m
}

// ClassifyRisk derives the risk level from health, participation and audience size.
func ClassifyRisk(health, participation float64, totalParticipants int) RiskLevel {
	switch {
	case health < 25 || (participation < 20 && totalParticipants > 1):
		return RiskHigh
	case health < 50 || participation < 40:
		return RiskMedium
	default:
		return RiskLow
	}
}

// RecentRecords returns the records that fall inside the trailing RecentWindow.
func RecentRecords(records []activity.Record, now time.Time) []activity.Record {
	cutoff := now.Add(-RecentWindow)
	var out []activity.Record
	for _, r := range records {
		if r.OccurredAt.After(cutoff) && !r.OccurredAt.After(now) {
			out = append(out, r)
		}
	}
	return out
}

// attentionSpan averages the gaps between consecutive records. Gaps of ten
// minutes or more are pauses, not attention.
func attentionSpan(newestFirst []activity.Record) float64 {
	if len(newestFirst) < 2 {
		return defaultAttentionSpan
	}
	var sum float64
	var n int
	for i := 1; i < len(newestFirst); i++ {
		gap := newestFirst[i-1].OccurredAt.Sub(newestFirst[i].OccurredAt).Seconds()
		if gap > 0 && gap < attentionPauseSeconds {
			sum += gap
			n++
		}
	}
	if n == 0 {
		return defaultAttentionSpan
	}
	return sum / float64(n)
}

// momentumScore compares the ten newest records' scores with the ten before them.
// The slices are by count, not time, so busy sessions compare shorter spans.
func momentumScore(newestFirst []activity.Record) float64 {
	recentSum := sumScores(newestFirst, 0, momentumSliceSize)
	olderSum := sumScores(newestFirst, momentumSliceSize, 2*momentumSliceSize)

	switch {
	case olderSum > 0:
		return math.Min(recentSum/olderSum*50, 100)
	case recentSum > 0:
		return 75
	default:
		return 50
	}
}

func sumScores(records []activity.Record, from, to int) float64 {
	if from >= len(records) {
		return 0
	}
	if to > len(records) {
		to = len(records)
	}
	var sum float64
	for _, r := range records[from:to] {
		sum += r.Score
	}
	return sum
}

func sortNewestFirst(records []activity.Record) []activity.Record {
	out := make([]activity.Record, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OccurredAt.After(out[j].OccurredAt)
	})
	return out
}

func countDistinct(records []activity.Record) int {
	seen := make(map[string]struct{})
	for _, r := range records {
		seen[r.ParticipantID] = struct{}{}
	}
	return len(seen)
}

func countOrganizerSince(events []activity.OrganizerActivity, now time.Time, window time.Duration) int {
	cutoff := now.Add(-window)
	n := 0
	for _, e := range events {
		if e.OccurredAt.After(cutoff) && !e.OccurredAt.After(now) {
			n++
		}
	}
	return n
}

func clampPercent(v float64) float64 {
	return math.Max(0, math.Min(v, 100))
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
