// Package insight turns engagement metrics and participant analyses into
// prioritized, role-targeted observations and recommendations.
package insight

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Type is the kind of insight.
type Type string

const (
	TypeRecommendation Type = "recommendation"
	TypeAlert          Type = "alert"
	TypeCelebration    Type = "celebration"
	TypeTrend          Type = "trend"
)

// Priority orders insights for display.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Rank is larger for more pressing priorities.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// Role is the audience an insight is written for.
type Role string

const (
	RoleOrganizer   Role = "organizer"
	RoleParticipant Role = "participant"
	RoleBoth        Role = "both"
)

// Rule names the check that produced an insight.
type Rule string

const (
	RuleOrganizerSilence    Rule = "organizer_silence"
	RuleOrganizerStagnation Rule = "organizer_stagnation"
	RuleParticipantSilence  Rule = "participant_silence"
	RuleHealthCritical      Rule = "health_critical"
	RuleHealthOpportunity   Rule = "health_opportunity"
	RuleHealthExcellent     Rule = "health_excellent"
	RuleParticipationLow    Rule = "participation_low"
	RuleMomentumHigh        Rule = "momentum_high"
	RuleMomentumDeclining   Rule = "momentum_declining"
	RuleCheckpoint          Rule = "checkpoint"
	RuleActivitySurge       Rule = "activity_surge"
	RuleLowActivity         Rule = "low_activity"
	RuleHighEngagement      Rule = "high_engagement"
	RulePersonalDropoff     Rule = "personal_dropoff"
	RulePersonalIdle        Rule = "personal_idle"
	RulePersonalSuperstar   Rule = "personal_superstar"
	RuleAnalysisError       Rule = "analysis_error"
)

var ruleOrder = map[Rule]int{
	RuleAnalysisError:       0,
	RuleOrganizerSilence:    1,
	RuleOrganizerStagnation: 2,
	RuleParticipantSilence:  3,
	RuleHealthCritical:      4,
	RuleHealthOpportunity:   5,
	RuleHealthExcellent:     6,
	RuleParticipationLow:    7,
	RuleMomentumHigh:        8,
	RuleMomentumDeclining:   9,
	RuleCheckpoint:          10,
	RuleActivitySurge:       11,
	RuleLowActivity:         12,
	RuleHighEngagement:      13,
	RulePersonalDropoff:     14,
	RulePersonalIdle:        15,
	RulePersonalSuperstar:   16,
}

// Insight is a single generated observation. Insights live for one evaluation.
type Insight struct {
	ID         string    `json:"id"`
	Rule       Rule      `json:"rule"`
	Type       Type      `json:"type"`
	Priority   Priority  `json:"priority"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	TargetRole Role      `json:"target_role"`
	Actionable bool      `json:"actionable"`
	CreatedAt  time.Time `json:"created_at"`
}

var idNamespace = uuid.MustParse("b7f4c2de-52a1-4f3c-9c0e-7d18a6e4f9b3")

// newID is deterministic in its inputs so repeated evaluations of the same
// state produce the same IDs.
func newID(sessionID string, rule Rule, participantID string, at time.Time) string {
	name := sessionID + "|" + string(rule) + "|" + participantID + "|" + at.UTC().Format(time.RFC3339Nano)
	return uuid.NewSHA1(idNamespace, []byte(name)).String()
}

// Sort orders insights by priority, then newest first, then rule order,
// dropping duplicate IDs. The input slice is not modified.
func Sort(insights []Insight) []Insight {
	seen := make(map[string]struct{}, len(insights))
	out := make([]Insight, 0, len(insights))
	for _, in := range insights {
		if _, dup := seen[in.ID]; dup {
			continue
		}
		seen[in.ID] = struct{}{}
		out = append(out, in)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() > b.Priority.Rank()
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return ruleOrder[a.Rule] < ruleOrder[b.Rule]
	})
	return out
}

// ForRole keeps insights addressed to role, including those addressed to both.
func ForRole(insights []Insight, role Role) []Insight {
	var out []Insight
	for _, in := range insights {
		if in.TargetRole == role || in.TargetRole == RoleBoth {
			out = append(out, in)
		}
	}
	return out
}
