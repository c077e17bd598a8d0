package insight

import (
	"fmt"
	"math"
	"time"

	"github.com/onnwee/crowdpulse/internal/activity"
	"github.com/onnwee/crowdpulse/internal/engagement"
)

// Rule thresholds.
const (
	organizerSilenceAfter    = 300 * time.Second
	organizerRecentWindow    = 5 * time.Minute
	stagnationMinDuration    = 10.0
	checkpointMinDuration    = 20.0
	unresponsiveShare        = 0.3
	lowParticipationRate     = 30.0
	lowParticipationAudience = 2
	healthExcellentAbove     = 80.0
	momentumHighAbove        = 75.0
	momentumLowBelow         = 25.0
	activitySurgeVelocity    = 2.0
	highEngagementActions    = 10
)

// StreamWindow is the trailing window the activity-stream rules count over.
const StreamWindow = 10 * time.Minute

// Input is everything Generate reads. Generate does not look at the clock.
type Input struct {
	SessionID       string
	Metrics         engagement.Metrics
	Participants    []engagement.ParticipantAnalysis
	Organizer       []activity.OrganizerActivity
	Metadata        *activity.SessionMetadata
	DurationMinutes float64
	// StreamActions counts participant records in the trailing StreamWindow.
	StreamActions int
	Now           time.Time
}

// Generate runs every session-level rule and returns the sorted result.
// Rules are independent; any number may fire.
func Generate(in Input) []Insight {
	phrases := PhrasesFor(DetectTopic(in.Metadata))
	b := builder{sessionID: in.SessionID, now: in.Now}

	lastOrganizer, hasOrganizer := latestOrganizerActivity(in.Organizer, in.Now)
	quietOrganizer := !hasOrganizer || in.Now.Sub(lastOrganizer) >= organizerRecentWindow

	if !hasOrganizer || in.Now.Sub(lastOrganizer) > organizerSilenceAfter {
		msg := "No organizer activity yet. Launch a poll or question to get things moving."
		if hasOrganizer {
			mins := int(math.Round(in.Now.Sub(lastOrganizer).Minutes()))
			msg = fmt.Sprintf("No organizer activity for %d minutes. Launch a poll or question to re-engage the room.", mins)
		}
		b.add(RuleOrganizerSilence, TypeAlert, PriorityUrgent, RoleOrganizer,
			"Organizer Action Needed", msg)
	}

	if quietOrganizer && in.DurationMinutes > stagnationMinDuration {
		b.add(RuleOrganizerStagnation, TypeRecommendation, PriorityHigh, RoleOrganizer,
			"Boost Session Energy", phrases.Immediate)
	}

	if n := len(in.Participants); n > 0 {
		unresponsive := 0
		for _, p := range in.Participants {
			if p.RecentActivityCount == 0 {
				unresponsive++
			}
		}
		if float64(unresponsive)/float64(n) > unresponsiveShare {
			b.add(RuleParticipantSilence, TypeAlert, PriorityMedium, RoleOrganizer,
				"Participants Not Responding",
				fmt.Sprintf("%d participants haven't engaged recently. Try: %s", unresponsive, phrases.Engagement))
		}
	}

	m := in.Metrics
	switch {
	case m.RiskLevel == engagement.RiskHigh:
		b.add(RuleHealthCritical, TypeAlert, PriorityUrgent, RoleOrganizer,
			"Critical: Low Engagement",
			fmt.Sprintf("Session health is at %.0f%%. %s", m.SessionHealth, phrases.Urgent))
	case m.RiskLevel == engagement.RiskMedium:
		b.add(RuleHealthOpportunity, TypeRecommendation, PriorityMedium, RoleOrganizer,
			"Engagement Opportunity", phrases.Medium)
	case m.SessionHealth > healthExcellentAbove:
		b.add(RuleHealthExcellent, TypeCelebration, PriorityLow, RoleOrganizer,
			"Excellent Engagement!", phrases.Success)
	}

	if m.ParticipationRate < lowParticipationRate && m.TotalParticipants > lowParticipationAudience {
		b.add(RuleParticipationLow, TypeRecommendation, PriorityHigh, RoleOrganizer,
			"Low Participation Rate",
			fmt.Sprintf("Only %.0f%% of participants are active. %s", m.ParticipationRate, phrases.Participation))
	}

	switch {
	case m.MomentumScore > momentumHighAbove:
		b.add(RuleMomentumHigh, TypeCelebration, PriorityLow, RoleOrganizer,
			"Great Momentum!", phrases.Momentum)
	case m.MomentumScore < momentumLowBelow:
		b.add(RuleMomentumDeclining, TypeAlert, PriorityMedium, RoleOrganizer,
			"Momentum Declining", phrases.Reengage)
	}

	if in.DurationMinutes > checkpointMinDuration && quietOrganizer {
		b.add(RuleCheckpoint, TypeRecommendation, PriorityMedium, RoleOrganizer,
			"Session Checkpoint",
			fmt.Sprintf("%d minutes in. %s", int(math.Round(in.DurationMinutes)), phrases.Checkpoint))
	}

	if m.EngagementVelocity >= activitySurgeVelocity {
		b.add(RuleActivitySurge, TypeTrend, PriorityLow, RoleBoth,
			"Activity Surge",
			fmt.Sprintf("%.1f actions per minute over the last five minutes.", m.EngagementVelocity))
	}

	switch {
	case in.StreamActions == 0:
		b.add(RuleLowActivity, TypeAlert, PriorityUrgent, RoleOrganizer,
			"Low Activity Detected",
			"No participant engagement in the last 10 minutes. Consider launching a poll!")
	case in.StreamActions > highEngagementActions:
		b.add(RuleHighEngagement, TypeCelebration, PriorityLow, RoleOrganizer,
			"High Engagement!",
			fmt.Sprintf("%d actions in the last 10 minutes. Great momentum!", in.StreamActions))
	}

	return Sort(b.insights)
}

// ForParticipant produces the personal insights for one participant.
func ForParticipant(sessionID string, a engagement.ParticipantAnalysis, now time.Time) []Insight {
	b := builder{sessionID: sessionID, participantID: a.ParticipantID, now: now}

	if a.RiskOfDropoff {
		b.add(RulePersonalDropoff, TypeAlert, PriorityMedium, RoleParticipant,
			"Jump Back In!",
			"You haven't participated in the last few minutes. Answer the current poll or ask a question to get back in.")
	} else if a.RecentActivityCount == 0 {
		b.add(RulePersonalIdle, TypeRecommendation, PriorityMedium, RoleParticipant,
			"Stay Engaged",
			"Join the next activity to start earning points.")
	}

	if a.EngagementLevel == engagement.LevelSuperstar {
		b.add(RulePersonalSuperstar, TypeCelebration, PriorityLow, RoleParticipant,
			"You're on Fire!",
			"Your engagement is outstanding. Keep it up!")
	}

	return Sort(b.insights)
}

// AnalysisError is the single alert shown when a session could not be analysed.
func AnalysisError(sessionID string, now time.Time) Insight {
	return Insight{
		ID:         newID(sessionID, RuleAnalysisError, "", now),
		Rule:       RuleAnalysisError,
		Type:       TypeAlert,
		Priority:   PriorityUrgent,
		Title:      "Analysis Error",
		Message:    "Engagement data is temporarily unavailable. Metrics will refresh on the next update.",
		TargetRole: RoleOrganizer,
		Actionable: false,
		CreatedAt:  now,
	}
}

type builder struct {
	sessionID     string
	participantID string
	now           time.Time
	insights      []Insight
}

func (b *builder) add(rule Rule, typ Type, priority Priority, role Role, title, message string) {
	b.insights = append(b.insights, Insight{
		ID:         newID(b.sessionID, rule, b.participantID, b.now),
		Rule:       rule,
		Type:       typ,
		Priority:   priority,
		Title:      title,
		Message:    message,
		TargetRole: role,
		Actionable: typ == TypeAlert || typ == TypeRecommendation,
		CreatedAt:  b.now,
	})
}

func latestOrganizerActivity(events []activity.OrganizerActivity, now time.Time) (time.Time, bool) {
	var latest time.Time
	found := false
	for _, e := range events {
		if e.OccurredAt.After(now) {
			continue
		}
		if !found || e.OccurredAt.After(latest) {
			latest, found = e.OccurredAt, true
		}
	}
	return latest, found
}
