package insight

import "github.com/onnwee/crowdpulse/internal/engagement"

// Recommendations is the organizer's short-term and longer-term advice.
// Neither list is ever empty.
type Recommendations struct {
	Immediate []string `json:"immediate"`
	Strategic []string `json:"strategic"`
}

var defaultStrategic = []string{
	"Continue monitoring real-time engagement patterns",
	"Develop contingency plans for engagement drops",
}

// Recommend derives recommendations from generated insights and session state.
func Recommend(insights []Insight, m engagement.Metrics, participants []engagement.ParticipantAnalysis, topic Topic) Recommendations {
	phrases := PhrasesFor(topic)
	var immediate, strategic stringSet

	for _, in := range insights {
		if in.Actionable && (in.Priority == PriorityUrgent || in.Priority == PriorityHigh) {
			immediate.add(imperativeFor(in))
		}
		switch in.Rule {
		case RuleOrganizerSilence:
			immediate.add("Increase organizer engagement with participants")
		case RuleOrganizerStagnation:
			immediate.add("Create new content or activities")
		case RuleParticipantSilence:
			immediate.add(phrases.Engagement)
			immediate.add("Invite quiet participants to react in chat or raise a hand")
		}
	}

	if m.RiskLevel == engagement.RiskHigh {
		strategic.add("Review the session structure for engagement gaps")
		strategic.add("Prepare backup interactive content")
	}
	if n := len(participants); n > 0 {
		atRisk := len(engagement.AtRisk(participants, 0))
		if float64(atRisk)/float64(n) > unresponsiveShare {
			strategic.add("Use shorter content segments")
			strategic.add("Add engagement checkpoints every few minutes")
		}
	}
	if m.AttentionSpan > 90 {
		strategic.add("Break content into 5-10 minute chunks")
		strategic.add("Add interactive elements between segments")
	}
	if m.MomentumScore < momentumLowBelow {
		strategic.add("Redesign the session flow to build momentum")
		strategic.add("Vary activity types to keep interest")
	}

	if len(immediate.items) == 0 {
		for _, s := range phrases.DefaultActions {
			immediate.add(s)
		}
	}
	if len(strategic.items) == 0 {
		for _, s := range defaultStrategic {
			strategic.add(s)
		}
	}

	return Recommendations{Immediate: immediate.items, Strategic: strategic.items}
}

// DegradedRecommendations is shown alongside AnalysisError.
func DegradedRecommendations() Recommendations {
	return Recommendations{
		Immediate: []string{"Check session connectivity"},
		Strategic: []string{"Review session setup"},
	}
}

func imperativeFor(in Insight) string {
	switch in.Rule {
	case RuleOrganizerSilence:
		return "Post a poll or question now"
	case RuleOrganizerStagnation:
		return "Launch an interactive activity"
	case RuleHealthCritical:
		return "Create an interactive poll now"
	case RuleParticipationLow:
		return "Ask an engaging question to the group"
	case RuleLowActivity:
		return "Launch a poll to restart participation"
	}
	return in.Title
}

type stringSet struct {
	items []string
	seen  map[string]struct{}
}

func (s *stringSet) add(v string) {
	if v == "" {
		return
	}
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.items = append(s.items, v)
}
