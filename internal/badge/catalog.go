// Package badge awards achievement badges when a participant's cumulative
// category scores cross catalog thresholds.
package badge

import "github.com/onnwee/crowdpulse/internal/activity"

// Level is a badge's tier.
type Level string

const (
	LevelBronze   Level = "bronze"
	LevelSilver   Level = "silver"
	LevelGold     Level = "gold"
	LevelPlatinum Level = "platinum"
)

// Badge IDs in the default catalog.
const (
	IDPollParticipant    = "poll_participant"
	IDPollExpert         = "poll_expert"
	IDCuriousMind        = "curious_mind"
	IDKnowledgeSharer    = "knowledge_sharer"
	IDResourceExplorer   = "resource_explorer"
	IDDedicatedLearner   = "dedicated_learner"
	IDEngagementChampion = "engagement_champion"
)

// Definition describes a badge and the score that earns it.
// For the overall category Threshold is a leaderboard percentile.
type Definition struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Category    activity.Category `json:"category"`
	Threshold   float64           `json:"threshold"`
	Level       Level             `json:"level"`
}

// Earned reports whether snapshot meets the definition's threshold.
// A missing overall percentile never earns.
func (d Definition) Earned(snapshot activity.ScoreSnapshot) bool {
	score, ok := snapshot.ScoreFor(d.Category)
	return ok && score >= d.Threshold
}

// DefaultCatalog returns the built-in badge definitions in evaluation order.
func DefaultCatalog() []Definition {
	return []Definition{
		{IDPollParticipant, "Poll Participant", "Answered your first polls", activity.CategoryPoll, 5, LevelBronze},
		{IDPollExpert, "Poll Expert", "A regular voice in every poll", activity.CategoryPoll, 15, LevelGold},
		{IDCuriousMind, "Curious Mind", "Asked and answered questions", activity.CategoryQnA, 3, LevelBronze},
		{IDKnowledgeSharer, "Knowledge Sharer", "Helped others through Q&A", activity.CategoryQnA, 5, LevelSilver},
		{IDResourceExplorer, "Resource Explorer", "Explored the shared resources", activity.CategoryResource, 3, LevelBronze},
		{IDDedicatedLearner, "Dedicated Learner", "Stayed for the long haul", activity.CategoryAttendance, 80, LevelSilver},
		{IDEngagementChampion, "Engagement Champion", "Top 10% of the session leaderboard", activity.CategoryOverall, 90, LevelPlatinum},
	}
}

// Lookup finds a definition by ID in catalog.
func Lookup(catalog []Definition, id string) (Definition, bool) {
	for _, d := range catalog {
		if d.ID == id {
			return d, true
		}
	}
	return Definition{}, false
}
