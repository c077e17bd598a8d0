package engagement

import (
	"math"
	"sort"

	"github.com/onnwee/crowdpulse/internal/activity"
)

// Category weights for cluster scoring.
const (
	pollWeight          = 10.0
	questionWeight      = 8.0
	answerWeight        = 6.0
	resourceWeight      = 5.0
	attendanceCap       = 60.0
	passiveScoreCeiling = 5.0
)

// Archetype is one of the fixed behavioral segments.
type Archetype int

const (
	ArchetypePollEnthusiast Archetype = iota + 1
	ArchetypeQnAStar
	ArchetypeResourceCollector
	ArchetypeObserver
)

// Archetypes lists the segments in cluster ID order.
func Archetypes() []Archetype {
	return []Archetype{
		ArchetypePollEnthusiast,
		ArchetypeQnAStar,
		ArchetypeResourceCollector,
		ArchetypeObserver,
	}
}

// Name returns the display name of the segment.
func (a Archetype) Name() string {
	switch a {
	case ArchetypePollEnthusiast:
		return "Poll Enthusiasts"
	case ArchetypeQnAStar:
		return "Q&A Stars"
	case ArchetypeResourceCollector:
		return "Resource Collectors"
	case ArchetypeObserver:
		return "Observers"
	}
	return ""
}

// Description explains who lands in the segment.
func (a Archetype) Description() string {
	switch a {
	case ArchetypePollEnthusiast:
		return "Participants who engage mostly through polls"
	case ArchetypeQnAStar:
		return "Participants who drive the conversation with questions and answers"
	case ArchetypeResourceCollector:
		return "Participants focused on downloading shared resources"
	case ArchetypeObserver:
		return "Participants who mostly attend and watch"
	}
	return ""
}

// Category is the activity bucket that defines the segment.
func (a Archetype) Category() activity.Category {
	switch a {
	case ArchetypePollEnthusiast:
		return activity.CategoryPoll
	case ArchetypeQnAStar:
		return activity.CategoryQnA
	case ArchetypeResourceCollector:
		return activity.CategoryResource
	case ArchetypeObserver:
		return activity.CategoryAttendance
	}
	return activity.CategoryAttendance
}

// ScoreVector is a participant's category-weighted activity.
type ScoreVector struct {
	Poll       float64 `json:"poll"`
	QnA        float64 `json:"qna"`
	Resource   float64 `json:"resource"`
	Attendance float64 `json:"attendance"`
}

// Total sums the weighted categories.
func (v ScoreVector) Total() float64 {
	return v.Poll + v.QnA + v.Resource + v.Attendance
}

func (v ScoreVector) value(c activity.Category) float64 {
	switch c {
	case activity.CategoryPoll:
		return v.Poll
	case activity.CategoryQnA:
		return v.QnA
	case activity.CategoryResource:
		return v.Resource
	case activity.CategoryAttendance:
		return v.Attendance
	case activity.CategoryOverall:
		return v.Total()
	}
	return 0
}

// VectorsFromRecords builds each participant's weighted score vector.
func VectorsFromRecords(records []activity.Record) map[string]ScoreVector {
	type counts struct {
		polls, questions, answers, downloads int
		minutes                              float64
	}
	byParticipant := make(map[string]*counts)
	for _, r := range records {
		c := byParticipant[r.ParticipantID]
		if c == nil {
			c = &counts{}
			byParticipant[r.ParticipantID] = c
		}
		switch r.Type {
		case activity.TypePoll:
			c.polls++
		case activity.TypeQuestion:
			c.questions++
		case activity.TypeAnswer:
			c.answers++
		case activity.TypeResourceDownload:
			c.downloads++
		case activity.TypeSessionDuration:
			c.minutes += r.Minutes()
		case activity.TypeGameStarted, activity.TypeGameCompleted:
		}
	}

	out := make(map[string]ScoreVector, len(byParticipant))
	for id, c := range byParticipant {
		out[id] = ScoreVector{
			Poll:       float64(c.polls) * pollWeight,
			QnA:        float64(c.questions)*questionWeight + float64(c.answers)*answerWeight,
			Resource:   float64(c.downloads) * resourceWeight,
			Attendance: math.Min(c.minutes, attendanceCap),
		}
	}
	return out
}

// Classify picks the segment for one score vector. Ties go to the earlier
// category in poll, qna, resource, attendance order.
func Classify(v ScoreVector) Archetype {
	if v.Total() < passiveScoreCeiling {
		return ArchetypeObserver
	}
	best := ArchetypeObserver
	bestScore := v.Attendance
	for _, a := range []Archetype{ArchetypeResourceCollector, ArchetypeQnAStar, ArchetypePollEnthusiast} {
		if s := v.value(a.Category()); s >= bestScore {
			best, bestScore = a, s
		}
	}
	return best
}

// DominantActivity is the category that defines a cluster and how much of
// the cluster's weighted score it accounts for.
type DominantActivity struct {
	Category                activity.Category `json:"type"`
	PercentageWithinCluster float64           `json:"percentage_within_cluster"`
}

// Cluster is a populated behavioral segment.
type Cluster struct {
	ID                   int              `json:"cluster_id"`
	Archetype            Archetype        `json:"-"`
	Name                 string           `json:"name"`
	Description          string           `json:"description"`
	ParticipantIDs       []string         `json:"participant_ids"`
	PopulationPercentage float64          `json:"population_percentage"`
	DominantActivity     DominantActivity `json:"dominant_activity"`
	BadgeDistribution    map[string]int   `json:"badge_distribution"`
}

// ClusterParticipants assigns each analysed participant to exactly one segment.
// Participants missing from vectors are treated as having no weighted activity.
// badges maps participant ID to the badge IDs they hold; it may be nil.
func ClusterParticipants(analyses []ParticipantAnalysis, vectors map[string]ScoreVector, badges map[string][]string) []Cluster {
	if len(analyses) == 0 {
		return nil
	}

	members := make(map[Archetype][]string)
	for _, a := range analyses {
		arch := Classify(vectors[a.ParticipantID])
		members[arch] = append(members[arch], a.ParticipantID)
	}

	var clusters []Cluster
	for _, arch := range Archetypes() {
		ids := members[arch]
		if len(ids) == 0 {
			continue
		}
		sort.Strings(ids)

		var categoryScore, totalScore float64
		dist := make(map[string]int)
		for _, id := range ids {
			v := vectors[id]
			categoryScore += v.value(arch.Category())
			totalScore += v.Total()
			for _, b := range badges[id] {
				dist[b]++
			}
		}
		share := 0.0
		if totalScore > 0 {
			share = math.Round(categoryScore / totalScore * 100)
		}

		// Share of analysed participants; joined participants with no records are not clustered.
		clusters = append(clusters, Cluster{
			ID:                   int(arch),
			Archetype:            arch,
			Name:                 arch.Name(),
			Description:          arch.Description(),
			ParticipantIDs:       ids,
			PopulationPercentage: math.Round(float64(len(ids)) / float64(len(analyses)) * 100),
			DominantActivity: DominantActivity{
				Category:                arch.Category(),
				PercentageWithinCluster: share,
			},
			BadgeDistribution: dist,
		})
	}
	return clusters
}
