package activity

import (
	"math"
	"sort"
)

// ScoreSnapshot is a participant's cumulative per-category score at a point in time.
type ScoreSnapshot struct {
	Poll       float64 `json:"poll_score"`
	QnA        float64 `json:"qna_score"`
	Resource   float64 `json:"resource_score"`
	Attendance float64 `json:"attendance_score"`
	Total      float64 `json:"total_score"`

	// RankPercentile is optional; nil means the caller did not resolve it.
	RankPercentile *float64 `json:"rank_percentile,omitempty"`
}

// ScoreFor returns the score that a category threshold compares against.
// The overall category compares rank percentile, so it reports false when
// the percentile is unknown.
func (s ScoreSnapshot) ScoreFor(c Category) (float64, bool) {
	switch c {
	case CategoryPoll:
		return s.Poll, true
	case CategoryQnA:
		return s.QnA, true
	case CategoryResource:
		return s.Resource, true
	case CategoryAttendance:
		return s.Attendance, true
	case CategoryOverall:
		if s.RankPercentile == nil {
			return 0, false
		}
		return *s.RankPercentile, true
	}
	return 0, false
}

// BuildScoreSnapshot sums a participant's record scores into category buckets.
func BuildScoreSnapshot(records []Record, participantID string) ScoreSnapshot {
	var snap ScoreSnapshot
	for _, r := range records {
		if r.ParticipantID != participantID {
			continue
		}
		snap.Total += r.Score
		switch r.Type.Category() {
		case CategoryPoll:
			snap.Poll += r.Score
		case CategoryQnA:
			snap.QnA += r.Score
		case CategoryResource:
			snap.Resource += r.Score
		case CategoryAttendance:
			snap.Attendance += r.Score
		case CategoryOverall:
		}
	}
	return snap
}

// Standing is a participant's position on a session leaderboard.
type Standing struct {
	ParticipantID string  `json:"participant_id"`
	TotalScore    float64 `json:"total_score"`
	Rank          int     `json:"rank"`
}

// Leaderboard ranks participants by total score, highest first.
// Equal totals share a rank (1, 2, 2, 4).
func Leaderboard(records []Record) []Standing {
	totals := make(map[string]float64)
	for _, r := range records {
		totals[r.ParticipantID] += r.Score
	}

	standings := make([]Standing, 0, len(totals))
	for id, total := range totals {
		standings = append(standings, Standing{ParticipantID: id, TotalScore: total})
	}
	sort.Slice(standings, func(i, j int) bool {
		if standings[i].TotalScore != standings[j].TotalScore {
			return standings[i].TotalScore > standings[j].TotalScore
		}
		return standings[i].ParticipantID < standings[j].ParticipantID
	})

	for i := range standings {
		if i > 0 && standings[i].TotalScore == standings[i-1].TotalScore {
			standings[i].Rank = standings[i-1].Rank
			continue
		}
		standings[i].Rank = i + 1
	}
	return standings
}

// RankPercentile converts a 1-based rank among n participants into the share
// of the field ranked below it, 0-100.
func RankPercentile(rank, n int) float64 {
	if n <= 0 || rank <= 0 {
		return 0
	}
	return math.Round(float64(n-rank) / float64(n) * 100)
}
