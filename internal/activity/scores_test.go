package activity

import (
	"testing"
	"time"
)

func TestBuildScoreSnapshot(t *testing.T) {
	now := time.Now()
	records := []Record{
		{ParticipantID: "p1", Type: TypePoll, Score: 2, OccurredAt: now},
		{ParticipantID: "p1", Type: TypePoll, Score: 4, OccurredAt: now},
		{ParticipantID: "p1", Type: TypeQuestion, Score: 2, OccurredAt: now},
		{ParticipantID: "p1", Type: TypeAnswer, Score: 3, OccurredAt: now},
		{ParticipantID: "p1", Type: TypeResourceDownload, Score: 1, OccurredAt: now},
		{ParticipantID: "p1", Type: TypeSessionDuration, Score: 30, OccurredAt: now},
		{ParticipantID: "p1", Type: TypeGameCompleted, Score: 10, OccurredAt: now},
		{ParticipantID: "p2", Type: TypePoll, Score: 100, OccurredAt: now},
	}

	snap := BuildScoreSnapshot(records, "p1")

	if snap.Poll != 6 {
		t.Errorf("Poll = %v, want 6", snap.Poll)
	}
	if snap.QnA != 5 {
		t.Errorf("QnA = %v, want 5", snap.QnA)
	}
	if snap.Resource != 1 {
		t.Errorf("Resource = %v, want 1", snap.Resource)
	}
	if snap.Attendance != 30 {
		t.Errorf("Attendance = %v, want 30", snap.Attendance)
	}
	if snap.Total != 52 {
		t.Errorf("Total = %v, want 52", snap.Total)
	}
	if snap.RankPercentile != nil {
		t.Error("RankPercentile should be nil when not resolved")
	}
}

func TestScoreSnapshot_ScoreFor(t *testing.T) {
	snap := ScoreSnapshot{Poll: 1, QnA: 2, Resource: 3, Attendance: 4}

	if _, ok := snap.ScoreFor(CategoryOverall); ok {
		t.Error("overall should be unavailable without a rank percentile")
	}

	pct := 91.0
	snap.RankPercentile = &pct
	if v, ok := snap.ScoreFor(CategoryOverall); !ok || v != 91 {
		t.Errorf("ScoreFor(overall) = %v, %v; want 91, true", v, ok)
	}
	if v, _ := snap.ScoreFor(CategoryAttendance); v != 4 {
		t.Errorf("ScoreFor(attendance) = %v, want 4", v)
	}
}

func TestLeaderboard_SharedRanks(t *testing.T) {
	now := time.Now()
	records := []Record{
		{ParticipantID: "a", Score: 10, OccurredAt: now},
		{ParticipantID: "b", Score: 20, OccurredAt: now},
		{ParticipantID: "c", Score: 20, OccurredAt: now},
		{ParticipantID: "d", Score: 5, OccurredAt: now},
	}

	board := Leaderboard(records)
	want := []Standing{
		{ParticipantID: "b", TotalScore: 20, Rank: 1},
		{ParticipantID: "c", TotalScore: 20, Rank: 1},
		{ParticipantID: "a", TotalScore: 10, Rank: 3},
		{ParticipantID: "d", TotalScore: 5, Rank: 4},
	}
	if len(board) != len(want) {
		t.Fatalf("got %d standings, want %d", len(board), len(want))
	}
	for i := range want {
		if board[i] != want[i] {
			t.Errorf("standing[%d] = %+v, want %+v", i, board[i], want[i])
		}
	}
}

func TestRankPercentile(t *testing.T) {
	tests := []struct {
		rank, n int
		want    float64
	}{
		{1, 10, 90},
		{10, 10, 0},
		{1, 1, 0},
		{2, 3, 33},
		{0, 10, 0},
		{1, 0, 0},
	}
	for _, tt := range tests {
		if got := RankPercentile(tt.rank, tt.n); got != tt.want {
			t.Errorf("RankPercentile(%d, %d) = %v, want %v", tt.rank, tt.n, got, tt.want)
		}
	}
}
