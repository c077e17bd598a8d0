//go:build integration

package activity

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startPostgres runs a disposable Postgres container with the engine schema applied.
// Run with: go test -tags=integration ./internal/activity/...
func startPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("crowdpulse"),
		postgres.WithUsername("crowdpulse"),
		postgres.WithPassword("crowdpulse"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := ctr.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema, err := os.ReadFile(filepath.Join("..", "..", "migrations", "000001_engagement_engine.up.sql"))
	if err != nil {
		t.Fatalf("failed to read migration: %v", err)
	}
	if _, err := db.ExecContext(ctx, string(schema)); err != nil {
		t.Fatalf("failed to apply migration: %v", err)
	}
	return db
}

func TestPostgresGateway_RoundTrip(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	gw := NewPostgresGateway(db, nil)

	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	if _, err := db.ExecContext(ctx,
		`INSERT INTO sessions (id, title, description, organizer_id, started_at) VALUES ($1, $2, $3, $4, $5)`,
		"s1", "Deep Learning Basics", "neural nets", "org-1", started); err != nil {
		t.Fatalf("failed to seed session: %v", err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO session_participants (session_id, participant_id) VALUES ('s1', 'lurker')`); err != nil {
		t.Fatalf("failed to seed participant: %v", err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO polls (session_id, created_by, created_at) VALUES ('s1', 'org-1', $1)`, started.Add(time.Minute)); err != nil {
		t.Fatalf("failed to seed poll: %v", err)
	}

	recs := []Record{
		{ParticipantID: "p1", SessionID: "s1", Type: TypePoll, Score: 5, OccurredAt: started.Add(2 * time.Minute)},
		{ParticipantID: "p2", SessionID: "s1", Type: TypeSessionDuration, Score: 30, OccurredAt: started.Add(3 * time.Minute), Metadata: map[string]any{"minutes": 30.0}},
	}
	for _, r := range recs {
		if err := gw.RecordActivity(ctx, r); err != nil {
			t.Fatalf("RecordActivity() error: %v", err)
		}
	}

	got, err := gw.GetActivityRecords(ctx, "s1", nil)
	if err != nil {
		t.Fatalf("GetActivityRecords() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[1].Minutes() != 30 {
		t.Errorf("metadata minutes not preserved: %v", got[1].Metadata)
	}

	org, err := gw.GetOrganizerActivity(ctx, "s1")
	if err != nil {
		t.Fatalf("GetOrganizerActivity() error: %v", err)
	}
	if len(org) != 1 || org[0].Kind != OrganizerPoll {
		t.Errorf("unexpected organizer activity: %+v", org)
	}

	meta, err := gw.GetSessionMetadata(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSessionMetadata() error: %v", err)
	}
	if meta.StartedAt == nil || !meta.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", meta.StartedAt, started)
	}
	if _, err := gw.GetSessionMetadata(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}

	count, err := gw.GetTotalParticipantCount(ctx, "s1")
	if err != nil {
		t.Fatalf("GetTotalParticipantCount() error: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}

	pct, err := gw.GetLeaderboardRankPercentile(ctx, "p2", "s1")
	if err != nil {
		t.Fatalf("GetLeaderboardRankPercentile() error: %v", err)
	}
	if pct != 50 {
		t.Errorf("percentile = %v, want 50", pct)
	}
}
