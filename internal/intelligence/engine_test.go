package intelligence

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/onnwee/crowdpulse/internal/activity"
	"github.com/onnwee/crowdpulse/internal/badge"
	"github.com/onnwee/crowdpulse/internal/engagement"
	"github.com/onnwee/crowdpulse/internal/insight"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeClock hands out instants from a script, then keeps returning the last one.
type fakeClock struct {
	mu    sync.Mutex
	times []time.Time
}

func fixedClock(t time.Time) *fakeClock { return &fakeClock{times: []time.Time{t}} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.times[0]
	if len(c.times) > 1 {
		c.times = c.times[1:]
	}
	return t
}

// countingGateway counts activity reads and can be made to fail, block or panic.
type countingGateway struct {
	activity.Gateway
	reads   atomic.Int32
	fail    atomic.Bool
	panics  atomic.Bool
	release chan struct{} // when non-nil, reads block until closed or ctx done
	entered chan struct{}
}

func (g *countingGateway) GetActivityRecords(ctx context.Context, sessionID string, since *time.Time) ([]activity.Record, error) {
	g.reads.Add(1)
	if g.entered != nil {
		select {
		case g.entered <- struct{}{}:
		default:
		}
	}
	if g.release != nil {
		select {
		case <-g.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if g.panics.Load() {
		panic("corrupt row")
	}
	if g.fail.Load() {
		return nil, errors.New("connection refused")
	}
	return g.Gateway.GetActivityRecords(ctx, sessionID, since)
}

func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return -1
	}
	return m.GetCounter().GetValue()
}

func seededStore(t *testing.T) *activity.InMemoryStore {
	t.Helper()
	store := activity.NewInMemoryStore()
	ctx := context.Background()
	started := testNow.Add(-25 * time.Minute)
	store.SetSessionMetadata("s1", activity.SessionMetadata{Title: "Intro to Machine Learning", StartedAt: &started})
	for _, id := range []string{"alice", "bob", "carol", "dave"} {
		store.AddParticipant("s1", id)
	}
	recs := []activity.Record{
		{ParticipantID: "alice", SessionID: "s1", Type: activity.TypePoll, Score: 6, OccurredAt: testNow.Add(-2 * time.Minute)},
		{ParticipantID: "alice", SessionID: "s1", Type: activity.TypeQuestion, Score: 3, OccurredAt: testNow.Add(-time.Minute)},
		{ParticipantID: "bob", SessionID: "s1", Type: activity.TypeResourceDownload, Score: 3, OccurredAt: testNow.Add(-12 * time.Minute)},
	}
	for _, r := range recs {
		if err := store.RecordActivity(ctx, r); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	store.RecordOrganizerActivity("s1", activity.OrganizerActivity{Kind: activity.OrganizerPoll, OccurredAt: testNow.Add(-3 * time.Minute)})
	return store
}

func newTestEngine(t *testing.T, gw activity.Gateway, cfg Config) *Engine {
	t.Helper()
	if cfg.Now == nil {
		cfg.Now = fixedClock(testNow).Now
	}
	if cfg.Interval == 0 {
		cfg.Interval = time.Hour
	}
	e := NewEngine(cfg, gw, badge.NewEvaluator(badge.NewInMemoryAwardStore(), badge.EvaluatorOptions{
		RankSource: gw,
		Now:        func() time.Time { return testNow },
	}))
	t.Cleanup(e.Close)
	return e
}

func waitFor(t *testing.T, ch <-chan *SessionIntelligence) *SessionIntelligence {
	t.Helper()
	select {
	case snap := <-ch:
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

func TestGetCurrentIntelligence_Untracked(t *testing.T) {
	gw := &countingGateway{Gateway: seededStore(t)}
	e := newTestEngine(t, gw, Config{})

	snap := e.GetCurrentIntelligence(context.Background(), "s1")
	if snap.Degraded {
		t.Fatal("unexpected degraded snapshot")
	}
	if snap.Topic != insight.TopicAIML {
		t.Errorf("Topic = %q, want ai_ml", snap.Topic)
	}
	if snap.Metrics.TotalParticipants != 4 || snap.Metrics.ActiveParticipants != 1 {
		t.Errorf("unexpected metrics: %+v", snap.Metrics)
	}
	if len(snap.Participants) != 2 {
		t.Errorf("expected 2 analysed participants, got %d", len(snap.Participants))
	}
	if len(snap.Clusters) == 0 {
		t.Error("expected clusters")
	}
	if len(snap.Recommendations.Immediate) == 0 || len(snap.Recommendations.Strategic) == 0 {
		t.Errorf("empty recommendations: %+v", snap.Recommendations)
	}
	if !snap.EvaluatedAt.Equal(testNow) {
		t.Errorf("EvaluatedAt = %v", snap.EvaluatedAt)
	}

	e.GetCurrentIntelligence(context.Background(), "s1")
	if n := gw.reads.Load(); n != 2 {
		t.Errorf("untracked lookups should not be cached: %d reads", n)
	}
}

func TestGetCurrentIntelligence_DegradedOnFailure(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*countingGateway)
	}{
		{"read error", func(g *countingGateway) { g.fail.Store(true) }},
		{"panic", func(g *countingGateway) { g.panics.Store(true) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &countingGateway{Gateway: seededStore(t)}
			tt.setup(gw)
			metrics := NewMetrics()
			e := newTestEngine(t, gw, Config{Metrics: metrics})

			snap := e.GetCurrentIntelligence(context.Background(), "s1")
			if !snap.Degraded {
				t.Fatal("expected degraded snapshot")
			}
			if snap.Metrics.RiskLevel != engagement.RiskHigh || snap.Metrics.SessionHealth != 0 {
				t.Errorf("unexpected degraded metrics: %+v", snap.Metrics)
			}
			if len(snap.OrganizerInsights) != 1 {
				t.Fatalf("expected one insight, got %d", len(snap.OrganizerInsights))
			}
			alert := snap.OrganizerInsights[0]
			if alert.Title != "Analysis Error" || alert.Priority != insight.PriorityUrgent || alert.Type != insight.TypeAlert {
				t.Errorf("unexpected alert: %+v", alert)
			}
			if got := snap.Recommendations.Immediate; len(got) != 1 || got[0] != "Check session connectivity" {
				t.Errorf("Immediate = %v", got)
			}
			if got := snap.Recommendations.Strategic; len(got) != 1 || got[0] != "Review session setup" {
				t.Errorf("Strategic = %v", got)
			}
			if v := counterValue(metrics.evaluations.WithLabelValues(OutcomeDegraded)); v != 1 {
				t.Errorf("degraded evaluations = %v, want 1", v)
			}
		})
	}
}

func TestGetCurrentIntelligence_UnknownSessionIsNotDegraded(t *testing.T) {
	e := newTestEngine(t, activity.NewInMemoryStore(), Config{})
	snap := e.GetCurrentIntelligence(context.Background(), "nobody")
	if snap.Degraded {
		t.Fatal("unknown session should evaluate to an empty snapshot")
	}
	if snap.Topic != insight.TopicGeneral || snap.Metrics.TotalParticipants != 0 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}

func TestGetCurrentIntelligence_CollapsesConcurrentMisses(t *testing.T) {
	gw := &countingGateway{Gateway: seededStore(t), release: make(chan struct{}), entered: make(chan struct{}, 1)}
	e := newTestEngine(t, gw, Config{})

	const callers = 8
	results := make(chan *SessionIntelligence, callers)
	for i := 0; i < callers; i++ {
		go func() { results <- e.GetCurrentIntelligence(context.Background(), "s1") }()
	}
	<-gw.entered
	time.Sleep(20 * time.Millisecond)
	close(gw.release)

	first := waitFor(t, results)
	for i := 1; i < callers; i++ {
		if snap := waitFor(t, results); snap.Degraded != first.Degraded {
			t.Error("callers saw different results")
		}
	}
	if n := gw.reads.Load(); n >= callers {
		t.Errorf("expected collapsed reads, got %d for %d callers", n, callers)
	}
}

func TestStartTracking_EvaluatesImmediatelyAndCaches(t *testing.T) {
	gw := &countingGateway{Gateway: seededStore(t)}
	e := newTestEngine(t, gw, Config{})

	updates := make(chan *SessionIntelligence, 4)
	if err := e.StartTracking("s1", func(s *SessionIntelligence) { updates <- s }); err != nil {
		t.Fatalf("StartTracking() error: %v", err)
	}
	snap := waitFor(t, updates)
	if snap.Generation == 0 {
		t.Error("tracked snapshot should carry a generation")
	}

	if got := e.GetCurrentIntelligence(context.Background(), "s1"); got != snap {
		t.Error("expected cached snapshot for tracked session")
	}
	if n := gw.reads.Load(); n != 1 {
		t.Errorf("cache hit should not read the gateway: %d reads", n)
	}

	second := make(chan *SessionIntelligence, 1)
	if err := e.StartTracking("s1", func(s *SessionIntelligence) { second <- s }); err != nil {
		t.Fatalf("second StartTracking() error: %v", err)
	}
	if got := e.TrackedSessions(); len(got) != 1 || got[0] != "s1" {
		t.Errorf("TrackedSessions() = %v", got)
	}

	if err := e.StartTracking("", nil); !errors.Is(err, ErrEmptySessionID) {
		t.Errorf("expected ErrEmptySessionID, got %v", err)
	}
}

func TestStartTracking_ObserversSeeNonDecreasingTimes(t *testing.T) {
	clock := &fakeClock{times: []time.Time{
		testNow,
		testNow.Add(2 * time.Second),
		testNow.Add(time.Second), // clock stepped back
		testNow.Add(3 * time.Second),
	}}
	e := newTestEngine(t, seededStore(t), Config{Interval: 5 * time.Millisecond, Now: clock.Now})

	updates := make(chan *SessionIntelligence, 16)
	if err := e.StartTracking("s1", func(s *SessionIntelligence) {
		select {
		case updates <- s:
		default:
		}
	}); err != nil {
		t.Fatal(err)
	}

	var prev *SessionIntelligence
	for i := 0; i < 4; i++ {
		snap := waitFor(t, updates)
		if prev != nil {
			if snap.EvaluatedAt.Before(prev.EvaluatedAt) {
				t.Fatalf("EvaluatedAt went backwards: %v after %v", snap.EvaluatedAt, prev.EvaluatedAt)
			}
			if snap.Generation != prev.Generation {
				t.Fatalf("generation changed within one tracker: %d -> %d", prev.Generation, snap.Generation)
			}
		}
		prev = snap
	}
}

func TestStopTracking_DiscardsInFlightEvaluation(t *testing.T) {
	gw := &countingGateway{Gateway: seededStore(t), release: make(chan struct{}), entered: make(chan struct{}, 1)}
	metrics := NewMetrics()
	e := newTestEngine(t, gw, Config{Metrics: metrics})

	var delivered atomic.Int32
	if err := e.StartTracking("s1", func(*SessionIntelligence) { delivered.Add(1) }); err != nil {
		t.Fatal(err)
	}
	<-gw.entered

	e.mu.Lock()
	tr := e.trackers["s1"]
	e.mu.Unlock()

	e.StopTracking("s1")
	close(gw.release)
	<-tr.done

	if n := delivered.Load(); n != 0 {
		t.Errorf("observer called %d times after stop", n)
	}
	if e.IsTracking("s1") {
		t.Error("session still tracked")
	}
	if v := counterValue(metrics.droppedUpdates); v != 1 {
		t.Errorf("dropped updates = %v, want 1", v)
	}

	// Stopping again is a no-op.
	e.StopTracking("s1")
}

func TestStopTracking_WaitsForDelivery(t *testing.T) {
	e := newTestEngine(t, seededStore(t), Config{})

	inObserver := make(chan struct{})
	release := make(chan struct{})
	if err := e.StartTracking("s1", func(*SessionIntelligence) {
		close(inObserver)
		<-release
	}); err != nil {
		t.Fatal(err)
	}
	<-inObserver

	stopped := make(chan struct{})
	go func() {
		e.StopTracking("s1")
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("StopTracking returned while a delivery was in progress")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("StopTracking did not return after delivery finished")
	}
}

func TestRestartTracking_NewGeneration(t *testing.T) {
	e := newTestEngine(t, seededStore(t), Config{})

	first := make(chan *SessionIntelligence, 1)
	if err := e.StartTracking("s1", func(s *SessionIntelligence) { first <- s }); err != nil {
		t.Fatal(err)
	}
	a := waitFor(t, first)
	e.StopTracking("s1")

	second := make(chan *SessionIntelligence, 1)
	if err := e.StartTracking("s1", func(s *SessionIntelligence) { second <- s }); err != nil {
		t.Fatal(err)
	}
	b := waitFor(t, second)
	if b.Generation <= a.Generation {
		t.Errorf("generation did not advance: %d then %d", a.Generation, b.Generation)
	}
	select {
	case s := <-first:
		t.Errorf("stopped observer received generation %d", s.Generation)
	default:
	}
}

func TestSubscribe(t *testing.T) {
	e := newTestEngine(t, seededStore(t), Config{Interval: 5 * time.Millisecond})

	if _, err := e.Subscribe("s1", func(*SessionIntelligence) {}); !errors.Is(err, ErrNotTracked) {
		t.Fatalf("expected ErrNotTracked, got %v", err)
	}
	if err := e.StartTracking("s1", nil); err != nil {
		t.Fatal(err)
	}

	updates := make(chan *SessionIntelligence, 64)
	unsubscribe, err := e.Subscribe("s1", func(s *SessionIntelligence) {
		select {
		case updates <- s:
		default:
		}
	})
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	waitFor(t, updates)

	unsubscribe()
	time.Sleep(20 * time.Millisecond) // let a delivery that raced the unsubscribe land
	for len(updates) > 0 {
		<-updates
	}
	time.Sleep(30 * time.Millisecond)
	if len(updates) != 0 {
		t.Errorf("received %d updates after unsubscribe", len(updates))
	}
}

func TestObserverPanicDoesNotStopOthers(t *testing.T) {
	e := newTestEngine(t, seededStore(t), Config{})
	if err := e.StartTracking("s1", func(*SessionIntelligence) { panic("bad observer") }); err != nil {
		t.Fatal(err)
	}
	got := make(chan *SessionIntelligence, 2)
	if _, err := e.Subscribe("s1", func(s *SessionIntelligence) { got <- s }); err != nil {
		t.Fatal(err)
	}

	e.mu.Lock()
	tr := e.trackers["s1"]
	e.mu.Unlock()
	e.deliver(tr, &SessionIntelligence{SessionID: "s1", EvaluatedAt: testNow}, tr.beginEvaluation())
	waitFor(t, got)
}

func TestGetParticipantInsights(t *testing.T) {
	e := newTestEngine(t, seededStore(t), Config{})
	ctx := context.Background()

	bob := e.GetParticipantInsights(ctx, "s1", "bob")
	if len(bob) != 1 || bob[0].Title != "Jump Back In!" {
		t.Errorf("bob insights = %+v", bob)
	}
	stranger := e.GetParticipantInsights(ctx, "s1", "eve")
	if len(stranger) != 1 || stranger[0].Rule != insight.RulePersonalIdle {
		t.Errorf("unknown participant insights = %+v", stranger)
	}
	if alice := e.GetParticipantInsights(ctx, "s1", "alice"); len(alice) != 0 {
		t.Errorf("active participant should have no personal insights: %+v", alice)
	}
}

func TestEvaluateBadgesFromHistory(t *testing.T) {
	store := seededStore(t)
	e := newTestEngine(t, store, Config{})
	ctx := context.Background()

	got, err := e.EvaluateBadgesFromHistory(ctx, "alice", "s1")
	if err != nil {
		t.Fatalf("EvaluateBadgesFromHistory() error: %v", err)
	}
	ids := map[string]bool{}
	for _, a := range got {
		ids[a.BadgeID] = true
	}
	if !ids[badge.IDPollParticipant] || !ids[badge.IDCuriousMind] {
		t.Errorf("expected poll_participant and curious_mind, got %v", ids)
	}
	if ids[badge.IDEngagementChampion] {
		t.Error("a 50th percentile rank should not earn engagement_champion")
	}

	again, err := e.EvaluateBadgesFromHistory(ctx, "alice", "s1")
	if err != nil || len(again) != 0 {
		t.Errorf("second evaluation = %v, %v; want no new awards", again, err)
	}

	snap := e.GetCurrentIntelligence(ctx, "s1")
	found := false
	for _, c := range snap.Clusters {
		if c.BadgeDistribution[badge.IDPollParticipant] > 0 {
			found = true
		}
	}
	if !found {
		t.Error("cluster badge distribution should include awarded badges")
	}

	failing := &countingGateway{Gateway: store}
	failing.fail.Store(true)
	e2 := newTestEngine(t, failing, Config{})
	if _, err := e2.EvaluateBadgesFromHistory(ctx, "alice", "s1"); err == nil {
		t.Error("expected error when history cannot be loaded")
	}
}

func TestClose(t *testing.T) {
	e := NewEngine(Config{Interval: time.Hour, Now: fixedClock(testNow).Now}, seededStore(t), nil)
	updates := make(chan *SessionIntelligence, 1)
	if err := e.StartTracking("s1", func(s *SessionIntelligence) { updates <- s }); err != nil {
		t.Fatal(err)
	}
	waitFor(t, updates)

	e.Close()
	if e.IsTracking("s1") {
		t.Error("tracker survived Close")
	}
	if err := e.StartTracking("s2", nil); !errors.Is(err, ErrEngineClosed) {
		t.Errorf("expected ErrEngineClosed, got %v", err)
	}
	if got := e.EvaluateBadges(context.Background(), "a", "s1", activity.ScoreSnapshot{Poll: 10}); got != nil {
		t.Errorf("engine without evaluator awarded %v", got)
	}
}

func TestSessionDuration(t *testing.T) {
	started := testNow.Add(-25 * time.Minute)
	future := testNow.Add(time.Minute)
	tests := []struct {
		name    string
		meta    *activity.SessionMetadata
		tracked time.Time
		want    float64
	}{
		{"metadata start", &activity.SessionMetadata{StartedAt: &started}, testNow.Add(-time.Minute), 25},
		{"tracking start", &activity.SessionMetadata{}, testNow.Add(-10 * time.Minute), 10},
		{"nothing known", nil, time.Time{}, 0},
		{"future start", &activity.SessionMetadata{StartedAt: &future}, time.Time{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sessionDuration(tt.meta, tt.tracked, testNow); got != tt.want {
				t.Errorf("sessionDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOnUpdateSeesEveryTrackedSession(t *testing.T) {
	store := seededStore(t)
	store.AddParticipant("s2", "zed")

	seen := make(chan string, 8)
	e := newTestEngine(t, store, Config{OnUpdate: func(s *SessionIntelligence) { seen <- s.SessionID }})

	for _, id := range []string{"s1", "s2", "s1"} {
		if err := e.StartTracking(id, nil); err != nil {
			t.Fatal(err)
		}
	}

	got := map[string]int{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-seen:
			got[id]++
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out; saw %v", got)
		}
	}
	if got["s1"] != 1 || got["s2"] != 1 {
		t.Errorf("OnUpdate calls = %v, want one per session", got)
	}
}

type recordingJobMetrics struct {
	mu     sync.Mutex
	totals map[string]int
	errs   map[string]int
}

func (r *recordingJobMetrics) IncJobsTotal(jobType, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totals[jobType+"/"+status]++
}

func (r *recordingJobMetrics) ObserveJobDuration(string, float64) {}

func (r *recordingJobMetrics) IncJobErrors(jobType, errorType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs[jobType+"/"+errorType]++
}

func TestRefreshReportsJobMetrics(t *testing.T) {
	gw := &countingGateway{Gateway: seededStore(t)}
	gw.fail.Store(true)
	jm := &recordingJobMetrics{totals: map[string]int{}, errs: map[string]int{}}
	e := newTestEngine(t, gw, Config{JobMetrics: jm})

	updates := make(chan *SessionIntelligence, 1)
	if err := e.StartTracking("s1", func(s *SessionIntelligence) { updates <- s }); err != nil {
		t.Fatal(err)
	}
	if snap := waitFor(t, updates); !snap.Degraded {
		t.Fatal("expected degraded snapshot")
	}

	jm.mu.Lock()
	defer jm.mu.Unlock()
	if jm.totals["intelligence_refresh/failure"] != 1 {
		t.Errorf("totals = %v", jm.totals)
	}
	if jm.errs["intelligence_refresh/gateway_error"] != 1 {
		t.Errorf("errors = %v", jm.errs)
	}
}

func TestLeaderboard(t *testing.T) {
	e := newTestEngine(t, seededStore(t), Config{})

	standings, err := e.Leaderboard(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}
	want := []activity.Standing{
		{ParticipantID: "alice", TotalScore: 9, Rank: 1},
		{ParticipantID: "bob", TotalScore: 3, Rank: 2},
	}
	if len(standings) != len(want) {
		t.Fatalf("standings = %+v", standings)
	}
	for i := range want {
		if standings[i] != want[i] {
			t.Errorf("standings[%d] = %+v, want %+v", i, standings[i], want[i])
		}
	}

	if _, err := e.Leaderboard(context.Background(), ""); !errors.Is(err, ErrEmptySessionID) {
		t.Errorf("empty session error = %v", err)
	}
}

func TestLeaderboard_GatewayFailure(t *testing.T) {
	gw := &countingGateway{Gateway: seededStore(t)}
	gw.fail.Store(true)
	e := newTestEngine(t, gw, Config{})

	if _, err := e.Leaderboard(context.Background(), "s1"); err == nil {
		t.Fatal("expected error")
	}
}

func TestParticipantScore(t *testing.T) {
	e := newTestEngine(t, seededStore(t), Config{})
	ctx := context.Background()

	alice, err := e.ParticipantScore(ctx, "s1", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if alice.Poll != 6 || alice.QnA != 3 || alice.Total != 9 {
		t.Errorf("alice scores = %+v", alice)
	}
	if alice.RankPercentile == nil || *alice.RankPercentile != 50 {
		t.Errorf("alice percentile = %v", alice.RankPercentile)
	}

	bob, err := e.ParticipantScore(ctx, "s1", "bob")
	if err != nil {
		t.Fatal(err)
	}
	if bob.Resource != 3 || bob.RankPercentile == nil || *bob.RankPercentile != 0 {
		t.Errorf("bob = %+v", bob)
	}

	if _, err := e.ParticipantScore(ctx, "s1", "carol"); !errors.Is(err, activity.ErrParticipantNotRanked) {
		t.Errorf("carol error = %v", err)
	}
}

func TestCountSince(t *testing.T) {
	recs := []activity.Record{
		{OccurredAt: testNow.Add(-10 * time.Minute)},
		{OccurredAt: testNow.Add(-9 * time.Minute)},
		{OccurredAt: testNow},
		{OccurredAt: testNow.Add(time.Second)},
	}
	if got := countSince(recs, testNow, insight.StreamWindow); got != 2 {
		t.Errorf("countSince = %d, want 2", got)
	}
}

func TestGetCurrentIntelligence_QuietWindowRaisesLowActivity(t *testing.T) {
	store := activity.NewInMemoryStore()
	store.AddParticipant("s1", "alice")
	if err := store.RecordActivity(context.Background(), activity.Record{
		ParticipantID: "alice", SessionID: "s1", Type: activity.TypePoll, Score: 6, OccurredAt: testNow.Add(-15 * time.Minute),
	}); err != nil {
		t.Fatal(err)
	}
	e := newTestEngine(t, store, Config{})

	snap := e.GetCurrentIntelligence(context.Background(), "s1")
	found := false
	for _, in := range snap.OrganizerInsights {
		if in.Rule == insight.RuleLowActivity {
			found = true
		}
	}
	if !found {
		t.Errorf("expected low activity insight, got %+v", snap.OrganizerInsights)
	}
}
