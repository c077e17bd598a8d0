package intelligence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/crowdpulse/internal/activity"
)

// firstReadBlocker holds the first activity read until release is closed.
type firstReadBlocker struct {
	activity.Gateway
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *firstReadBlocker) GetActivityRecords(ctx context.Context, sessionID string, since *time.Time) ([]activity.Record, error) {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		select {
		case <-g.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return g.Gateway.GetActivityRecords(ctx, sessionID, since)
}

func TestGetCurrentIntelligence_TrackedMissOrdersWithTracker(t *testing.T) {
	gw := &firstReadBlocker{Gateway: seededStore(t), entered: make(chan struct{}), release: make(chan struct{})}
	early, late := testNow, testNow.Add(10*time.Second)
	// StartTracking and the tracker's first evaluation read early; the
	// on-demand evaluation reads late.
	clock := &fakeClock{times: []time.Time{early, early, late}}
	metrics := NewMetrics()
	e := newTestEngine(t, gw, Config{Now: clock.Now, Metrics: metrics})

	updates := make(chan *SessionIntelligence, 4)
	if err := e.StartTracking("s1", func(s *SessionIntelligence) { updates <- s }); err != nil {
		t.Fatalf("StartTracking() error: %v", err)
	}
	<-gw.entered

	snap := e.GetCurrentIntelligence(context.Background(), "s1")
	if snap.Degraded || !snap.EvaluatedAt.Equal(late) {
		t.Fatalf("on-demand snapshot = degraded %v at %v, want fresh at %v", snap.Degraded, snap.EvaluatedAt, late)
	}
	if got := waitFor(t, updates); got != snap {
		t.Fatalf("observer should receive the on-demand snapshot first, got %v", got.EvaluatedAt)
	}

	close(gw.release)
	deadline := time.Now().Add(2 * time.Second)
	for counterValue(metrics.droppedUpdates) < 1 {
		if time.Now().After(deadline) {
			t.Fatal("superseded tracker result was not dropped")
		}
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case stale := <-updates:
		t.Fatalf("observer saw %v after %v", stale.EvaluatedAt, late)
	case <-time.After(20 * time.Millisecond):
	}
	if cached := e.GetCurrentIntelligence(context.Background(), "s1"); cached != snap {
		t.Errorf("cache holds %v, want the on-demand snapshot", cached.EvaluatedAt)
	}
}

func TestGetCurrentIntelligence_IgnoresCallerCancellation(t *testing.T) {
	e := newTestEngine(t, seededStore(t), Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if snap := e.GetCurrentIntelligence(ctx, "s1"); snap.Degraded {
		t.Error("a departed caller should not degrade the shared evaluation")
	}
}
