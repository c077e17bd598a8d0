package intelligence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/onnwee/crowdpulse/internal/activity"
	"github.com/onnwee/crowdpulse/internal/badge"
	"github.com/onnwee/crowdpulse/internal/engagement"
	"github.com/onnwee/crowdpulse/internal/insight"
	"github.com/onnwee/crowdpulse/internal/jobs"
)

// Engine evaluates sessions on demand and on a schedule for tracked sessions.
type Engine struct {
	cfg       Config
	gateway   activity.Gateway
	awards    badge.AwardStore
	evaluator *badge.Evaluator

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu       sync.Mutex
	trackers map[string]*tracker
	cache    map[string]*SessionIntelligence
	nextGen  uint64
	closed   bool

	flight singleflight.Group
}

// NewEngine creates an Engine. evaluator may be nil, in which case badge
// operations award nothing. Its award store also feeds cluster badge counts.
func NewEngine(cfg Config, gateway activity.Gateway, evaluator *badge.Evaluator) *Engine {
	cfg.setDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		cfg:        cfg,
		gateway:    gateway,
		evaluator:  evaluator,
		baseCtx:    ctx,
		baseCancel: cancel,
		trackers:   make(map[string]*tracker),
		cache:      make(map[string]*SessionIntelligence),
	}
	if evaluator != nil {
		e.awards = evaluator.Store()
	}
	return e
}

// StartTracking begins periodic evaluation of a session. The first call
// evaluates immediately and then every Interval; later calls only add
// onUpdate as another observer. onUpdate may be nil.
func (e *Engine) StartTracking(sessionID string, onUpdate UpdateFunc) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEngineClosed
	}
	if t, ok := e.trackers[sessionID]; ok {
		e.mu.Unlock()
		if onUpdate != nil {
			t.addObserver(onUpdate)
		}
		return nil
	}

	e.nextGen++
	ctx, cancel := context.WithCancel(e.baseCtx)
	t := newTracker(sessionID, e.nextGen, e.cfg.Now(), cancel)
	if onUpdate != nil {
		t.addObserver(onUpdate)
	}
	e.trackers[sessionID] = t
	count := len(e.trackers)
	e.mu.Unlock()

	e.cfg.Metrics.setTrackedSessions(count)
	e.cfg.Logger.Info("started session tracking",
		"session_id", sessionID,
		"generation", t.generation,
		"interval", e.cfg.Interval)

	go e.run(ctx, t)
	return nil
}

// StopTracking cancels a session's tracker and drops its cached snapshot.
// It returns after any delivery already in progress has finished; nothing
// is delivered for the session afterwards. Stopping an untracked session is
// a no-op.
func (e *Engine) StopTracking(sessionID string) {
	e.mu.Lock()
	t, ok := e.trackers[sessionID]
	if ok {
		delete(e.trackers, sessionID)
		delete(e.cache, sessionID)
	}
	count := len(e.trackers)
	e.mu.Unlock()

	if !ok {
		return
	}
	t.stop()
	e.cfg.Metrics.setTrackedSessions(count)
	e.cfg.Logger.Info("stopped session tracking",
		"session_id", sessionID,
		"generation", t.generation)
}

// IsTracking reports whether a session has a live tracker.
func (e *Engine) IsTracking(sessionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.trackers[sessionID]
	return ok
}

// TrackedSessions lists tracked session IDs in sorted order.
func (e *Engine) TrackedSessions() []string {
	e.mu.Lock()
	ids := make([]string, 0, len(e.trackers))
	for id := range e.trackers {
		ids = append(ids, id)
	}
	e.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Subscribe adds an observer to a tracked session. The returned function
// removes it.
func (e *Engine) Subscribe(sessionID string, fn UpdateFunc) (func(), error) {
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}
	if fn == nil {
		return nil, fmt.Errorf("subscribe %s: nil update func", sessionID)
	}

	e.mu.Lock()
	t, ok := e.trackers[sessionID]
	e.mu.Unlock()
	if !ok {
		return nil, ErrNotTracked
	}

	id := t.addObserver(fn)
	return func() { t.removeObserver(id) }, nil
}

// GetCurrentIntelligence returns the cached snapshot for a tracked session,
// or evaluates the session now. Concurrent misses for one session share a
// single evaluation. For a tracked session the result is delivered through
// the tracker, so it is cached and ordered with the tracker's own results.
// Misses for untracked sessions are not cached.
func (e *Engine) GetCurrentIntelligence(ctx context.Context, sessionID string) *SessionIntelligence {
	e.mu.Lock()
	if snap, ok := e.cache[sessionID]; ok {
		e.mu.Unlock()
		return snap
	}
	t := e.trackers[sessionID]
	e.mu.Unlock()

	// Callers that join the flight share its result, so one caller going
	// away must not cancel it.
	ctx = context.WithoutCancel(ctx)
	v, _, _ := e.flight.Do(sessionID, func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, e.cfg.EvaluationTimeout)
		defer cancel()

		var (
			trackedSince time.Time
			seq          uint64
		)
		if t != nil {
			trackedSince = t.startedAt
			seq = t.beginEvaluation()
		}
		snap, err := e.evaluate(ctx, sessionID, trackedSince)
		if err != nil {
			e.cfg.Logger.WarnContext(ctx, "on-demand evaluation degraded",
				"session_id", sessionID, "error", err)
		}
		if t != nil {
			snap.Generation = t.generation
			e.deliver(t, snap, seq)
		}
		return snap, nil
	})
	return v.(*SessionIntelligence)
}

// GetParticipantInsights returns personal insights for one participant,
// derived from the session's current snapshot. A participant with no
// recorded activity gets the insights for an idle participant.
func (e *Engine) GetParticipantInsights(ctx context.Context, sessionID, participantID string) []insight.Insight {
	snap := e.GetCurrentIntelligence(ctx, sessionID)
	analysis, ok := snap.Participant(participantID)
	if !ok {
		analysis = engagement.ParticipantAnalysis{ParticipantID: participantID, EngagementLevel: engagement.LevelLow}
	}
	return insight.ForParticipant(sessionID, analysis, snap.EvaluatedAt)
}

// EvaluateBadges awards badges for the given snapshot and returns the new ones.
func (e *Engine) EvaluateBadges(ctx context.Context, participantID, sessionID string, snapshot activity.ScoreSnapshot) []badge.Award {
	if e.evaluator == nil {
		return nil
	}
	start := time.Now()
	awards := e.evaluator.EvaluateBadges(ctx, participantID, sessionID, snapshot)
	if e.cfg.JobMetrics != nil {
		e.cfg.JobMetrics.IncJobsTotal(jobs.JobTypeBadgeEvaluation, jobs.StatusSuccess)
		e.cfg.JobMetrics.ObserveJobDuration(jobs.JobTypeBadgeEvaluation, time.Since(start).Seconds())
	}
	return awards
}

// EvaluateBadgesFromHistory builds the participant's score snapshot from the
// session's records and evaluates it.
func (e *Engine) EvaluateBadgesFromHistory(ctx context.Context, participantID, sessionID string) ([]badge.Award, error) {
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}
	records, err := e.gateway.GetActivityRecords(ctx, sessionID, nil)
	if err != nil {
		if e.cfg.JobMetrics != nil {
			e.cfg.JobMetrics.IncJobErrors(jobs.JobTypeBadgeEvaluation, "gateway_error")
		}
		return nil, fmt.Errorf("failed to load activity for badge evaluation: %w", err)
	}
	return e.EvaluateBadges(ctx, participantID, sessionID, activity.BuildScoreSnapshot(records, participantID)), nil
}

// Leaderboard ranks the session's participants by total score.
func (e *Engine) Leaderboard(ctx context.Context, sessionID string) ([]activity.Standing, error) {
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}
	records, err := e.gateway.GetActivityRecords(ctx, sessionID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load activity for leaderboard: %w", err)
	}
	return activity.Leaderboard(records), nil
}

// ParticipantScore returns the participant's cumulative scores with their
// rank percentile resolved. A participant with no records has no standing
// and gets activity.ErrParticipantNotRanked.
func (e *Engine) ParticipantScore(ctx context.Context, sessionID, participantID string) (activity.ScoreSnapshot, error) {
	if sessionID == "" {
		return activity.ScoreSnapshot{}, ErrEmptySessionID
	}
	records, err := e.gateway.GetActivityRecords(ctx, sessionID, nil)
	if err != nil {
		return activity.ScoreSnapshot{}, fmt.Errorf("failed to load activity for score: %w", err)
	}

	standings := activity.Leaderboard(records)
	for _, st := range standings {
		if st.ParticipantID != participantID {
			continue
		}
		snap := activity.BuildScoreSnapshot(records, participantID)
		pct := activity.RankPercentile(st.Rank, len(standings))
		snap.RankPercentile = &pct
		return snap, nil
	}
	return activity.ScoreSnapshot{}, activity.ErrParticipantNotRanked
}

// Close stops every tracker and waits for their loops to exit.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	trackers := make([]*tracker, 0, len(e.trackers))
	for id, t := range e.trackers {
		trackers = append(trackers, t)
		delete(e.trackers, id)
		delete(e.cache, id)
	}
	e.mu.Unlock()

	e.baseCancel()
	for _, t := range trackers {
		t.stop()
		<-t.done
	}
	e.cfg.Metrics.setTrackedSessions(0)
	e.cfg.Logger.Info("intelligence engine closed", "trackers_stopped", len(trackers))
}

// run is a tracker's loop: evaluate now, then on every tick until cancelled.
func (e *Engine) run(ctx context.Context, t *tracker) {
	defer close(t.done)

	e.refresh(ctx, t)

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.cfg.Logger.Debug("session tracker exiting", "session_id", t.sessionID, "generation", t.generation)
			return
		case <-ticker.C:
			e.refresh(ctx, t)
		}
	}
}

// refresh evaluates a tracked session and delivers the result if the
// tracker is still current.
func (e *Engine) refresh(parent context.Context, t *tracker) {
	ctx, cancel := context.WithTimeout(parent, e.cfg.EvaluationTimeout)
	defer cancel()

	seq := t.beginEvaluation()
	start := time.Now()
	snap, err := e.evaluate(ctx, t.sessionID, t.startedAt)
	duration := time.Since(start).Seconds()

	if parent.Err() != nil {
		// Stopped mid-evaluation; the result belongs to a dead generation.
		e.cfg.Metrics.incDropped()
		return
	}

	status := jobs.StatusSuccess
	if err != nil {
		status = jobs.StatusFailure
		e.cfg.Logger.Warn("session evaluation degraded",
			"session_id", t.sessionID,
			"generation", t.generation,
			"error", err)
		if e.cfg.JobMetrics != nil {
			e.cfg.JobMetrics.IncJobErrors(jobs.JobTypeIntelligenceRefresh, errorType(ctx, err))
		}
	}
	if e.cfg.JobMetrics != nil {
		e.cfg.JobMetrics.IncJobsTotal(jobs.JobTypeIntelligenceRefresh, status)
		e.cfg.JobMetrics.ObserveJobDuration(jobs.JobTypeIntelligenceRefresh, duration)
	}

	snap.Generation = t.generation
	e.deliver(t, snap, seq)
}

// deliver caches and pushes snap while holding the tracker's delivery lock,
// so StopTracking can wait for it and no push happens after stop. seq is the
// evaluation's start order; a result overtaken by a later-started evaluation
// that was already delivered is dropped.
func (e *Engine) deliver(t *tracker, snap *SessionIntelligence, seq uint64) {
	t.deliverMu.Lock()
	defer t.deliverMu.Unlock()

	if t.stopped || seq < t.lastSeq {
		e.cfg.Metrics.incDropped()
		return
	}
	t.lastSeq = seq
	if !t.lastEvaluated.IsZero() && snap.EvaluatedAt.Before(t.lastEvaluated) {
		snap.EvaluatedAt = t.lastEvaluated
	}
	t.lastEvaluated = snap.EvaluatedAt

	e.mu.Lock()
	current := e.trackers[t.sessionID] == t
	if current {
		e.cache[t.sessionID] = snap
	}
	e.mu.Unlock()
	if !current {
		e.cfg.Metrics.incDropped()
		return
	}

	if e.cfg.OnUpdate != nil {
		e.notify(t, e.cfg.OnUpdate, snap)
	}
	for _, fn := range t.observerList() {
		e.notify(t, fn, snap)
	}
}

func (e *Engine) notify(t *tracker, fn UpdateFunc, snap *SessionIntelligence) {
	defer func() {
		if r := recover(); r != nil {
			e.cfg.Logger.Error("session observer panicked",
				"session_id", t.sessionID,
				"panic", r)
		}
	}()
	fn(snap)
}

func errorType(ctx context.Context, err error) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if isBreakerOpen(err) {
		return "circuit_open"
	}
	return "gateway_error"
}
