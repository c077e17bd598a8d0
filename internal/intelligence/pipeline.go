package intelligence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/onnwee/crowdpulse/internal/activity"
	"github.com/onnwee/crowdpulse/internal/badge"
	"github.com/onnwee/crowdpulse/internal/engagement"
	"github.com/onnwee/crowdpulse/internal/insight"
	"github.com/onnwee/crowdpulse/internal/tracing"
)

// sessionData is everything one evaluation reads from the gateway.
type sessionData struct {
	records      []activity.Record
	organizer    []activity.OrganizerActivity
	metadata     *activity.SessionMetadata
	participants int
	badges       map[string][]string
}

// load fetches the session's data concurrently. Any read failure fails the load.
// An unknown session is not a failure; it simply has no metadata.
func (e *Engine) load(ctx context.Context, sessionID string) (*sessionData, error) {
	var d sessionData
	g, gctx := errgroup.WithContext(ctx)

	g.Go(recovered(func() error {
		recs, err := e.gateway.GetActivityRecords(gctx, sessionID, nil)
		if err != nil {
			return fmt.Errorf("activity records: %w", err)
		}
		d.records = recs
		return nil
	}))
	g.Go(recovered(func() error {
		org, err := e.gateway.GetOrganizerActivity(gctx, sessionID)
		if err != nil {
			return fmt.Errorf("organizer activity: %w", err)
		}
		d.organizer = org
		return nil
	}))
	g.Go(recovered(func() error {
		meta, err := e.gateway.GetSessionMetadata(gctx, sessionID)
		if errors.Is(err, activity.ErrSessionNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("session metadata: %w", err)
		}
		d.metadata = meta
		return nil
	}))
	g.Go(recovered(func() error {
		n, err := e.gateway.GetTotalParticipantCount(gctx, sessionID)
		if err != nil {
			return fmt.Errorf("participant count: %w", err)
		}
		d.participants = n
		return nil
	}))
	if e.awards != nil {
		g.Go(recovered(func() error {
			awards, err := e.awards.ListSessionAwards(gctx, sessionID)
			if err != nil {
				// Clusters render without a badge distribution.
				e.cfg.Logger.WarnContext(gctx, "failed to load session awards",
					"session_id", sessionID, "error", err)
				return nil
			}
			d.badges = badge.ByParticipant(awards)
			return nil
		}))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &d, nil
}

// evaluate runs the full pipeline. It always returns a snapshot; the error
// reports why a degraded one was produced.
func (e *Engine) evaluate(ctx context.Context, sessionID string, trackedSince time.Time) (snap *SessionIntelligence, err error) {
	now := e.cfg.Now()
	start := time.Now()

	ctx, end := tracing.StartSpan(ctx, "intelligence.evaluate")
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("evaluation panicked: %v", r)
		}
		if err != nil {
			snap = degradedSnapshot(sessionID, now)
		}
		end(err)
		e.cfg.Metrics.observeEvaluation(snap.Degraded, time.Since(start).Seconds())
	}()

	data, err := e.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return analyze(sessionID, data, now, sessionDuration(data.metadata, trackedSince, now))
}

// analyze is the pure part of the pipeline. It only fails if a stage panics.
func analyze(sessionID string, d *sessionData, now time.Time, durationMinutes float64) (*SessionIntelligence, error) {
	var (
		metrics      engagement.Metrics
		participants []engagement.ParticipantAnalysis
		vectors      map[string]engagement.ScoreVector
	)

	var g errgroup.Group
	g.Go(recovered(func() error {
		metrics = engagement.CalculateMetrics(engagement.MetricsInput{
			Records:           d.records,
			TotalParticipants: d.participants,
			Organizer:         d.organizer,
			DurationMinutes:   durationMinutes,
			Now:               now,
		})
		return nil
	}))
	g.Go(recovered(func() error {
		participants = engagement.AnalyzeParticipants(d.records, now)
		vectors = engagement.VectorsFromRecords(d.records)
		return nil
	}))
	if err := g.Wait(); err != nil {
		return nil, err
	}

	topic := insight.DetectTopic(d.metadata)
	insights := insight.Generate(insight.Input{
		SessionID:       sessionID,
		Metrics:         metrics,
		Participants:    participants,
		Organizer:       d.organizer,
		Metadata:        d.metadata,
		DurationMinutes: durationMinutes,
		StreamActions:   countSince(d.records, now, insight.StreamWindow),
		Now:             now,
	})

	return &SessionIntelligence{
		SessionID:          sessionID,
		EvaluatedAt:        now,
		Metrics:            metrics,
		Summary:            engagement.Summarize(metrics),
		Topic:              topic,
		OrganizerInsights:  insight.ForRole(insights, insight.RoleOrganizer),
		Participants:       participants,
		TopPerformers:      engagement.TopPerformers(participants, TopListSize),
		AtRiskParticipants: engagement.AtRisk(participants, TopListSize),
		Clusters:           engagement.ClusterParticipants(participants, vectors, d.badges),
		Recommendations:    insight.Recommend(insights, metrics, participants, topic),
	}, nil
}

// countSince counts records in (now-window, now].
func countSince(records []activity.Record, now time.Time, window time.Duration) int {
	cutoff := now.Add(-window)
	n := 0
	for _, r := range records {
		if r.OccurredAt.After(cutoff) && !r.OccurredAt.After(now) {
			n++
		}
	}
	return n
}

// recovered wraps an errgroup task so a panic surfaces as its error.
func recovered(fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("pipeline stage panicked: %v", r)
			}
		}()
		return fn()
	}
}

// degradedSnapshot is returned whenever a session cannot be analysed.
func degradedSnapshot(sessionID string, now time.Time) *SessionIntelligence {
	metrics := engagement.Metrics{RiskLevel: engagement.RiskHigh}
	return &SessionIntelligence{
		SessionID:         sessionID,
		EvaluatedAt:       now,
		Degraded:          true,
		Metrics:           metrics,
		Summary:           engagement.Summarize(metrics),
		Topic:             insight.TopicGeneral,
		OrganizerInsights: []insight.Insight{insight.AnalysisError(sessionID, now)},
		Recommendations:   insight.DegradedRecommendations(),
	}
}

// sessionDuration prefers the session's own start time, then the time
// tracking began. Unknown or future starts yield zero.
func sessionDuration(meta *activity.SessionMetadata, trackedSince, now time.Time) float64 {
	var started time.Time
	switch {
	case meta != nil && meta.StartedAt != nil:
		started = *meta.StartedAt
	case !trackedSince.IsZero():
		started = trackedSince
	default:
		return 0
	}
	if d := now.Sub(started); d > 0 {
		return d.Minutes()
	}
	return 0
}
