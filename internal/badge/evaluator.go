package badge

import (
	"context"
	"log/slog"
	"time"

	"github.com/onnwee/crowdpulse/internal/activity"
	"github.com/onnwee/crowdpulse/internal/tracing"
)

// EvaluatorOptions configures an Evaluator. Zero values select defaults.
type EvaluatorOptions struct {
	// Catalog defaults to DefaultCatalog().
	Catalog []Definition
	// RankSource resolves the overall percentile when a snapshot lacks one.
	RankSource activity.RankSource
	Metrics    *Metrics
	Logger     *slog.Logger
	Now        func() time.Time
}

// Evaluator compares score snapshots against the catalog and persists new awards.
type Evaluator struct {
	store   AwardStore
	catalog []Definition
	ranks   activity.RankSource
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewEvaluator creates an Evaluator backed by store.
func NewEvaluator(store AwardStore, opts EvaluatorOptions) *Evaluator {
	e := &Evaluator{
		store:   store,
		catalog: opts.Catalog,
		ranks:   opts.RankSource,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		now:     opts.Now,
	}
	if e.catalog == nil {
		e.catalog = DefaultCatalog()
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Catalog returns the definitions this evaluator checks.
func (e *Evaluator) Catalog() []Definition {
	return append([]Definition(nil), e.catalog...)
}

// Store returns the backing award store.
func (e *Evaluator) Store() AwardStore {
	return e.store
}

// EvaluateBadges awards every catalog badge whose threshold the snapshot
// meets and returns only the awards created by this call. Store failures are
// logged per badge and never abort the remaining definitions.
func (e *Evaluator) EvaluateBadges(ctx context.Context, participantID, sessionID string, snapshot activity.ScoreSnapshot) []Award {
	if participantID == "" || sessionID == "" {
		return nil
	}

	ctx, end := tracing.StartSpan(ctx, "badge.evaluate")
	defer end(nil)
	e.metrics.incEvaluation()

	snapshot = e.withPercentile(ctx, participantID, sessionID, snapshot)

	var awarded []Award
	for _, def := range e.catalog {
		if !def.Earned(snapshot) {
			continue
		}
		if award, ok := e.award(ctx, participantID, sessionID, def); ok {
			awarded = append(awarded, award)
		}
	}
	return awarded
}

func (e *Evaluator) award(ctx context.Context, participantID, sessionID string, def Definition) (Award, bool) {
	has, err := e.store.HasBadge(ctx, participantID, sessionID, def.ID)
	if err != nil {
		// Fall through; the insert itself is idempotent.
		e.metrics.incStoreError(OpHasBadge)
		e.logger.WarnContext(ctx, "badge pre-check failed",
			"participant_id", participantID, "session_id", sessionID, "badge_id", def.ID, "error", err)
	} else if has {
		return Award{}, false
	}

	award := Award{
		ParticipantID: participantID,
		SessionID:     sessionID,
		BadgeID:       def.ID,
		EarnedAt:      e.now().UTC(),
	}
	res, err := e.store.CreateBadgeAward(ctx, award)
	if err != nil {
		e.metrics.incStoreError(OpCreate)
		e.logger.ErrorContext(ctx, "failed to create badge award",
			"participant_id", participantID, "session_id", sessionID, "badge_id", def.ID, "error", err)
		return Award{}, false
	}
	if res != Created {
		return Award{}, false
	}

	e.metrics.incAward(def.ID)
	e.logger.InfoContext(ctx, "badge awarded",
		"participant_id", participantID, "session_id", sessionID, "badge_id", def.ID, "level", def.Level)
	return award, true
}

// withPercentile fills RankPercentile from the rank source when an overall
// badge needs it. Failure leaves it nil so overall badges are skipped.
func (e *Evaluator) withPercentile(ctx context.Context, participantID, sessionID string, snapshot activity.ScoreSnapshot) activity.ScoreSnapshot {
	if snapshot.RankPercentile != nil || e.ranks == nil || !e.needsPercentile() {
		return snapshot
	}
	pct, err := e.ranks.GetLeaderboardRankPercentile(ctx, participantID, sessionID)
	if err != nil {
		e.metrics.incStoreError(OpRankResolve)
		e.logger.WarnContext(ctx, "rank percentile unavailable, skipping overall badges",
			"participant_id", participantID, "session_id", sessionID, "error", err)
		return snapshot
	}
	snapshot.RankPercentile = &pct
	return snapshot
}

func (e *Evaluator) needsPercentile() bool {
	for _, d := range e.catalog {
		if d.Category == activity.CategoryOverall {
			return true
		}
	}
	return false
}
