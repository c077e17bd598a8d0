package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/onnwee/crowdpulse/internal/activity"
	"github.com/onnwee/crowdpulse/internal/badge"
	"github.com/onnwee/crowdpulse/internal/engagement"
	"github.com/onnwee/crowdpulse/internal/insight"
	"github.com/onnwee/crowdpulse/internal/intelligence"
)

const maxBodyBytes = 64 << 10

// IntelligenceHandlers serves session intelligence, insights and badges.
type IntelligenceHandlers struct {
	engine      *intelligence.Engine
	broadcaster *intelligence.Broadcaster
	recorder    activity.Recorder
	upgrader    websocket.Upgrader
	logger      *slog.Logger
	now         func() time.Time
}

// IntelligenceHandlersConfig configures IntelligenceHandlers.
type IntelligenceHandlersConfig struct {
	Engine      *intelligence.Engine
	Broadcaster *intelligence.Broadcaster
	// Recorder accepts activity posts. Nil disables the activity route.
	Recorder activity.Recorder
	// CheckOrigin overrides the websocket origin check.
	CheckOrigin func(r *http.Request) bool
	Logger      *slog.Logger
	Now         func() time.Time
}

// NewIntelligenceHandlers creates IntelligenceHandlers.
func NewIntelligenceHandlers(cfg IntelligenceHandlersConfig) *IntelligenceHandlers {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &IntelligenceHandlers{
		engine:      cfg.Engine,
		broadcaster: cfg.Broadcaster,
		recorder:    cfg.Recorder,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     cfg.CheckOrigin,
		},
		logger: cfg.Logger,
		now:    cfg.Now,
	}
}

// TrackingResponse reports the tracking state of a session.
type TrackingResponse struct {
	SessionID string `json:"session_id"`
	Tracking  bool   `json:"tracking"`
}

// StartTracking handles POST /sessions/{sessionID}/tracking.
func (h *IntelligenceHandlers) StartTracking(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.engine.StartTracking(sessionID, nil); err != nil {
		switch {
		case errors.Is(err, intelligence.ErrEmptySessionID):
			WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, "session ID is required")
		case errors.Is(err, intelligence.ErrEngineClosed):
			WriteError(w, r.Context(), http.StatusServiceUnavailable, ErrCodeUnavailable, "Engine is shutting down")
		default:
			h.logger.ErrorContext(r.Context(), "failed to start tracking", "session_id", sessionID, "error", err)
			WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to start tracking")
		}
		return
	}
	writeJSON(w, r.Context(), http.StatusAccepted, TrackingResponse{SessionID: sessionID, Tracking: true})
}

// StopTracking handles DELETE /sessions/{sessionID}/tracking.
func (h *IntelligenceHandlers) StopTracking(w http.ResponseWriter, r *http.Request) {
	h.engine.StopTracking(chi.URLParam(r, "sessionID"))
	w.WriteHeader(http.StatusNoContent)
}

// GetIntelligence handles GET /sessions/{sessionID}/intelligence.
func (h *IntelligenceHandlers) GetIntelligence(w http.ResponseWriter, r *http.Request) {
	snap := h.engine.GetCurrentIntelligence(r.Context(), chi.URLParam(r, "sessionID"))
	writeJSON(w, r.Context(), http.StatusOK, snap)
}

// ClustersResponse is the body of GET /sessions/{sessionID}/clusters.
type ClustersResponse struct {
	SessionID   string               `json:"session_id"`
	EvaluatedAt time.Time            `json:"evaluated_at"`
	Degraded    bool                 `json:"degraded"`
	Clusters    []engagement.Cluster `json:"clusters"`
}

// GetClusters handles GET /sessions/{sessionID}/clusters.
func (h *IntelligenceHandlers) GetClusters(w http.ResponseWriter, r *http.Request) {
	snap := h.engine.GetCurrentIntelligence(r.Context(), chi.URLParam(r, "sessionID"))
	clusters := snap.Clusters
	if clusters == nil {
		clusters = []engagement.Cluster{}
	}
	writeJSON(w, r.Context(), http.StatusOK, ClustersResponse{
		SessionID:   snap.SessionID,
		EvaluatedAt: snap.EvaluatedAt,
		Degraded:    snap.Degraded,
		Clusters:    clusters,
	})
}

// InsightsResponse is the body of the participant insights route.
type InsightsResponse struct {
	SessionID     string            `json:"session_id"`
	ParticipantID string            `json:"participant_id"`
	Insights      []insight.Insight `json:"insights"`
}

// GetParticipantInsights handles GET /sessions/{sessionID}/participants/{participantID}/insights.
func (h *IntelligenceHandlers) GetParticipantInsights(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	participantID := chi.URLParam(r, "participantID")

	insights := h.engine.GetParticipantInsights(r.Context(), sessionID, participantID)
	if insights == nil {
		insights = []insight.Insight{}
	}
	writeJSON(w, r.Context(), http.StatusOK, InsightsResponse{
		SessionID:     sessionID,
		ParticipantID: participantID,
		Insights:      insights,
	})
}

// LeaderboardResponse is the body of the leaderboard route.
type LeaderboardResponse struct {
	SessionID string              `json:"session_id"`
	Standings []activity.Standing `json:"standings"`
}

// GetLeaderboard handles GET /sessions/{sessionID}/leaderboard.
func (h *IntelligenceHandlers) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "sessionID")

	standings, err := h.engine.Leaderboard(ctx, sessionID)
	if err != nil {
		h.logger.WarnContext(ctx, "leaderboard failed", "session_id", sessionID, "error", err)
		WriteError(w, ctx, http.StatusServiceUnavailable, ErrCodeUnavailable, "Activity history unavailable")
		return
	}
	writeJSON(w, ctx, http.StatusOK, LeaderboardResponse{SessionID: sessionID, Standings: standings})
}

// ScoreResponse is the body of the participant score route.
type ScoreResponse struct {
	SessionID     string `json:"session_id"`
	ParticipantID string `json:"participant_id"`
	activity.ScoreSnapshot
}

// GetParticipantScore handles GET /sessions/{sessionID}/participants/{participantID}/score.
func (h *IntelligenceHandlers) GetParticipantScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "sessionID")
	participantID := chi.URLParam(r, "participantID")

	snap, err := h.engine.ParticipantScore(ctx, sessionID, participantID)
	switch {
	case errors.Is(err, activity.ErrParticipantNotRanked):
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Participant has no recorded activity")
		return
	case err != nil:
		h.logger.WarnContext(ctx, "participant score failed",
			"session_id", sessionID, "participant_id", participantID, "error", err)
		WriteError(w, ctx, http.StatusServiceUnavailable, ErrCodeUnavailable, "Activity history unavailable")
		return
	}
	writeJSON(w, ctx, http.StatusOK, ScoreResponse{
		SessionID:     sessionID,
		ParticipantID: participantID,
		ScoreSnapshot: snap,
	})
}

// BadgesResponse lists badges awarded by one evaluation.
type BadgesResponse struct {
	SessionID     string        `json:"session_id"`
	ParticipantID string        `json:"participant_id"`
	NewBadges     []badge.Award `json:"new_badges"`
}

// EvaluateBadges handles POST /sessions/{sessionID}/participants/{participantID}/badges/evaluate.
// A JSON score snapshot in the body is evaluated as given; an empty body
// evaluates the participant's recorded history.
func (h *IntelligenceHandlers) EvaluateBadges(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "sessionID")
	participantID := chi.URLParam(r, "participantID")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Failed to read request body")
		return
	}

	var awards []badge.Award
	if len(body) > 0 {
		var snapshot activity.ScoreSnapshot
		if err := json.Unmarshal(body, &snapshot); err != nil {
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid score snapshot")
			return
		}
		awards = h.engine.EvaluateBadges(ctx, participantID, sessionID, snapshot)
	} else {
		awards, err = h.engine.EvaluateBadgesFromHistory(ctx, participantID, sessionID)
		if err != nil {
			h.logger.WarnContext(ctx, "badge evaluation from history failed",
				"session_id", sessionID, "participant_id", participantID, "error", err)
			WriteError(w, ctx, http.StatusServiceUnavailable, ErrCodeUnavailable, "Activity history unavailable")
			return
		}
	}

	if awards == nil {
		awards = []badge.Award{}
	}
	writeJSON(w, ctx, http.StatusOK, BadgesResponse{
		SessionID:     sessionID,
		ParticipantID: participantID,
		NewBadges:     awards,
	})
}

// RecordActivityRequest is the body of POST /sessions/{sessionID}/activity.
type RecordActivityRequest struct {
	ParticipantID string         `json:"participant_id"`
	Type          string         `json:"activity_type"`
	Score         float64        `json:"score"`
	OccurredAt    *time.Time     `json:"occurred_at,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// RecordActivityResponse returns the stored record and any badges it earned.
type RecordActivityResponse struct {
	Record    activity.Record `json:"record"`
	NewBadges []badge.Award   `json:"new_badges"`
}

// RecordActivity handles POST /sessions/{sessionID}/activity.
func (h *IntelligenceHandlers) RecordActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.recorder == nil {
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Activity recording is not enabled")
		return
	}

	var req RecordActivityRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body")
		return
	}

	actType, err := activity.ParseType(req.Type)
	if err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}
	rec := activity.Record{
		ParticipantID: req.ParticipantID,
		SessionID:     chi.URLParam(r, "sessionID"),
		Type:          actType,
		Score:         req.Score,
		OccurredAt:    h.now().UTC(),
		Metadata:      req.Metadata,
	}
	if req.OccurredAt != nil {
		rec.OccurredAt = req.OccurredAt.UTC()
	}
	if err := rec.Validate(); err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	if err := h.recorder.RecordActivity(ctx, rec); err != nil {
		h.logger.ErrorContext(ctx, "failed to record activity",
			"session_id", rec.SessionID, "participant_id", rec.ParticipantID, "error", err)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to record activity")
		return
	}

	// The record is stored; a failed evaluation only means no badges this time.
	awards, err := h.engine.EvaluateBadgesFromHistory(ctx, rec.ParticipantID, rec.SessionID)
	if err != nil {
		h.logger.WarnContext(ctx, "badge evaluation after activity failed",
			"session_id", rec.SessionID, "participant_id", rec.ParticipantID, "error", err)
	}
	if awards == nil {
		awards = []badge.Award{}
	}
	writeJSON(w, ctx, http.StatusCreated, RecordActivityResponse{Record: rec, NewBadges: awards})
}

// Stream handles GET /sessions/{sessionID}/intelligence/stream. The
// connection receives the current snapshot immediately and then every
// snapshot the tracker produces until the client disconnects.
func (h *IntelligenceHandlers) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "sessionID")
	if !h.engine.IsTracking(sessionID) {
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotTracked, "Session is not tracked")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.WarnContext(ctx, "websocket upgrade failed", "session_id", sessionID, "error", err)
		return
	}
	defer conn.Close()

	h.broadcaster.Subscribe(sessionID, conn)
	defer h.broadcaster.Unsubscribe(conn)

	if err := h.broadcaster.Send(conn, h.engine.GetCurrentIntelligence(ctx, sessionID)); err != nil {
		h.logger.WarnContext(ctx, "failed to send initial snapshot", "session_id", sessionID, "error", err)
		return
	}

	// Drain client frames so close and ping control messages are processed.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.DebugContext(ctx, "stream closed", "session_id", sessionID, "error", err)
			}
			return
		}
	}
}
