package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/crowdpulse/internal/middleware"
)

// RouterConfig wires handlers and middleware into a router.
type RouterConfig struct {
	ServiceName  string
	Logger       *slog.Logger
	Intelligence *IntelligenceHandlers
	Health       *HealthHandlers
	HTTPMetrics  *middleware.Metrics
	// Gatherer backs /metrics. Nil omits the route.
	Gatherer prometheus.Gatherer
	// BadgeLimiter throttles badge evaluation per client IP. Nil disables it.
	BadgeLimiter *middleware.KeyedLimiter
}

// NewRouter builds the HTTP router. Every request passes through request
// ID, tracing, access logging and HTTP metrics in that order.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "crowdpulse"
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.HTTPMetrics(cfg.HTTPMetrics))

	r.Get("/health", cfg.Health.Health)
	r.Get("/ready", cfg.Health.Ready)
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	h := cfg.Intelligence
	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Post("/tracking", h.StartTracking)
		r.Delete("/tracking", h.StopTracking)
		r.Get("/intelligence", h.GetIntelligence)
		r.Get("/intelligence/stream", h.Stream)
		r.Get("/clusters", h.GetClusters)
		r.Get("/leaderboard", h.GetLeaderboard)
		r.Post("/activity", h.RecordActivity)

		r.Route("/participants/{participantID}", func(r chi.Router) {
			r.Get("/insights", h.GetParticipantInsights)
			r.Get("/score", h.GetParticipantScore)

			evaluate := http.HandlerFunc(h.EvaluateBadges)
			if cfg.BadgeLimiter != nil {
				limit := middleware.RateLimiter(cfg.BadgeLimiter, middleware.IPKeyFunc(), "badges_evaluate", cfg.HTTPMetrics)
				r.Method(http.MethodPost, "/badges/evaluate", limit(evaluate))
			} else {
				r.Method(http.MethodPost, "/badges/evaluate", evaluate)
			}
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r.Context(), http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
	})
	return r
}
