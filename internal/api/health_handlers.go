package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/crowdpulse/internal/health"
)

const defaultReadyTimeout = 3 * time.Second

// HealthResponse is the body of /health and /ready.
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

// HealthHandlersConfig configures HealthHandlers.
type HealthHandlersConfig struct {
	// Checkers are probed by /ready, keyed by the name reported in checks.
	Checkers map[string]health.Checker
	// Timeout bounds all readiness checks together.
	Timeout time.Duration
	Now     func() time.Time
}

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	checkers map[string]health.Checker
	timeout  time.Duration
	now      func() time.Time
}

// NewHealthHandlers creates HealthHandlers.
func NewHealthHandlers(cfg HealthHandlersConfig) *HealthHandlers {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultReadyTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	checkers := make(map[string]health.Checker, len(cfg.Checkers))
	for name, c := range cfg.Checkers {
		if c != nil {
			checkers[name] = c
		}
	}
	return &HealthHandlers{checkers: checkers, timeout: cfg.Timeout, now: cfg.Now}
}

// Health is the liveness probe. It never touches a dependency.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, r.Context(), http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}
	writeJSON(w, r.Context(), http.StatusOK, HealthResponse{
		Status:    "healthy",
		Checks:    map[string]string{"runtime": "ok"},
		Timestamp: h.timestamp(),
	})
}

// Ready is the readiness probe. Any failing checker makes it return 503.
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, r.Context(), http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"metrics": "ok"}
	healthy := true
	for _, res := range health.CheckAll(ctx, h.checkers) {
		if res.Err != nil {
			checks[res.Name] = "error"
			healthy = false
			slog.WarnContext(ctx, "readiness check failed", "check", res.Name, "error", res.Err)
			continue
		}
		checks[res.Name] = "ok"
	}

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	writeJSON(w, r.Context(), code, HealthResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: h.timestamp(),
	})
}

func (h *HealthHandlers) timestamp() string {
	return h.now().UTC().Format(time.RFC3339)
}
