package intelligence

import (
	"context"
	"errors"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/onnwee/crowdpulse/internal/activity"
)

// BreakerConfig configures the gateway circuit breaker.
type BreakerConfig struct {
	Name string
	// ConsecutiveFailures opens the breaker.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	// Interval resets the closed-state counts; zero never resets.
	Interval    time.Duration
	MaxRequests uint32
	Logger      *slog.Logger
	Metrics     *Metrics
}

// DefaultBreakerConfig trips after five consecutive failures and probes again after 30s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:                "activity-gateway",
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
		Interval:            time.Minute,
		MaxRequests:         1,
	}
}

// ResilientGateway wraps an activity.Gateway with a circuit breaker. While
// open, reads fail immediately with gobreaker.ErrOpenState.
type ResilientGateway struct {
	next activity.Gateway
	cb   *gobreaker.CircuitBreaker[any]
}

var _ activity.Gateway = (*ResilientGateway)(nil)

// NewResilientGateway wraps next.
func NewResilientGateway(next activity.Gateway, cfg BreakerConfig) *ResilientGateway {
	def := DefaultBreakerConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = def.ConsecutiveFailures
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = def.MaxRequests
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	threshold := cfg.ConsecutiveFailures
	logger := cfg.Logger
	metrics := cfg.Metrics
	metrics.setBreakerState(cfg.Name, gobreaker.StateClosed)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("gateway circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
			metrics.setBreakerState(name, to)
		},
		IsSuccessful: func(err error) bool {
			// Missing sessions and caller cancellations are not store failures.
			return err == nil ||
				errors.Is(err, activity.ErrSessionNotFound) ||
				errors.Is(err, context.Canceled)
		},
	})

	return &ResilientGateway{next: next, cb: cb}
}

// State reports the breaker state.
func (g *ResilientGateway) State() gobreaker.State {
	return g.cb.State()
}

// GetActivityRecords implements activity.Gateway.
func (g *ResilientGateway) GetActivityRecords(ctx context.Context, sessionID string, since *time.Time) ([]activity.Record, error) {
	v, err := g.cb.Execute(func() (any, error) {
		return g.next.GetActivityRecords(ctx, sessionID, since)
	})
	if err != nil {
		return nil, err
	}
	return v.([]activity.Record), nil
}

// GetOrganizerActivity implements activity.Gateway.
func (g *ResilientGateway) GetOrganizerActivity(ctx context.Context, sessionID string) ([]activity.OrganizerActivity, error) {
	v, err := g.cb.Execute(func() (any, error) {
		return g.next.GetOrganizerActivity(ctx, sessionID)
	})
	if err != nil {
		return nil, err
	}
	return v.([]activity.OrganizerActivity), nil
}

// GetSessionMetadata implements activity.Gateway.
func (g *ResilientGateway) GetSessionMetadata(ctx context.Context, sessionID string) (*activity.SessionMetadata, error) {
	v, err := g.cb.Execute(func() (any, error) {
		return g.next.GetSessionMetadata(ctx, sessionID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*activity.SessionMetadata), nil
}

// GetTotalParticipantCount implements activity.Gateway.
func (g *ResilientGateway) GetTotalParticipantCount(ctx context.Context, sessionID string) (int, error) {
	v, err := g.cb.Execute(func() (any, error) {
		return g.next.GetTotalParticipantCount(ctx, sessionID)
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// GetLeaderboardRankPercentile implements activity.RankSource.
func (g *ResilientGateway) GetLeaderboardRankPercentile(ctx context.Context, participantID, sessionID string) (float64, error) {
	v, err := g.cb.Execute(func() (any, error) {
		return g.next.GetLeaderboardRankPercentile(ctx, participantID, sessionID)
	})
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

func isBreakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
