package middleware

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig is a token bucket: RequestsPerSecond refill with Burst capacity.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// Validate rejects non-positive rates and bursts.
func (c RateLimitConfig) Validate() error {
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("RequestsPerSecond must be > 0 (got %g)", c.RequestsPerSecond)
	}
	if c.Burst <= 0 {
		return fmt.Errorf("Burst must be > 0 (got %d)", c.Burst)
	}
	return nil
}

type keyedEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedLimiter holds one token bucket per key (normally a client IP).
type KeyedLimiter struct {
	mu      sync.Mutex
	config  RateLimitConfig
	entries map[string]*keyedEntry
	now     func() time.Time
}

// NewKeyedLimiter creates an empty limiter set.
func NewKeyedLimiter(config RateLimitConfig) *KeyedLimiter {
	return &KeyedLimiter{
		config:  config,
		entries: make(map[string]*keyedEntry),
		now:     time.Now,
	}
}

// Allow takes a token for key. When none is available it returns false and
// how long until one will be.
func (l *KeyedLimiter) Allow(key string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &keyedEntry{limiter: rate.NewLimiter(rate.Limit(l.config.RequestsPerSecond), l.config.Burst)}
		l.entries[key] = e
	}
	e.lastSeen = now
	l.mu.Unlock()

	res := e.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Second
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Cleanup drops limiters idle for longer than maxIdle and returns how many
// were removed.
func (l *KeyedLimiter) Cleanup(maxIdle time.Duration) int {
	cutoff := l.now().Add(-maxIdle)
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (l *KeyedLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// KeyFunc extracts a rate limit key from a request.
type KeyFunc func(r *http.Request) string

// IPKeyFunc keys by client IP: the first X-Forwarded-For hop, then
// X-Real-IP, then RemoteAddr without its port.
func IPKeyFunc() KeyFunc {
	return func(r *http.Request) string {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return r.RemoteAddr
		}
		return host
	}
}

const rateLimitedBody = `{"error":{"code":"rate_limited","message":"Too many requests"}}`

// RateLimiter rejects requests over the limit with 429, a Retry-After
// header in whole seconds and the API error envelope.
func RateLimiter(limiter *KeyedLimiter, keyFunc KeyFunc, endpoint string, metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			metrics.IncRateLimitRequests(endpoint)

			allowed, wait := limiter.Allow(keyFunc(r))
			if !allowed {
				metrics.IncRateLimitBlocked(endpoint)
				SetErrorCode(r.Context(), "rate_limited")

				retryAfter := int(math.Ceil(wait.Seconds()))
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(rateLimitedBody))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
