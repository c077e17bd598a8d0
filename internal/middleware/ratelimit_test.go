package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(cfg RateLimitConfig) (*KeyedLimiter, *stepClock) {
	clock := &stepClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	l := NewKeyedLimiter(cfg)
	l.now = clock.Now
	return l, clock
}

func TestRateLimitConfig_Validate(t *testing.T) {
	tests := []struct {
		cfg     RateLimitConfig
		wantErr bool
	}{
		{RateLimitConfig{RequestsPerSecond: 5, Burst: 10}, false},
		{RateLimitConfig{RequestsPerSecond: 0, Burst: 10}, true},
		{RateLimitConfig{RequestsPerSecond: 5, Burst: 0}, true},
	}
	for _, tt := range tests {
		if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
			t.Errorf("Validate(%+v) error = %v", tt.cfg, err)
		}
	}
}

func TestKeyedLimiter_Allow(t *testing.T) {
	l, clock := newTestLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 2})

	for i := 0; i < 2; i++ {
		if ok, _ := l.Allow("1.2.3.4"); !ok {
			t.Fatalf("request %d within burst rejected", i)
		}
	}
	ok, wait := l.Allow("1.2.3.4")
	if ok || wait <= 0 || wait > time.Second {
		t.Fatalf("third request: allowed=%v wait=%v", ok, wait)
	}
	if ok, _ := l.Allow("5.6.7.8"); !ok {
		t.Error("keys should not share buckets")
	}

	clock.Advance(time.Second)
	if ok, _ := l.Allow("1.2.3.4"); !ok {
		t.Error("bucket should refill after a second")
	}
}

func TestKeyedLimiter_Cleanup(t *testing.T) {
	l, clock := newTestLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 1})
	l.Allow("old")
	clock.Advance(10 * time.Minute)
	l.Allow("new")

	if n := l.Cleanup(5 * time.Minute); n != 1 {
		t.Errorf("Cleanup() removed %d, want 1", n)
	}
	if l.Len() != 1 {
		t.Errorf("Len() = %d, want 1", l.Len())
	}
}

func TestIPKeyFunc(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": " 10.0.0.1 , 10.0.0.2"}, "192.0.2.1:1234", "10.0.0.1"},
		{"real ip", map[string]string{"X-Real-IP": "10.0.0.9"}, "192.0.2.1:1234", "10.0.0.9"},
		{"remote addr", nil, "192.0.2.1:1234", "192.0.2.1"},
		{"ipv6", nil, "[2001:db8::1]:443", "2001:db8::1"},
		{"no port", nil, "192.0.2.7", "192.0.2.7"},
	}
	key := IPKeyFunc()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := key(req); got != tt.want {
				t.Errorf("key = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	l, _ := newTestLimiter(RateLimitConfig{RequestsPerSecond: 0.5, Burst: 1})
	m := NewMetrics()
	handler := RateLimiter(l, IPKeyFunc(), "badge_evaluate", m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/sessions/s1/participants/p1/badges/evaluate", nil)
		req.RemoteAddr = "192.0.2.1:5555"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	if rr := send(); rr.Code != http.StatusOK {
		t.Fatalf("first request status = %d", rr.Code)
	}
	rr := send()
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "2" {
		t.Errorf("Retry-After = %q, want 2", got)
	}
	if !strings.Contains(rr.Body.String(), `"rate_limited"`) {
		t.Errorf("body = %s", rr.Body.String())
	}

	var out dto.Metric
	if err := m.rateLimitBlocked.WithLabelValues("badge_evaluate").Write(&out); err != nil {
		t.Fatal(err)
	}
	if out.GetCounter().GetValue() != 1 {
		t.Errorf("blocked = %v, want 1", out.GetCounter().GetValue())
	}
}
