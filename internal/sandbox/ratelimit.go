package sandbox

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

type RateLimitConfig struct {
	PerMinute int
	Burst     int
}

// RateLimiter throttles by client address and, for signed-in callers, by
// credential, so one patient cannot starve a shared kiosk address.
type RateLimiter struct {
	byAddr       *buckets
	byCredential *buckets
}

// NewRateLimiter returns nil for the zero config, which disables throttling.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg == (RateLimitConfig{}) {
		return nil
	}
	return &RateLimiter{
		byAddr:       newBuckets(cfg.PerMinute, cfg.Burst),
		byCredential: newBuckets(cfg.PerMinute/2, cfg.Burst/2),
	}
}

func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wait := l.byAddr.take(clientIP(r))
		if wait == 0 {
			wait = l.byCredential.take(credentialFromRequest(r))
		}
		if wait > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			writeError(w, r, http.StatusTooManyRequests, "rate_limited", "Too many requests. Please slow down.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// buckets is a keyed token bucket refilled continuously at rate per second.
type buckets struct {
	mu       sync.Mutex
	rate     float64
	capacity float64
	byKey    map[string]*allowance
	now      func() time.Time
}

type allowance struct {
	tokens  float64
	updated time.Time
}

func newBuckets(perMinute, burst int) *buckets {
	if perMinute <= 0 {
		perMinute = 60
	}
	if burst <= 0 {
		burst = 20
	}
	return &buckets{
		rate:     float64(perMinute) / 60,
		capacity: float64(burst),
		byKey:    make(map[string]*allowance),
		now:      time.Now,
	}
}

// take spends one token for key. It returns zero when the request may
// proceed, otherwise how long until a token is available. Empty keys are
// never limited.
func (b *buckets) take(key string) time.Duration {
	if key == "" {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	a, ok := b.byKey[key]
	if !ok {
		a = &allowance{tokens: b.capacity, updated: now}
		b.byKey[key] = a
	}
	a.tokens = min(b.capacity, a.tokens+now.Sub(a.updated).Seconds()*b.rate)
	a.updated = now
	if a.tokens < 1 {
		return time.Duration((1 - a.tokens) / b.rate * float64(time.Second))
	}
	a.tokens--
	return 0
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
