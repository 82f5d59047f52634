package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LimiterRegistry hands out one token bucket per client key.
//
// Idle buckets are dropped by Sweep so the map doesn't grow with every
// address that ever connected.
type LimiterRegistry struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiterRegistry allows perMinute requests per client per minute with
// bursts of up to burst requests.
func NewLimiterRegistry(perMinute, burst int) *LimiterRegistry {
	if burst < 1 {
		burst = 1
	}
	return &LimiterRegistry{
		limiters: make(map[string]*clientLimiter),
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    burst,
		now:      time.Now,
	}
}

// Allow reports whether the client identified by key may proceed now.
func (l *LimiterRegistry) Allow(key string) bool {
	l.mu.Lock()
	c, ok := l.limiters[key]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = c
	}
	now := l.now()
	c.lastSeen = now
	l.mu.Unlock()

	return c.limiter.AllowN(now, 1)
}

// Sweep forgets clients not seen for idle and reports how many it removed.
func (l *LimiterRegistry) Sweep(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-idle)
	removed := 0
	for key, c := range l.limiters {
		if c.lastSeen.Before(cutoff) {
			delete(l.limiters, key)
			removed++
		}
	}
	return removed
}

// retryAfter is the whole number of seconds until one token refills.
func (l *LimiterRegistry) retryAfter() int {
	if l.limit <= 0 {
		return 60
	}
	return int(math.Ceil(1 / float64(l.limit)))
}

// Len reports how many clients are tracked.
func (l *LimiterRegistry) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// RateLimit rejects requests beyond the registry's allowance with 429.
// Clients are keyed by IP, so chi's RealIP middleware should run first when
// the server sits behind a proxy. Only state-changing methods are counted:
// loading the login form is free, submitting it is not.
func RateLimit(name string, limiters *LimiterRegistry, metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}

			if !limiters.Allow(clientIP(r)) {
				if metrics != nil {
					metrics.rateLimited.WithLabelValues(name).Inc()
				}
				w.Header().Set("Retry-After", strconv.Itoa(limiters.retryAfter()))
				http.Error(w, "Too many attempts. Please wait a moment and try again.", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
