package server

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// rateLimiter is a fixed window counter per client identifier. Counters
// are created lazily, reset when their window has passed, and dropped by
// Cleanup.
type rateLimiter struct {
	mu          sync.Mutex
	entries     map[string]rateLimitEntry
	maxRequests int
	window      time.Duration
}

type rateLimitEntry struct {
	count           int
	windowExpiresAt time.Time
}

func newRateLimiter(maxRequests int, window time.Duration) *rateLimiter {
	if maxRequests <= 0 || window <= 0 {
		return nil
	}
	return &rateLimiter{
		entries:     make(map[string]rateLimitEntry),
		maxRequests: maxRequests,
		window:      window,
	}
}

// Allow counts one request for key. When the request is refused it also
// returns how long until the window resets.
func (l *rateLimiter) Allow(key string, now time.Time) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	switch {
	case !ok || !now.Before(entry.windowExpiresAt):
		l.entries[key] = rateLimitEntry{count: 1, windowExpiresAt: now.Add(l.window)}
		return true, 0
	case entry.count < l.maxRequests:
		entry.count++
		l.entries[key] = entry
		return true, 0
	default:
		return false, entry.windowExpiresAt.Sub(now)
	}
}

// Cleanup drops counters whose window has passed and reports how many.
func (l *rateLimiter) Cleanup(now time.Time) int {
	if l == nil {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, entry := range l.entries {
		if !now.Before(entry.windowExpiresAt) {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

func (l *rateLimiter) size() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// clientID picks the identifier a request is counted under, preferring
// proxy headers over the socket address.
func clientID(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); v != "" {
		return v
	}
	if v := strings.TrimSpace(r.Header.Get("X-Real-IP")); v != "" {
		return v
	}
	if v := r.Header.Get("X-Forwarded-For"); v != "" {
		first, _, _ := strings.Cut(v, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func isRateLimitExempt(path string) bool {
	return path == "/health" || path == "/metrics"
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil || isRateLimitExempt(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		allowed, retryAfter := s.limiter.Allow(clientID(r), s.now())
		if !allowed {
			s.metrics.RecordRateLimited()
			seconds := int(math.Ceil(retryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			s.writeServiceError(w, r, resourceExhausted(fmt.Errorf("rate limit exceeded")))
			return
		}
		next.ServeHTTP(w, r)
	})
}
