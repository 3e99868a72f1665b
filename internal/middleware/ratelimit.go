package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dukerupert/chorebook/internal/auth"
)

// RealIP extracts the client's real IP address, preferring Cloudflare's
// CF-Connecting-IP header, then X-Forwarded-For, and falling back to RemoteAddr.
func RealIP(r *http.Request) string {
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// First IP in the chain is the original client
		if i := strings.IndexByte(xff, ','); i > 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ByUser keys requests by the authenticated user, or by client IP before
// identification.
func ByUser(r *http.Request) string {
	if id := auth.UserID(r.Context()); id != 0 {
		return "user:" + strconv.FormatInt(id, 10)
	}
	return "ip:" + RealIP(r)
}

// Scoped prefixes key so routes sharing one RateLimiter keep separate counts.
func Scoped(scope string, key func(*http.Request) string) func(*http.Request) string {
	return func(r *http.Request) string {
		return scope + ":" + key(r)
	}
}

type window struct {
	count     int
	expiresAt time.Time
}

// RateLimiter counts requests per key in fixed windows.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Allow reports whether key is still under limit for the current window, and
// how long until the window resets.
func (rl *RateLimiter) Allow(key string, limit int, period time.Duration) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.windows[key]
	if !ok || !now.Before(w.expiresAt) {
		rl.windows[key] = &window{count: 1, expiresAt: now.Add(period)}
		return true, period
	}
	w.count++
	return w.count <= limit, w.expiresAt.Sub(now)
}

// Cleanup removes expired windows.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, w := range rl.windows {
		if !now.Before(w.expiresAt) {
			delete(rl.windows, key)
		}
	}
}

// Run calls Cleanup every interval until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			rl.Cleanup()
		}
	}
}

// RateLimit returns middleware that rate-limits requests by a key function.
// A limit of zero or less disables it.
func RateLimit(limiter *RateLimiter, keyFunc func(*http.Request) string, limit int, period time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, reset := limiter.Allow(keyFunc(r), limit, period)
			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(reset.Round(time.Second)/time.Second)+1))
				writeError(w, http.StatusTooManyRequests, "Too many requests. Please slow down.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
