package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dukerupert/larder/internal/auth"
	"github.com/dukerupert/larder/internal/metrics"
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

// ByIP keys requests by client address.
func ByIP(r *http.Request) string {
	return "ip:" + RealIP(r)
}

// ByUser keys authenticated requests by user id and everything else by IP.
func ByUser(r *http.Request) string {
	if id := auth.UserID(r.Context()); id != 0 {
		return "user:" + strconv.FormatInt(id, 10)
	}
	return ByIP(r)
}

// Counter is a shared fixed-window counter. *redis.Client satisfies it.
type Counter interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

type entry struct {
	count    int
	windowAt time.Time
}

// RateLimiter counts requests per key in fixed windows. With a remote
// Counter attached the count is shared across instances; when the remote
// errors the in-memory table takes over.
type RateLimiter struct {
	mu      sync.Mutex
	entries map[string]*entry

	remote Counter
	logger *slog.Logger
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		entries: make(map[string]*entry),
	}
}

// UseRemote attaches a shared counter.
func (rl *RateLimiter) UseRemote(c Counter, logger *slog.Logger) {
	rl.remote = c
	rl.logger = logger
}

// Allow returns true if the key has not exceeded limit in the given window.
func (rl *RateLimiter) Allow(key string, limit int, window time.Duration) bool {
	ok, _ := rl.allowLocal(key, limit, window)
	return ok
}

// Check is Allow with the remote counter consulted first. The duration is
// the time until the window resets.
func (rl *RateLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration) {
	if rl.remote != nil {
		n, ttl, err := rl.remote.Hit(ctx, "ratelimit:"+key, window)
		if err == nil {
			return n <= int64(limit), ttl
		}
		if rl.logger != nil {
			rl.logger.Warn("shared rate limit unavailable, using local", "key", key, "error", err)
		}
	}
	return rl.allowLocal(key, limit, window)
}

func (rl *RateLimiter) allowLocal(key string, limit int, window time.Duration) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	e, ok := rl.entries[key]
	if !ok || now.After(e.windowAt) {
		rl.entries[key] = &entry{count: 1, windowAt: now.Add(window)}
		return true, window
	}
	e.count++
	return e.count <= limit, e.windowAt.Sub(now)
}

// Cleanup removes expired entries.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for key, e := range rl.entries {
		if now.After(e.windowAt) {
			delete(rl.entries, key)
		}
	}
}

// RunCleanup calls Cleanup every interval until ctx is done.
func (rl *RateLimiter) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Cleanup()
		}
	}
}

// RateLimit returns middleware that rate-limits requests by a key function.
// scope separates the counters of different route groups.
func RateLimit(limiter *RateLimiter, scope string, keyFunc func(*http.Request) string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, reset := limiter.Check(r.Context(), scope+":"+keyFunc(r), limit, window)
			if !ok {
				metrics.ObserveRateLimited(scope)
				secs := int(reset.Seconds())
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				writeError(w, http.StatusTooManyRequests, "too many requests, please try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
