package httpx

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/llmgate/pkg/slogx"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines the rate limiting parameters.
type RateLimitConfig struct {
	// RequestsPerWindow is the number of requests allowed in the time window
	RequestsPerWindow int
	// Window is the time window for rate limiting
	Window time.Duration
	// Burst allows for temporary bursts above the rate limit
	Burst int
}

// Rate limit profiles for the browser-facing auth surface. The proxy path
// itself is deliberately unlimited; quota enforcement for inference lives
// upstream with the managed keys.
var (
	// StrictLimit for sign-in and key issuance endpoints.
	StrictLimit = RateLimitConfig{
		RequestsPerWindow: 10,
		Window:            time.Minute,
		Burst:             10,
	}

	// ModerateLimit for authenticated dashboard operations.
	ModerateLimit = RateLimitConfig{
		RequestsPerWindow: 30,
		Window:            time.Minute,
		Burst:             30,
	}
)

// rateLimiter manages per-key token buckets.
type rateLimiter struct {
	limiters sync.Map // map[string]*rate.Limiter
	rate     rate.Limit
	burst    int

	mu          sync.Mutex
	lastCleanup time.Time
}

func (rl *rateLimiter) getLimiter(key string) *rate.Limiter {
	if limiter, ok := rl.limiters.Load(key); ok {
		return limiter.(*rate.Limiter)
	}

	limiter := rate.NewLimiter(rl.rate, rl.burst)
	actual, _ := rl.limiters.LoadOrStore(key, limiter)

	rl.maybeCleanup()
	return actual.(*rate.Limiter)
}

// maybeCleanup drops idle limiters so ephemeral client keys don't accumulate
// forever. A limiter with a full bucket hasn't been touched recently.
func (rl *rateLimiter) maybeCleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if time.Since(rl.lastCleanup) < 5*time.Minute {
		return
	}
	rl.lastCleanup = time.Now()

	rl.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).Tokens() >= float64(rl.burst) {
			rl.limiters.Delete(key)
		}
		return true
	})
}

// RateLimitByIP limits requests per client IP using a token bucket derived
// from the config's window and burst.
func RateLimitByIP(config RateLimitConfig) Middleware {
	rl := &rateLimiter{
		rate:        rate.Limit(float64(config.RequestsPerWindow) / config.Window.Seconds()),
		burst:       config.Burst,
		lastCleanup: time.Now(),
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := requestIP(r)

			limiter := rl.getLimiter(key)
			if !limiter.Allow() {
				reservation := limiter.Reserve()
				delay := reservation.Delay()
				reservation.Cancel()

				retryAfter := max(int(delay.Seconds()), 1)
				w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))

				slogx.FromContext(r.Context()).Warn("rate limit exceeded",
					"key", key,
					"endpoint", r.URL.Path,
					"retry_after", retryAfter,
				)

				WriteError(w, http.StatusTooManyRequests,
					"rate_limit_exceeded", "too many requests, try again later")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// requestIP picks a stable per-client key from forwarding headers, falling
// back to the socket address.
func requestIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
