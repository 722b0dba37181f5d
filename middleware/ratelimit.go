package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/upb/maternal-assistant/internal/observability"
	"github.com/upb/maternal-assistant/utils"
)

const (
	visitorCleanupInterval = time.Minute
	visitorTTL             = 3 * time.Minute
)

// RateLimiter limits requests per authenticated user, falling back to the
// client address for anonymous requests
type RateLimiter struct {
	rps    rate.Limit
	burst  int
	logger *zap.Logger

	mu       sync.Mutex
	visitors map[string]*visitor
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter. Idle visitors are evicted until ctx is done.
func NewRateLimiter(ctx context.Context, rps float64, burst int, logger *zap.Logger) *RateLimiter {
	rl := &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		logger:   logger,
		visitors: make(map[string]*visitor),
	}
	go rl.cleanup(ctx)
	return rl
}

func (rl *RateLimiter) cleanup(ctx context.Context) {
	ticker := time.NewTicker(visitorCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.evict(time.Now())
		}
	}
}

func (rl *RateLimiter) evict(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, v := range rl.visitors {
		if now.Sub(v.lastSeen) > visitorTTL {
			delete(rl.visitors, key)
		}
	}
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = time.Now()
	return v.limiter
}

// Limit is the middleware. Place it after RequireAuth so the user is known.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := GetUserIDFromContext(r.Context())
		if key == "" {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}
			key = "ip:" + host
		}

		limiter := rl.limiterFor(key)
		if !limiter.Allow() {
			retryAfter := 1
			if rl.rps > 0 {
				retryAfter = int(math.Max(1, math.Ceil(1/float64(rl.rps))))
			}
			observability.LoggerFromContext(r.Context(), rl.logger).Warn("rate limit exceeded")
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			_ = utils.WriteTooManyRequests(w, "Too many requests, please slow down", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
