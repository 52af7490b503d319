package server

import (
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/slotwise/slotwise-core/internal/config"
	"github.com/slotwise/slotwise-core/pkg/apperror"
	"github.com/slotwise/slotwise-core/pkg/logger"
)

// PublicRateLimiter throttles the unauthenticated token endpoints per
// client IP. Token and code lookups are guessable surfaces, so they do
// not get the unlimited budget the authenticated API has.
type PublicRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	log      *slog.Logger
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewPublicRateLimiter creates the limiter from config.
func NewPublicRateLimiter(cfg *config.Config, log *slog.Logger) *PublicRateLimiter {
	rl := &PublicRateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(cfg.PublicRateLimit),
		burst:    cfg.PublicRateBurst,
		log:      log.With(logger.Scope("server.ratelimit")),
	}
	go rl.evictLoop()
	return rl
}

// Middleware returns the echo middleware enforcing the limit.
func (rl *PublicRateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := clientIP(c)
			if !rl.allow(ip) {
				rl.log.Warn("public endpoint rate limited", slog.String("ip", ip))
				return apperror.New(429, "rate_limited", "Too many requests, slow down")
			}
			return next(c)
		}
	}
}

func (rl *PublicRateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	rl.mu.Unlock()
	return v.limiter.Allow()
}

func (rl *PublicRateLimiter) evictLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-10 * time.Minute)
		rl.mu.Lock()
		for ip, v := range rl.visitors {
			if v.lastSeen.Before(cutoff) {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

func clientIP(c echo.Context) string {
	ip := c.RealIP()
	if host, _, err := net.SplitHostPort(ip); err == nil {
		return host
	}
	return ip
}
