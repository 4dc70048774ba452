package middleware

import (
	"net/http"
	"strings"
	"sync"

	"github.com/radiusdt/storefront-notify/internal/config"
	"github.com/radiusdt/storefront-notify/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimitMiddleware implements token bucket rate limiting. Site ingestion
// and management routes have separate global buckets; ingestion is also
// limited per client IP. Email tracking routes are never limited because
// their response must not depend on load.
type RateLimitMiddleware struct {
	cfg           config.RateLimitConfig
	logger        *zap.Logger
	metrics       *metrics.Metrics
	ingestLimiter *rate.Limiter
	mgmtLimiter   *rate.Limiter

	mu         sync.RWMutex
	ipLimiters map[string]*rate.Limiter
}

// NewRateLimitMiddleware creates a new rate limiting middleware.
func NewRateLimitMiddleware(cfg config.RateLimitConfig, logger *zap.Logger, m *metrics.Metrics) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		cfg:           cfg,
		logger:        logger,
		metrics:       m,
		ingestLimiter: rate.NewLimiter(rate.Limit(cfg.IngestRPS), cfg.IngestBurst),
		mgmtLimiter:   rate.NewLimiter(rate.Limit(cfg.MgmtRPS), cfg.MgmtBurst),
		ipLimiters:    make(map[string]*rate.Limiter),
	}
}

// Handler wraps an http.Handler with rate limiting.
func (rl *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.cfg.Enabled || isExempt(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		name, limiter := "mgmt", rl.mgmtLimiter
		if isIngestEndpoint(r.URL.Path) {
			ip := ClientIP(r)
			if !rl.getIPLimiter(ip).Allow() {
				rl.reject(w, r, "ip")
				return
			}
			name, limiter = "ingest", rl.ingestLimiter
		}

		if !limiter.Allow() {
			rl.reject(w, r, name)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimitMiddleware) reject(w http.ResponseWriter, r *http.Request, limiter string) {
	rl.logger.Warn("rate limit exceeded",
		zap.String("limiter", limiter),
		zap.String("path", r.URL.Path),
		zap.String("remote_addr", r.RemoteAddr),
	)
	if rl.metrics != nil {
		rl.metrics.RecordRateLimitHit(limiter)
	}
	w.Header().Set("Retry-After", "1")
	writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
}

// getIPLimiter returns or creates a rate limiter for the given IP.
func (rl *RateLimitMiddleware) getIPLimiter(ip string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.ipLimiters[ip]
	rl.mu.RUnlock()

	if exists {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if limiter, exists = rl.ipLimiters[ip]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(rate.Limit(rl.cfg.PerIPRPS), rl.cfg.PerIPBurst)
	rl.ipLimiters[ip] = limiter
	return limiter
}

// CleanupIPLimiters drops all per-IP limiters. Called periodically.
func (rl *RateLimitMiddleware) CleanupIPLimiters() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.ipLimiters = make(map[string]*rate.Limiter)
	rl.logger.Debug("cleaned up IP rate limiters")
}

func isExempt(path string) bool {
	return path == "/health" || path == "/metrics" || strings.Contains(path, "/t/")
}

func isIngestEndpoint(path string) bool {
	return strings.HasSuffix(path, "/track")
}
