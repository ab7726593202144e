package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"argus/core"
	"argus/metrics"
	"argus/util/goroutine"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// APIRateLimiterConfig holds the per-client request budget for the query
// API.
type APIRateLimiterConfig struct {
	Limit  int
	Window time.Duration
	Burst  int
}

// APIRateLimiter throttles query API requests per client IP. State is
// in-memory by default; when a Redis cache is supplied the counter is kept
// there so multiple replicas share one budget, falling back to memory on
// Redis errors.
type APIRateLimiter struct {
	config   APIRateLimiterConfig
	limiters map[string]*rate.Limiter
	lastSeen map[string]time.Time
	mu       sync.Mutex
	redis    *core.RedisCache
	logger   *zap.SugaredLogger
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewAPIRateLimiter creates a rate limiter and starts its idle-entry
// cleanup goroutine. redis may be nil.
func NewAPIRateLimiter(config APIRateLimiterConfig, redis *core.RedisCache, logger *zap.SugaredLogger) *APIRateLimiter {
	rl := &APIRateLimiter{
		config:   config,
		limiters: make(map[string]*rate.Limiter),
		lastSeen: make(map[string]time.Time),
		redis:    redis,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}

	rl.wg.Add(1)
	go rl.cleanup()

	return rl
}

// Allow reports whether a request from the given client is within budget.
func (rl *APIRateLimiter) Allow(ctx context.Context, clientIP string) bool {
	if rl.redis != nil {
		return rl.allowRedis(ctx, clientIP)
	}
	return rl.allowMemory(clientIP)
}

func (rl *APIRateLimiter) allowMemory(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.limiters[clientIP]
	if !exists {
		limiter = rate.NewLimiter(
			rate.Limit(float64(rl.config.Limit)/rl.config.Window.Seconds()),
			rl.config.Burst,
		)
		rl.limiters[clientIP] = limiter
	}
	rl.lastSeen[clientIP] = time.Now()

	return limiter.Allow()
}

func (rl *APIRateLimiter) allowRedis(ctx context.Context, clientIP string) bool {
	redisKey := fmt.Sprintf("ratelimit:api:%s", clientIP)

	var count int
	exists, err := rl.redis.Get(ctx, redisKey, &count)
	if err != nil {
		rl.logger.Warnf("Redis rate limit check failed, falling back to memory: %v", err)
		return rl.allowMemory(clientIP)
	}
	if !exists {
		count = 0
	}
	if count >= rl.config.Limit {
		return false
	}

	count++
	if err := rl.redis.Set(ctx, redisKey, count, rl.config.Window); err != nil {
		rl.logger.Warnf("Redis rate limit increment failed: %v", err)
		return rl.allowMemory(clientIP)
	}
	return true
}

// cleanup drops in-memory limiters that have been idle for over an hour.
func (rl *APIRateLimiter) cleanup() {
	defer rl.wg.Done()
	defer goroutine.Recover("api-ratelimit-cleanup", rl.logger)

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-time.Hour)
			rl.mu.Lock()
			for ip, seen := range rl.lastSeen {
				if seen.Before(cutoff) {
					delete(rl.limiters, ip)
					delete(rl.lastSeen, ip)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

// Close stops the cleanup goroutine.
func (rl *APIRateLimiter) Close() {
	rl.stopOnce.Do(func() {
		close(rl.stopCh)
	})
	rl.wg.Wait()
}

// Middleware enforces the rate limit on every request, answering 429 with
// Retry-After when the budget is exhausted.
func (rl *APIRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := extractClientIP(r)
		if !rl.Allow(r.Context(), clientIP) {
			metrics.APIRequestsRateLimited.Inc()
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.config.Window.Seconds())))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.config.Limit))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// extractClientIP returns the request's client IP, preferring the first
// X-Forwarded-For hop when present.
func extractClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		for i := 0; i < len(fwd); i++ {
			if fwd[i] == ',' {
				return fwd[:i]
			}
		}
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
