package audit

import (
	"strings"
	"sync"
	"time"

	"argus/core"
	"argus/metrics"

	"go.uber.org/zap"
)

// sweepRetention is how far back the periodic sweep keeps timestamps.
const sweepRetention = time.Hour

// RateLimitRule is the limit for one action within its window.
type RateLimitRule struct {
	Limit  int
	Window time.Duration
}

// RateLimiter tracks per-(action, actor) call timestamps in sliding
// windows. Stored timestamps are pruned lazily on each check and by a
// periodic sweep, so memory stays bounded independent of call volume.
type RateLimiter struct {
	mu        sync.Mutex
	entries   map[string][]time.Time
	rules     map[string]RateLimitRule
	fallback  RateLimitRule
	sensitive *core.SensitivityIndex
	logger    *zap.SugaredLogger
}

// NewRateLimiter creates a rate limiter with the default per-action rules.
func NewRateLimiter(sensitive *core.SensitivityIndex, logger *zap.SugaredLogger) *RateLimiter {
	return &RateLimiter{
		entries: make(map[string][]time.Time),
		rules: map[string]RateLimitRule{
			"auth_attempt": {Limit: 10, Window: time.Minute},
			"auth_failure": {Limit: 5, Window: time.Minute},
			"api_call":     {Limit: 100, Window: time.Minute},
		},
		fallback:  RateLimitRule{Limit: 20, Window: time.Minute},
		sensitive: sensitive,
		logger:    logger,
	}
}

// SetRule overrides or adds the rule for an exact action name.
func (rl *RateLimiter) SetRule(action string, rule RateLimitRule) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.rules[action] = rule
}

// ruleFor resolves the applicable limit for an action: exact rules first,
// then sensitive-resource access, then sensitive actions, then the fallback.
func (rl *RateLimiter) ruleFor(action string) RateLimitRule {
	if rule, ok := rl.rules[action]; ok {
		return rule
	}
	if rl.sensitive != nil {
		if rest, ok := strings.CutPrefix(action, "access_"); ok && rl.sensitive.SensitiveResource(rest) {
			return RateLimitRule{Limit: 5, Window: time.Minute}
		}
		if rl.sensitive.SensitiveAction(action) {
			return RateLimitRule{Limit: 3, Window: time.Minute}
		}
	}
	return rl.fallback
}

// CheckAndRecord prunes expired timestamps for (action, actor), records the
// call at now, and reports whether the action's limit is exceeded. The
// caller is responsible for emitting a rate-limit-exceeded event; the
// limiter never recurses into the pipeline.
func (rl *RateLimiter) CheckAndRecord(action, actorID string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rule := rl.ruleFor(action)
	key := action + "|" + actorID
	cutoff := now.Add(-rule.Window)

	kept := rl.entries[key][:0]
	for _, ts := range rl.entries[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	kept = append(kept, now)
	rl.entries[key] = kept

	exceeded := len(kept) > rule.Limit
	if exceeded {
		metrics.RateLimitExceeded.WithLabelValues(action).Inc()
	}
	return exceeded
}

// Sweep drops timestamps older than one hour across all keys and deletes
// empty keys. It runs on the pipeline's cleanup tick.
func (rl *RateLimiter) Sweep(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := now.Add(-sweepRetention)
	for key, timestamps := range rl.entries {
		kept := timestamps[:0]
		for _, ts := range timestamps {
			if ts.After(cutoff) {
				kept = append(kept, ts)
			}
		}
		if len(kept) == 0 {
			delete(rl.entries, key)
		} else {
			rl.entries[key] = kept
		}
	}
}

// TrackedKeys returns the number of (action, actor) keys currently held.
func (rl *RateLimiter) TrackedKeys() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.entries)
}
