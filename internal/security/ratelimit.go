package security

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned by RateLimiter.Allow when the window is full.
var ErrRateLimited = errors.New("rate limit exceeded")

// Kinds of throttled admin requests.
const (
	KindUpload = "upload"
	KindAction = "action"
	KindAuth   = "auth"
)

// RateLimitConfig holds per-minute limits for admin operations. Each
// authenticated actor gets its own allowance. Failed logins are counted
// per client address.
type RateLimitConfig struct {
	UploadsPerMin      int `yaml:"uploads_per_min"`
	ActionsPerMin      int `yaml:"actions_per_min"`
	AuthFailuresPerMin int `yaml:"auth_failures_per_min"`
}

type limitKey struct{ kind, who string }

// RateLimiter counts requests per kind and actor over a sliding minute.
type RateLimiter struct {
	window time.Duration
	limits map[string]int
	now    func() time.Time

	mu   sync.Mutex
	hits map[limitKey][]time.Time
}

// NewRateLimiter creates a limiter. Zero limits mean 10 uploads, 120
// actions and 10 failed logins per minute.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		window: time.Minute,
		limits: map[string]int{
			KindUpload: positiveOr(cfg.UploadsPerMin, 10),
			KindAction: positiveOr(cfg.ActionsPerMin, 120),
			KindAuth:   positiveOr(cfg.AuthFailuresPerMin, 10),
		},
		now:  time.Now,
		hits: make(map[limitKey][]time.Time),
	}
}

// Allow counts one request of kind made by who. When the limit is reached
// it returns ErrRateLimited and how long until a slot frees up. Kinds
// without a limit always pass.
func (rl *RateLimiter) Allow(kind, who string) (time.Duration, error) {
	limit, ok := rl.limits[kind]
	if !ok {
		return 0, nil
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	k := limitKey{kind, who}
	recent := rl.recent(k, now)
	if len(recent) >= limit {
		return recent[0].Add(rl.window).Sub(now), ErrRateLimited
	}
	rl.hits[k] = append(recent, now)
	return 0, nil
}

// Wait is Allow without counting a request: it returns how long who has
// to wait before kind passes again, zero when it would pass now.
func (rl *RateLimiter) Wait(kind, who string) time.Duration {
	limit, ok := rl.limits[kind]
	if !ok {
		return 0
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	recent := rl.recent(limitKey{kind, who}, now)
	if len(recent) < limit {
		return 0
	}
	return recent[0].Add(rl.window).Sub(now)
}

// recent drops hits that left the window. The caller holds mu.
func (rl *RateLimiter) recent(k limitKey, now time.Time) []time.Time {
	hits := rl.hits[k]
	for len(hits) > 0 && !hits[0].After(now.Add(-rl.window)) {
		hits = hits[1:]
	}
	if len(hits) == 0 {
		delete(rl.hits, k)
		return nil
	}
	rl.hits[k] = hits
	return hits
}

func positiveOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
