package devapi

import (
	"math"
	"strconv"
	"sync"
	"time"
)

// RateLimitConfig controls sign-in throttling.
type RateLimitConfig struct {
	MaxAttempts     int           // Failures allowed inside one window (default: 5)
	WindowDuration  time.Duration // Window failures are counted in (default: 15m)
	LockoutDuration time.Duration // Lockout once MaxAttempts is reached (default: 30m)
}

// DefaultRateLimitConfig returns the limits used when none are configured.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxAttempts:     5,
		WindowDuration:  15 * time.Minute,
		LockoutDuration: 30 * time.Minute,
	}
}

// signInKey scopes failures to one client address and one account, so a
// locked-out browser does not lock the account for everybody.
type signInKey struct {
	ip         string
	identifier string
}

type failureWindow struct {
	count       int
	opened      time.Time
	lockedUntil time.Time
}

func (w *failureWindow) locked(now time.Time) bool {
	return now.Before(w.lockedUntil)
}

// RateLimiter counts failed sign-ins in fixed windows and locks the
// ip+identifier pair out once the limit is hit. Sign-in and the identity
// provider page share one limiter.
type RateLimiter struct {
	cfg RateLimitConfig
	now func() time.Time

	mu       sync.Mutex
	failures map[signInKey]*failureWindow
}

// NewRateLimiter fills unset limits from DefaultRateLimitConfig. Stale
// windows are dropped by Sweep.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	d := DefaultRateLimitConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = d.MaxAttempts
	}
	if cfg.WindowDuration <= 0 {
		cfg.WindowDuration = d.WindowDuration
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = d.LockoutDuration
	}
	return &RateLimiter{
		cfg:      cfg,
		now:      time.Now,
		failures: make(map[signInKey]*failureWindow),
	}
}

// Allow reports whether another attempt may be made and, if not, how long
// the caller has to wait.
func (rl *RateLimiter) Allow(ip, identifier string) (bool, time.Duration) {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.failures[signInKey{ip, identifier}]
	switch {
	case !ok:
		return true, 0
	case w.locked(now):
		return false, w.lockedUntil.Sub(now)
	case now.Sub(w.opened) > rl.cfg.WindowDuration, w.count < rl.cfg.MaxAttempts:
		return true, 0
	default:
		return false, rl.cfg.LockoutDuration
	}
}

// RecordFailure counts a failed attempt. It returns true with the lockout
// duration when this failure reached the limit.
func (rl *RateLimiter) RecordFailure(ip, identifier string) (bool, time.Duration) {
	now := rl.now()
	key := signInKey{ip, identifier}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.failures[key]
	if !ok || now.Sub(w.opened) > rl.cfg.WindowDuration {
		w = &failureWindow{opened: now}
		rl.failures[key] = w
	}
	w.count++

	if w.count < rl.cfg.MaxAttempts {
		return false, 0
	}
	w.lockedUntil = now.Add(rl.cfg.LockoutDuration)
	return true, rl.cfg.LockoutDuration
}

// RecordSuccess forgets earlier failures of the pair.
func (rl *RateLimiter) RecordSuccess(ip, identifier string) {
	rl.mu.Lock()
	delete(rl.failures, signInKey{ip, identifier})
	rl.mu.Unlock()
}

// Sweep drops windows that can no longer affect a decision and returns how
// many were removed.
func (rl *RateLimiter) Sweep() int {
	now := rl.now()
	horizon := rl.cfg.WindowDuration + rl.cfg.LockoutDuration

	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for key, w := range rl.failures {
		if now.Sub(w.opened) > horizon && !w.locked(now) {
			delete(rl.failures, key)
			removed++
		}
	}
	return removed
}

// retryAfterSeconds formats d for the Retry-After header, rounding up.
func retryAfterSeconds(d time.Duration) string {
	return strconv.Itoa(int(math.Ceil(d.Seconds())))
}
