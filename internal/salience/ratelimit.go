package salience

import (
	"time"
)

// RateLimiter gates card emission frequency for one event. It enforces a
// minimum interval since the last emission and a maximum number of
// emissions inside a trailing window.
type RateLimiter struct {
	minInterval  time.Duration
	window       time.Duration
	maxPerWindow int
	history      []time.Time
	lastTrigger  time.Time
}

// NewRateLimiter creates a limiter with the given policy. The documented
// defaults are minInterval=30s, window=120s, maxPerWindow=1.
func NewRateLimiter(minInterval, window time.Duration, maxPerWindow int) *RateLimiter {
	if maxPerWindow < 1 {
		maxPerWindow = 1
	}
	return &RateLimiter{
		minInterval:  minInterval,
		window:       window,
		maxPerWindow: maxPerWindow,
	}
}

// Allow reports whether an emission at now would be permitted. The most
// recent emission is governed by the interval check alone; the window cap
// applies to the emissions before it.
func (r *RateLimiter) Allow(now time.Time) bool {
	r.prune(now)
	if !r.lastTrigger.IsZero() && now.Sub(r.lastTrigger) < r.minInterval {
		return false
	}
	count := len(r.history)
	if count > 0 && r.history[count-1].Equal(r.lastTrigger) {
		count--
	}
	return count < r.maxPerWindow
}

// Record registers a successful emission at now and prunes history older
// than the window.
func (r *RateLimiter) Record(now time.Time) {
	r.history = append(r.history, now)
	r.lastTrigger = now
	r.prune(now)
}

// History returns a copy of the retained emission timestamps.
func (r *RateLimiter) History() []time.Time {
	out := make([]time.Time, len(r.history))
	copy(out, r.history)
	return out
}

// LastTrigger returns the timestamp of the most recent emission, zero if none.
func (r *RateLimiter) LastTrigger() time.Time {
	return r.lastTrigger
}

func (r *RateLimiter) prune(now time.Time) {
	cutoff := now.Add(-r.window)
	first := 0
	for first < len(r.history) && r.history[first].Before(cutoff) {
		first++
	}
	if first > 0 {
		r.history = r.history[first:]
	}
}
