package salience

import (
	"testing"
	"time"
)

func newTestLimiter() *RateLimiter {
	return NewRateLimiter(30*time.Second, 120*time.Second, 1)
}

func TestRateLimiterMinInterval(t *testing.T) {
	r := newTestLimiter()
	base := time.Now()

	if !r.Allow(base) {
		t.Fatal("first attempt should be allowed")
	}
	r.Record(base)

	if r.Allow(base.Add(10 * time.Second)) {
		t.Error("attempt 10s after emission should be rejected")
	}
}

func TestRateLimiterSpacedAttemptsAllowed(t *testing.T) {
	r := newTestLimiter()
	base := time.Now()

	if !r.Allow(base) {
		t.Fatal("first attempt should be allowed")
	}
	r.Record(base)

	if !r.Allow(base.Add(31 * time.Second)) {
		t.Error("attempt 31s after emission with no other history should be allowed")
	}
}

func TestRateLimiterWindowCap(t *testing.T) {
	r := newTestLimiter()
	base := time.Now()

	allowed := 0
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * 5 * time.Second)
		if r.Allow(at) {
			allowed++
			r.Record(at)
		}
	}
	if allowed != 1 {
		t.Errorf("expected only the first of three 5s-spaced attempts, got %d", allowed)
	}
}

func TestRateLimiterWindowCapBeyondLast(t *testing.T) {
	r := newTestLimiter()
	base := time.Now()

	r.Record(base)
	r.Record(base.Add(31 * time.Second))

	// Two emissions already inside the window: the cap now rejects even
	// though the interval since the last emission has elapsed.
	if r.Allow(base.Add(62 * time.Second)) {
		t.Error("third emission inside the window should be rejected")
	}

	// Once the first emission ages out of the window, room opens up again.
	if !r.Allow(base.Add(121 * time.Second)) {
		t.Error("attempt after the window expired should be allowed")
	}
}

func TestRateLimiterPrunesHistory(t *testing.T) {
	r := newTestLimiter()
	base := time.Now()

	r.Record(base)
	r.Record(base.Add(40 * time.Second))
	r.Allow(base.Add(200 * time.Second))

	if n := len(r.History()); n != 0 {
		t.Errorf("expected pruned history, got %d entries", n)
	}
}

func TestRateLimiterLastTrigger(t *testing.T) {
	r := newTestLimiter()
	if !r.LastTrigger().IsZero() {
		t.Error("expected zero last trigger before any emission")
	}
	at := time.Now()
	r.Record(at)
	if !r.LastTrigger().Equal(at) {
		t.Error("last trigger not recorded")
	}
}
