// Package runtime owns the in-memory state tracked for each live event and
// the process-wide registry that creates, hydrates, and discards it.
package runtime

import (
	"context"
	"sync"
	"time"

	"github.com/user/cuecard/internal/glossary"
	"github.com/user/cuecard/internal/salience"
	"github.com/user/cuecard/internal/store"
	"github.com/user/cuecard/internal/types"
	"github.com/user/cuecard/pkg/agent"
)

// ChunkMeta is per-chunk metadata stashed by ingestion, attached to the
// next transcription result and then cleared.
type ChunkMeta struct {
	Speaker    string
	Encoding   string
	SampleRate int
}

// EventRuntime is the in-memory state for one live event. All mutation must
// happen while holding the runtime's lock; independent events each have
// their own runtime and make progress in parallel.
type EventRuntime struct {
	mu sync.Mutex

	// ctx outlives any request that touches the runtime; result handlers
	// and provider round trips run on it. Cancelled by Teardown.
	ctx    context.Context
	cancel context.CancelFunc

	EventID types.EventID
	AgentID types.AgentID
	Status  types.AgentStatus

	// Monotonic sequence counters: the highest sequence each pipeline has
	// consumed. They only ever advance.
	TranscriptLastSeq int64
	CardsLastSeq      int64
	FactsLastSeq      int64

	// assignedSeq is the highest sequence handed out to a not-yet-processed
	// transcript row, so concurrent assignments never collide.
	assignedSeq int64

	Ring  *store.RingBuffer
	Facts *store.FactsStore
	Cards *store.CardsStore

	Glossary *glossary.Cache
	Limiter  *salience.RateLimiter

	Sessions   map[types.AgentType]agent.Session
	SessionIDs map[types.AgentType]string
	Enabled    map[types.AgentType]bool

	// attached records session handle ids whose result handlers have been
	// wired, so a second AttachSessionHandlers call is a no-op.
	attached map[string]bool

	Pending *ChunkMeta

	debounce    *time.Timer
	debounceGen uint64

	statusStop chan struct{}
}

// Context returns the runtime's lifetime context. It stays live until the
// runtime is torn down, independent of whatever request created it.
func (r *EventRuntime) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// Lock acquires the runtime's exclusive lock.
func (r *EventRuntime) Lock() { r.mu.Lock() }

// Unlock releases the runtime's exclusive lock.
func (r *EventRuntime) Unlock() { r.mu.Unlock() }

// AdvanceSeqs raises all three sequence counters to at least seq.
// Counters never decrease. Caller must hold the lock.
func (r *EventRuntime) AdvanceSeqs(seq int64) {
	if seq > r.TranscriptLastSeq {
		r.TranscriptLastSeq = seq
	}
	if seq > r.CardsLastSeq {
		r.CardsLastSeq = seq
	}
	if seq > r.FactsLastSeq {
		r.FactsLastSeq = seq
	}
}

// NextSeq hands out the next transcript sequence number, accounting for
// assignments still in flight through the insert feed. Caller must hold the
// lock.
func (r *EventRuntime) NextSeq() int64 {
	seq := r.TranscriptLastSeq
	if r.assignedSeq > seq {
		seq = r.assignedSeq
	}
	seq++
	r.assignedSeq = seq
	return seq
}

// MaxSeq returns the maximum of the three counters. Caller must hold the lock.
func (r *EventRuntime) MaxSeq() int64 {
	max := r.TranscriptLastSeq
	if r.CardsLastSeq > max {
		max = r.CardsLastSeq
	}
	if r.FactsLastSeq > max {
		max = r.FactsLastSeq
	}
	return max
}

// MarkAttached records handler attachment for a session handle, returning
// false when the handle was already attached. Caller must hold the lock.
func (r *EventRuntime) MarkAttached(handleID string) bool {
	if r.attached[handleID] {
		return false
	}
	r.attached[handleID] = true
	return true
}

// ClearAttached forgets all handler-attachment markers. Caller must hold
// the lock.
func (r *EventRuntime) ClearAttached() {
	r.attached = make(map[string]bool)
}

// ScheduleDebounce cancels any pending debounce timer and schedules fn to
// run after d. The generation counter guards against a cancelled timer's
// callback firing after a reschedule; fn receives its generation so it can
// re-validate with DebounceCurrent once it takes the lock itself. Caller
// must hold the lock.
func (r *EventRuntime) ScheduleDebounce(d time.Duration, fn func(gen uint64)) {
	if r.debounce != nil {
		r.debounce.Stop()
	}
	r.debounceGen++
	gen := r.debounceGen
	r.debounce = time.AfterFunc(d, func() {
		r.mu.Lock()
		stale := gen != r.debounceGen
		r.mu.Unlock()
		if stale {
			return
		}
		fn(gen)
	})
}

// DebounceCurrent reports whether gen is still the live debounce generation.
// Caller must hold the lock.
func (r *EventRuntime) DebounceCurrent(gen uint64) bool {
	return gen == r.debounceGen
}

// CancelDebounce stops any pending debounce timer and invalidates its
// generation. Caller must hold the lock.
func (r *EventRuntime) CancelDebounce() {
	if r.debounce != nil {
		r.debounce.Stop()
		r.debounce = nil
	}
	r.debounceGen++
}

// StartStatusPush begins a periodic push loop, replacing any previous one.
// Caller must hold the lock.
func (r *EventRuntime) StartStatusPush(interval time.Duration, push func()) {
	r.stopStatusPushLocked()
	stop := make(chan struct{})
	r.statusStop = stop
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				push()
			case <-stop:
				return
			}
		}
	}()
}

// StopStatusPush halts the periodic push loop. Caller must hold the lock.
func (r *EventRuntime) StopStatusPush() {
	r.stopStatusPushLocked()
}

func (r *EventRuntime) stopStatusPushLocked() {
	if r.statusStop != nil {
		close(r.statusStop)
		r.statusStop = nil
	}
}

// Teardown cancels the runtime context and timers referencing the runtime.
// It does not touch provider sessions; that is the session lifecycle's job.
func (r *EventRuntime) Teardown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
	r.CancelDebounce()
	r.stopStatusPushLocked()
	r.ClearAttached()
}
