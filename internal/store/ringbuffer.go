// Package store holds the in-memory capacity-bounded stores owned by one
// event runtime: the transcript ring buffer, the facts store, and the cards
// store. None of them are safe for concurrent use on their own; the owning
// runtime serializes access.
package store

import (
	"time"

	"github.com/user/cuecard/internal/types"
)

// RingBuffer keeps the most recent transcript chunks, bounded by both count
// and age. It is a pure retention mechanism with no side effects.
type RingBuffer struct {
	capacity int
	maxAge   time.Duration
	chunks   []types.TranscriptChunk
	now      func() time.Time
}

// NewRingBuffer creates a buffer holding at most capacity chunks, dropping
// chunks older than maxAge.
func NewRingBuffer(capacity int, maxAge time.Duration) *RingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer{
		capacity: capacity,
		maxAge:   maxAge,
		now:      time.Now,
	}
}

// Add appends a chunk and evicts by count and age.
func (r *RingBuffer) Add(chunk types.TranscriptChunk) {
	r.chunks = append(r.chunks, chunk)
	r.evict()
}

// Snapshot returns a copy of the retained chunks, oldest first. Callers never
// receive a live reference into the buffer.
func (r *RingBuffer) Snapshot() []types.TranscriptChunk {
	r.evict()
	out := make([]types.TranscriptChunk, len(r.chunks))
	copy(out, r.chunks)
	return out
}

// Len returns the number of retained chunks after age eviction.
func (r *RingBuffer) Len() int {
	r.evict()
	return len(r.chunks)
}

func (r *RingBuffer) evict() {
	if len(r.chunks) > r.capacity {
		r.chunks = r.chunks[len(r.chunks)-r.capacity:]
	}
	if r.maxAge <= 0 {
		return
	}
	cutoff := r.now().Add(-r.maxAge)
	first := 0
	for first < len(r.chunks) && r.chunks[first].At.Before(cutoff) {
		first++
	}
	if first > 0 {
		r.chunks = r.chunks[first:]
	}
}
