package store

import (
	"sort"

	"github.com/user/cuecard/internal/types"
)

// defaultConfidence is assigned when a fact arrives without a usable
// confidence value.
const defaultConfidence = 0.7

// Fact is one entry held in the bounded facts store.
type Fact struct {
	Key         string
	Value       string
	Confidence  float64
	LastSeenSeq int64
	Sources     []int64
	insertSeq   int64
}

// FactsStore is a capacity-bounded map of the event's current facts. When a
// new key would push the store over capacity, the least-confident entries
// (ties broken by oldest last-seen sequence) are evicted and their keys
// returned so the caller can mark them inactive in durable storage.
type FactsStore struct {
	capacity int
	facts    map[string]*Fact
	inserts  int64
}

// NewFactsStore creates a store that holds at most capacity facts.
func NewFactsStore(capacity int) *FactsStore {
	if capacity < 1 {
		capacity = 1
	}
	return &FactsStore{
		capacity: capacity,
		facts:    make(map[string]*Fact),
	}
}

// blend computes the stored confidence for a repeated observation.
// The rule is deterministic and monotone: the result never drops below the
// previous confidence, each confirmation closes a fraction of the gap to
// 1.0 proportional to the strength of the new evidence.
func blend(old, incoming float64) float64 {
	if incoming < 0.5 {
		incoming = 0.5
	}
	next := old + (1-old)*0.3*incoming
	if next > 1 {
		next = 1
	}
	if next < old {
		next = old
	}
	return next
}

// Upsert inserts or updates a fact and returns the keys of any entries
// evicted to respect capacity. Repeated observations raise confidence via
// blend; they never lower it.
func (s *FactsStore) Upsert(key, value string, confidence float64, lastSeenSeq int64, sources []int64) []string {
	if confidence <= 0 || confidence > 1 {
		confidence = defaultConfidence
	}

	if existing, ok := s.facts[key]; ok {
		existing.Value = value
		existing.Confidence = blend(existing.Confidence, confidence)
		if lastSeenSeq > existing.LastSeenSeq {
			existing.LastSeenSeq = lastSeenSeq
		}
		existing.Sources = mergeSources(existing.Sources, sources)
		return nil
	}

	s.inserts++
	s.facts[key] = &Fact{
		Key:         key,
		Value:       value,
		Confidence:  confidence,
		LastSeenSeq: lastSeenSeq,
		Sources:     append([]int64(nil), sources...),
		insertSeq:   s.inserts,
	}
	return s.evictOver(key)
}

// Get returns the fact for key, or nil if absent.
func (s *FactsStore) Get(key string) *Fact {
	return s.facts[key]
}

// Len returns the number of facts currently held.
func (s *FactsStore) Len() int {
	return len(s.facts)
}

// All returns the held facts in no particular order.
func (s *FactsStore) All() []*Fact {
	out := make([]*Fact, 0, len(s.facts))
	for _, f := range s.facts {
		out = append(out, f)
	}
	return out
}

// LoadFacts bulk-hydrates the store from durable records, applying the same
// eviction contract as Upsert. All records are loaded first and only then
// trimmed to capacity, so hydrating more active rows than capacity evicts
// the least valuable of the whole set rather than whichever arrived last.
func (s *FactsStore) LoadFacts(records []*types.FactRecord) []string {
	for _, rec := range records {
		if rec.Key == "" {
			continue
		}
		conf := rec.Confidence
		if conf <= 0 || conf > 1 {
			conf = defaultConfidence
		}
		s.inserts++
		s.facts[rec.Key] = &Fact{
			Key:         rec.Key,
			Value:       rec.Value,
			Confidence:  conf,
			LastSeenSeq: rec.LastSeenSeq,
			Sources:     append([]int64(nil), rec.Sources...),
			insertSeq:   s.inserts,
		}
	}
	return s.evictOver("")
}

// evictOver removes least-confident entries until size <= capacity. The key
// just written is kept: eviction is for making room, not rejecting input.
func (s *FactsStore) evictOver(keep string) []string {
	if len(s.facts) <= s.capacity {
		return nil
	}
	candidates := make([]*Fact, 0, len(s.facts))
	for k, f := range s.facts {
		if k == keep {
			continue
		}
		candidates = append(candidates, f)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence < candidates[j].Confidence
		}
		if candidates[i].LastSeenSeq != candidates[j].LastSeenSeq {
			return candidates[i].LastSeenSeq < candidates[j].LastSeenSeq
		}
		return candidates[i].insertSeq < candidates[j].insertSeq
	})

	var evicted []string
	for _, f := range candidates {
		if len(s.facts) <= s.capacity {
			break
		}
		delete(s.facts, f.Key)
		evicted = append(evicted, f.Key)
	}
	return evicted
}

func mergeSources(existing, incoming []int64) []int64 {
	seen := make(map[int64]bool, len(existing))
	for _, s := range existing {
		seen[s] = true
	}
	for _, s := range incoming {
		if !seen[s] {
			existing = append(existing, s)
			seen[s] = true
		}
	}
	return existing
}
