package store

import (
	"testing"

	"github.com/user/cuecard/internal/types"
)

func TestFactsStoreEvictsLowestConfidence(t *testing.T) {
	s := NewFactsStore(2)

	if evicted := s.Upsert("a", "1", 0.9, 1, nil); len(evicted) != 0 {
		t.Fatalf("unexpected eviction: %v", evicted)
	}
	if evicted := s.Upsert("b", "2", 0.5, 2, nil); len(evicted) != 0 {
		t.Fatalf("unexpected eviction: %v", evicted)
	}
	evicted := s.Upsert("c", "3", 0.7, 3, nil)
	if len(evicted) != 1 || evicted[0] != "b" {
		t.Fatalf("expected eviction of b, got %v", evicted)
	}

	if s.Get("b") != nil {
		t.Error("evicted key b still present")
	}
	if s.Get("a") == nil || s.Get("c") == nil {
		t.Error("expected store to contain a and c")
	}
	if s.Len() != 2 {
		t.Errorf("expected len 2, got %d", s.Len())
	}
}

func TestFactsStoreCapacityInvariant(t *testing.T) {
	s := NewFactsStore(3)
	for i := 0; i < 50; i++ {
		key := string(rune('a' + i%26))
		s.Upsert(key, "v", float64(i%10)/10, int64(i), []int64{int64(i)})
		if s.Len() > 3 {
			t.Fatalf("store over capacity after upsert %d: len=%d", i, s.Len())
		}
	}
}

func TestFactsStoreConfidenceBlending(t *testing.T) {
	s := NewFactsStore(5)
	s.Upsert("k", "v", 0.6, 1, nil)
	first := s.Get("k").Confidence

	s.Upsert("k", "v2", 0.8, 2, nil)
	second := s.Get("k").Confidence
	if second <= first {
		t.Errorf("repeat observation should raise confidence: %f -> %f", first, second)
	}

	// Even a weak repeat observation must not lower confidence.
	s.Upsert("k", "v3", 0.1, 3, nil)
	third := s.Get("k").Confidence
	if third < second {
		t.Errorf("confidence dropped on repeat observation: %f -> %f", second, third)
	}
	if third > 1.0 {
		t.Errorf("confidence exceeded 1.0: %f", third)
	}

	fact := s.Get("k")
	if fact.Value != "v3" {
		t.Errorf("value not updated: %q", fact.Value)
	}
	if fact.LastSeenSeq != 3 {
		t.Errorf("last seen seq not advanced: %d", fact.LastSeenSeq)
	}
}

func TestFactsStoreBlendDeterministic(t *testing.T) {
	a := blend(0.7, 0.8)
	b := blend(0.7, 0.8)
	if a != b {
		t.Fatalf("blend not deterministic: %f vs %f", a, b)
	}
	for _, old := range []float64{0, 0.3, 0.7, 0.99, 1.0} {
		got := blend(old, 0.9)
		if got < old {
			t.Errorf("blend(%f, 0.9)=%f dropped below old", old, got)
		}
		if got > 1 {
			t.Errorf("blend(%f, 0.9)=%f exceeds 1", old, got)
		}
	}
}

func TestFactsStoreDefaultConfidence(t *testing.T) {
	s := NewFactsStore(5)
	s.Upsert("k", "v", 0, 1, nil)
	if got := s.Get("k").Confidence; got != defaultConfidence {
		t.Errorf("expected default confidence %f, got %f", defaultConfidence, got)
	}
}

func TestFactsStoreLoadFactsOverCapacity(t *testing.T) {
	s := NewFactsStore(2)
	records := []*types.FactRecord{
		{Key: "a", Value: "1", Confidence: 0.9, LastSeenSeq: 1},
		{Key: "b", Value: "2", Confidence: 0.3, LastSeenSeq: 2},
		{Key: "c", Value: "3", Confidence: 0.8, LastSeenSeq: 3},
		{Key: "d", Value: "4", Confidence: 0.7, LastSeenSeq: 4},
	}

	evicted := s.LoadFacts(records)
	if s.Len() != 2 {
		t.Fatalf("store over capacity after hydration: len=%d", s.Len())
	}
	if len(evicted) != 2 {
		t.Fatalf("expected 2 evictions, got %v", evicted)
	}
	for _, key := range evicted {
		if s.Get(key) != nil {
			t.Errorf("evicted key %q still present", key)
		}
	}
	// The strongest facts survive.
	if s.Get("a") == nil || s.Get("c") == nil {
		t.Errorf("expected a and c to survive hydration, have %v", keysOf(s))
	}
}

func TestFactsStoreSourcesMerged(t *testing.T) {
	s := NewFactsStore(5)
	s.Upsert("k", "v", 0.7, 1, []int64{1})
	s.Upsert("k", "v", 0.7, 3, []int64{3, 1})
	sources := s.Get("k").Sources
	if len(sources) != 2 {
		t.Errorf("expected deduplicated sources, got %v", sources)
	}
}

func keysOf(s *FactsStore) []string {
	var keys []string
	for _, f := range s.All() {
		keys = append(keys, f.Key)
	}
	return keys
}
