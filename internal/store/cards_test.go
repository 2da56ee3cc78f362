package store

import (
	"testing"
	"time"

	"github.com/user/cuecard/internal/types"
)

func TestCardsStoreFIFOEviction(t *testing.T) {
	s := NewCardsStore(2)
	s.Add(types.CardRecord{ConceptID: "x", Title: "X"})
	s.Add(types.CardRecord{ConceptID: "y", Title: "Y"})
	s.Add(types.CardRecord{ConceptID: "z", Title: "Z"})

	if s.Len() != 2 {
		t.Fatalf("expected len 2, got %d", s.Len())
	}
	if got := s.GetByConcept("x"); len(got) != 0 {
		t.Errorf("expected x evicted from history, got %d records", len(got))
	}
	recent := s.GetRecent(10)
	if len(recent) != 2 || recent[0].ConceptID != "z" || recent[1].ConceptID != "y" {
		t.Errorf("unexpected recent order: %+v", recent)
	}
}

func TestCardsStoreAddReturnsEvictedIDs(t *testing.T) {
	s := NewCardsStore(2)
	if got := s.Add(types.CardRecord{ID: "card-1", ConceptID: "x"}); len(got) != 0 {
		t.Fatalf("eviction below capacity: %v", got)
	}
	s.Add(types.CardRecord{ID: "card-2", ConceptID: "y"})

	evicted := s.Add(types.CardRecord{ID: "card-3", ConceptID: "z"})
	if len(evicted) != 1 || evicted[0] != "card-1" {
		t.Errorf("evicted = %v, want [card-1]", evicted)
	}
}

func TestCardsStoreFreshnessSurvivesEviction(t *testing.T) {
	s := NewCardsStore(2)
	base := time.Now()
	s.now = func() time.Time { return base }

	s.Add(types.CardRecord{ConceptID: "x"})
	s.Add(types.CardRecord{ConceptID: "y"})
	s.Add(types.CardRecord{ConceptID: "z"})

	if len(s.GetByConcept("x")) != 0 {
		t.Fatal("x should be out of FIFO history")
	}
	if !s.HasRecentConcept("x", time.Minute) {
		t.Error("freshness for x should survive FIFO eviction")
	}

	s.now = func() time.Time { return base.Add(2 * time.Minute) }
	if s.HasRecentConcept("x", time.Minute) {
		t.Error("freshness window expired, expected false")
	}
}

func TestCardsStoreHasRecentConceptUnknown(t *testing.T) {
	s := NewCardsStore(2)
	if s.HasRecentConcept("nope", time.Hour) {
		t.Error("unknown concept reported as recent")
	}
}

func TestCardsStoreGetRecentLimit(t *testing.T) {
	s := NewCardsStore(10)
	for i := 0; i < 5; i++ {
		s.Add(types.CardRecord{ConceptID: "c", SourceSeq: int64(i)})
	}
	recent := s.GetRecent(3)
	if len(recent) != 3 {
		t.Fatalf("expected 3, got %d", len(recent))
	}
	if recent[0].SourceSeq != 4 {
		t.Errorf("expected most recent first, got seq %d", recent[0].SourceSeq)
	}
}

func TestCardsStoreConceptCacheCopy(t *testing.T) {
	s := NewCardsStore(2)
	s.Add(types.CardRecord{ConceptID: "x"})
	cache := s.ConceptCache()
	delete(cache, "x")
	if !s.HasRecentConcept("x", time.Hour) {
		t.Error("mutating the returned cache must not affect the store")
	}
}
