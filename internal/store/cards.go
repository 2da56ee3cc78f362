package store

import (
	"time"

	"github.com/user/cuecard/internal/types"
)

// CardsStore keeps a FIFO-bounded history of emitted cards plus a
// concept-freshness cache. The cache records the last time each concept was
// shown independently of the FIFO window, so redundancy suppression keeps
// working after the card record itself has aged out of history.
type CardsStore struct {
	capacity  int
	history   []types.CardRecord
	lastShown map[string]time.Time
	now       func() time.Time
}

// NewCardsStore creates a store holding at most capacity card records.
func NewCardsStore(capacity int) *CardsStore {
	if capacity < 1 {
		capacity = 1
	}
	return &CardsStore{
		capacity:  capacity,
		lastShown: make(map[string]time.Time),
		now:       time.Now,
	}
}

// Add appends a record, dropping the oldest when over capacity, and returns
// the ids of the displaced records so the caller can mark them inactive
// durably. The freshness cache is updated unconditionally, even when the
// record is immediately the one displaced.
func (s *CardsStore) Add(record types.CardRecord) []types.OutputID {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now()
	}
	s.history = append(s.history, record)
	var evicted []types.OutputID
	if over := len(s.history) - s.capacity; over > 0 {
		for _, old := range s.history[:over] {
			if old.ID != "" {
				evicted = append(evicted, old.ID)
			}
		}
		s.history = s.history[over:]
	}
	if record.ConceptID != "" {
		s.lastShown[record.ConceptID] = record.CreatedAt
	}
	return evicted
}

// GetRecent returns up to limit records, most recent first.
func (s *CardsStore) GetRecent(limit int) []types.CardRecord {
	n := len(s.history)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]types.CardRecord, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.history[i])
	}
	return out
}

// HasRecentConcept reports whether the concept was shown within freshness.
// It consults the freshness cache, so a true answer can outlive the card's
// presence in FIFO history.
func (s *CardsStore) HasRecentConcept(conceptID string, freshness time.Duration) bool {
	shown, ok := s.lastShown[conceptID]
	if !ok {
		return false
	}
	return s.now().Sub(shown) <= freshness
}

// GetByConcept returns the history records for a concept, oldest first.
func (s *CardsStore) GetByConcept(conceptID string) []types.CardRecord {
	var out []types.CardRecord
	for _, rec := range s.history {
		if rec.ConceptID == conceptID {
			out = append(out, rec)
		}
	}
	return out
}

// ConceptCache returns a copy of the concept -> last-shown map.
func (s *CardsStore) ConceptCache() map[string]time.Time {
	out := make(map[string]time.Time, len(s.lastShown))
	for k, v := range s.lastShown {
		out[k] = v
	}
	return out
}

// Len returns the number of records in FIFO history.
func (s *CardsStore) Len() int {
	return len(s.history)
}
