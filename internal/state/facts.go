package state

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/user/cuecard/internal/types"
)

// UpsertFact inserts or replaces the fact row for (event, key).
func (s *Store) UpsertFact(ctx context.Context, fact *types.FactRecord) error {
	sources, err := json.Marshal(fact.Sources)
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}
	if fact.UpdatedAt.IsZero() {
		fact.UpdatedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO facts (event_id, key, value, confidence, last_seen_seq, sources, active, updated_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(event_id, key) DO UPDATE SET
		   value = excluded.value,
		   confidence = excluded.confidence,
		   last_seen_seq = excluded.last_seen_seq,
		   sources = excluded.sources,
		   active = excluded.active,
		   updated_at_ms = excluded.updated_at_ms`,
		string(fact.EventID), fact.Key, fact.Value, fact.Confidence,
		fact.LastSeenSeq, string(sources), boolToInt(fact.Active), fact.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert fact: %w", err)
	}
	return nil
}

// ActiveFacts returns the active fact rows for an event.
func (s *Store) ActiveFacts(ctx context.Context, eventID types.EventID) ([]*types.FactRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, key, value, confidence, last_seen_seq, sources, active, updated_at_ms
		 FROM facts WHERE event_id = ? AND active = 1
		 ORDER BY last_seen_seq ASC`,
		string(eventID))
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer rows.Close()

	var out []*types.FactRecord
	for rows.Next() {
		var (
			rec       types.FactRecord
			evID      string
			sources   string
			active    int
			updatedMs int64
		)
		if err := rows.Scan(&evID, &rec.Key, &rec.Value, &rec.Confidence,
			&rec.LastSeenSeq, &sources, &active, &updatedMs); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		rec.EventID = types.EventID(evID)
		rec.Active = active != 0
		rec.UpdatedAt = time.UnixMilli(updatedMs)
		if err := json.Unmarshal([]byte(sources), &rec.Sources); err != nil {
			rec.Sources = nil
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// DeactivateFacts marks the given keys inactive in one statement. Evicted
// facts stay queryable for history, they just stop counting as current.
func (s *Store) DeactivateFacts(ctx context.Context, eventID types.EventID, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(keys))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(keys)+2)
	args = append(args, time.Now().UnixMilli(), string(eventID))
	for _, k := range keys {
		args = append(args, k)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE facts SET active = 0, updated_at_ms = ?
		 WHERE event_id = ? AND key IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("deactivate facts: %w", err)
	}
	return nil
}
