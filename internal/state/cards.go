package state

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/user/cuecard/internal/types"
)

// InsertCard persists a card row.
func (s *Store) InsertCard(ctx context.Context, card *types.CardRecord) error {
	if card.ID == "" {
		card.ID = types.NewOutputID()
	}
	if card.CreatedAt.IsZero() {
		card.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cards (id, event_id, concept_id, concept_label, card_type,
		   source_seq, title, body, label, image_ref, active, created_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(card.ID), string(card.EventID), card.ConceptID, card.ConceptLabel,
		string(card.CardType), card.SourceSeq, card.Title, card.Body, card.Label,
		card.ImageRef, boolToInt(card.Active), card.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert card: %w", err)
	}
	return nil
}

// ActiveCards returns up to limit active card rows for the event, oldest
// first, so hydration replays them in emission order.
func (s *Store) ActiveCards(ctx context.Context, eventID types.EventID, limit int) ([]*types.CardRecord, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_id, concept_id, concept_label, card_type, source_seq,
		   title, body, label, image_ref, active, created_at_ms
		 FROM cards WHERE event_id = ? AND active = 1
		 ORDER BY created_at_ms ASC LIMIT ?`,
		string(eventID), limit)
	if err != nil {
		return nil, fmt.Errorf("query cards: %w", err)
	}
	defer rows.Close()

	var out []*types.CardRecord
	for rows.Next() {
		var (
			rec       types.CardRecord
			id, evID  string
			cardType  string
			active    int
			createdMs int64
		)
		if err := rows.Scan(&id, &evID, &rec.ConceptID, &rec.ConceptLabel,
			&cardType, &rec.SourceSeq, &rec.Title, &rec.Body, &rec.Label,
			&rec.ImageRef, &active, &createdMs); err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		rec.ID = types.OutputID(id)
		rec.EventID = types.EventID(evID)
		rec.CardType = types.CardType(cardType)
		rec.Active = active != 0
		rec.CreatedAt = time.UnixMilli(createdMs)
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// DeactivateCards marks the given card rows inactive in one statement.
func (s *Store) DeactivateCards(ctx context.Context, eventID types.EventID, ids []types.OutputID) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(ids)+1)
	args = append(args, string(eventID))
	for _, id := range ids {
		args = append(args, string(id))
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE cards SET active = 0 WHERE event_id = ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("deactivate cards: %w", err)
	}
	return nil
}
