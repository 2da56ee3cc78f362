package state

import (
	"context"
	"fmt"

	"github.com/user/cuecard/internal/types"
)

// ReplaceGlossary swaps the event's glossary for the given terms in one
// transaction.
func (s *Store) ReplaceGlossary(ctx context.Context, eventID types.EventID, terms []*types.GlossaryTerm) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin glossary tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM glossary WHERE event_id = ?`, string(eventID)); err != nil {
		return fmt.Errorf("clear glossary: %w", err)
	}
	for _, term := range terms {
		if term.Term == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO glossary (event_id, term, definition) VALUES (?, ?, ?)`,
			string(eventID), term.Term, term.Definition); err != nil {
			return fmt.Errorf("insert glossary term: %w", err)
		}
	}
	return tx.Commit()
}

// GlossaryTerms returns the event's glossary terms.
func (s *Store) GlossaryTerms(ctx context.Context, eventID types.EventID) ([]*types.GlossaryTerm, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, term, definition FROM glossary WHERE event_id = ? ORDER BY term ASC`,
		string(eventID))
	if err != nil {
		return nil, fmt.Errorf("query glossary: %w", err)
	}
	defer rows.Close()

	var out []*types.GlossaryTerm
	for rows.Next() {
		var (
			term types.GlossaryTerm
			evID string
		)
		if err := rows.Scan(&evID, &term.Term, &term.Definition); err != nil {
			return nil, fmt.Errorf("scan glossary term: %w", err)
		}
		term.EventID = types.EventID(evID)
		out = append(out, &term)
	}
	return out, rows.Err()
}
