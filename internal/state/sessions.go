package state

import (
	"context"
	"fmt"
	"time"

	"github.com/user/cuecard/internal/types"
)

// InsertSessionRow persists a new session row.
func (s *Store) InsertSessionRow(ctx context.Context, row *types.SessionRow) error {
	if row.ID == "" {
		row.ID = types.NewSessionRowID()
	}
	now := time.Now()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, event_id, agent_type, provider_session_id,
		   model, state, reason, created_at_ms, updated_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(row.ID), string(row.EventID), string(row.AgentType),
		row.ProviderSessionID, row.Model, string(row.State), row.Reason,
		row.CreatedAt.UnixMilli(), row.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert session row: %w", err)
	}
	return nil
}

// SessionRows returns the session rows for an event, one per agent type in
// the usual case.
func (s *Store) SessionRows(ctx context.Context, eventID types.EventID) ([]*types.SessionRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_id, agent_type, provider_session_id, model, state,
		   reason, created_at_ms, updated_at_ms
		 FROM sessions WHERE event_id = ? ORDER BY created_at_ms ASC`,
		string(eventID))
	if err != nil {
		return nil, fmt.Errorf("query session rows: %w", err)
	}
	defer rows.Close()

	var out []*types.SessionRow
	for rows.Next() {
		var (
			rec                  types.SessionRow
			id, evID, agentType  string
			state                string
			createdMs, updatedMs int64
		)
		if err := rows.Scan(&id, &evID, &agentType, &rec.ProviderSessionID,
			&rec.Model, &state, &rec.Reason, &createdMs, &updatedMs); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		rec.ID = types.SessionRowID(id)
		rec.EventID = types.EventID(evID)
		rec.AgentType = types.AgentType(agentType)
		rec.State = types.SessionState(state)
		rec.CreatedAt = time.UnixMilli(createdMs)
		rec.UpdatedAt = time.UnixMilli(updatedMs)
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// UpdateSessionRow persists state, provider session id, and reason changes.
func (s *Store) UpdateSessionRow(ctx context.Context, row *types.SessionRow) error {
	row.UpdatedAt = time.Now()
	if err := s.execOne(ctx,
		`UPDATE sessions SET provider_session_id = ?, model = ?, state = ?,
		   reason = ?, updated_at_ms = ?
		 WHERE id = ?`,
		row.ProviderSessionID, row.Model, string(row.State), row.Reason,
		row.UpdatedAt.UnixMilli(), string(row.ID)); err != nil {
		return fmt.Errorf("update session row: %w", err)
	}
	return nil
}

// DeleteSessionRows removes all session rows for an event. Used when fresh
// sessions are being created and stale rows would shadow them.
func (s *Store) DeleteSessionRows(ctx context.Context, eventID types.EventID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE event_id = ?`, string(eventID))
	if err != nil {
		return fmt.Errorf("delete session rows: %w", err)
	}
	return nil
}

// PruneClosedSessions deletes closed session rows not updated since
// olderThan and returns the number removed.
func (s *Store) PruneClosedSessions(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE state = ? AND updated_at_ms < ?`,
		string(types.SessionClosed), olderThan.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune closed sessions: %w", err)
	}
	return res.RowsAffected()
}
