package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/user/cuecard/internal/types"
)

// LoadCheckpoint returns the last persisted sequence number for
// (event, agent type), zero when none exists.
func (s *Store) LoadCheckpoint(ctx context.Context, eventID types.EventID, agentType types.AgentType) (int64, error) {
	var lastSeq int64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_seq FROM checkpoints WHERE event_id = ? AND agent_type = ?`,
		string(eventID), string(agentType)).Scan(&lastSeq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load checkpoint: %w", err)
	}
	return lastSeq, nil
}

// SaveCheckpoint upserts the checkpoint for (event, agent type).
func (s *Store) SaveCheckpoint(ctx context.Context, eventID types.EventID, agentType types.AgentType, lastSeq int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (event_id, agent_type, last_seq, updated_at_ms)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(event_id, agent_type) DO UPDATE SET
		   last_seq = excluded.last_seq,
		   updated_at_ms = excluded.updated_at_ms`,
		string(eventID), string(agentType), lastSeq, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}
