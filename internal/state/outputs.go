package state

import (
	"context"
	"fmt"
	"time"

	"github.com/user/cuecard/internal/types"
)

// InsertOutput persists an agent-output audit record.
func (s *Store) InsertOutput(ctx context.Context, out *types.AgentOutput) error {
	if out.ID == "" {
		out.ID = types.NewOutputID()
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outputs (id, event_id, agent_type, kind, source_seq, payload, created_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(out.ID), string(out.EventID), string(out.AgentType), out.Kind,
		out.SourceSeq, string(out.Payload), out.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert output: %w", err)
	}
	return nil
}
