package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/user/cuecard/internal/types"
)

// GetAgent returns the agent record for the event, or an error when absent.
func (s *Store) GetAgent(ctx context.Context, eventID types.EventID) (*types.AgentRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, event_id, status, created_at_ms, updated_at_ms
		 FROM agents WHERE event_id = ?`, string(eventID))
	rec, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("agent not found for event %s", eventID)
	}
	return rec, err
}

// EnsureAgent returns the agent record for the event, creating one in the
// context_complete stage when none exists.
func (s *Store) EnsureAgent(ctx context.Context, eventID types.EventID) (*types.AgentRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, event_id, status, created_at_ms, updated_at_ms
		 FROM agents WHERE event_id = ?`, string(eventID))
	rec, err := scanAgent(row)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	now := time.Now()
	rec = &types.AgentRecord{
		ID:        types.NewAgentID(),
		EventID:   eventID,
		Status:    types.AgentStatusContextComplete,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agents (id, event_id, status, created_at_ms, updated_at_ms)
		 VALUES (?, ?, ?, ?, ?)`,
		string(rec.ID), string(eventID), string(rec.Status),
		now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("insert agent: %w", err)
	}
	return rec, nil
}

// UpdateAgentStatus transitions the event's agent record.
func (s *Store) UpdateAgentStatus(ctx context.Context, eventID types.EventID, status types.AgentStatus) error {
	if err := s.execOne(ctx,
		`UPDATE agents SET status = ?, updated_at_ms = ? WHERE event_id = ?`,
		string(status), time.Now().UnixMilli(), string(eventID)); err != nil {
		return fmt.Errorf("update agent status: %w", err)
	}
	return nil
}

// RunningAgents returns agents whose status indicates they were mid-run,
// used by the startup resume pass.
func (s *Store) RunningAgents(ctx context.Context, limit int) ([]*types.AgentRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_id, status, created_at_ms, updated_at_ms
		 FROM agents WHERE status = ? ORDER BY updated_at_ms DESC LIMIT ?`,
		string(types.AgentStatusRunning), limit)
	if err != nil {
		return nil, fmt.Errorf("query running agents: %w", err)
	}
	defer rows.Close()

	var out []*types.AgentRecord
	for rows.Next() {
		rec, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanAgent(row rowScanner) (*types.AgentRecord, error) {
	var (
		rec                  types.AgentRecord
		id, evID, status     string
		createdMs, updatedMs int64
	)
	if err := row.Scan(&id, &evID, &status, &createdMs, &updatedMs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan agent: %w", err)
	}
	rec.ID = types.AgentID(id)
	rec.EventID = types.EventID(evID)
	rec.Status = types.AgentStatus(status)
	rec.CreatedAt = time.UnixMilli(createdMs)
	rec.UpdatedAt = time.UnixMilli(updatedMs)
	return &rec, nil
}
