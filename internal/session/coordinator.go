// Package session owns the provider-session lifecycle for live events:
// creating durable session rows, opening and resuming provider sessions,
// and the pause/resume/close state machine persisted alongside them.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/user/cuecard/internal/config"
	"github.com/user/cuecard/internal/processor"
	"github.com/user/cuecard/internal/runtime"
	"github.com/user/cuecard/internal/status"
	"github.com/user/cuecard/internal/types"
	"github.com/user/cuecard/pkg/agent"
)

// testingRowMaxAge bounds how stale session rows may be for
// StartSessionsForTesting.
const testingRowMaxAge = 60 * time.Second

// Coordinator manages provider sessions for live events.
type Coordinator struct {
	store     types.Store
	manager   *runtime.Manager
	processor *processor.Processor
	provider  agent.Provider
	tracker   *status.Tracker
	cfg       *config.Config
	logger    *slog.Logger
}

// NewCoordinator creates a session coordinator.
func NewCoordinator(st types.Store, manager *runtime.Manager, proc *processor.Processor, provider agent.Provider, tracker *status.Tracker, cfg *config.Config, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		store:     st,
		manager:   manager,
		processor: proc,
		provider:  provider,
		tracker:   tracker,
		cfg:       cfg,
		logger:    logger,
	}
}

// CreateAgentSessions prepares durable session rows for every agent type.
// The agent must be idle; any stale rows from a previous run are deleted
// first. Rows start closed and become active when the event starts.
func (c *Coordinator) CreateAgentSessions(ctx context.Context, eventID types.EventID) error {
	rt, err := c.manager.Ensure(ctx, eventID)
	if err != nil {
		return err
	}

	rt.Lock()
	st := rt.Status
	rt.Unlock()
	if st == types.AgentStatusRunning {
		return fmt.Errorf("event %s is running; pause it before recreating sessions", eventID)
	}

	if err := c.store.DeleteSessionRows(ctx, eventID); err != nil {
		return fmt.Errorf("delete stale session rows: %w", err)
	}
	now := time.Now()
	for _, agentType := range types.AgentTypes {
		row := &types.SessionRow{
			ID:        types.NewSessionRowID(),
			EventID:   eventID,
			AgentType: agentType,
			Model:     c.modelFor(agentType),
			State:     types.SessionClosed,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := c.store.InsertSessionRow(ctx, row); err != nil {
			return fmt.Errorf("insert %s session row: %w", agentType, err)
		}
	}
	if err := c.setAgentStatus(ctx, rt, types.AgentStatusReady); err != nil {
		return err
	}
	c.tracker.Log(eventID, "sessions created")
	c.logger.Info("agent sessions created", "event_id", eventID)
	return nil
}

// StartEvent brings an event live: opens a provider session per durable
// session row, resumes paused handles instead of reopening them, attaches
// result handlers, replays missed transcripts, and begins status pushes.
// Starting an already-running event is a no-op.
func (c *Coordinator) StartEvent(ctx context.Context, eventID types.EventID) error {
	rt, err := c.manager.Ensure(ctx, eventID)
	if err != nil {
		return err
	}

	rt.Lock()
	if rt.Status == types.AgentStatusRunning {
		rt.Unlock()
		c.logger.Debug("start ignored, already running", "event_id", eventID)
		return nil
	}
	rt.Unlock()

	rows, err := c.store.SessionRows(ctx, eventID)
	if err != nil {
		return fmt.Errorf("load session rows: %w", err)
	}
	if len(rows) == 0 {
		if err := c.CreateAgentSessions(ctx, eventID); err != nil {
			return err
		}
		if rows, err = c.store.SessionRows(ctx, eventID); err != nil {
			return fmt.Errorf("load session rows: %w", err)
		}
	}

	opened := 0
	for _, row := range rows {
		if err := c.openOrResume(ctx, rt, row); err != nil {
			c.markRowError(ctx, row, err)
			c.tracker.Log(eventID, "%s session failed: %v", row.AgentType, err)
			continue
		}
		opened++
	}
	if opened == 0 {
		return fmt.Errorf("no sessions could be opened for event %s", eventID)
	}

	c.processor.AttachSessionHandlers(rt)
	if err := c.setAgentStatus(ctx, rt, types.AgentStatusRunning); err != nil {
		return err
	}
	if _, err := c.manager.ReplayTranscripts(ctx, rt); err != nil {
		c.logger.Error("replay failed", "event_id", eventID, "error", err)
	}

	interval := time.Duration(c.cfg.Runtime.StatusPushMs) * time.Millisecond
	rt.Lock()
	rt.StartStatusPush(interval, func() { c.tracker.Push(rt) })
	rt.Unlock()

	c.tracker.Log(eventID, "event started (%d sessions)", opened)
	c.logger.Info("event started", "event_id", eventID, "sessions", opened)
	return nil
}

// openOrResume reactivates an existing in-memory handle when one survives,
// otherwise opens a fresh provider session. The durable row follows.
func (c *Coordinator) openOrResume(ctx context.Context, rt *runtime.EventRuntime, row *types.SessionRow) error {
	rt.Lock()
	existing := rt.Sessions[row.AgentType]
	rt.Unlock()

	if existing != nil {
		if err := existing.Resume(ctx); err != nil {
			return fmt.Errorf("resume %s session: %w", row.AgentType, err)
		}
		rt.Lock()
		rt.Enabled[row.AgentType] = true
		rt.Unlock()
		return c.updateRowState(ctx, row, existing.ID(), types.SessionActive, "")
	}

	sess, err := c.provider.OpenSession(ctx, string(rt.EventID), string(row.AgentType), row.Model)
	if err != nil {
		return fmt.Errorf("open %s session: %w", row.AgentType, err)
	}
	rt.Lock()
	rt.Sessions[row.AgentType] = sess
	rt.SessionIDs[row.AgentType] = sess.ID()
	rt.Enabled[row.AgentType] = true
	rt.Unlock()
	return c.updateRowState(ctx, row, sess.ID(), types.SessionActive, "")
}

// PauseEvent suspends all sessions for an event. Token metrics are flushed
// first so the audit trail survives a pause that never resumes. Provider
// pause failures are logged, not fatal: the event still stops processing.
func (c *Coordinator) PauseEvent(ctx context.Context, eventID types.EventID) error {
	rt, ok := c.manager.Get(eventID)
	if !ok {
		return fmt.Errorf("event %s is not live", eventID)
	}

	if err := c.manager.Metrics().Flush(ctx, c.store, eventID); err != nil {
		c.logger.Error("metrics flush failed", "event_id", eventID, "error", err)
	}
	c.processor.Cleanup(rt)

	rt.Lock()
	rt.StopStatusPush()
	sessions := make(map[types.AgentType]agent.Session, len(rt.Sessions))
	for agentType, sess := range rt.Sessions {
		sessions[agentType] = sess
		rt.Enabled[agentType] = false
	}
	rt.Unlock()

	for agentType, sess := range sessions {
		if sess == nil {
			continue
		}
		if err := sess.Pause(ctx); err != nil {
			c.logger.Error("session pause failed", "event_id", eventID, "agent_type", agentType, "error", err)
		}
	}
	if err := c.updateRowStates(ctx, eventID, types.SessionPaused, "paused"); err != nil {
		return err
	}
	if err := c.setAgentStatus(ctx, rt, types.AgentStatusReady); err != nil {
		return err
	}
	c.tracker.Log(eventID, "event paused")
	c.logger.Info("event paused", "event_id", eventID)
	return nil
}

// ResumeEvent restarts a paused event. Surviving in-memory handles are
// resumed in place; lost ones are reopened with fresh provider sessions.
func (c *Coordinator) ResumeEvent(ctx context.Context, eventID types.EventID) error {
	return c.StartEvent(ctx, eventID)
}

// CloseEvent shuts the event down: sessions closed, rows marked closed, the
// runtime discarded. Durable transcripts, facts, and cards remain.
func (c *Coordinator) CloseEvent(ctx context.Context, eventID types.EventID) error {
	rt, ok := c.manager.Get(eventID)
	if ok {
		if err := c.manager.Metrics().Flush(ctx, c.store, eventID); err != nil {
			c.logger.Error("metrics flush failed", "event_id", eventID, "error", err)
		}
		rt.Lock()
		sessions := make(map[types.AgentType]agent.Session, len(rt.Sessions))
		for agentType, sess := range rt.Sessions {
			sessions[agentType] = sess
		}
		rt.Unlock()
		for agentType, sess := range sessions {
			if sess == nil {
				continue
			}
			if err := sess.Close(ctx); err != nil {
				c.logger.Error("session close failed", "event_id", eventID, "agent_type", agentType, "error", err)
			}
		}
	}
	if err := c.updateRowStates(ctx, eventID, types.SessionClosed, "closed"); err != nil {
		return err
	}
	if err := c.store.UpdateAgentStatus(ctx, eventID, types.AgentStatusContextComplete); err != nil {
		return fmt.Errorf("update agent status: %w", err)
	}
	c.manager.Remove(eventID)
	c.tracker.Log(eventID, "event closed")
	c.logger.Info("event closed", "event_id", eventID)
	return nil
}

// StartSessionsForTesting starts an event only when its session rows were
// created moments ago, guarding test harnesses against accidentally reviving
// a stale event.
func (c *Coordinator) StartSessionsForTesting(ctx context.Context, eventID types.EventID) error {
	rows, err := c.store.SessionRows(ctx, eventID)
	if err != nil {
		return fmt.Errorf("load session rows: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("no session rows for event %s; create sessions first", eventID)
	}
	for _, row := range rows {
		if age := time.Since(row.CreatedAt); age > testingRowMaxAge {
			return fmt.Errorf("session row for %s is %s old; testing start requires rows younger than %s",
				row.AgentType, age.Round(time.Second), testingRowMaxAge)
		}
	}
	return c.StartEvent(ctx, eventID)
}

func (c *Coordinator) modelFor(agentType types.AgentType) string {
	switch agentType {
	case types.AgentTranscript:
		return c.cfg.Provider.TranscriptModel
	case types.AgentCards:
		return c.cfg.Provider.CardsModel
	case types.AgentFacts:
		return c.cfg.Provider.FactsModel
	}
	return ""
}

func (c *Coordinator) setAgentStatus(ctx context.Context, rt *runtime.EventRuntime, status types.AgentStatus) error {
	if err := c.store.UpdateAgentStatus(ctx, rt.EventID, status); err != nil {
		return fmt.Errorf("update agent status: %w", err)
	}
	rt.Lock()
	rt.Status = status
	rt.Unlock()
	return nil
}

func (c *Coordinator) updateRowState(ctx context.Context, row *types.SessionRow, providerSessionID string, state types.SessionState, reason string) error {
	row.ProviderSessionID = providerSessionID
	row.State = state
	row.Reason = reason
	if err := c.store.UpdateSessionRow(ctx, row); err != nil {
		return fmt.Errorf("update %s session row: %w", row.AgentType, err)
	}
	c.logger.Debug("session state changed",
		"event_id", row.EventID, "agent_type", row.AgentType, "state", state, "reason", reason)
	return nil
}

func (c *Coordinator) updateRowStates(ctx context.Context, eventID types.EventID, state types.SessionState, reason string) error {
	rows, err := c.store.SessionRows(ctx, eventID)
	if err != nil {
		return fmt.Errorf("load session rows: %w", err)
	}
	for _, row := range rows {
		if row.State == types.SessionError {
			continue
		}
		if err := c.updateRowState(ctx, row, row.ProviderSessionID, state, reason); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) markRowError(ctx context.Context, row *types.SessionRow, cause error) {
	if err := c.updateRowState(ctx, row, row.ProviderSessionID, types.SessionError, cause.Error()); err != nil {
		c.logger.Error("session row error update failed",
			"event_id", row.EventID, "agent_type", row.AgentType, "error", err)
	}
}
