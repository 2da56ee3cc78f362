// internal/types/models.go
package types

import (
	"encoding/json"
	"time"
)

// AgentStatus is the lifecycle stage of an event's agent record.
type AgentStatus string

const (
	AgentStatusContextComplete AgentStatus = "context_complete"
	AgentStatusReady           AgentStatus = "ready"
	AgentStatusRunning         AgentStatus = "running"
	AgentStatusError           AgentStatus = "error"
)

// SessionState is the observable state of one agent-type session.
// Valid transitions: closed -> active <-> paused, any -> error.
type SessionState string

const (
	SessionClosed SessionState = "closed"
	SessionActive SessionState = "active"
	SessionPaused SessionState = "paused"
	SessionError  SessionState = "error"
)

// CardType classifies how a card should be rendered.
type CardType string

const (
	CardText       CardType = "text"
	CardTextVisual CardType = "text_visual"
	CardVisual     CardType = "visual"
)

// TranscriptChunk is one fragment of transcribed speech. Only final chunks
// carry a meaningful sequence number and drive downstream processing;
// interim chunks are visual-only.
type TranscriptChunk struct {
	TranscriptID TranscriptID `json:"transcript_id"`
	EventID      EventID      `json:"event_id"`
	Seq          int64        `json:"seq"`
	At           time.Time    `json:"at"`
	Speaker      string       `json:"speaker,omitempty"`
	Text         string       `json:"text"`
	Final        bool         `json:"final"`
}

// FactRecord is a key/value assertion extracted from the transcript.
// At most one active fact per (event, key) exists at a time; eviction from
// the bounded store marks the row inactive rather than deleting it.
type FactRecord struct {
	EventID     EventID   `json:"event_id"`
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Confidence  float64   `json:"confidence"`
	LastSeenSeq int64     `json:"last_seen_seq"`
	Sources     []int64   `json:"sources,omitempty"`
	Active      bool      `json:"active"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CardRecord is a salient highlight snippet drafted by the cards agent.
type CardRecord struct {
	ID           OutputID  `json:"id"`
	EventID      EventID   `json:"event_id"`
	ConceptID    string    `json:"concept_id"`
	ConceptLabel string    `json:"concept_label"`
	CardType     CardType  `json:"card_type"`
	SourceSeq    int64     `json:"source_seq"`
	Title        string    `json:"title"`
	Body         string    `json:"body,omitempty"`
	Label        string    `json:"label,omitempty"`
	ImageRef     string    `json:"image_ref,omitempty"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// CheckpointRecord is the last durably recorded sequence number an agent
// type has processed, used to bound replay after a restart.
type CheckpointRecord struct {
	EventID   EventID   `json:"event_id"`
	AgentType AgentType `json:"agent_type"`
	LastSeq   int64     `json:"last_seq"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AgentRecord ties an event to its processing agent and overall status.
type AgentRecord struct {
	ID        AgentID     `json:"id"`
	EventID   EventID     `json:"event_id"`
	Status    AgentStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// SessionRow is the durable record of one provider session for an agent type.
type SessionRow struct {
	ID                SessionRowID `json:"id"`
	EventID           EventID      `json:"event_id"`
	AgentType         AgentType    `json:"agent_type"`
	ProviderSessionID string       `json:"provider_session_id,omitempty"`
	Model             string       `json:"model"`
	State             SessionState `json:"state"`
	Reason            string       `json:"reason,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// AgentOutput is an audit record of something an agent produced
// (a card draft, a facts batch, a metrics flush).
type AgentOutput struct {
	ID        OutputID        `json:"id"`
	EventID   EventID         `json:"event_id"`
	AgentType AgentType       `json:"agent_type"`
	Kind      string          `json:"kind"`
	SourceSeq int64           `json:"source_seq,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// GlossaryTerm is a curated term the salience scorer treats as boosted.
type GlossaryTerm struct {
	EventID    EventID `json:"event_id"`
	Term       string  `json:"term"`
	Definition string  `json:"definition,omitempty"`
}

// TokenMetrics accumulates token-usage figures for one (event, agent type).
type TokenMetrics struct {
	Total     int64 `json:"total"`
	Count     int64 `json:"count"`
	Max       int64 `json:"max"`
	Warnings  int64 `json:"warnings"`
	Criticals int64 `json:"criticals"`
}

// StatusSnapshot is the externally pushed view of one event's runtime.
type StatusSnapshot struct {
	EventID           EventID                    `json:"event_id"`
	AgentID           AgentID                    `json:"agent_id"`
	Status            AgentStatus                `json:"status"`
	Sessions          map[AgentType]SessionState `json:"sessions"`
	TranscriptLastSeq int64                      `json:"transcript_last_seq"`
	CardsLastSeq      int64                      `json:"cards_last_seq"`
	FactsLastSeq      int64                      `json:"facts_last_seq"`
	RingLen           int                        `json:"ring_len"`
	FactCount         int                        `json:"fact_count"`
	CardCount         int                        `json:"card_count"`
	Metrics           map[AgentType]TokenMetrics `json:"metrics"`
	RecentLogs        []string                   `json:"recent_logs,omitempty"`
	At                time.Time                  `json:"at"`
}
