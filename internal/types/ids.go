// internal/types/ids.go
package types

import (
	"github.com/google/uuid"
)

type EventID string
type AgentID string
type SessionRowID string
type TranscriptID string
type OutputID string

// AgentType identifies one of the three per-event processing pipelines.
type AgentType string

const (
	AgentTranscript AgentType = "transcript"
	AgentCards      AgentType = "cards"
	AgentFacts      AgentType = "facts"
)

// AgentTypes lists all pipeline agent types in processing order.
var AgentTypes = []AgentType{AgentTranscript, AgentCards, AgentFacts}

func NewEventID() EventID {
	return EventID(uuid.New().String())
}

func NewAgentID() AgentID {
	return AgentID(uuid.New().String())
}

func NewSessionRowID() SessionRowID {
	return SessionRowID(uuid.New().String())
}

func NewTranscriptID() TranscriptID {
	return TranscriptID(uuid.New().String())
}

func NewOutputID() OutputID {
	return OutputID(uuid.New().String())
}
