// internal/types/interfaces.go
package types

import (
	"context"
	"time"
)

// TranscriptStore persists transcript rows and exposes the insert feed other
// process instances react to.
type TranscriptStore interface {
	InsertTranscript(ctx context.Context, chunk *TranscriptChunk) error
	UpdateTranscriptSeq(ctx context.Context, id TranscriptID, seq int64) error
	TranscriptsAfter(ctx context.Context, eventID EventID, afterSeq int64, limit int) ([]*TranscriptChunk, error)
	// SubscribeTranscripts registers a callback fired after every transcript
	// insert. Delivery is at-least-once; consumers must apply their own
	// sequence-based idempotency guard. The returned function unsubscribes.
	SubscribeTranscripts(fn func(*TranscriptChunk)) (unsubscribe func())
}

// FactStore persists fact rows with a soft-delete active flag.
type FactStore interface {
	UpsertFact(ctx context.Context, fact *FactRecord) error
	ActiveFacts(ctx context.Context, eventID EventID) ([]*FactRecord, error)
	DeactivateFacts(ctx context.Context, eventID EventID, keys []string) error
}

// CardStore persists card rows with a soft-delete active flag.
type CardStore interface {
	InsertCard(ctx context.Context, card *CardRecord) error
	ActiveCards(ctx context.Context, eventID EventID, limit int) ([]*CardRecord, error)
	DeactivateCards(ctx context.Context, eventID EventID, ids []OutputID) error
}

// CheckpointStore persists per-(event, agent type) replay checkpoints.
type CheckpointStore interface {
	LoadCheckpoint(ctx context.Context, eventID EventID, agentType AgentType) (int64, error)
	SaveCheckpoint(ctx context.Context, eventID EventID, agentType AgentType, lastSeq int64) error
}

// AgentStore persists the per-event agent record.
type AgentStore interface {
	GetAgent(ctx context.Context, eventID EventID) (*AgentRecord, error)
	EnsureAgent(ctx context.Context, eventID EventID) (*AgentRecord, error)
	UpdateAgentStatus(ctx context.Context, eventID EventID, status AgentStatus) error
	RunningAgents(ctx context.Context, limit int) ([]*AgentRecord, error)
}

// SessionRowStore persists the durable session rows per agent type.
type SessionRowStore interface {
	InsertSessionRow(ctx context.Context, row *SessionRow) error
	SessionRows(ctx context.Context, eventID EventID) ([]*SessionRow, error)
	UpdateSessionRow(ctx context.Context, row *SessionRow) error
	DeleteSessionRows(ctx context.Context, eventID EventID) error
	PruneClosedSessions(ctx context.Context, olderThan time.Time) (int64, error)
}

// OutputStore persists agent-output audit records.
type OutputStore interface {
	InsertOutput(ctx context.Context, out *AgentOutput) error
}

// GlossaryStore persists curated glossary terms per event.
type GlossaryStore interface {
	ReplaceGlossary(ctx context.Context, eventID EventID, terms []*GlossaryTerm) error
	GlossaryTerms(ctx context.Context, eventID EventID) ([]*GlossaryTerm, error)
}

// Store is the full durable-store contract the orchestration core consumes.
type Store interface {
	TranscriptStore
	FactStore
	CardStore
	CheckpointStore
	AgentStore
	SessionRowStore
	OutputStore
	GlossaryStore
}

// StatusSink accepts periodic status snapshots. Pushes are fire-and-forget:
// implementations must not block processing and errors are only logged.
type StatusSink interface {
	PushStatus(snapshot *StatusSnapshot)
}
