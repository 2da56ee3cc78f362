package runtime

import (
	"context"
	"fmt"

	"github.com/user/cuecard/internal/types"
)

// CheckpointManager loads and saves the per-(event, agent type) replay
// checkpoints that bound catch-up work after a restart.
type CheckpointManager struct {
	store types.CheckpointStore
}

// NewCheckpointManager creates a checkpoint manager over the durable store.
func NewCheckpointManager(store types.CheckpointStore) *CheckpointManager {
	return &CheckpointManager{store: store}
}

// Load returns the checkpointed sequence for every agent type. Missing
// checkpoints load as zero.
func (c *CheckpointManager) Load(ctx context.Context, eventID types.EventID) (map[types.AgentType]int64, error) {
	out := make(map[types.AgentType]int64, len(types.AgentTypes))
	for _, agentType := range types.AgentTypes {
		seq, err := c.store.LoadCheckpoint(ctx, eventID, agentType)
		if err != nil {
			return nil, fmt.Errorf("load %s checkpoint: %w", agentType, err)
		}
		out[agentType] = seq
	}
	return out, nil
}

// Save durably records the last processed sequence for one agent type.
func (c *CheckpointManager) Save(ctx context.Context, eventID types.EventID, agentType types.AgentType, lastSeq int64) error {
	if err := c.store.SaveCheckpoint(ctx, eventID, agentType, lastSeq); err != nil {
		return fmt.Errorf("save %s checkpoint: %w", agentType, err)
	}
	return nil
}
