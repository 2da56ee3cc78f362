// Package ingest accepts audio for live events and turns transcription
// results into durable transcript rows. Processing itself is driven off the
// store's insert feed, so a row inserted by any path (live audio, replayed
// uploads, test fixtures) flows through the same pipeline exactly once.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/user/cuecard/internal/processor"
	"github.com/user/cuecard/internal/runtime"
	"github.com/user/cuecard/internal/types"
	"github.com/user/cuecard/pkg/agent"
)

// Ingestor forwards audio to transcript sessions and persists the
// transcription results they deliver.
type Ingestor struct {
	store     types.Store
	manager   *runtime.Manager
	processor *processor.Processor
	logger    *slog.Logger
}

// New creates an ingestor and registers it as the processor's
// transcript-result handler.
func New(st types.Store, manager *runtime.Manager, proc *processor.Processor, logger *slog.Logger) *Ingestor {
	ing := &Ingestor{
		store:     st,
		manager:   manager,
		processor: proc,
		logger:    logger,
	}
	proc.SetTranscriptHandler(ing.HandleRealtimeTranscript)
	return ing
}

// AppendAudio forwards an audio payload to the event's transcript session.
// The chunk metadata is stashed on the runtime and attached to the next
// transcription result.
func (i *Ingestor) AppendAudio(ctx context.Context, eventID types.EventID, data []byte, encoding string, sampleRate int, speaker string) error {
	if len(data) == 0 {
		return fmt.Errorf("empty audio payload")
	}
	rt, err := i.manager.Ensure(ctx, eventID)
	if err != nil {
		return err
	}

	rt.Lock()
	session := rt.Sessions[types.AgentTranscript]
	enabled := rt.Enabled[types.AgentTranscript]
	if session == nil || !enabled {
		rt.Unlock()
		return fmt.Errorf("no active transcript session for event %s", eventID)
	}
	rt.Pending = &runtime.ChunkMeta{
		Speaker:    speaker,
		Encoding:   encoding,
		SampleRate: sampleRate,
	}
	rt.Unlock()

	// The transcription round trip outlives this request, so it runs on
	// the runtime's context.
	if err := session.AppendAudio(rt.Context(), data, encoding, sampleRate); err != nil {
		return fmt.Errorf("forward audio for %s: %w", eventID, err)
	}
	i.logger.Debug("audio forwarded", "event_id", eventID, "bytes", len(data), "speaker", speaker)
	return nil
}

// HandleRealtimeTranscript persists a transcription result as a transcript
// row. Final results are assigned the next sequence number; interim results
// keep sequence zero. Processing happens through the insert feed, not here.
func (i *Ingestor) HandleRealtimeTranscript(ctx context.Context, rt *runtime.EventRuntime, res agent.TranscriptResult) {
	if res.Text == "" {
		return
	}

	rt.Lock()
	meta := rt.Pending
	rt.Pending = nil
	var seq int64
	if res.Final {
		seq = rt.NextSeq()
	}
	rt.Unlock()

	speaker := res.Speaker
	if speaker == "" && meta != nil {
		speaker = meta.Speaker
	}
	at := res.At
	if at.IsZero() {
		at = time.Now()
	}

	chunk := &types.TranscriptChunk{
		EventID: rt.EventID,
		Seq:     seq,
		At:      at,
		Speaker: speaker,
		Text:    res.Text,
		Final:   res.Final,
	}
	if err := i.store.InsertTranscript(ctx, chunk); err != nil {
		i.logger.Error("transcript persist failed", "event_id", rt.EventID, "error", err)
		return
	}
	if res.Usage.TotalTokens > 0 {
		i.manager.Metrics().Record(rt.EventID, types.AgentTranscript, res.Usage.TotalTokens)
	} else {
		i.manager.Metrics().RecordText(rt.EventID, types.AgentTranscript, res.Text)
	}
}

// HandleTranscriptInsert reacts to a transcript row landing in the store.
// Delivery is at-least-once, so final chunks at or below the runtime's
// transcript counter are dropped. Events with no in-memory runtime are
// ignored; replay hydrates them when they next come live.
func (i *Ingestor) HandleTranscriptInsert(chunk *types.TranscriptChunk) {
	rt, ok := i.manager.Get(chunk.EventID)
	if !ok {
		return
	}
	if chunk.Final {
		rt.Lock()
		duplicate := chunk.Seq != 0 && chunk.Seq <= rt.TranscriptLastSeq
		rt.Unlock()
		if duplicate {
			i.logger.Debug("duplicate transcript insert dropped",
				"event_id", chunk.EventID, "seq", chunk.Seq)
			return
		}
	}
	if err := i.processor.ProcessTranscriptChunk(context.Background(), rt, chunk); err != nil {
		i.logger.Error("transcript processing failed",
			"event_id", chunk.EventID, "seq", chunk.Seq, "error", err)
	}
}
