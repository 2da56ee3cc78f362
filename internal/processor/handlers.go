package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/user/cuecard/internal/runtime"
	"github.com/user/cuecard/internal/types"
	"github.com/user/cuecard/pkg/agent"
)

// AttachSessionHandlers wires result handlers onto the runtime's open
// sessions. Attachment is idempotent per session handle: reattaching after
// a resume wires the new handles and leaves already-wired ones alone.
// Handlers run on the runtime's own context, not the request that started
// the event; results keep persisting long after that request returns.
func (p *Processor) AttachSessionHandlers(rt *runtime.EventRuntime) {
	hctx := rt.Context()

	rt.Lock()
	defer rt.Unlock()

	for agentType, session := range rt.Sessions {
		if session == nil || !rt.MarkAttached(session.ID()) {
			continue
		}
		switch agentType {
		case types.AgentTranscript:
			session.OnTranscript(func(res agent.TranscriptResult) {
				if p.onTranscript != nil {
					p.onTranscript(hctx, rt, res)
				}
			})
		case types.AgentCards:
			session.OnCard(func(res agent.CardResult) {
				p.HandleCardResponse(hctx, rt, res)
			})
		case types.AgentFacts:
			session.OnFacts(func(batch []agent.FactResult) {
				p.HandleFactsResponse(hctx, rt, batch)
			})
		}
		at := agentType
		session.OnError(func(err error) {
			p.logger.Error("session error", "event_id", rt.EventID, "agent_type", at, "error", err)
		})
	}
}

// HandleCardResponse validates, normalizes, and persists a drafted card,
// then records it in the in-memory history so recency penalties and
// freshness suppression see it immediately.
func (p *Processor) HandleCardResponse(ctx context.Context, rt *runtime.EventRuntime, res agent.CardResult) {
	if res.Kind != "card" && res.Kind != "" {
		p.logger.Debug("card response skipped", "event_id", rt.EventID, "kind", res.Kind)
		return
	}
	if strings.TrimSpace(res.Title) == "" {
		p.logger.Warn("card response missing title", "event_id", rt.EventID)
		return
	}

	record, err := p.buildCardRecord(rt, res)
	if err != nil {
		p.logger.Warn("card response rejected", "event_id", rt.EventID, "error", err)
		return
	}

	if err := p.store.InsertCard(ctx, record); err != nil {
		p.logger.Error("card persist failed", "event_id", rt.EventID, "error", err)
		return
	}
	p.auditOutput(ctx, rt.EventID, types.AgentCards, "card", record.SourceSeq, record)

	rt.Lock()
	evicted := rt.Cards.Add(*record)
	rt.Unlock()
	if len(evicted) > 0 {
		if err := p.store.DeactivateCards(ctx, rt.EventID, evicted); err != nil {
			p.logger.Error("card eviction persist failed", "event_id", rt.EventID, "error", err)
		}
	}

	p.manager.Metrics().Record(rt.EventID, types.AgentCards, res.Usage.TotalTokens)
	p.logger.Info("card persisted",
		"event_id", rt.EventID, "card_id", record.ID, "concept", record.ConceptID, "type", record.CardType)
}

// buildCardRecord normalizes the provider draft into a card record:
// classifies the card type when absent, enforces the visual contract, and
// converts HTML bodies to markdown.
func (p *Processor) buildCardRecord(rt *runtime.EventRuntime, res agent.CardResult) (*types.CardRecord, error) {
	cardType := types.CardType(res.CardType)
	switch cardType {
	case types.CardText, types.CardTextVisual, types.CardVisual:
	case "":
		cardType = classifyCardType(res)
	default:
		return nil, fmt.Errorf("unknown card type %q", res.CardType)
	}

	body := strings.TrimSpace(res.Body)
	if strings.Contains(body, "<") && strings.Contains(body, ">") {
		converted, err := htmltomarkdown.ConvertString(body)
		if err != nil {
			p.logger.Warn("card body conversion failed", "event_id", rt.EventID, "error", err)
		} else {
			body = strings.TrimSpace(converted)
		}
	}

	switch cardType {
	case types.CardVisual:
		if res.Label == "" {
			return nil, fmt.Errorf("visual card requires a label")
		}
		body = ""
	case types.CardText, types.CardTextVisual:
		if body == "" {
			return nil, fmt.Errorf("%s card requires a body", cardType)
		}
	}

	conceptID := res.ConceptID
	if conceptID == "" {
		conceptID = conceptIDFromLabel(res)
	}

	rt.Lock()
	sourceSeq := rt.CardsLastSeq
	rt.Unlock()

	return &types.CardRecord{
		ID:           types.NewOutputID(),
		EventID:      rt.EventID,
		ConceptID:    conceptID,
		ConceptLabel: res.ConceptLabel,
		CardType:     cardType,
		SourceSeq:    sourceSeq,
		Title:        strings.TrimSpace(res.Title),
		Body:         body,
		Label:        res.Label,
		ImageRef:     res.ImageRef,
		Active:       true,
		CreatedAt:    time.Now(),
	}, nil
}

// classifyCardType infers a type for drafts that omit one: an image with no
// prose is visual, an image with prose is text_visual, otherwise text.
func classifyCardType(res agent.CardResult) types.CardType {
	hasBody := strings.TrimSpace(res.Body) != ""
	switch {
	case res.ImageRef != "" && !hasBody:
		return types.CardVisual
	case res.ImageRef != "":
		return types.CardTextVisual
	default:
		return types.CardText
	}
}

func conceptIDFromLabel(res agent.CardResult) string {
	label := res.ConceptLabel
	if label == "" {
		label = res.Title
	}
	return conceptID(label)
}

// HandleFactsResponse applies an extracted facts batch: each fact is blended
// into the bounded store, persisted with its post-blend confidence, and any
// capacity evictions are marked inactive durably. One bad fact never aborts
// the rest of the batch.
func (p *Processor) HandleFactsResponse(ctx context.Context, rt *runtime.EventRuntime, batch []agent.FactResult) {
	if len(batch) == 0 {
		return
	}

	var evicted []string
	var applied int
	for _, res := range batch {
		key := strings.TrimSpace(strings.ToLower(res.Key))
		if key == "" {
			continue
		}
		rt.Lock()
		sourceSeq := res.SourceSeq
		if sourceSeq == 0 {
			sourceSeq = rt.FactsLastSeq
		}
		out := rt.Facts.Upsert(key, res.Value, res.Confidence, sourceSeq, []int64{sourceSeq})
		fact := rt.Facts.Get(key)
		rt.Unlock()
		evicted = append(evicted, out...)
		if fact == nil {
			continue
		}

		record := &types.FactRecord{
			EventID:     rt.EventID,
			Key:         fact.Key,
			Value:       fact.Value,
			Confidence:  fact.Confidence,
			LastSeenSeq: fact.LastSeenSeq,
			Sources:     fact.Sources,
			Active:      true,
			UpdatedAt:   time.Now(),
		}
		if err := p.store.UpsertFact(ctx, record); err != nil {
			p.logger.Error("fact persist failed", "event_id", rt.EventID, "key", key, "error", err)
			continue
		}
		applied++
		p.manager.Metrics().Record(rt.EventID, types.AgentFacts, res.Usage.TotalTokens)
	}

	if len(evicted) > 0 {
		if err := p.store.DeactivateFacts(ctx, rt.EventID, evicted); err != nil {
			p.logger.Error("fact eviction persist failed", "event_id", rt.EventID, "error", err)
		}
	}
	if applied > 0 {
		rt.Lock()
		seq := rt.FactsLastSeq
		rt.Unlock()
		p.auditOutput(ctx, rt.EventID, types.AgentFacts, "facts_batch", seq, batch)
	}
	p.logger.Debug("facts batch applied",
		"event_id", rt.EventID, "received", len(batch), "applied", applied, "evicted", len(evicted))
}

func (p *Processor) auditOutput(ctx context.Context, eventID types.EventID, agentType types.AgentType, kind string, sourceSeq int64, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("audit payload marshal failed", "event_id", eventID, "kind", kind, "error", err)
		return
	}
	out := &types.AgentOutput{
		ID:        types.NewOutputID(),
		EventID:   eventID,
		AgentType: agentType,
		Kind:      kind,
		SourceSeq: sourceSeq,
		Payload:   data,
		CreatedAt: time.Now(),
	}
	if err := p.store.InsertOutput(ctx, out); err != nil {
		p.logger.Error("audit persist failed", "event_id", eventID, "kind", kind, "error", err)
	}
}
