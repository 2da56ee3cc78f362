// Package processor drives per-chunk transcript processing: ring retention,
// salience-gated card drafting, and the debounced facts pass. All decisions
// run under the owning runtime's lock; provider round trips never do.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/user/cuecard/internal/config"
	"github.com/user/cuecard/internal/runtime"
	"github.com/user/cuecard/internal/salience"
	"github.com/user/cuecard/internal/types"
	"github.com/user/cuecard/pkg/agent"
)

// Processor turns finalized transcript chunks into card-drafting requests
// and debounced fact-extraction requests, and persists the results the
// provider sessions deliver back.
type Processor struct {
	store   types.Store
	manager *runtime.Manager
	scorer  *salience.Scorer
	cfg     *config.Config
	logger  *slog.Logger

	// onTranscript is invoked for transcript-session results. Set by the
	// ingestion layer at wiring time.
	onTranscript func(ctx context.Context, rt *runtime.EventRuntime, res agent.TranscriptResult)
}

// New creates a processor. The salience scorer is built from config.
func New(st types.Store, manager *runtime.Manager, cfg *config.Config, logger *slog.Logger) *Processor {
	weights := salience.DefaultWeights()
	weights.FirstMentionBonus = cfg.Salience.FirstMentionBonus
	weights.ExtraMentionCap = cfg.Salience.ExtraMentionCap
	weights.QuestionCueBonus = cfg.Salience.QuestionCueBonus
	weights.GlossaryBonus = cfg.Salience.GlossaryBonus
	weights.FactBonus = cfg.Salience.FactBonus
	weights.RecencyPenaltyLast = cfg.Salience.RecencyPenaltyLast
	weights.RecencyPenaltyOther = cfg.Salience.RecencyPenaltyOther
	weights.SuppressionPenalty = cfg.Salience.SuppressionPenalty
	weights.Threshold = cfg.Salience.Threshold
	weights.Freshness = time.Duration(cfg.Salience.FreshnessMs) * time.Millisecond
	weights.RecentCardWindow = cfg.Salience.RecentCardWindow

	return &Processor{
		store:   st,
		manager: manager,
		scorer:  salience.NewScorer(weights),
		cfg:     cfg,
		logger:  logger,
	}
}

// SetTranscriptHandler registers the callback invoked with transcript-session
// results once handlers are attached.
func (p *Processor) SetTranscriptHandler(fn func(ctx context.Context, rt *runtime.EventRuntime, res agent.TranscriptResult)) {
	p.onTranscript = fn
}

// ProcessTranscriptChunk runs the per-chunk pipeline. Every chunk lands in
// the ring buffer; only final chunks advance counters, feed the cards
// pipeline, and reschedule the facts debounce.
func (p *Processor) ProcessTranscriptChunk(ctx context.Context, rt *runtime.EventRuntime, chunk *types.TranscriptChunk) error {
	rt.Lock()
	rt.Ring.Add(*chunk)
	if !chunk.Final {
		rt.Unlock()
		return nil
	}

	if chunk.Seq == 0 {
		chunk.Seq = rt.NextSeq()
		if chunk.TranscriptID != "" {
			if err := p.store.UpdateTranscriptSeq(ctx, chunk.TranscriptID, chunk.Seq); err != nil {
				rt.Unlock()
				return fmt.Errorf("assign transcript seq: %w", err)
			}
		}
	}
	if chunk.Seq > rt.TranscriptLastSeq {
		rt.TranscriptLastSeq = chunk.Seq
	}

	triggered := p.runCardsPass(ctx, rt, chunk)
	p.scheduleFactsPass(ctx, rt)
	rt.Unlock()

	if err := p.manager.Checkpoints().Save(ctx, rt.EventID, types.AgentTranscript, chunk.Seq); err != nil {
		return err
	}
	p.logger.Debug("chunk processed",
		"event_id", rt.EventID, "seq", chunk.Seq, "card_triggered", triggered)
	return nil
}

// runCardsPass scores candidates from the chunk against the ring window and,
// when one clears both the threshold and the rate limiter, forwards context
// to the cards session. The cards counter advances for every considered
// chunk so replay never re-scores it. Caller must hold the runtime lock.
func (p *Processor) runCardsPass(ctx context.Context, rt *runtime.EventRuntime, chunk *types.TranscriptChunk) bool {
	if chunk.Seq <= rt.CardsLastSeq {
		return false
	}
	rt.CardsLastSeq = chunk.Seq

	if !rt.Enabled[types.AgentCards] {
		return false
	}
	session := rt.Sessions[types.AgentCards]
	if session == nil {
		return false
	}

	window := rt.Ring.Snapshot()
	best, score := p.bestCandidate(rt, chunk, window)
	if best == nil {
		return false
	}
	now := time.Now()
	if !rt.Limiter.Allow(now) {
		p.logger.Debug("card suppressed by rate limit",
			"event_id", rt.EventID, "concept", best.ConceptID, "score", score)
		return false
	}
	rt.Limiter.Record(now)

	prompt := p.cardPrompt(*best, window)
	p.manager.Metrics().RecordText(rt.EventID, types.AgentCards, prompt)
	go func() {
		if err := session.AppendContext(ctx, prompt); err != nil {
			p.logger.Error("cards context append failed", "event_id", rt.EventID, "error", err)
		}
	}()
	go p.saveCheckpoint(ctx, rt.EventID, types.AgentCards, chunk.Seq)

	p.logger.Info("card drafting triggered",
		"event_id", rt.EventID, "seq", chunk.Seq, "concept", best.ConceptID, "score", score)
	return true
}

// bestCandidate derives candidates from the chunk and returns the highest
// scorer that clears the threshold, nil when none do.
func (p *Processor) bestCandidate(rt *runtime.EventRuntime, chunk *types.TranscriptChunk, window []types.TranscriptChunk) (*salience.Candidate, float64) {
	candidates := p.deriveCandidates(rt, chunk)
	if len(candidates) == 0 {
		return nil, 0
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ConceptID < candidates[j].ConceptID
	})

	var best *salience.Candidate
	var bestScore float64
	for i := range candidates {
		score := p.scorer.Score(candidates[i], window, rt.Cards)
		if score > p.scorer.Threshold() && (best == nil || score > bestScore) {
			best = &candidates[i]
			bestScore = score
		}
	}
	return best, bestScore
}

// deriveCandidates finds glossary terms and known fact keys mentioned in the
// chunk text.
func (p *Processor) deriveCandidates(rt *runtime.EventRuntime, chunk *types.TranscriptChunk) []salience.Candidate {
	text := strings.ToLower(chunk.Text)
	seen := make(map[string]bool)
	var out []salience.Candidate

	for _, term := range rt.Glossary.Terms() {
		if !strings.Contains(text, term) {
			continue
		}
		id := conceptID(term)
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, salience.Candidate{
			ConceptID:    id,
			Label:        term,
			BaseWeight:   1.0,
			FromGlossary: true,
		})
	}
	for _, fact := range rt.Facts.All() {
		label := strings.ReplaceAll(strings.ToLower(fact.Key), "_", " ")
		if label == "" || !strings.Contains(text, label) {
			continue
		}
		id := conceptID(label)
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, salience.Candidate{
			ConceptID:  id,
			Label:      label,
			BaseWeight: 1.0,
			FromFact:   true,
		})
	}
	return out
}

// scheduleFactsPass reschedules the debounced facts extraction. Each final
// chunk pushes the timer out; the pass fires only after the transcript goes
// quiet. Caller must hold the runtime lock.
func (p *Processor) scheduleFactsPass(ctx context.Context, rt *runtime.EventRuntime) {
	if !rt.Enabled[types.AgentFacts] || rt.Sessions[types.AgentFacts] == nil {
		return
	}
	debounce := time.Duration(p.cfg.Runtime.DebounceMs) * time.Millisecond
	rt.ScheduleDebounce(debounce, func(gen uint64) {
		p.runFactsPass(ctx, rt, gen)
	})
}

// runFactsPass forwards the current ring window to the facts session and
// advances the facts counter to everything the window covers. The generation
// is re-validated under the lock so a reschedule landing between the timer
// firing and the lock acquisition wins.
func (p *Processor) runFactsPass(ctx context.Context, rt *runtime.EventRuntime, gen uint64) {
	rt.Lock()
	if !rt.DebounceCurrent(gen) {
		rt.Unlock()
		return
	}
	session := rt.Sessions[types.AgentFacts]
	if session == nil || !rt.Enabled[types.AgentFacts] {
		rt.Unlock()
		return
	}
	window := rt.Ring.Snapshot()
	seq := rt.TranscriptLastSeq
	if seq > rt.FactsLastSeq {
		rt.FactsLastSeq = seq
	}
	rt.Unlock()

	if len(window) == 0 {
		return
	}
	prompt := formatWindow(window)
	p.manager.Metrics().RecordText(rt.EventID, types.AgentFacts, prompt)
	if err := session.AppendContext(ctx, prompt); err != nil {
		p.logger.Error("facts context append failed", "event_id", rt.EventID, "error", err)
		return
	}
	p.saveCheckpoint(ctx, rt.EventID, types.AgentFacts, seq)
	p.logger.Debug("facts pass dispatched", "event_id", rt.EventID, "seq", seq, "window", len(window))
}

func (p *Processor) saveCheckpoint(ctx context.Context, eventID types.EventID, agentType types.AgentType, seq int64) {
	if err := p.manager.Checkpoints().Save(ctx, eventID, agentType, seq); err != nil {
		p.logger.Error("checkpoint save failed",
			"event_id", eventID, "agent_type", agentType, "seq", seq, "error", err)
	}
}

// cardPrompt renders the transcript window plus the chosen concept for the
// cards session.
func (p *Processor) cardPrompt(c salience.Candidate, window []types.TranscriptChunk) string {
	var b strings.Builder
	b.WriteString("Concept: ")
	b.WriteString(c.Label)
	b.WriteString("\n\nRecent transcript:\n")
	b.WriteString(formatWindow(window))
	return b.String()
}

func formatWindow(window []types.TranscriptChunk) string {
	var b strings.Builder
	for _, chunk := range window {
		if chunk.Speaker != "" {
			b.WriteString(chunk.Speaker)
			b.WriteString(": ")
		}
		b.WriteString(chunk.Text)
		b.WriteString("\n")
	}
	return b.String()
}

func conceptID(label string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(label)), " ", "-")
}

// Cleanup cancels the event's pending debounce work.
func (p *Processor) Cleanup(rt *runtime.EventRuntime) {
	rt.Lock()
	rt.CancelDebounce()
	rt.Unlock()
}
