package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/user/cuecard/internal/config"
	"github.com/user/cuecard/internal/glossary"
	"github.com/user/cuecard/internal/salience"
	"github.com/user/cuecard/internal/store"
	"github.com/user/cuecard/internal/types"
	"github.com/user/cuecard/pkg/agent"
)

// LogResetter clears an event's recent-log buffer. It is satisfied by the
// status tracker; a nil resetter is a no-op.
type LogResetter interface {
	Reset(eventID types.EventID)
}

// Manager is the process-wide registry of event runtimes. It creates and
// hydrates runtimes from durable state, replays missed transcripts, and
// resumes events that were live when the process last stopped.
type Manager struct {
	mu       sync.Mutex
	runtimes map[types.EventID]*EventRuntime

	store       types.Store
	cfg         *config.Config
	logger      *slog.Logger
	metrics     *MetricsCollector
	checkpoints *CheckpointManager
	logs        LogResetter
}

// NewManager creates a runtime manager.
func NewManager(st types.Store, cfg *config.Config, metrics *MetricsCollector, logs LogResetter, logger *slog.Logger) *Manager {
	return &Manager{
		runtimes:    make(map[types.EventID]*EventRuntime),
		store:       st,
		cfg:         cfg,
		logger:      logger,
		metrics:     metrics,
		checkpoints: NewCheckpointManager(st),
		logs:        logs,
	}
}

// Metrics returns the shared metrics collector.
func (m *Manager) Metrics() *MetricsCollector {
	return m.metrics
}

// Checkpoints returns the checkpoint manager.
func (m *Manager) Checkpoints() *CheckpointManager {
	return m.checkpoints
}

// Get returns the runtime for an event if one exists in memory.
func (m *Manager) Get(eventID types.EventID) (*EventRuntime, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.runtimes[eventID]
	return rt, ok
}

// Ensure returns the in-memory runtime for an event, creating and hydrating
// one from durable state when absent.
func (m *Manager) Ensure(ctx context.Context, eventID types.EventID) (*EventRuntime, error) {
	m.mu.Lock()
	if rt, ok := m.runtimes[eventID]; ok {
		m.mu.Unlock()
		return rt, nil
	}
	m.mu.Unlock()

	rt, err := m.CreateRuntime(ctx, eventID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Lost the race: another goroutine created it first.
	if existing, ok := m.runtimes[eventID]; ok {
		rt.Teardown()
		return existing, nil
	}
	m.runtimes[eventID] = rt
	return rt, nil
}

// CreateRuntime builds a fresh runtime for an event from durable state: agent
// record, checkpoints, glossary, and the bounded stores hydrated from active
// rows. Hydration evictions are persisted before the runtime is returned.
func (m *Manager) CreateRuntime(ctx context.Context, eventID types.EventID) (*EventRuntime, error) {
	agentRec, err := m.store.GetAgent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("create runtime for %s: %w", eventID, err)
	}

	seqs, err := m.checkpoints.Load(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("create runtime for %s: %w", eventID, err)
	}

	terms, err := m.store.GlossaryTerms(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("load glossary for %s: %w", eventID, err)
	}
	if len(terms) == 0 && m.cfg.GlossaryDir != "" {
		terms = m.loadGlossaryFile(ctx, eventID)
	}

	rctx, cancel := context.WithCancel(context.Background())
	rt := &EventRuntime{
		ctx:               rctx,
		cancel:            cancel,
		EventID:           eventID,
		AgentID:           agentRec.ID,
		Status:            agentRec.Status,
		TranscriptLastSeq: seqs[types.AgentTranscript],
		CardsLastSeq:      seqs[types.AgentCards],
		FactsLastSeq:      seqs[types.AgentFacts],
		Ring:              store.NewRingBuffer(m.cfg.Runtime.RingCapacity, time.Duration(m.cfg.Runtime.RingMaxAgeMs)*time.Millisecond),
		Facts:             store.NewFactsStore(m.cfg.Runtime.FactsCapacity),
		Cards:             store.NewCardsStore(m.cfg.Runtime.CardsCapacity),
		Glossary:          glossary.NewCache(terms),
		Limiter: salience.NewRateLimiter(
			time.Duration(m.cfg.RateLimit.MinIntervalMs)*time.Millisecond,
			time.Duration(m.cfg.RateLimit.WindowMs)*time.Millisecond,
			m.cfg.RateLimit.MaxPerWindow,
		),
		Sessions:   make(map[types.AgentType]agent.Session),
		SessionIDs: make(map[types.AgentType]string),
		Enabled:    make(map[types.AgentType]bool),
		attached:   make(map[string]bool),
	}

	if err := m.hydrateFacts(ctx, rt); err != nil {
		cancel()
		return nil, err
	}
	if err := m.hydrateCards(ctx, rt); err != nil {
		cancel()
		return nil, err
	}

	m.metrics.Reset(eventID)
	if m.logs != nil {
		m.logs.Reset(eventID)
	}

	m.logger.Info("runtime created",
		"event_id", eventID,
		"transcript_seq", rt.TranscriptLastSeq,
		"cards_seq", rt.CardsLastSeq,
		"facts_seq", rt.FactsLastSeq,
		"facts", rt.Facts.Len(),
		"cards", rt.Cards.Len(),
		"glossary_terms", rt.Glossary.Len())
	return rt, nil
}

// loadGlossaryFile falls back to a curated per-event YAML file when no
// glossary terms have been uploaded. Loaded terms are persisted so later
// runtime creations read them from the store. A missing file is normal.
func (m *Manager) loadGlossaryFile(ctx context.Context, eventID types.EventID) []*types.GlossaryTerm {
	path := filepath.Join(m.cfg.GlossaryDir, string(eventID)+".yaml")
	terms, err := glossary.LoadFile(path, eventID)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			m.logger.Warn("glossary file load failed", "event_id", eventID, "path", path, "error", err)
		}
		return nil
	}
	if len(terms) == 0 {
		return nil
	}
	if err := m.store.ReplaceGlossary(ctx, eventID, terms); err != nil {
		m.logger.Error("glossary persist failed", "event_id", eventID, "error", err)
	}
	m.logger.Info("glossary loaded from file", "event_id", eventID, "path", path, "terms", len(terms))
	return terms
}

// hydrateFacts loads active fact rows into the bounded store and persists
// any eviction the capacity trim produced.
func (m *Manager) hydrateFacts(ctx context.Context, rt *EventRuntime) error {
	records, err := m.store.ActiveFacts(ctx, rt.EventID)
	if err != nil {
		return fmt.Errorf("hydrate facts for %s: %w", rt.EventID, err)
	}
	evicted := rt.Facts.LoadFacts(records)
	if len(evicted) > 0 {
		if err := m.store.DeactivateFacts(ctx, rt.EventID, evicted); err != nil {
			return fmt.Errorf("persist hydration evictions for %s: %w", rt.EventID, err)
		}
		m.logger.Debug("facts evicted during hydration", "event_id", rt.EventID, "count", len(evicted))
	}
	for _, rec := range records {
		if rec.LastSeenSeq > rt.FactsLastSeq {
			rt.FactsLastSeq = rec.LastSeenSeq
		}
	}
	return nil
}

// hydrateCards loads active card rows into FIFO history, oldest first, and
// advances the cards counter past everything already drafted. Rows displaced
// by the capacity trim are deactivated durably.
func (m *Manager) hydrateCards(ctx context.Context, rt *EventRuntime) error {
	records, err := m.store.ActiveCards(ctx, rt.EventID, m.cfg.Runtime.CardsCapacity)
	if err != nil {
		return fmt.Errorf("hydrate cards for %s: %w", rt.EventID, err)
	}
	var evicted []types.OutputID
	for _, rec := range records {
		evicted = append(evicted, rt.Cards.Add(*rec)...)
		if rec.SourceSeq > rt.CardsLastSeq {
			rt.CardsLastSeq = rec.SourceSeq
		}
	}
	if len(evicted) > 0 {
		if err := m.store.DeactivateCards(ctx, rt.EventID, evicted); err != nil {
			return fmt.Errorf("persist hydration evictions for %s: %w", rt.EventID, err)
		}
	}
	return nil
}

// Remove tears down and forgets the in-memory runtime for an event. Durable
// state is untouched.
func (m *Manager) Remove(eventID types.EventID) {
	m.mu.Lock()
	rt, ok := m.runtimes[eventID]
	delete(m.runtimes, eventID)
	m.mu.Unlock()
	if ok {
		rt.Teardown()
		m.logger.Info("runtime removed", "event_id", eventID)
	}
}

// EventIDs returns the ids of all in-memory runtimes.
func (m *Manager) EventIDs() []types.EventID {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.EventID, 0, len(m.runtimes))
	for id := range m.runtimes {
		out = append(out, id)
	}
	return out
}

// ReplayTranscripts loads final transcript rows past the runtime's highest
// counter into the ring buffer. Replay is retention-only: counters advance
// but no card or fact processing is triggered for replayed chunks.
func (m *Manager) ReplayTranscripts(ctx context.Context, rt *EventRuntime) (int, error) {
	rt.Lock()
	from := rt.MaxSeq()
	rt.Unlock()

	chunks, err := m.store.TranscriptsAfter(ctx, rt.EventID, from, m.cfg.Runtime.ReplayLimit)
	if err != nil {
		return 0, fmt.Errorf("replay transcripts for %s: %w", rt.EventID, err)
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	rt.Lock()
	for _, chunk := range chunks {
		rt.Ring.Add(*chunk)
		rt.AdvanceSeqs(chunk.Seq)
	}
	rt.Unlock()

	m.logger.Info("transcripts replayed", "event_id", rt.EventID, "count", len(chunks), "from_seq", from)
	return len(chunks), nil
}

// ResumeExistingEvents finds agents that were running when the process last
// stopped, rebuilds their runtimes, replays missed transcripts, and hands
// each to the starter. Per-event failures are logged and skipped so one bad
// event cannot block the rest of the resume pass.
func (m *Manager) ResumeExistingEvents(ctx context.Context, starter func(ctx context.Context, eventID types.EventID) error) (int, error) {
	agents, err := m.store.RunningAgents(ctx, m.cfg.Runtime.ResumeLimit)
	if err != nil {
		return 0, fmt.Errorf("list running agents: %w", err)
	}
	if len(agents) == 0 {
		return 0, nil
	}

	var resumed int64
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Runtime.ResumeConcurrency)
	for _, rec := range agents {
		rec := rec
		g.Go(func() error {
			rt, err := m.Ensure(gctx, rec.EventID)
			if err != nil {
				m.logger.Error("resume failed", "event_id", rec.EventID, "error", err)
				return nil
			}
			if _, err := m.ReplayTranscripts(gctx, rt); err != nil {
				m.logger.Error("replay failed", "event_id", rec.EventID, "error", err)
				return nil
			}
			if starter != nil {
				if err := starter(gctx, rec.EventID); err != nil {
					m.logger.Error("restart failed", "event_id", rec.EventID, "error", err)
					return nil
				}
			}
			mu.Lock()
			resumed++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(resumed), err
	}
	m.logger.Info("resume pass complete", "found", len(agents), "resumed", resumed)
	return int(resumed), nil
}
