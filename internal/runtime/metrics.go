package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/cuecard/internal/types"
)

// MetricsCollector accumulates token-usage figures per (event, agent type).
// When the provider reports no usage, payload size is estimated with a
// tiktoken encoder so the totals stay meaningful.
type MetricsCollector struct {
	mu       sync.Mutex
	model    string
	encOnce  sync.Once
	encoder  *tiktoken.Tiktoken
	warn     int64
	critical int64
	metrics  map[types.EventID]map[types.AgentType]*types.TokenMetrics
}

// NewMetricsCollector creates a collector using the tokenizer for the given
// model. The encoder is loaded lazily on first estimate; unknown models fall
// back to the cl100k_base encoding.
func NewMetricsCollector(tokenizerModel string, warnTokens, criticalTokens int) *MetricsCollector {
	return &MetricsCollector{
		model:    tokenizerModel,
		warn:     int64(warnTokens),
		critical: int64(criticalTokens),
		metrics:  make(map[types.EventID]map[types.AgentType]*types.TokenMetrics),
	}
}

// EstimateTokens returns the token count of text under the collector's
// encoding. When no encoder can be loaded the estimate degrades to a
// bytes-per-token approximation rather than failing.
func (m *MetricsCollector) EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	m.encOnce.Do(func() {
		enc, err := tiktoken.EncodingForModel(m.model)
		if err != nil {
			enc, err = tiktoken.GetEncoding("cl100k_base")
		}
		if err == nil {
			m.encoder = enc
		}
	})
	if m.encoder == nil {
		return len(text)/4 + 1
	}
	return len(m.encoder.Encode(text, nil, nil))
}

// Record adds tokens to the (event, agent type) bucket. Crossing the warn or
// critical total for the first time increments the matching counter.
func (m *MetricsCollector) Record(eventID types.EventID, agentType types.AgentType, tokens int) {
	if tokens <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	tm := m.bucket(eventID, agentType)
	before := tm.Total
	tm.Total += int64(tokens)
	tm.Count++
	if int64(tokens) > tm.Max {
		tm.Max = int64(tokens)
	}
	if m.warn > 0 && before < m.warn && tm.Total >= m.warn {
		tm.Warnings++
	}
	if m.critical > 0 && before < m.critical && tm.Total >= m.critical {
		tm.Criticals++
	}
}

// RecordText estimates the token count of text and records it.
func (m *MetricsCollector) RecordText(eventID types.EventID, agentType types.AgentType, text string) {
	m.Record(eventID, agentType, m.EstimateTokens(text))
}

// Snapshot returns a copy of the metrics for one event.
func (m *MetricsCollector) Snapshot(eventID types.EventID) map[types.AgentType]types.TokenMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[types.AgentType]types.TokenMetrics)
	for agentType, tm := range m.metrics[eventID] {
		out[agentType] = *tm
	}
	return out
}

// Reset discards accumulated metrics for one event.
func (m *MetricsCollector) Reset(eventID types.EventID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.metrics, eventID)
}

// Flush persists the event's current metrics as an audit output row, then
// resets the accumulators.
func (m *MetricsCollector) Flush(ctx context.Context, outputs types.OutputStore, eventID types.EventID) error {
	snapshot := m.Snapshot(eventID)
	if len(snapshot) == 0 {
		return nil
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal metrics payload: %w", err)
	}
	out := &types.AgentOutput{
		ID:        types.NewOutputID(),
		EventID:   eventID,
		AgentType: types.AgentTranscript,
		Kind:      "metrics_flush",
		Payload:   payload,
		CreatedAt: time.Now(),
	}
	if err := outputs.InsertOutput(ctx, out); err != nil {
		return fmt.Errorf("persist metrics flush: %w", err)
	}
	m.Reset(eventID)
	return nil
}

func (m *MetricsCollector) bucket(eventID types.EventID, agentType types.AgentType) *types.TokenMetrics {
	byType, ok := m.metrics[eventID]
	if !ok {
		byType = make(map[types.AgentType]*types.TokenMetrics)
		m.metrics[eventID] = byType
	}
	tm, ok := byType[agentType]
	if !ok {
		tm = &types.TokenMetrics{}
		byType[agentType] = tm
	}
	return tm
}
