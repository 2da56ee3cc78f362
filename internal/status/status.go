// Package status assembles the externally visible view of a live event:
// a snapshot of counters, store sizes, session states, token metrics, and a
// ring of recent log lines, pushed periodically to a sink.
package status

import (
	"fmt"
	"sync"
	"time"

	"github.com/user/cuecard/internal/runtime"
	"github.com/user/cuecard/internal/types"
)

// logCap bounds the recent-log ring per event.
const logCap = 50

// Tracker collects per-event log lines and builds status snapshots. A nil
// sink disables pushing; snapshots can still be assembled on demand.
type Tracker struct {
	mu   sync.Mutex
	logs map[types.EventID][]string

	sink    types.StatusSink
	metrics *runtime.MetricsCollector
}

// NewTracker creates a tracker pushing to sink.
func NewTracker(sink types.StatusSink, metrics *runtime.MetricsCollector) *Tracker {
	return &Tracker{
		logs:    make(map[types.EventID][]string),
		sink:    sink,
		metrics: metrics,
	}
}

// Log appends a timestamped line to the event's recent-log ring.
func (t *Tracker) Log(eventID types.EventID, format string, args ...any) {
	line := fmt.Sprintf("%s %s", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
	t.mu.Lock()
	defer t.mu.Unlock()
	lines := append(t.logs[eventID], line)
	if len(lines) > logCap {
		lines = lines[len(lines)-logCap:]
	}
	t.logs[eventID] = lines
}

// RecentLogs returns a copy of the event's recent log lines, oldest first.
func (t *Tracker) RecentLogs(eventID types.EventID) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.logs[eventID]))
	copy(out, t.logs[eventID])
	return out
}

// Reset clears the event's log ring.
func (t *Tracker) Reset(eventID types.EventID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.logs, eventID)
}

// Snapshot assembles the current status view of a runtime.
func (t *Tracker) Snapshot(rt *runtime.EventRuntime) *types.StatusSnapshot {
	rt.Lock()
	snap := &types.StatusSnapshot{
		EventID:           rt.EventID,
		AgentID:           rt.AgentID,
		Status:            rt.Status,
		Sessions:          make(map[types.AgentType]types.SessionState, len(types.AgentTypes)),
		TranscriptLastSeq: rt.TranscriptLastSeq,
		CardsLastSeq:      rt.CardsLastSeq,
		FactsLastSeq:      rt.FactsLastSeq,
		RingLen:           rt.Ring.Len(),
		FactCount:         rt.Facts.Len(),
		CardCount:         rt.Cards.Len(),
		At:                time.Now(),
	}
	for _, agentType := range types.AgentTypes {
		switch {
		case rt.Sessions[agentType] == nil:
			snap.Sessions[agentType] = types.SessionClosed
		case rt.Enabled[agentType]:
			snap.Sessions[agentType] = types.SessionActive
		default:
			snap.Sessions[agentType] = types.SessionPaused
		}
	}
	rt.Unlock()

	if t.metrics != nil {
		snap.Metrics = t.metrics.Snapshot(rt.EventID)
	}
	snap.RecentLogs = t.RecentLogs(rt.EventID)
	return snap
}

// Push assembles a snapshot and hands it to the sink. Pushing never blocks
// event processing; sinks absorb their own failures.
func (t *Tracker) Push(rt *runtime.EventRuntime) {
	if t.sink == nil {
		return
	}
	t.sink.PushStatus(t.Snapshot(rt))
}
