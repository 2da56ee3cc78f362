package status

import (
	"fmt"
	"testing"
	"time"

	"github.com/user/cuecard/internal/runtime"
	"github.com/user/cuecard/internal/store"
	"github.com/user/cuecard/internal/types"
)

type captureSink struct {
	snapshots []*types.StatusSnapshot
}

func (c *captureSink) PushStatus(snap *types.StatusSnapshot) {
	c.snapshots = append(c.snapshots, snap)
}

func testRuntime() *runtime.EventRuntime {
	return &runtime.EventRuntime{
		EventID:           "ev-1",
		AgentID:           "agent-1",
		Status:            types.AgentStatusRunning,
		TranscriptLastSeq: 12,
		CardsLastSeq:      10,
		FactsLastSeq:      8,
		Ring:              store.NewRingBuffer(10, time.Minute),
		Facts:             store.NewFactsStore(10),
		Cards:             store.NewCardsStore(10),
	}
}

func TestLogRingIsBounded(t *testing.T) {
	tracker := NewTracker(nil, nil)
	for i := 0; i < logCap+20; i++ {
		tracker.Log("ev-1", "line %d", i)
	}
	lines := tracker.RecentLogs("ev-1")
	if len(lines) != logCap {
		t.Errorf("kept %d lines, want %d", len(lines), logCap)
	}
	last := fmt.Sprintf("line %d", logCap+19)
	if got := lines[len(lines)-1]; len(got) < len(last) || got[len(got)-len(last):] != last {
		t.Errorf("last line = %q, want suffix %q", got, last)
	}
}

func TestResetClearsOnlyThatEvent(t *testing.T) {
	tracker := NewTracker(nil, nil)
	tracker.Log("ev-1", "one")
	tracker.Log("ev-2", "two")
	tracker.Reset("ev-1")

	if len(tracker.RecentLogs("ev-1")) != 0 {
		t.Error("ev-1 logs survived reset")
	}
	if len(tracker.RecentLogs("ev-2")) != 1 {
		t.Error("ev-2 logs lost by unrelated reset")
	}
}

func TestSnapshotAssembly(t *testing.T) {
	metrics := runtime.NewMetricsCollector("gpt-4o-mini", 0, 0)
	metrics.Record("ev-1", types.AgentCards, 42)
	tracker := NewTracker(nil, metrics)
	tracker.Log("ev-1", "started")

	rt := testRuntime()
	rt.Ring.Add(types.TranscriptChunk{Seq: 12, At: time.Now(), Text: "hello", Final: true})
	rt.Facts.Upsert("speaker", "alice", 0.9, 8, nil)

	snap := tracker.Snapshot(rt)
	if snap.TranscriptLastSeq != 12 || snap.CardsLastSeq != 10 || snap.FactsLastSeq != 8 {
		t.Errorf("counters lost: %+v", snap)
	}
	if snap.RingLen != 1 || snap.FactCount != 1 || snap.CardCount != 0 {
		t.Errorf("store sizes lost: %+v", snap)
	}
	if snap.Metrics[types.AgentCards].Total != 42 {
		t.Errorf("metrics lost: %+v", snap.Metrics)
	}
	if len(snap.RecentLogs) != 1 {
		t.Errorf("recent logs lost: %v", snap.RecentLogs)
	}
	for _, agentType := range types.AgentTypes {
		if snap.Sessions[agentType] != types.SessionClosed {
			t.Errorf("%s session state = %s, want closed", agentType, snap.Sessions[agentType])
		}
	}
}

func TestPushDeliversToSink(t *testing.T) {
	sink := &captureSink{}
	tracker := NewTracker(sink, nil)
	tracker.Push(testRuntime())

	if len(sink.snapshots) != 1 || sink.snapshots[0].EventID != "ev-1" {
		t.Fatalf("unexpected snapshots: %+v", sink.snapshots)
	}
}

func TestNilSinkIsSafe(t *testing.T) {
	tracker := NewTracker(nil, nil)
	tracker.Push(testRuntime())
}
