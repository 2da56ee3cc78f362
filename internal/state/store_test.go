package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/user/cuecard/internal/types"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cuecard.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTranscriptRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	eventID := types.NewEventID()

	for i := int64(1); i <= 3; i++ {
		err := s.InsertTranscript(ctx, &types.TranscriptChunk{
			EventID: eventID,
			Seq:     i,
			At:      time.Now(),
			Speaker: "alice",
			Text:    "chunk",
			Final:   true,
		})
		if err != nil {
			t.Fatalf("insert transcript: %v", err)
		}
	}
	// Interim chunk must not come back from the replay query.
	if err := s.InsertTranscript(ctx, &types.TranscriptChunk{
		EventID: eventID, Seq: 0, At: time.Now(), Text: "interim",
	}); err != nil {
		t.Fatalf("insert interim: %v", err)
	}

	rows, err := s.TranscriptsAfter(ctx, eventID, 1, 100)
	if err != nil {
		t.Fatalf("transcripts after: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows after seq 1, got %d", len(rows))
	}
	if rows[0].Seq != 2 || rows[1].Seq != 3 {
		t.Errorf("unexpected order: %d, %d", rows[0].Seq, rows[1].Seq)
	}
	if !rows[0].Final || rows[0].Speaker != "alice" {
		t.Errorf("row fields lost: %+v", rows[0])
	}
}

func TestTranscriptSeqUpdate(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	eventID := types.NewEventID()

	chunk := &types.TranscriptChunk{EventID: eventID, At: time.Now(), Text: "x", Final: true}
	if err := s.InsertTranscript(ctx, chunk); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateTranscriptSeq(ctx, chunk.TranscriptID, 7); err != nil {
		t.Fatalf("update seq: %v", err)
	}
	rows, err := s.TranscriptsAfter(ctx, eventID, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Seq != 7 {
		t.Errorf("seq not persisted: %+v", rows)
	}
}

func TestTranscriptFeed(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	var got []*types.TranscriptChunk
	unsubscribe := s.SubscribeTranscripts(func(chunk *types.TranscriptChunk) {
		got = append(got, chunk)
	})

	if err := s.InsertTranscript(ctx, &types.TranscriptChunk{
		EventID: "ev", Seq: 1, At: time.Now(), Text: "hello", Final: true,
	}); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Text != "hello" {
		t.Fatalf("feed did not deliver insert: %+v", got)
	}

	unsubscribe()
	if err := s.InsertTranscript(ctx, &types.TranscriptChunk{
		EventID: "ev", Seq: 2, At: time.Now(), Text: "again", Final: true,
	}); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Error("feed delivered after unsubscribe")
	}
}

func TestFactDeactivation(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	eventID := types.NewEventID()

	for _, key := range []string{"a", "b", "c"} {
		err := s.UpsertFact(ctx, &types.FactRecord{
			EventID: eventID, Key: key, Value: "v", Confidence: 0.7,
			LastSeenSeq: 1, Sources: []int64{1}, Active: true,
		})
		if err != nil {
			t.Fatalf("upsert fact %s: %v", key, err)
		}
	}

	if err := s.DeactivateFacts(ctx, eventID, []string{"a", "c"}); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	active, err := s.ActiveFacts(ctx, eventID)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0].Key != "b" {
		t.Errorf("expected only b active, got %+v", active)
	}
	if active[0].Sources == nil || active[0].Sources[0] != 1 {
		t.Errorf("sources lost: %+v", active[0].Sources)
	}
}

func TestFactUpsertReplaces(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	eventID := types.NewEventID()

	fact := &types.FactRecord{EventID: eventID, Key: "k", Value: "v1", Confidence: 0.5, Active: true}
	if err := s.UpsertFact(ctx, fact); err != nil {
		t.Fatal(err)
	}
	fact.Value = "v2"
	fact.Confidence = 0.8
	if err := s.UpsertFact(ctx, fact); err != nil {
		t.Fatal(err)
	}

	active, err := s.ActiveFacts(ctx, eventID)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0].Value != "v2" || active[0].Confidence != 0.8 {
		t.Errorf("upsert did not replace: %+v", active)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	eventID := types.NewEventID()

	seq, err := s.LoadCheckpoint(ctx, eventID, types.AgentCards)
	if err != nil || seq != 0 {
		t.Fatalf("expected zero checkpoint, got %d err %v", seq, err)
	}

	if err := s.SaveCheckpoint(ctx, eventID, types.AgentCards, 42); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveCheckpoint(ctx, eventID, types.AgentCards, 43); err != nil {
		t.Fatal(err)
	}

	seq, err = s.LoadCheckpoint(ctx, eventID, types.AgentCards)
	if err != nil {
		t.Fatal(err)
	}
	if seq != 43 {
		t.Errorf("expected 43, got %d", seq)
	}
}

func TestAgentLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	eventID := types.NewEventID()

	rec, err := s.EnsureAgent(ctx, eventID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != types.AgentStatusContextComplete {
		t.Errorf("expected context_complete, got %s", rec.Status)
	}

	again, err := s.EnsureAgent(ctx, eventID)
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != rec.ID {
		t.Error("EnsureAgent created a duplicate")
	}

	if err := s.UpdateAgentStatus(ctx, eventID, types.AgentStatusRunning); err != nil {
		t.Fatal(err)
	}
	running, err := s.RunningAgents(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(running) != 1 || running[0].EventID != eventID {
		t.Errorf("expected one running agent, got %+v", running)
	}
}

func TestSessionRowsAndPrune(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	eventID := types.NewEventID()

	for _, at := range types.AgentTypes {
		err := s.InsertSessionRow(ctx, &types.SessionRow{
			EventID: eventID, AgentType: at, Model: "base", State: types.SessionClosed,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	rows, err := s.SessionRows(ctx, eventID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}

	rows[0].State = types.SessionActive
	rows[0].ProviderSessionID = "prov-1"
	if err := s.UpdateSessionRow(ctx, rows[0]); err != nil {
		t.Fatal(err)
	}

	pruned, err := s.PruneClosedSessions(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if pruned != 2 {
		t.Errorf("expected 2 pruned closed rows, got %d", pruned)
	}

	rows, err = s.SessionRows(ctx, eventID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].ProviderSessionID != "prov-1" {
		t.Errorf("active row lost: %+v", rows)
	}
}

func TestGlossaryReplace(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	eventID := types.NewEventID()

	terms := []*types.GlossaryTerm{
		{Term: "raft", Definition: "consensus protocol"},
		{Term: "quorum"},
	}
	if err := s.ReplaceGlossary(ctx, eventID, terms); err != nil {
		t.Fatal(err)
	}
	if err := s.ReplaceGlossary(ctx, eventID, terms[:1]); err != nil {
		t.Fatal(err)
	}

	got, err := s.GlossaryTerms(ctx, eventID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Term != "raft" {
		t.Errorf("replace did not swap terms: %+v", got)
	}
}

func TestCardRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	eventID := types.NewEventID()

	card := &types.CardRecord{
		EventID: eventID, ConceptID: "raft", ConceptLabel: "Raft",
		CardType: types.CardText, SourceSeq: 5, Title: "Raft", Body: "notes",
		Active: true,
	}
	if err := s.InsertCard(ctx, card); err != nil {
		t.Fatal(err)
	}

	cards, err := s.ActiveCards(ctx, eventID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(cards) != 1 || cards[0].Title != "Raft" || cards[0].SourceSeq != 5 {
		t.Fatalf("card round trip failed: %+v", cards)
	}

	if err := s.DeactivateCards(ctx, eventID, []types.OutputID{cards[0].ID}); err != nil {
		t.Fatal(err)
	}
	cards, err = s.ActiveCards(ctx, eventID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(cards) != 0 {
		t.Errorf("expected no active cards, got %d", len(cards))
	}
}
