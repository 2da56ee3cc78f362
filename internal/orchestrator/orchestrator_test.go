package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/user/cuecard/internal/config"
	"github.com/user/cuecard/internal/types"
	"github.com/user/cuecard/pkg/agent"
)

type stubSession struct {
	id string
	mu sync.Mutex
	// audio counts forwarded payloads.
	audio int
}

func (s *stubSession) ID() string { return s.id }

func (s *stubSession) AppendAudio(context.Context, []byte, string, int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio++
	return nil
}

func (s *stubSession) AppendContext(context.Context, string) error { return nil }
func (s *stubSession) OnTranscript(func(agent.TranscriptResult))   {}
func (s *stubSession) OnCard(func(agent.CardResult))               {}
func (s *stubSession) OnFacts(func([]agent.FactResult))            {}
func (s *stubSession) OnError(func(error))                         {}
func (s *stubSession) Pause(context.Context) error                 { return nil }
func (s *stubSession) Resume(context.Context) error                { return nil }
func (s *stubSession) Close(context.Context) error                 { return nil }

type stubProvider struct {
	mu     sync.Mutex
	opened int
}

func (p *stubProvider) OpenSession(_ context.Context, eventID, agentType, _ string) (agent.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opened++
	return &stubSession{id: fmt.Sprintf("%s-%s", eventID, agentType)}, nil
}

func testServer(t *testing.T) (*httptest.Server, *Orchestrator) {
	t.Helper()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.DataDir = t.TempDir()
	cfg.HTTP.Enabled = false

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	o, err := New(cfg, &stubProvider{}, logger)
	if err != nil {
		t.Fatalf("build orchestrator: %v", err)
	}
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("start orchestrator: %v", err)
	}
	t.Cleanup(func() { o.Shutdown(context.Background()) })

	server := httptest.NewServer(o.routes())
	t.Cleanup(server.Close)
	return server, o
}

func post(t *testing.T, url string, body []byte) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/octet-stream", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestEventLifecycleOverHTTP(t *testing.T) {
	server, _ := testServer(t)

	resp := post(t, server.URL+"/events", []byte(`{"event_id":"ev-1"}`))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create event status = %d", resp.StatusCode)
	}

	for _, action := range []string{"sessions", "start"} {
		resp := post(t, server.URL+"/events/ev-1/"+action, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s status = %d", action, resp.StatusCode)
		}
	}

	resp, err := http.Get(server.URL + "/events/ev-1/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status endpoint = %d", resp.StatusCode)
	}
	var snap types.StatusSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if snap.EventID != "ev-1" || snap.Status != types.AgentStatusRunning {
		t.Errorf("unexpected snapshot: %+v", snap)
	}

	for _, action := range []string{"pause", "resume", "close"} {
		resp := post(t, server.URL+"/events/ev-1/"+action, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s status = %d", action, resp.StatusCode)
		}
	}

	resp, err = http.Get(server.URL + "/events/ev-1/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status after close = %d, want 404", resp.StatusCode)
	}
}

func TestAudioUpload(t *testing.T) {
	server, _ := testServer(t)

	post(t, server.URL+"/events", []byte(`{"event_id":"ev-1"}`))
	post(t, server.URL+"/events/ev-1/start", nil)

	resp := post(t, server.URL+"/events/ev-1/audio?encoding=wav&sample_rate=16000&speaker=alice", []byte("audio-bytes"))
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("audio upload status = %d, want 202", resp.StatusCode)
	}

	// Audio for an event with no transcript session is rejected.
	post(t, server.URL+"/events", []byte(`{"event_id":"ev-2"}`))
	resp = post(t, server.URL+"/events/ev-2/audio", []byte("audio-bytes"))
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("audio without session status = %d, want 409", resp.StatusCode)
	}
}

func TestGlossaryUpload(t *testing.T) {
	server, o := testServer(t)

	post(t, server.URL+"/events", []byte(`{"event_id":"ev-1"}`))
	post(t, server.URL+"/events/ev-1/start", nil)

	yaml := "terms:\n  - term: raft\n    definition: consensus protocol\n"
	resp := post(t, server.URL+"/events/ev-1/glossary", []byte(yaml))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("glossary upload status = %d", resp.StatusCode)
	}

	rt, ok := o.manager.Get("ev-1")
	if !ok {
		t.Fatal("runtime missing")
	}
	rt.Lock()
	defer rt.Unlock()
	if !rt.Glossary.Has("raft") {
		t.Error("live runtime did not pick up the new glossary")
	}
}

func TestHealthAndEventList(t *testing.T) {
	server, _ := testServer(t)

	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz = %d", resp.StatusCode)
	}

	post(t, server.URL+"/events", []byte(`{"event_id":"ev-1"}`))
	post(t, server.URL+"/events/ev-1/start", nil)

	resp, err = http.Get(server.URL + "/events")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var listing struct {
		LiveEvents []string `json:"live_events"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		t.Fatal(err)
	}
	if len(listing.LiveEvents) != 1 || listing.LiveEvents[0] != "ev-1" {
		t.Errorf("live events = %v, want [ev-1]", listing.LiveEvents)
	}
}
