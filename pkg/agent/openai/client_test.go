package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/user/cuecard/pkg/agent"
)

func chatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Error("missing or invalid auth header")
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": content}},
			},
			"usage": map[string]any{
				"prompt_tokens":     10,
				"completion_tokens": 5,
				"total_tokens":      15,
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestCardsSessionDelivery(t *testing.T) {
	server := chatServer(t, `{"kind":"card","concept_id":"raft","concept_label":"Raft","card_type":"text","title":"Raft","body":"A consensus protocol."}`)
	defer server.Close()

	client := New(&agent.Config{BaseURL: server.URL, APIKey: "test-key"})
	session, err := client.OpenSession(context.Background(), "ev-1", "cards", "gpt-4o-mini")
	if err != nil {
		t.Fatal(err)
	}

	cards := make(chan agent.CardResult, 1)
	session.OnCard(func(card agent.CardResult) { cards <- card })
	session.OnError(func(err error) { t.Errorf("unexpected session error: %v", err) })

	if err := session.AppendContext(context.Background(), "recent transcript"); err != nil {
		t.Fatal(err)
	}

	select {
	case card := <-cards:
		if card.Title != "Raft" || card.CardType != "text" {
			t.Errorf("unexpected card: %+v", card)
		}
		if card.Usage.TotalTokens != 15 {
			t.Errorf("usage lost: %+v", card.Usage)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for card")
	}
}

func TestFactsSessionDelivery(t *testing.T) {
	server := chatServer(t, `{"facts":[{"key":"speaker","value":"alice","confidence":0.9}]}`)
	defer server.Close()

	client := New(&agent.Config{BaseURL: server.URL, APIKey: "test-key"})
	session, err := client.OpenSession(context.Background(), "ev-1", "facts", "gpt-4o-mini")
	if err != nil {
		t.Fatal(err)
	}

	facts := make(chan []agent.FactResult, 1)
	session.OnFacts(func(batch []agent.FactResult) { facts <- batch })

	if err := session.AppendContext(context.Background(), "alice is speaking"); err != nil {
		t.Fatal(err)
	}

	select {
	case batch := <-facts:
		if len(batch) != 1 || batch[0].Key != "speaker" || batch[0].Confidence != 0.9 {
			t.Errorf("unexpected facts: %+v", batch)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for facts")
	}
}

func TestTranscriptSessionDelivery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("expected multipart request: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("model field lost: %q", got)
		}
		json.NewEncoder(w).Encode(map[string]string{"text": "hello world"})
	}))
	defer server.Close()

	client := New(&agent.Config{BaseURL: server.URL, APIKey: "test-key"})
	session, err := client.OpenSession(context.Background(), "ev-1", "transcript", "whisper-1")
	if err != nil {
		t.Fatal(err)
	}

	results := make(chan agent.TranscriptResult, 1)
	session.OnTranscript(func(res agent.TranscriptResult) { results <- res })

	if err := session.AppendAudio(context.Background(), []byte("audio-bytes"), "wav", 16000); err != nil {
		t.Fatal(err)
	}

	select {
	case res := <-results:
		if res.Text != "hello world" || !res.Final {
			t.Errorf("unexpected result: %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for transcript")
	}
}

func TestSessionStateGuards(t *testing.T) {
	client := New(&agent.Config{BaseURL: "http://unused", APIKey: "k"})
	session, err := client.OpenSession(context.Background(), "ev-1", "cards", "gpt-4o-mini")
	if err != nil {
		t.Fatal(err)
	}

	if err := session.Pause(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := session.AppendContext(context.Background(), "x"); err == nil {
		t.Error("append on paused session should fail")
	}
	if err := session.Resume(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := session.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := session.Resume(context.Background()); err == nil {
		t.Error("resume on closed session should fail")
	}
}

func TestOpenSessionRequiresModel(t *testing.T) {
	client := New(&agent.Config{BaseURL: "http://unused"})
	if _, err := client.OpenSession(context.Background(), "ev-1", "cards", ""); err == nil {
		t.Error("expected error for missing model")
	}
}
