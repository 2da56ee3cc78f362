package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/user/cuecard/pkg/agent"
)

type sessionState int

const (
	stateActive sessionState = iota
	statePaused
	stateClosed
)

const cardsSystemPrompt = `You draft live highlight cards from event transcript excerpts.
Respond with a JSON object: {"kind":"card","concept_id":...,"concept_label":...,"card_type":"text|text_visual|visual","title":...,"body":...,"label":...}.
Respond with {"kind":"none"} when nothing is card-worthy.`

const factsSystemPrompt = `You extract key/value facts from event transcript excerpts.
Respond with a JSON object: {"facts":[{"key":...,"value":...,"confidence":0.0}]}.
Use an empty list when no facts are present.`

// Session is one live session against an OpenAI-compatible backend.
// Results are delivered asynchronously on a per-request goroutine.
type Session struct {
	client    *Client
	id        string
	eventID   string
	agentType string
	model     string

	mu           sync.Mutex
	state        sessionState
	onTranscript func(agent.TranscriptResult)
	onCard       func(agent.CardResult)
	onFacts      func([]agent.FactResult)
	onError      func(error)
}

// ID returns the provider-assigned session id.
func (s *Session) ID() string {
	return s.id
}

func (s *Session) OnTranscript(fn func(agent.TranscriptResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTranscript = fn
}

func (s *Session) OnCard(fn func(agent.CardResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCard = fn
}

func (s *Session) OnFacts(fn func([]agent.FactResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFacts = fn
}

func (s *Session) OnError(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = fn
}

// AppendAudio transcribes an audio payload and delivers the result through
// the transcript callback. The HTTP round trip runs on its own goroutine so
// the caller is never blocked on the provider.
func (s *Session) AppendAudio(ctx context.Context, data []byte, encoding string, sampleRate int) error {
	if err := s.checkActive(); err != nil {
		return err
	}
	if encoding == "" {
		encoding = "wav"
	}
	go func() {
		text, err := s.client.transcribe(ctx, s.model, data, encoding)
		if err != nil {
			s.fail(fmt.Errorf("transcribe: %w", err))
			return
		}
		if text == "" {
			return
		}
		s.mu.Lock()
		fn := s.onTranscript
		s.mu.Unlock()
		if fn != nil {
			fn(agent.TranscriptResult{Text: text, At: time.Now(), Final: true})
		}
	}()
	return nil
}

// AppendContext forwards transcript context to a cards or facts session and
// delivers parsed results through the matching callback.
func (s *Session) AppendContext(ctx context.Context, text string) error {
	if err := s.checkActive(); err != nil {
		return err
	}
	switch s.agentType {
	case "cards":
		go s.draftCard(ctx, text)
	case "facts":
		go s.extractFacts(ctx, text)
	default:
		return fmt.Errorf("context input not supported for %s session", s.agentType)
	}
	return nil
}

func (s *Session) draftCard(ctx context.Context, text string) {
	content, usage, err := s.client.complete(ctx, s.model, cardsSystemPrompt, text)
	if err != nil {
		s.fail(fmt.Errorf("draft card: %w", err))
		return
	}
	var card agent.CardResult
	if err := json.Unmarshal([]byte(content), &card); err != nil {
		s.fail(fmt.Errorf("parse card response: %w", err))
		return
	}
	if card.Kind == "" || card.Kind == "none" {
		return
	}
	card.Usage = usage
	s.mu.Lock()
	fn := s.onCard
	s.mu.Unlock()
	if fn != nil {
		fn(card)
	}
}

func (s *Session) extractFacts(ctx context.Context, text string) {
	content, usage, err := s.client.complete(ctx, s.model, factsSystemPrompt, text)
	if err != nil {
		s.fail(fmt.Errorf("extract facts: %w", err))
		return
	}
	var parsed struct {
		Facts []agent.FactResult `json:"facts"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		s.fail(fmt.Errorf("parse facts response: %w", err))
		return
	}
	if len(parsed.Facts) == 0 {
		return
	}
	for i := range parsed.Facts {
		parsed.Facts[i].Usage = usage
	}
	s.mu.Lock()
	fn := s.onFacts
	s.mu.Unlock()
	if fn != nil {
		fn(parsed.Facts)
	}
}

// Pause suspends the session. Appends fail until Resume.
func (s *Session) Pause(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateClosed {
		return fmt.Errorf("session %s already closed", s.id)
	}
	s.state = statePaused
	return nil
}

// Resume reactivates a paused session.
func (s *Session) Resume(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateClosed {
		return fmt.Errorf("session %s already closed", s.id)
	}
	s.state = stateActive
	return nil
}

// Close terminates the session permanently.
func (s *Session) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = stateClosed
	return nil
}

func (s *Session) checkActive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case statePaused:
		return fmt.Errorf("session %s is paused", s.id)
	case stateClosed:
		return fmt.Errorf("session %s is closed", s.id)
	}
	return nil
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	fn := s.onError
	s.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}
