package agent

import "context"

// Provider opens realtime processing sessions against an AI backend.
// Implementations handle protocol-specific details such as request
// formatting, authentication, and response parsing.
type Provider interface {
	// OpenSession opens a session for one agent type. The returned session
	// delivers results asynchronously through its registered callbacks.
	OpenSession(ctx context.Context, eventID, agentType, model string) (Session, error)
}

// Session is one live provider session. A session may deliver zero or
// multiple results per appended input, and implementations must surface
// connection loss through the error callback rather than panicking.
type Session interface {
	// ID returns the provider-assigned session id.
	ID() string

	// AppendAudio forwards an audio payload for transcription sessions.
	AppendAudio(ctx context.Context, data []byte, encoding string, sampleRate int) error

	// AppendContext forwards transcript context for cards/facts sessions.
	AppendContext(ctx context.Context, text string) error

	OnTranscript(fn func(TranscriptResult))
	OnCard(fn func(CardResult))
	OnFacts(fn func([]FactResult))
	OnError(fn func(error))

	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Close(ctx context.Context) error
}

// Config holds common configuration for providers.
type Config struct {
	BaseURL string
	APIKey  string
}
