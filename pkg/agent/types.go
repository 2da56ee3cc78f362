package agent

import "time"

// TranscriptResult is a transcribed fragment delivered by a transcript
// session. Final marks a fragment that should advance downstream
// processing; interim fragments are display-only.
type TranscriptResult struct {
	Text    string    `json:"text"`
	Speaker string    `json:"speaker,omitempty"`
	At      time.Time `json:"at"`
	Final   bool      `json:"final"`
	Usage   Usage     `json:"usage"`
}

// CardResult is a drafted highlight card delivered by a cards session.
type CardResult struct {
	Kind         string `json:"kind"`
	ConceptID    string `json:"concept_id,omitempty"`
	ConceptLabel string `json:"concept_label,omitempty"`
	CardType     string `json:"card_type,omitempty"`
	Title        string `json:"title"`
	Body         string `json:"body,omitempty"`
	Label        string `json:"label,omitempty"`
	ImageRef     string `json:"image_ref,omitempty"`
	Usage        Usage  `json:"usage"`
}

// FactResult is one extracted key/value assertion from a facts session.
type FactResult struct {
	Key        string  `json:"key"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence,omitempty"`
	SourceSeq  int64   `json:"source_seq,omitempty"`
	Usage      Usage   `json:"usage"`
}

// Usage tracks token consumption for a request/response pair.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}
