package domain

import "time"

// GenerationOptions are the sampling knobs both dialects share. Nil means
// the client did not set it.
type GenerationOptions struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
	Seed        *int
	Stop        []string
}

// AgnosticRequest is the canonical form of a client inference request,
// used when the client and backend dialects differ.
type AgnosticRequest struct {
	Options  GenerationOptions
	Input    OneOrMany[string]
	Kind     RequestKind
	Model    string
	Prompt   string
	System   string
	Messages []Message
	Stream   bool
}

// StreamChunk is one incremental piece of a streamed completion or chat.
type StreamChunk struct {
	Created      time.Time
	Usage        *Usage
	ID           string
	Model        string
	Content      string
	Role         string
	FinishReason string
	Kind         RequestKind
	Done         bool
}
