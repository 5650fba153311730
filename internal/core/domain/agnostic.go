package domain

import "time"

// ResponseKind names the variant held by an AgnosticResponse.
type ResponseKind string

const (
	ResponseCompletion ResponseKind = "completion"
	ResponseChat       ResponseKind = "chat"
	ResponseEmbedding  ResponseKind = "embedding"
	ResponseModelList  ResponseKind = "model_list"
	ResponseModelInfo  ResponseKind = "model_info"
)

// AgnosticResponse is the canonical form every dialect codec targets. The
// set of implementations is closed: only the variants in this file satisfy
// the unexported marker, so a type switch over them is exhaustive.
type AgnosticResponse interface {
	Kind() ResponseKind
	agnostic()
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Normalise fills TotalTokens when a dialect only reports the parts.
func (u Usage) Normalise() Usage {
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	return u
}

type Choice struct {
	Message      *Message `json:"message,omitempty"`
	Text         string   `json:"text,omitempty"`
	FinishReason string   `json:"finish_reason,omitempty"`
	Index        int      `json:"index"`
}

// Timings are the ollama duration counters; other dialects leave them zero.
type Timings struct {
	TotalDuration      time.Duration
	LoadDuration       time.Duration
	PromptEvalDuration time.Duration
	EvalDuration       time.Duration
}

type CompletionResponse struct {
	Created time.Time
	ID      string
	Model   string
	Choices []Choice
	Usage   Usage
	Timings Timings
	Done    bool
}

type ChatResponse struct {
	Created time.Time
	ID      string
	Model   string
	Choices []Choice
	Usage   Usage
	Timings Timings
	Done    bool
}

type EmbeddingResponse struct {
	Model      string
	Embeddings OneOrMany[[]float64]
	Usage      Usage
}

type ModelEntry struct {
	ModifiedAt time.Time
	Details    map[string]any
	Name       string
	Digest     string
	OwnedBy    string
	Size       int64
}

type ModelListResponse struct {
	Models []ModelEntry
}

type ModelInfoResponse struct {
	Details    map[string]any
	ModelInfo  map[string]any
	Model      string
	Modelfile  string
	Parameters string
	Template   string
}

func (*CompletionResponse) Kind() ResponseKind { return ResponseCompletion }
func (*ChatResponse) Kind() ResponseKind       { return ResponseChat }
func (*EmbeddingResponse) Kind() ResponseKind  { return ResponseEmbedding }
func (*ModelListResponse) Kind() ResponseKind  { return ResponseModelList }
func (*ModelInfoResponse) Kind() ResponseKind  { return ResponseModelInfo }

func (*CompletionResponse) agnostic() {}
func (*ChatResponse) agnostic()       {}
func (*EmbeddingResponse) agnostic()  {}
func (*ModelListResponse) agnostic()  {}
func (*ModelInfoResponse) agnostic()  {}

// FirstText returns the text of the first choice, regardless of variant.
func FirstText(choices []Choice) string {
	if len(choices) == 0 {
		return ""
	}
	if choices[0].Message != nil {
		return choices[0].Message.Content
	}
	return choices[0].Text
}

// FirstFinishReason returns the finish reason of the first choice.
func FirstFinishReason(choices []Choice) string {
	if len(choices) == 0 {
		return ""
	}
	return choices[0].FinishReason
}
