package translator

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/thushan/flowgate/internal/core/domain"
)

// ExtractModelName reads the top level "model" field without decoding the
// rest of the body. Handlers need it for logging and model checks before
// they know whether the request will be translated at all.
func ExtractModelName(body []byte) (string, error) {
	if len(body) == 0 {
		return "", fmt.Errorf("%w: empty request body", domain.ErrMalformedPayload)
	}

	result := gjson.GetBytes(body, "model")
	if !result.Exists() {
		return "", fmt.Errorf("%w: model field is required", domain.ErrMalformedPayload)
	}
	// gjson would happily stringify numbers and arrays
	if result.Type != gjson.String {
		return "", fmt.Errorf("%w: model field must be a string, got %s", domain.ErrMalformedPayload, result.Type)
	}
	if result.Str == "" {
		return "", fmt.Errorf("%w: model field must not be empty", domain.ErrMalformedPayload)
	}
	return result.Str, nil
}

// IsStreaming reports whether the client asked for incremental output.
// Ollama streams generate and chat unless told otherwise, openai only when
// asked. Embeddings and management calls answer in one piece, except an
// ollama pull which reports progress as NDJSON.
func IsStreaming(dialect domain.Dialect, kind domain.RequestKind, body []byte) bool {
	switch kind {
	case domain.KindCompletions, domain.KindChat, domain.KindPull:
	default:
		return false
	}
	stream := gjson.GetBytes(body, "stream")
	if stream.Exists() {
		return stream.Bool()
	}
	return dialect == domain.DialectOllama
}
