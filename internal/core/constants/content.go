package constants

const (
	ContentTypeJSON   = "application/json"
	ContentTypeNDJSON = "application/x-ndjson"
	ContentTypeSSE    = "text/event-stream"
	ContentTypeText   = "text/plain"
	ContentTypeHeader = "Content-Type"

	// OpenAI stream framing
	SSEDataPrefix = "data: "
	SSEDone       = "[DONE]"
)
