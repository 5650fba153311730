package constants

const (
	// Ollama native surface
	PathOllamaGenerate   = "/api/generate"
	PathOllamaChat       = "/api/chat"
	PathOllamaEmbeddings = "/api/embeddings"
	PathOllamaEmbed      = "/api/embed"
	PathOllamaPull       = "/api/pull"
	PathOllamaShow       = "/api/show"
	PathOllamaTags       = "/api/tags"
	PathOllamaPS         = "/api/ps"
	PathOllamaDelete     = "/api/delete"

	// OpenAI-compatible surface
	PathV1Completions     = "/v1/completions"
	PathV1ChatCompletions = "/v1/chat/completions"
	PathV1Embeddings      = "/v1/embeddings"
	PathV1Models          = "/v1/models"

	// gateway surface
	PathHealth         = "/health"
	PathInternalStatus = "/internal/status"
	PathMetrics        = "/metrics"
	PathAdminPrefix    = "/admin"
)
