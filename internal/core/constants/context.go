package constants

type contextKey string

const (
	ContextRequestIDKey   contextKey = "request_id"   // generated per client request, echoed in X-Flowgate-Request-ID
	ContextRequestTimeKey contextKey = "request_time" // start of the request, used for latency metrics
	ContextFrontendKey    contextKey = "frontend"     // the resolved *domain.Frontend for the request
)
