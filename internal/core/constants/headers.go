package constants

const (
	HeaderRequestID = "X-Flowgate-Request-ID"
	HeaderBackend   = "X-Flowgate-Backend"
	HeaderFrontend  = "X-Flowgate-Frontend"
	HeaderDialect   = "X-Flowgate-Backend-Dialect"

	// DefaultStickyHeader is used when a frontend enables sticky sessions
	// without naming a header.
	DefaultStickyHeader = "x-thread-id"
)
