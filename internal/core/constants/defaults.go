package constants

import "time"

const (
	DefaultHealthCheckInterval = 5 * time.Second
	DefaultHealthCheckTimeout  = 2 * time.Second
	DefaultHealthCheckPath     = "/"
	DefaultHealthCheckMethod   = "GET"

	DefaultFrontendTimeout = 60 * time.Second

	DefaultStreamBufferSize = 8 * 1024

	// ollama tags without an explicit tag resolve to this one
	DefaultModelTag = "latest"
)
