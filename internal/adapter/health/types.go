package health

import (
	"net/http"
	"time"
)

const (
	DefaultSyncInterval = 1 * time.Second

	HealthyStatusRangeStart = 200
	HealthyStatusRangeEnd   = 300

	// probe bodies are drained up to this size so keep-alive connections
	// can be reused
	maxProbeDrainBytes = 64 << 10
)

// HTTPClient interface for better testability
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type probeErrorType string

const (
	errorTypeNone    probeErrorType = ""
	errorTypeTimeout probeErrorType = "timeout"
	errorTypeNetwork probeErrorType = "network"
	errorTypeHTTP    probeErrorType = "http"
)
