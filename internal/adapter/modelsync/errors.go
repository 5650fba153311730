package modelsync

import (
	"fmt"
	"time"
)

// SyncError wraps a failed list or pull call with the backend it ran against.
type SyncError struct {
	Err        error
	BackendID  string
	Operation  string
	URL        string
	StatusCode int
	Latency    time.Duration
}

func (e *SyncError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("model %s failed for %s (%s, status: %d, latency: %v): %v",
			e.Operation, e.BackendID, e.URL, e.StatusCode, e.Latency, e.Err)
	}
	return fmt.Sprintf("model %s failed for %s (%s, latency: %v): %v",
		e.Operation, e.BackendID, e.URL, e.Latency, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

func newSyncError(backendID, operation, url string, statusCode int, latency time.Duration, err error) *SyncError {
	return &SyncError{
		BackendID:  backendID,
		Operation:  operation,
		URL:        url,
		StatusCode: statusCode,
		Latency:    latency,
		Err:        err,
	}
}
