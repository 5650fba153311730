package domain

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	ErrBackendNotFound      = errors.New("backend not found")
	ErrFrontendNotFound     = errors.New("frontend not found")
	ErrUnsupportedOperation = errors.New("unsupported operation")
	ErrMalformedPayload     = errors.New("malformed payload")
)

// CapabilityDisabledError is returned when frontend or backend policy
// forbids the request kind.
type CapabilityDisabledError struct {
	Kind  RequestKind
	Scope string // "frontend" or "backend"
	ID    string
}

func (e *CapabilityDisabledError) Error() string {
	return fmt.Sprintf("%s requests are disabled on %s %s", e.Kind, e.Scope, e.ID)
}

// NoHealthyBackendError means no candidate remained, either because none
// were eligible or because every attempt failed.
type NoHealthyBackendError struct {
	LastErr    error
	FrontendID string
	Attempts   int
}

func (e *NoHealthyBackendError) Error() string {
	if e.Attempts == 0 {
		return fmt.Sprintf("no healthy backend available for frontend %s", e.FrontendID)
	}
	if e.LastErr != nil {
		return fmt.Sprintf("all %d backend attempts failed for frontend %s: %v", e.Attempts, e.FrontendID, e.LastErr)
	}
	return fmt.Sprintf("all %d backend attempts failed for frontend %s", e.Attempts, e.FrontendID)
}

func (e *NoHealthyBackendError) Unwrap() error {
	return e.LastErr
}

type UpstreamTimeoutError struct {
	BackendID string
	Timeout   time.Duration
}

func (e *UpstreamTimeoutError) Error() string {
	return fmt.Sprintf("backend %s did not respond within %v", e.BackendID, e.Timeout)
}

// UpstreamError is a failed exchange with a backend: either a connection
// level failure (StatusCode 0) or a non-success status.
type UpstreamError struct {
	Err        error
	BackendID  string
	URL        string
	Body       []byte
	StatusCode int
	Latency    time.Duration
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("backend %s (%s) returned HTTP %d after %v", e.BackendID, e.URL, e.StatusCode, e.Latency)
	}
	return fmt.Sprintf("backend %s (%s) failed after %v: %v", e.BackendID, e.URL, e.Latency, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another candidate may be tried: connection
// failures and 5xx responses are, client errors are not.
func (e *UpstreamError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode >= http.StatusInternalServerError
}

// TransformationError is raised by the format layer and carries enough of
// the offending payload to diagnose it.
type TransformationError struct {
	Err     error
	Source  Dialect
	Target  Dialect
	Stage   string
	Kind    string
	Payload []byte
}

const maxPayloadInError = 512

func (e *TransformationError) Error() string {
	payload := e.Payload
	if len(payload) > maxPayloadInError {
		payload = payload[:maxPayloadInError]
	}
	return fmt.Sprintf("transform %s -> %s failed at %s (%s): %v [payload: %s]", e.Source, e.Target, e.Stage, e.Kind, e.Err, payload)
}

func (e *TransformationError) Unwrap() error {
	return e.Err
}

func (e *TransformationError) IsUnsupported() bool {
	return errors.Is(e.Err, ErrUnsupportedOperation)
}

func NewTransformationError(source, target Dialect, stage, kind string, payload []byte, err error) *TransformationError {
	return &TransformationError{
		Source:  source,
		Target:  target,
		Stage:   stage,
		Kind:    kind,
		Payload: payload,
		Err:     err,
	}
}

// ConfigurationError is fatal at the configuration boundary: a frontend
// naming a backend that does not exist, or invalid settings.
type ConfigurationError struct {
	Err    error
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error in %s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("configuration error in %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

type ValidationError struct {
	Value  any
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s=%v: %s", e.Field, e.Value, e.Reason)
}

// StatusCodeForError maps the error taxonomy onto HTTP status codes.
func StatusCodeForError(err error) int {
	var (
		capErr     *CapabilityDisabledError
		noneErr    *NoHealthyBackendError
		timeoutErr *UpstreamTimeoutError
		upErr      *UpstreamError
		transErr   *TransformationError
		cfgErr     *ConfigurationError
		valErr     *ValidationError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &noneErr):
		return http.StatusBadGateway
	case errors.As(err, &capErr):
		return http.StatusForbidden
	case errors.As(err, &valErr), errors.Is(err, ErrMalformedPayload):
		return http.StatusBadRequest
	case errors.As(err, &cfgErr):
		return http.StatusBadRequest
	case errors.As(err, &timeoutErr):
		return http.StatusRequestTimeout
	case errors.As(err, &transErr):
		if transErr.IsUnsupported() {
			return http.StatusNotImplemented
		}
		return http.StatusBadGateway
	case errors.As(err, &upErr):
		if upErr.StatusCode >= 400 && upErr.StatusCode < 500 {
			return upErr.StatusCode
		}
		return http.StatusBadGateway
	case errors.Is(err, ErrFrontendNotFound), errors.Is(err, ErrBackendNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnsupportedOperation):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
