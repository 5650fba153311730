package proxy

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/thushan/flowgate/internal/core/domain"
)

var connectionErrorPatterns = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"network is unreachable",
	"no route to host",
	"connection timed out",
	"i/o timeout",
	"dial tcp",
	"connectex:",
	"eof",
}

// IsConnectionError reports whether err is a transport level failure
// rather than an answer from the backend.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ECONNABORTED:
			return true
		default:
		}
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range connectionErrorPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// isRetryable decides whether the next candidate may be tried after err.
// Timeouts, connection failures and 5xx are; client errors, malformed
// payloads and a cancelled client are not.
func isRetryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var (
		timeoutErr *domain.UpstreamTimeoutError
		upErr      *domain.UpstreamError
	)
	switch {
	case errors.As(err, &timeoutErr):
		return true
	case errors.As(err, &upErr):
		return upErr.Retryable()
	default:
		return IsConnectionError(err)
	}
}

// outcome labels a dispatch for metrics.
func outcome(err error) string {
	var (
		capErr     *domain.CapabilityDisabledError
		noneErr    *domain.NoHealthyBackendError
		timeoutErr *domain.UpstreamTimeoutError
		upErr      *domain.UpstreamError
		transErr   *domain.TransformationError
	)
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.As(err, &capErr):
		return "rejected"
	case errors.As(err, &noneErr):
		return "no_backend"
	case errors.As(err, &timeoutErr):
		return "timeout"
	case errors.As(err, &transErr):
		return "transform_error"
	case errors.As(err, &upErr):
		if upErr.Retryable() {
			return "upstream_error"
		}
		return "client_error"
	case errors.Is(err, domain.ErrMalformedPayload):
		return "client_error"
	default:
		return "error"
	}
}
