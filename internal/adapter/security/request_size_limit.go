package security

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/thushan/flowgate/internal/config"
	"github.com/thushan/flowgate/internal/core/constants"
	"github.com/thushan/flowgate/internal/core/ports"
	"github.com/thushan/flowgate/internal/logger"
	"github.com/thushan/flowgate/pkg/format"
)

const DefaultProtocol = "HTTP/1.1"

// SizeValidator rejects oversized requests before a handler reads the
// body. Bodies without a Content-Length are capped with MaxBytesReader.
type SizeValidator struct {
	metrics       ports.SecurityMetricsService
	logger        logger.StyledLogger
	maxBodySize   int64
	maxHeaderSize int64
}

func NewSizeValidator(limits config.ServerRequestLimits, metrics ports.SecurityMetricsService, log logger.StyledLogger) *SizeValidator {
	return &SizeValidator{
		maxBodySize:   limits.MaxBodySize,
		maxHeaderSize: limits.MaxHeaderSize,
		metrics:       metrics,
		logger:        log,
	}
}

func (sv *SizeValidator) Name() string {
	return "size_limit"
}

func (sv *SizeValidator) Validate(_ context.Context, req ports.SecurityRequest) (ports.SecurityResult, error) {
	if sv.maxHeaderSize > 0 && req.HeaderSize > sv.maxHeaderSize {
		return ports.SecurityResult{
			Allowed: false,
			Scope:   "header",
			Reason:  fmt.Sprintf("header size %s exceeds limit %s", format.Bytes(req.HeaderSize), format.Bytes(sv.maxHeaderSize)),
		}, nil
	}

	if sv.maxBodySize > 0 && req.BodySize > sv.maxBodySize {
		return ports.SecurityResult{
			Allowed: false,
			Scope:   "body",
			Reason:  fmt.Sprintf("content-length %s exceeds limit %s", format.Bytes(req.BodySize), format.Bytes(sv.maxBodySize)),
		}, nil
	}

	return ports.SecurityResult{Allowed: true}, nil
}

func (sv *SizeValidator) CreateMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := ports.SecurityRequest{
				Endpoint:   r.URL.Path,
				Method:     r.Method,
				BodySize:   r.ContentLength,
				HeaderSize: estimateHeaderSize(r.Header, r.Method, r.URL.RequestURI(), r.Proto),
				Headers:    r.Header,
			}

			result, err := sv.Validate(r.Context(), req)
			if err != nil {
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			if !result.Allowed {
				sv.logger.Warn("Request rejected",
					"reason", result.Reason,
					"method", r.Method,
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr)

				if sv.metrics != nil {
					_ = sv.metrics.RecordViolation(r.Context(), ports.SecurityViolation{
						ClientID:      r.RemoteAddr,
						ViolationType: constants.ViolationSizeLimit,
						Endpoint:      r.URL.Path,
						Scope:         result.Scope,
						Size:          max(r.ContentLength, req.HeaderSize),
						Timestamp:     time.Now(),
					})
				}

				if result.Scope == "body" {
					http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
				} else {
					http.Error(w, "Request headers too large", http.StatusRequestHeaderFieldsTooLarge)
				}
				return
			}

			if sv.maxBodySize > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, sv.maxBodySize)
			}

			next.ServeHTTP(w, r)
		})
	}
}

func estimateHeaderSize(headers http.Header, method, uri, proto string) int64 {
	totalSize := int64(len(method) + len(uri) + len(proto) + 4) // request line

	for name, values := range headers {
		totalSize += int64(len(name))
		for _, value := range values {
			// ": " plus CRLF
			totalSize += int64(len(value) + 4)
		}
	}

	return totalSize
}
