package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/thushan/flowgate/internal/core/constants"
	"github.com/thushan/flowgate/internal/logger"
	"github.com/thushan/flowgate/internal/util"
	"github.com/thushan/flowgate/pkg/format"
)

type contextKey string

const LoggerKey contextKey = "logger"

// IsProxyRequest reports whether the path belongs to the Ollama or OpenAI
// surface. Those requests log their own summary in the handler, so the
// middleware drops them to debug to avoid saying everything twice.
func IsProxyRequest(path string) bool {
	return strings.HasPrefix(path, "/api/") || strings.HasPrefix(path, "/v1/")
}

// responseWriter wraps http.ResponseWriter to capture response size and status
type responseWriter struct {
	http.ResponseWriter
	status int
	size   int64
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(b)
	rw.size += int64(size)
	return size, err
}

func (rw *responseWriter) WriteHeader(s int) {
	rw.status = s
	rw.ResponseWriter.WriteHeader(s)
}

// Flush passes through so streamed chunks are not held back by the wrapper.
func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// GetLogger retrieves a logger with request ID from context
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(constants.ContextRequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// EnhancedLoggingMiddleware assigns the request ID, echoes it to the client
// and logs the start and end of every request.
func EnhancedLoggingMiddleware(styledLogger logger.StyledLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := util.RequestIDFrom(r, constants.HeaderRequestID)

			requestSize := r.ContentLength
			if requestSize < 0 {
				requestSize = 0
			}

			baseLogger := styledLogger.GetUnderlying().With("request_id", requestID)
			ctx := context.WithValue(r.Context(), constants.ContextRequestIDKey, requestID)
			ctx = context.WithValue(ctx, constants.ContextRequestTimeKey, start)
			ctx = context.WithValue(ctx, LoggerKey, baseLogger)

			w.Header().Set(constants.HeaderRequestID, requestID)
			wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			logFields := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"host", r.Host,
				"remote_addr", r.RemoteAddr,
				"user_agent", r.UserAgent(),
				"request_bytes", requestSize,
			}
			proxied := IsProxyRequest(r.URL.Path)
			if proxied {
				baseLogger.Debug("HTTP request started", logFields...)
			} else {
				baseLogger.Info("Request started", logFields...)
			}

			next.ServeHTTP(wrapped, r.WithContext(ctx))

			duration := time.Since(start)
			completionFields := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.status,
				"duration_ms", duration.Milliseconds(),
				"duration_formatted", format.Latency(duration),
				"request_bytes", requestSize,
				"response_bytes", wrapped.size,
				"size_flow", format.Bytes(requestSize) + " -> " + format.Bytes(wrapped.size),
			}
			if proxied {
				baseLogger.Debug("HTTP request completed", completionFields...)
			} else {
				baseLogger.Info("Request completed", completionFields...)
			}
		})
	}
}

// AccessLoggingMiddleware writes one detailed line per request to the file
// log only.
func AccessLoggingMiddleware(styledLogger logger.StyledLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := GetRequestID(r.Context())
			if requestID == "" {
				requestID = util.RequestIDFrom(r, constants.HeaderRequestID)
				r = r.WithContext(context.WithValue(r.Context(), constants.ContextRequestIDKey, requestID))
			}

			requestSize := r.ContentLength
			if requestSize < 0 {
				requestSize = 0
			}

			wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)
			styledLogger.GetUnderlying().InfoContext(logger.WithDetailed(r.Context()), "Access log",
				"timestamp", start.Format(time.RFC3339),
				"request_id", requestID,
				"remote_addr", r.RemoteAddr,
				"method", r.Method,
				"host", r.Host,
				"path", r.URL.Path,
				"query", r.URL.RawQuery,
				"status", wrapped.status,
				"request_bytes", requestSize,
				"response_bytes", wrapped.size,
				"duration_ms", duration.Milliseconds(),
				"user_agent", r.UserAgent(),
				"backend", wrapped.Header().Get(constants.HeaderBackend),
				"content_type", r.Header.Get(constants.ContentTypeHeader))
		})
	}
}
