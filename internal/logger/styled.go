package logger

import (
	"log/slog"

	"github.com/thushan/flowgate/internal/core/domain"
)

// StyledLogger is what every component logs through. The pretty variant
// colours backend names and states, the plain one is for JSON sinks and
// tests.
type StyledLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	InfoWithCount(msg string, count int, args ...any)
	InfoWithBackend(msg string, backend string, args ...any)
	WarnWithBackend(msg string, backend string, args ...any)
	ErrorWithBackend(msg string, backend string, args ...any)
	InfoWithFrontend(msg string, frontend string, args ...any)
	InfoHealthState(msg string, backend string, state domain.HealthState, args ...any)
	InfoModelSync(msg string, backend string, model string, status domain.ModelSyncStatus, args ...any)

	GetUnderlying() *slog.Logger
	With(args ...any) StyledLogger
	WithRequestID(requestID string) StyledLogger
}
