package logger

import (
	"fmt"
	"log/slog"

	"github.com/thushan/flowgate/internal/core/domain"
)

type PlainStyledLogger struct {
	logger *slog.Logger
}

func NewPlainStyledLogger(logger *slog.Logger) *PlainStyledLogger {
	return &PlainStyledLogger{logger: logger}
}

func (sl *PlainStyledLogger) Debug(msg string, args ...any) { sl.logger.Debug(msg, args...) }
func (sl *PlainStyledLogger) Info(msg string, args ...any)  { sl.logger.Info(msg, args...) }
func (sl *PlainStyledLogger) Warn(msg string, args ...any)  { sl.logger.Warn(msg, args...) }
func (sl *PlainStyledLogger) Error(msg string, args ...any) { sl.logger.Error(msg, args...) }

func (sl *PlainStyledLogger) InfoWithCount(msg string, count int, args ...any) {
	sl.logger.Info(fmt.Sprintf("%s (%d)", msg, count), args...)
}

func (sl *PlainStyledLogger) InfoWithBackend(msg string, backend string, args ...any) {
	sl.logger.Info(msg, append([]any{"backend", backend}, args...)...)
}

func (sl *PlainStyledLogger) WarnWithBackend(msg string, backend string, args ...any) {
	sl.logger.Warn(msg, append([]any{"backend", backend}, args...)...)
}

func (sl *PlainStyledLogger) ErrorWithBackend(msg string, backend string, args ...any) {
	sl.logger.Error(msg, append([]any{"backend", backend}, args...)...)
}

func (sl *PlainStyledLogger) InfoWithFrontend(msg string, frontend string, args ...any) {
	sl.logger.Info(msg, append([]any{"frontend", frontend}, args...)...)
}

func (sl *PlainStyledLogger) InfoHealthState(msg string, backend string, state domain.HealthState, args ...any) {
	sl.logger.Info(msg, append([]any{"backend", backend, "state", state.String()}, args...)...)
}

func (sl *PlainStyledLogger) InfoModelSync(msg string, backend string, model string, status domain.ModelSyncStatus, args ...any) {
	sl.logger.Info(msg, append([]any{"backend", backend, "model", model, "status", status.String()}, args...)...)
}

func (sl *PlainStyledLogger) GetUnderlying() *slog.Logger {
	return sl.logger
}

func (sl *PlainStyledLogger) With(args ...any) StyledLogger {
	return &PlainStyledLogger{logger: sl.logger.With(args...)}
}

func (sl *PlainStyledLogger) WithRequestID(requestID string) StyledLogger {
	return sl.With("request_id", requestID)
}
