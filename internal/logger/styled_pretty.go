package logger

import (
	"fmt"
	"log/slog"

	"github.com/pterm/pterm"

	"github.com/thushan/flowgate/internal/core/domain"
	"github.com/thushan/flowgate/theme"
)

type PrettyStyledLogger struct {
	logger *slog.Logger
	Theme  *theme.Theme
}

func NewPrettyStyledLogger(logger *slog.Logger, theme *theme.Theme) *PrettyStyledLogger {
	return &PrettyStyledLogger{
		logger: logger,
		Theme:  theme,
	}
}

func (sl *PrettyStyledLogger) Debug(msg string, args ...any) { sl.logger.Debug(msg, args...) }
func (sl *PrettyStyledLogger) Info(msg string, args ...any)  { sl.logger.Info(msg, args...) }
func (sl *PrettyStyledLogger) Warn(msg string, args ...any)  { sl.logger.Warn(msg, args...) }
func (sl *PrettyStyledLogger) Error(msg string, args ...any) { sl.logger.Error(msg, args...) }

func (sl *PrettyStyledLogger) InfoWithCount(msg string, count int, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.NewStyle(sl.Theme.Counts).Sprint("(", count, ")"))
	sl.logger.Info(styledMsg, args...)
}

func (sl *PrettyStyledLogger) InfoWithBackend(msg string, backend string, args ...any) {
	sl.logger.Info(sl.withName(msg, backend, sl.Theme.Backend), args...)
}

func (sl *PrettyStyledLogger) WarnWithBackend(msg string, backend string, args ...any) {
	sl.logger.Warn(sl.withName(msg, backend, sl.Theme.Backend), args...)
}

func (sl *PrettyStyledLogger) ErrorWithBackend(msg string, backend string, args ...any) {
	sl.logger.Error(sl.withName(msg, backend, sl.Theme.Backend), args...)
}

func (sl *PrettyStyledLogger) InfoWithFrontend(msg string, frontend string, args ...any) {
	sl.logger.Info(sl.withName(msg, frontend, sl.Theme.Frontend), args...)
}

func (sl *PrettyStyledLogger) InfoHealthState(msg string, backend string, state domain.HealthState, args ...any) {
	var colour pterm.Color
	switch state {
	case domain.HealthHealthy:
		colour = sl.Theme.HealthHealthy
	case domain.HealthUnhealthy:
		colour = sl.Theme.HealthUnhealthy
	default:
		colour = sl.Theme.HealthUnknown
	}
	styledMsg := fmt.Sprintf("%s %s is %s", msg,
		pterm.NewStyle(sl.Theme.Backend).Sprint(backend),
		pterm.NewStyle(colour).Sprint(state.String()))
	sl.logger.Info(styledMsg, args...)
}

func (sl *PrettyStyledLogger) InfoModelSync(msg string, backend string, model string, status domain.ModelSyncStatus, args ...any) {
	var colour pterm.Color
	switch status {
	case domain.SyncAvailable:
		colour = sl.Theme.SyncAvailable
	case domain.SyncFailed:
		colour = sl.Theme.SyncFailed
	default:
		colour = sl.Theme.SyncSyncing
	}
	styledMsg := fmt.Sprintf("%s %s on %s [%s]", msg,
		pterm.NewStyle(sl.Theme.Model).Sprint(model),
		pterm.NewStyle(sl.Theme.Backend).Sprint(backend),
		pterm.NewStyle(colour).Sprint(status.String()))
	sl.logger.Info(styledMsg, args...)
}

func (sl *PrettyStyledLogger) GetUnderlying() *slog.Logger {
	return sl.logger
}

func (sl *PrettyStyledLogger) With(args ...any) StyledLogger {
	return &PrettyStyledLogger{logger: sl.logger.With(args...), Theme: sl.Theme}
}

func (sl *PrettyStyledLogger) WithRequestID(requestID string) StyledLogger {
	return sl.With("request_id", requestID)
}

func (sl *PrettyStyledLogger) withName(msg, name string, colour pterm.Color) string {
	return fmt.Sprintf("%s %s", msg, pterm.NewStyle(colour).Sprint(name))
}
