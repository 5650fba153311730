package ports

import (
	"time"

	"github.com/thushan/flowgate/internal/core/domain"
)

// MetricsRecorder receives counters from the request path and the
// background loops.
type MetricsRecorder interface {
	RecordDispatch(frontendID, backendID string, kind domain.RequestKind, outcome string, latency time.Duration)
	RecordRetry(frontendID, backendID string)
	RecordTransformationError(source, target domain.Dialect, stage string)
	RecordRateLimited(scope string)
	SetBackendHealth(backendID string, state domain.HealthState)
	SetAffinityEntries(n int)
	SetModelSyncStatus(backendID string, counts map[domain.ModelSyncStatus]int)
	ForgetBackend(backendID string)
}

// NoopMetrics discards everything, used by tests and when metrics are off.
type NoopMetrics struct{}

func (NoopMetrics) RecordDispatch(string, string, domain.RequestKind, string, time.Duration) {}
func (NoopMetrics) RecordRetry(string, string)                                               {}
func (NoopMetrics) RecordTransformationError(domain.Dialect, domain.Dialect, string)         {}
func (NoopMetrics) RecordRateLimited(string)                                                 {}
func (NoopMetrics) SetBackendHealth(string, domain.HealthState)                              {}
func (NoopMetrics) SetAffinityEntries(int)                                                   {}
func (NoopMetrics) SetModelSyncStatus(string, map[domain.ModelSyncStatus]int)                {}
func (NoopMetrics) ForgetBackend(string)                                                     {}
