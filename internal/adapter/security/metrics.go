package security

import (
	"context"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/thushan/flowgate/internal/core/constants"
	"github.com/thushan/flowgate/internal/core/ports"
	"github.com/thushan/flowgate/internal/logger"
	"github.com/thushan/flowgate/pkg/format"
)

const largeRequestWarnBytes = 50 * 1024 * 1024

// MetricsAdapter counts violations for /internal/status and forwards rate
// limit rejections to the prometheus recorder.
type MetricsAdapter struct {
	recorder    ports.MetricsRecorder
	logger      logger.StyledLogger
	limitedIPs  *xsync.Map[string, struct{}]
	rateLimited atomic.Int64
	oversized   atomic.Int64
}

func NewSecurityMetricsAdapter(recorder ports.MetricsRecorder, log logger.StyledLogger) *MetricsAdapter {
	if recorder == nil {
		recorder = ports.NoopMetrics{}
	}
	return &MetricsAdapter{
		recorder:   recorder,
		logger:     log,
		limitedIPs: xsync.NewMap[string, struct{}](),
	}
}

func (sma *MetricsAdapter) RecordViolation(_ context.Context, violation ports.SecurityViolation) error {
	switch violation.ViolationType {
	case constants.ViolationRateLimit:
		sma.rateLimited.Add(1)
		sma.limitedIPs.Store(violation.ClientID, struct{}{})
		sma.recorder.RecordRateLimited(violation.Scope)
	case constants.ViolationSizeLimit:
		sma.oversized.Add(1)
		if violation.Size > largeRequestWarnBytes {
			sma.logger.Warn("Large request blocked",
				"client_id", violation.ClientID,
				"size", format.Bytes(violation.Size),
				"endpoint", violation.Endpoint)
		}
	}
	return nil
}

func (sma *MetricsAdapter) GetMetrics(_ context.Context) (ports.SecurityMetrics, error) {
	return ports.SecurityMetrics{
		RateLimitViolations:  sma.rateLimited.Load(),
		SizeLimitViolations:  sma.oversized.Load(),
		UniqueRateLimitedIPs: sma.limitedIPs.Size(),
	}, nil
}
