package security

import (
	"net/http"

	"github.com/thushan/flowgate/internal/config"
	"github.com/thushan/flowgate/internal/core/ports"
	"github.com/thushan/flowgate/internal/logger"
)

type Adapters struct {
	RateLimit      *RateLimitValidator
	SizeValidation *SizeValidator
	Metrics        *MetricsAdapter
}

// NewSecurityAdapters wires the validators so the router can wrap routes
// with them.
func NewSecurityAdapters(cfg config.ServerConfig, recorder ports.MetricsRecorder, log logger.StyledLogger) *Adapters {
	metricsAdapter := NewSecurityMetricsAdapter(recorder, log)
	rateLimitValidator := NewRateLimitValidator(cfg.RateLimits, metricsAdapter, log)
	sizeValidator := NewSizeValidator(cfg.RequestLimits, metricsAdapter, log)

	return &Adapters{
		RateLimit:      rateLimitValidator,
		SizeValidation: sizeValidator,
		Metrics:        metricsAdapter,
	}
}

func (sa *Adapters) Stop() {
	if sa.RateLimit != nil {
		sa.RateLimit.Stop()
	}
}

// CreateChainMiddleware guards the inference routes with rate and size
// limits. The rate limit runs first as the cheaper refusal.
func (sa *Adapters) CreateChainMiddleware() func(http.Handler) http.Handler {
	rateLimit := sa.RateLimit.CreateMiddleware()
	size := sa.SizeValidation.CreateMiddleware()
	return func(next http.Handler) http.Handler {
		return rateLimit(size(next))
	}
}

// CreateRateLimitMiddleware guards the status and admin routes.
func (sa *Adapters) CreateRateLimitMiddleware() func(http.Handler) http.Handler {
	if sa.RateLimit != nil {
		return sa.RateLimit.CreateMiddleware()
	}
	return func(next http.Handler) http.Handler {
		return next
	}
}
