package security

/*
	RateLimitValidator enforces a global and a per-IP token bucket on the
	client surfaces. /health gets its own per-IP budget so liveness probes
	never compete with inference traffic. Idle IP buckets are swept on a
	ticker.

	References:
	- https://pkg.go.dev/golang.org/x/time/rate
	- https://datatracker.ietf.org/doc/draft-ietf-httpapi-ratelimit-headers/
*/

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/time/rate"

	"github.com/thushan/flowgate/internal/config"
	"github.com/thushan/flowgate/internal/core/constants"
	"github.com/thushan/flowgate/internal/core/ports"
	"github.com/thushan/flowgate/internal/logger"
	"github.com/thushan/flowgate/internal/util"
)

const idleLimiterTTL = 10 * time.Minute

type RateLimitValidator struct {
	metrics ports.SecurityMetricsService
	logger  logger.StyledLogger

	globalLimiter           *rate.Limiter
	ipLimiters              *xsync.Map[string, *ipLimiterInfo]
	cleanupTicker           *time.Ticker
	stopCleanup             chan struct{}
	trustedCIDRs            []*net.IPNet
	globalRequestsPerMinute int
	perIPRequestsPerMinute  int
	healthRequestsPerMinute int
	burstSize               int
	stopOnce                sync.Once
	trustProxyHeaders       bool
}

type ipLimiterInfo struct {
	lastAccess  time.Time
	windowStart time.Time
	limiter     *rate.Limiter
	tokensUsed  int
	mu          sync.Mutex
}

func NewRateLimitValidator(limits config.ServerRateLimits, metrics ports.SecurityMetricsService, log logger.StyledLogger) *RateLimitValidator {
	burst := limits.BurstSize
	if burst < 1 {
		burst = 1
	}
	rl := &RateLimitValidator{
		globalRequestsPerMinute: limits.GlobalRequestsPerMinute,
		perIPRequestsPerMinute:  limits.PerIPRequestsPerMinute,
		healthRequestsPerMinute: limits.HealthRequestsPerMinute,
		burstSize:               burst,
		trustProxyHeaders:       limits.TrustProxyHeaders,
		trustedCIDRs:            limits.TrustedProxyCIDRsParsed,
		ipLimiters:              xsync.NewMap[string, *ipLimiterInfo](),
		metrics:                 metrics,
		logger:                  log,
		stopCleanup:             make(chan struct{}),
	}

	if limits.GlobalRequestsPerMinute > 0 {
		rl.globalLimiter = rate.NewLimiter(perMinute(limits.GlobalRequestsPerMinute), burst)
	}

	if limits.CleanupInterval > 0 {
		rl.cleanupTicker = time.NewTicker(limits.CleanupInterval)
		go rl.cleanupRoutine()
	}

	return rl
}

func perMinute(n int) rate.Limit {
	return rate.Limit(float64(n) / 60.0)
}

func (rl *RateLimitValidator) Name() string {
	return "rate_limit"
}

// Validate applies the global bucket first, then the client's own bucket.
func (rl *RateLimitValidator) Validate(_ context.Context, req ports.SecurityRequest) (ports.SecurityResult, error) {
	now := time.Now()

	limit := rl.perIPRequestsPerMinute
	if req.IsHealthCheck {
		limit = rl.healthRequestsPerMinute
	}

	if rl.globalLimiter != nil && !req.IsHealthCheck {
		reservation := rl.globalLimiter.ReserveN(now, 1)
		if !reservation.OK() || reservation.DelayFrom(now) > 0 {
			delay := reservation.DelayFrom(now)
			reservation.CancelAt(now)
			return ports.SecurityResult{
				Allowed:    false,
				Scope:      constants.RateLimitScopeGlobal,
				RetryAfter: retryAfter(delay),
				RateLimit:  rl.globalRequestsPerMinute,
				ResetTime:  now.Add(time.Minute),
				Reason:     "global rate limit exceeded",
			}, nil
		}
	}

	if limit <= 0 {
		return ports.SecurityResult{Allowed: true, ResetTime: now.Add(time.Minute)}, nil
	}
	return rl.checkIPLimit(req.ClientID, limit, now, req.IsHealthCheck), nil
}

func (rl *RateLimitValidator) checkIPLimit(clientIP string, limit int, now time.Time, isHealth bool) ports.SecurityResult {
	key := clientIP
	if isHealth {
		key = clientIP + ":health"
	}

	info, _ := rl.ipLimiters.LoadOrCompute(key, func() (*ipLimiterInfo, bool) {
		return &ipLimiterInfo{
			limiter:     rate.NewLimiter(perMinute(limit), rl.burstSize),
			lastAccess:  now,
			windowStart: now,
		}, false
	})

	info.mu.Lock()
	defer info.mu.Unlock()

	info.lastAccess = now
	if now.Sub(info.windowStart) >= time.Minute {
		info.windowStart = now
		info.tokensUsed = 0
	}
	resetAt := info.windowStart.Add(time.Minute)

	reservation := info.limiter.ReserveN(now, 1)
	if !reservation.OK() || reservation.DelayFrom(now) > 0 {
		delay := reservation.DelayFrom(now)
		reservation.CancelAt(now)
		return ports.SecurityResult{
			Allowed:    false,
			Scope:      constants.RateLimitScopePerIP,
			RetryAfter: retryAfter(delay),
			RateLimit:  limit,
			Remaining:  0,
			ResetTime:  resetAt,
			Reason:     "rate limit exceeded",
		}
	}

	info.tokensUsed++
	return ports.SecurityResult{
		Allowed:   true,
		RateLimit: limit,
		Remaining: max(limit-info.tokensUsed, 0),
		ResetTime: resetAt,
	}
}

func retryAfter(delay time.Duration) int {
	if delay <= 0 {
		return 60
	}
	return int(delay.Seconds()) + 1
}

func (rl *RateLimitValidator) cleanupRoutine() {
	for {
		select {
		case <-rl.stopCleanup:
			return
		case <-rl.cleanupTicker.C:
			rl.cleanupOldLimiters(time.Now())
		}
	}
}

func (rl *RateLimitValidator) cleanupOldLimiters(now time.Time) int {
	cutoff := now.Add(-idleLimiterTTL)
	removed := 0
	rl.ipLimiters.Range(func(key string, info *ipLimiterInfo) bool {
		info.mu.Lock()
		idle := info.lastAccess.Before(cutoff)
		info.mu.Unlock()
		if idle {
			rl.ipLimiters.Delete(key)
			removed++
		}
		return true
	})
	return removed
}

func (rl *RateLimitValidator) Stop() {
	rl.stopOnce.Do(func() {
		if rl.cleanupTicker != nil {
			rl.cleanupTicker.Stop()
		}
		close(rl.stopCleanup)
	})
}

func (rl *RateLimitValidator) CreateMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := util.GetClientIP(r, rl.trustProxyHeaders, rl.trustedCIDRs)

			req := ports.SecurityRequest{
				ClientID:      clientIP,
				Endpoint:      r.URL.Path,
				Method:        r.Method,
				IsHealthCheck: r.URL.Path == constants.PathHealth,
			}

			result, err := rl.Validate(r.Context(), req)
			if err != nil {
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			if result.RateLimit > 0 {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.RateLimit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetTime.Unix(), 10))
			}

			if !result.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))

				if rl.metrics != nil {
					_ = rl.metrics.RecordViolation(r.Context(), ports.SecurityViolation{
						ClientID:      clientIP,
						ViolationType: constants.ViolationRateLimit,
						Endpoint:      r.URL.Path,
						Scope:         result.Scope,
						Timestamp:     time.Now(),
					})
				}

				rl.logger.Warn("Rate limit exceeded",
					"client_ip", clientIP,
					"scope", result.Scope,
					"method", r.Method,
					"path", r.URL.Path,
					"retry_after", result.RetryAfter)

				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
