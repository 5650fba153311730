package constants

const (
	ViolationRateLimit = "rate_limit"
	ViolationSizeLimit = "size_limit"

	// rate limiter bucket scopes, also the metric label
	RateLimitScopeGlobal = "global"
	RateLimitScopePerIP  = "per_ip"
)
