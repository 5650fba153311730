package util

import (
	"time"

	"github.com/thushan/flowgate/internal/core/constants"
)

// NextBackoffMultiplier doubles the probe multiplier after a failure,
// capped at DefaultMaxBackoffMultiplier (1, 2, 4, 8, 12).
func NextBackoffMultiplier(current int) int {
	if current <= 0 {
		return 1
	}
	next := current * 2
	if next > constants.DefaultMaxBackoffMultiplier {
		next = constants.DefaultMaxBackoffMultiplier
	}
	return next
}

// CalculateProbeBackoff stretches the probe interval of a failing backend,
// never beyond DefaultMaxBackoffSeconds and never below the interval.
func CalculateProbeBackoff(interval time.Duration, multiplier int) time.Duration {
	if multiplier <= 1 {
		return interval
	}
	backoff := interval * time.Duration(multiplier)
	if backoff > constants.DefaultMaxBackoffSeconds {
		backoff = constants.DefaultMaxBackoffSeconds
	}
	if backoff < interval {
		return interval
	}
	return backoff
}
