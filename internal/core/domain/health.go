package domain

import "time"

type HealthState string

const (
	HealthUnknown   HealthState = "unknown"
	HealthHealthy   HealthState = "healthy"
	HealthUnhealthy HealthState = "unhealthy"
)

func (s HealthState) IsHealthy() bool {
	return s == HealthHealthy
}

func (s HealthState) String() string {
	return string(s)
}

// HealthRecord is the last known state of one backend. Unknown holds until
// the first probe completes.
type HealthRecord struct {
	BackendID           string        `json:"backend_id"`
	State               HealthState   `json:"state"`
	TransitionedAt      time.Time     `json:"transitioned_at"`
	LastProbe           time.Time     `json:"last_probe"`
	LastLatency         time.Duration `json:"last_latency"`
	LastError           string        `json:"last_error,omitempty"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
}

// HealthTransition is published whenever a probe changes a backend's state.
type HealthTransition struct {
	At        time.Time
	BackendID string
	From      HealthState
	To        HealthState
}

func (t HealthTransition) WentDown() bool {
	return t.From != HealthUnhealthy && t.To == HealthUnhealthy
}

func (t HealthTransition) CameUp() bool {
	return t.From != HealthHealthy && t.To == HealthHealthy
}

// ProbeResult is the outcome of a single probe against a backend.
type ProbeResult struct {
	Err        error
	State      HealthState
	StatusCode int
	Latency    time.Duration
}
