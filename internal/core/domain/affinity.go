package domain

import "time"

// AffinityEntry pins a sticky key on a frontend to one backend.
type AffinityEntry struct {
	CreatedAt  time.Time `json:"created_at"`
	LastUsed   time.Time `json:"last_used"`
	FrontendID string    `json:"frontend_id"`
	Key        string    `json:"key"`
	BackendID  string    `json:"backend_id"`
}
