package domain

import "time"

type ModelSyncStatus string

const (
	SyncPending   ModelSyncStatus = "pending"
	SyncSyncing   ModelSyncStatus = "syncing"
	SyncAvailable ModelSyncStatus = "available"
	SyncFailed    ModelSyncStatus = "failed"
)

func (s ModelSyncStatus) String() string {
	return string(s)
}

// ModelSyncRecord tracks one model on one backend.
type ModelSyncRecord struct {
	UpdatedAt time.Time       `json:"updated_at"`
	BackendID string          `json:"backend_id"`
	Model     string          `json:"model"`
	Status    ModelSyncStatus `json:"status"`
	Detail    string          `json:"detail,omitempty"`
	Completed int64           `json:"completed,omitempty"`
	Total     int64           `json:"total,omitempty"`
}

// PullProgress is one progress update from a model pull.
type PullProgress struct {
	Status    string
	Completed int64
	Total     int64
}
