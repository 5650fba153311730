package ports

import (
	"context"
	"time"

	"github.com/thushan/flowgate/internal/core/domain"
)

// AffinityTable pins sticky keys to backends. Resolve evicts entries whose
// backend is gone, no longer a member or not healthy.
type AffinityTable interface {
	Resolve(ctx context.Context, frontend *domain.Frontend, key string) (*domain.Backend, bool)
	Bind(ctx context.Context, frontend *domain.Frontend, key string, backendID string) error
	EvictBackend(ctx context.Context, backendID string) int
	Entries(ctx context.Context) []domain.AffinityEntry
}

// AffinityStore is where affinity entries live, in process or shared.
type AffinityStore interface {
	Get(ctx context.Context, frontendID, key string) (*domain.AffinityEntry, bool, error)
	Put(ctx context.Context, entry *domain.AffinityEntry) error
	// Touch moves LastUsed forward only while the key is still bound to
	// backendID, so it never resurrects a binding replaced in between.
	Touch(ctx context.Context, frontendID, key, backendID string, at time.Time) error
	Delete(ctx context.Context, frontendID, key string) error
	DeleteByBackend(ctx context.Context, backendID string) (int, error)
	List(ctx context.Context) ([]domain.AffinityEntry, error)
	Count(ctx context.Context) (int, error)
	Close() error
}
