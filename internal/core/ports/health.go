package ports

import (
	"context"

	"github.com/thushan/flowgate/internal/core/domain"
)

// HealthReader is the read side of the health monitor used on the
// request path.
type HealthReader interface {
	State(backendID string) domain.HealthState
}

type HealthMonitor interface {
	HealthReader
	Probe(ctx context.Context, backend *domain.Backend) domain.ProbeResult
	Record(backendID string) (domain.HealthRecord, bool)
	Records() []domain.HealthRecord
	Track(backend *domain.Backend)
	Untrack(backendID string)
	Subscribe(ctx context.Context) (<-chan domain.HealthTransition, func())
}
