package ports

import (
	"context"

	"github.com/thushan/flowgate/internal/core/domain"
)

// ReadinessReader reports whether every model required of a backend is
// available on it.
type ReadinessReader interface {
	Ready(backendID string) bool
}

type ModelSynchronizer interface {
	ReadinessReader
	// Reconcile schedules a reconciliation pass and returns without
	// waiting for pulls to complete.
	Reconcile(ctx context.Context, backendID string) error
	ReconcileAll(ctx context.Context) error
	Status(backendID, model string) domain.ModelSyncStatus
	Records(backendID string) []domain.ModelSyncRecord
	Forget(backendID string)
}

// ModelClient lists and pulls models in one backend dialect.
type ModelClient interface {
	ListModels(ctx context.Context, backend *domain.Backend) ([]string, error)
	PullModel(ctx context.Context, backend *domain.Backend, model string, progress func(domain.PullProgress)) error
}
