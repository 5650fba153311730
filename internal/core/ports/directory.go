package ports

import (
	"context"

	"github.com/thushan/flowgate/internal/core/domain"
)

// BackendDirectory is the configured set of backends. The core only reads
// snapshots; Create and Delete are driven by the admin surface and seeding.
type BackendDirectory interface {
	GetAll(ctx context.Context) ([]*domain.Backend, error)
	Get(ctx context.Context, id string) (*domain.Backend, error)
	Create(ctx context.Context, backend *domain.Backend) error
	Delete(ctx context.Context, id string) (bool, error)
}

// FrontendDirectory is the configured set of frontends.
type FrontendDirectory interface {
	GetAll(ctx context.Context) ([]*domain.Frontend, error)
	Get(ctx context.Context, id string) (*domain.Frontend, error)
	Create(ctx context.Context, frontend *domain.Frontend) error
	Delete(ctx context.Context, id string) (bool, error)
	FindByHost(ctx context.Context, host string) (*domain.Frontend, error)
}
