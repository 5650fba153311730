package directory

import (
	"context"
	"slices"
	"strings"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/thushan/flowgate/internal/core/domain"
	"github.com/thushan/flowgate/internal/core/ports"
)

// MemoryBackendDirectory keeps backends in a concurrent map. Records are
// copied on the way in and out so callers never share a pointer with the
// directory.
type MemoryBackendDirectory struct {
	backends *xsync.Map[string, *domain.Backend]
}

func NewMemoryBackendDirectory() *MemoryBackendDirectory {
	return &MemoryBackendDirectory{backends: xsync.NewMap[string, *domain.Backend]()}
}

func (d *MemoryBackendDirectory) GetAll(_ context.Context) ([]*domain.Backend, error) {
	out := make([]*domain.Backend, 0, d.backends.Size())
	d.backends.Range(func(_ string, b *domain.Backend) bool {
		out = append(out, cloneBackend(b))
		return true
	})
	slices.SortFunc(out, func(a, b *domain.Backend) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (d *MemoryBackendDirectory) Get(_ context.Context, id string) (*domain.Backend, error) {
	b, ok := d.backends.Load(id)
	if !ok {
		return nil, domain.ErrBackendNotFound
	}
	return cloneBackend(b), nil
}

func (d *MemoryBackendDirectory) Create(_ context.Context, backend *domain.Backend) error {
	if err := backend.Validate(); err != nil {
		return err
	}
	d.backends.Store(backend.ID, cloneBackend(backend))
	return nil
}

func (d *MemoryBackendDirectory) Delete(_ context.Context, id string) (bool, error) {
	_, existed := d.backends.LoadAndDelete(id)
	return existed, nil
}

// MemoryFrontendDirectory checks member references against the backend
// directory on Create.
type MemoryFrontendDirectory struct {
	frontends *xsync.Map[string, *domain.Frontend]
	backends  ports.BackendDirectory
}

func NewMemoryFrontendDirectory(backends ports.BackendDirectory) *MemoryFrontendDirectory {
	return &MemoryFrontendDirectory{
		frontends: xsync.NewMap[string, *domain.Frontend](),
		backends:  backends,
	}
}

func (d *MemoryFrontendDirectory) GetAll(_ context.Context) ([]*domain.Frontend, error) {
	out := make([]*domain.Frontend, 0, d.frontends.Size())
	d.frontends.Range(func(_ string, f *domain.Frontend) bool {
		out = append(out, cloneFrontend(f))
		return true
	})
	slices.SortFunc(out, func(a, b *domain.Frontend) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (d *MemoryFrontendDirectory) Get(_ context.Context, id string) (*domain.Frontend, error) {
	f, ok := d.frontends.Load(id)
	if !ok {
		return nil, domain.ErrFrontendNotFound
	}
	return cloneFrontend(f), nil
}

func (d *MemoryFrontendDirectory) Create(ctx context.Context, frontend *domain.Frontend) error {
	if err := frontend.Validate(); err != nil {
		return err
	}
	if err := validateMembers(ctx, d.backends, frontend); err != nil {
		return err
	}
	d.frontends.Store(frontend.ID, cloneFrontend(frontend))
	return nil
}

func (d *MemoryFrontendDirectory) Delete(_ context.Context, id string) (bool, error) {
	_, existed := d.frontends.LoadAndDelete(id)
	return existed, nil
}

func (d *MemoryFrontendDirectory) FindByHost(ctx context.Context, host string) (*domain.Frontend, error) {
	all, _ := d.GetAll(ctx)
	return matchHost(all, host)
}

// matchHost prefers an exact hostname over the catch-all.
func matchHost(frontends []*domain.Frontend, host string) (*domain.Frontend, error) {
	var catchAll *domain.Frontend
	for _, f := range frontends {
		if f.IsCatchAll() {
			if catchAll == nil {
				catchAll = f
			}
			continue
		}
		if f.MatchesHost(host) {
			return f, nil
		}
	}
	if catchAll != nil {
		return catchAll, nil
	}
	return nil, domain.ErrFrontendNotFound
}

// validateMembers enforces that every member id names an existing backend.
func validateMembers(ctx context.Context, backends ports.BackendDirectory, f *domain.Frontend) error {
	if backends == nil {
		return nil
	}
	var missing []string
	for _, id := range f.Backends {
		if _, err := backends.Get(ctx, id); err != nil {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return &domain.ConfigurationError{
			Field:  "frontend." + f.ID + ".backends",
			Reason: "references unknown backends: " + strings.Join(missing, ", "),
			Err:    domain.ErrBackendNotFound,
		}
	}
	return nil
}

func cloneBackend(b *domain.Backend) *domain.Backend {
	c := *b
	c.Pinned = b.Pinned.Clone()
	return &c
}

func cloneFrontend(f *domain.Frontend) *domain.Frontend {
	c := *f
	c.Backends = slices.Clone(f.Backends)
	c.RequiredModels = slices.Clone(f.RequiredModels)
	c.Pinned = f.Pinned.Clone()
	return &c
}
