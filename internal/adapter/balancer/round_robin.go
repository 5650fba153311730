package balancer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/thushan/flowgate/internal/core/domain"
	"github.com/thushan/flowgate/internal/core/ports"
)

// RoundRobinSelector orders a frontend's healthy members by rotating a
// per-frontend cursor that advances on every call, so two consecutive
// fresh selections never start on the same backend while two or more are
// healthy. A live sticky binding always goes first.
type RoundRobinSelector struct {
	deps    Dependencies
	cursors *xsync.Map[string, *atomic.Uint64]
}

var _ ports.Balancer = (*RoundRobinSelector)(nil)

func NewRoundRobinSelector(deps Dependencies) *RoundRobinSelector {
	return &RoundRobinSelector{
		deps:    deps,
		cursors: xsync.NewMap[string, *atomic.Uint64](),
	}
}

func (r *RoundRobinSelector) Name() string {
	return DefaultBalancerRoundRobin
}

func (r *RoundRobinSelector) SelectCandidates(ctx context.Context, frontend *domain.Frontend, stickyKey string) (ports.Selection, error) {
	var sel ports.Selection

	if frontend.StickySessions && stickyKey != "" && r.deps.Affinity != nil {
		if pinned, ok := r.deps.Affinity.Resolve(ctx, frontend, stickyKey); ok {
			sel.Candidates = append(sel.Candidates, pinned)
			sel.Sticky = true
		}
	}

	eligible := make([]*domain.Backend, 0, len(frontend.Backends))
	for _, id := range frontend.Backends {
		if sel.Sticky && sel.Candidates[0].ID == id {
			continue
		}
		if !r.deps.Health.State(id).IsHealthy() {
			continue
		}
		if r.deps.Readiness != nil && !r.deps.Readiness.Ready(id) {
			continue
		}
		b, err := r.deps.Backends.Get(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrBackendNotFound) {
				// removed since the frontend was saved, the directory
				// rejects new frontends naming it
				continue
			}
			return ports.Selection{}, fmt.Errorf("reading backend %s: %w", id, err)
		}
		eligible = append(eligible, b)
	}

	cursor := r.cursor(frontend.ID).Add(1) - 1
	if n := len(eligible); n > 0 {
		start := int(cursor % uint64(n))
		sel.Candidates = append(sel.Candidates, eligible[start:]...)
		sel.Candidates = append(sel.Candidates, eligible[:start]...)
	}
	return sel, nil
}

func (r *RoundRobinSelector) cursor(frontendID string) *atomic.Uint64 {
	c, _ := r.cursors.LoadOrCompute(frontendID, func() (*atomic.Uint64, bool) {
		return &atomic.Uint64{}, false
	})
	return c
}
