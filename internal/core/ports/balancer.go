package ports

import (
	"context"

	"github.com/thushan/flowgate/internal/core/domain"
)

// Selection is the ordered list of backends to try for one request.
// Sticky is true when the first candidate came from an affinity binding.
type Selection struct {
	Candidates []*domain.Backend
	Sticky     bool
}

func (s Selection) Empty() bool {
	return len(s.Candidates) == 0
}

type Balancer interface {
	Name() string
	SelectCandidates(ctx context.Context, frontend *domain.Frontend, stickyKey string) (Selection, error)
}
