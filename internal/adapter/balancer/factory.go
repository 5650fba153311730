package balancer

import (
	"fmt"
	"slices"
	"sync"

	"github.com/thushan/flowgate/internal/core/domain"
	"github.com/thushan/flowgate/internal/core/ports"
)

const DefaultBalancerRoundRobin = string(domain.LoadBalancingRoundRobin)

// Dependencies is what every balancer strategy reads from.
type Dependencies struct {
	Backends  ports.BackendDirectory
	Health    ports.HealthReader
	Affinity  ports.AffinityTable
	Readiness ports.ReadinessReader // nil unless model readiness gates routing
}

type Factory struct {
	creators map[string]func(Dependencies) ports.Balancer
	deps     Dependencies
	mu       sync.RWMutex
}

func NewFactory(deps Dependencies) *Factory {
	factory := &Factory{
		creators: make(map[string]func(Dependencies) ports.Balancer),
		deps:     deps,
	}

	factory.Register(DefaultBalancerRoundRobin, func(d Dependencies) ports.Balancer {
		return NewRoundRobinSelector(d)
	})

	return factory
}

func (f *Factory) Register(name string, creator func(Dependencies) ports.Balancer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creators[name] = creator
}

func (f *Factory) Create(name string) (ports.Balancer, error) {
	f.mu.RLock()
	creator, exists := f.creators[name]
	f.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown load balancer strategy: %s", name)
	}

	return creator(f.deps), nil
}

func (f *Factory) GetAvailableStrategies() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	strategies := make([]string, 0, len(f.creators))
	for name := range f.creators {
		strategies = append(strategies, name)
	}
	slices.Sort(strategies)
	return strategies
}
