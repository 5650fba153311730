package services

import (
	"fmt"
	"sync"
)

// Service names, also used as dependency keys.
const (
	NameMetrics   = "metrics"
	NameDirectory = "directory"
	NameModelSync = "modelsync"
	NameHealth    = "health"
	NameAffinity  = "affinity"
	NameProxy     = "proxy"
	NameSecurity  = "security"
	NameHTTP      = "http"
	NameProfiler  = "profiler"
)

// ServiceRegistry looks services up by name once registration is done.
type ServiceRegistry struct {
	services map[string]ManagedService
	mu       sync.RWMutex
}

func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{
		services: make(map[string]ManagedService),
	}
}

func (r *ServiceRegistry) Register(name string, service ManagedService) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[name] = service
}

func (r *ServiceRegistry) Get(name string) (ManagedService, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	service, exists := r.services[name]
	if !exists {
		return nil, fmt.Errorf("service %s not found", name)
	}
	return service, nil
}

// Lookup fetches a service and asserts its concrete type.
func Lookup[T ManagedService](r *ServiceRegistry, name string) (T, error) {
	var zero T
	service, err := r.Get(name)
	if err != nil {
		return zero, err
	}
	typed, ok := service.(T)
	if !ok {
		return zero, fmt.Errorf("service %s is a %T, not a %T", name, service, zero)
	}
	return typed, nil
}

func (r *ServiceRegistry) GetHTTP() (*HTTPService, error) {
	return Lookup[*HTTPService](r, NameHTTP)
}
