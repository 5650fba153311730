package health

import (
	"context"

	"github.com/thushan/flowgate/internal/core/domain"
)

// RecoveryCallback is called when a backend becomes healthy, including its
// first successful probe.
type RecoveryCallback interface {
	OnBackendRecovered(ctx context.Context, backend *domain.Backend) error
}

// RecoveryCallbackFunc is a function adapter for RecoveryCallback
type RecoveryCallbackFunc func(ctx context.Context, backend *domain.Backend) error

func (f RecoveryCallbackFunc) OnBackendRecovered(ctx context.Context, backend *domain.Backend) error {
	return f(ctx, backend)
}

type NoOpRecoveryCallback struct{}

func (NoOpRecoveryCallback) OnBackendRecovered(context.Context, *domain.Backend) error {
	return nil
}
