package affinity

import (
	"context"
	"errors"
	"time"

	"github.com/thushan/flowgate/internal/core/domain"
	"github.com/thushan/flowgate/internal/core/ports"
	"github.com/thushan/flowgate/internal/logger"
)

// Table resolves sticky keys against the live directory and health state.
// Stale entries are dropped on lookup rather than swept, so staleness is
// bounded by the probe interval.
type Table struct {
	store    ports.AffinityStore
	backends ports.BackendDirectory
	health   ports.HealthReader
	metrics  ports.MetricsRecorder
	logger   logger.StyledLogger
	now      func() time.Time
}

var _ ports.AffinityTable = (*Table)(nil)

func NewTable(store ports.AffinityStore, backends ports.BackendDirectory, health ports.HealthReader, metrics ports.MetricsRecorder, log logger.StyledLogger) *Table {
	if metrics == nil {
		metrics = ports.NoopMetrics{}
	}
	return &Table{
		store:    store,
		backends: backends,
		health:   health,
		metrics:  metrics,
		logger:   log,
		now:      time.Now,
	}
}

func (t *Table) Resolve(ctx context.Context, frontend *domain.Frontend, key string) (*domain.Backend, bool) {
	if key == "" {
		return nil, false
	}

	entry, found, err := t.store.Get(ctx, frontend.ID, key)
	if err != nil {
		t.logger.Warn("Affinity lookup failed", "frontend", frontend.ID, "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}

	reason := ""
	var backend *domain.Backend
	switch {
	case !frontend.HasMember(entry.BackendID):
		reason = "no longer a member"
	case !t.health.State(entry.BackendID).IsHealthy():
		reason = "not healthy"
	default:
		backend, err = t.backends.Get(ctx, entry.BackendID)
		if errors.Is(err, domain.ErrBackendNotFound) {
			reason = "backend removed"
		} else if err != nil {
			t.logger.Warn("Affinity backend lookup failed", "backend", entry.BackendID, "error", err)
			return nil, false
		}
	}

	if reason != "" {
		if err := t.store.Delete(ctx, frontend.ID, key); err != nil {
			t.logger.Warn("Failed to evict affinity entry", "frontend", frontend.ID, "error", err)
		}
		t.logger.Debug("Evicted stale affinity entry", "frontend", frontend.ID, "backend", entry.BackendID, "reason", reason)
		t.publishCount(ctx)
		return nil, false
	}

	if err := t.store.Touch(ctx, frontend.ID, key, entry.BackendID, t.now()); err != nil {
		t.logger.Debug("Failed to touch affinity entry", "frontend", frontend.ID, "error", err)
	}
	return backend, true
}

func (t *Table) Bind(ctx context.Context, frontend *domain.Frontend, key string, backendID string) error {
	if key == "" {
		return nil
	}
	if !frontend.HasMember(backendID) {
		return &domain.ConfigurationError{
			Field:  "frontend.backends",
			Reason: "cannot bind " + backendID + ": not a member of " + frontend.ID,
			Err:    domain.ErrBackendNotFound,
		}
	}

	now := t.now()
	entry := &domain.AffinityEntry{
		CreatedAt:  now,
		LastUsed:   now,
		FrontendID: frontend.ID,
		Key:        key,
		BackendID:  backendID,
	}
	if err := t.store.Put(ctx, entry); err != nil {
		return err
	}
	t.publishCount(ctx)
	return nil
}

// EvictBackend drops every entry pointing at the backend.
func (t *Table) EvictBackend(ctx context.Context, backendID string) int {
	n, err := t.store.DeleteByBackend(ctx, backendID)
	if err != nil {
		t.logger.WarnWithBackend("Failed to evict affinity entries", backendID, "error", err)
		return 0
	}
	if n > 0 {
		t.logger.InfoWithBackend("Evicted sticky sessions", backendID, "count", n)
	}
	t.publishCount(ctx)
	return n
}

func (t *Table) Entries(ctx context.Context) []domain.AffinityEntry {
	entries, err := t.store.List(ctx)
	if err != nil {
		t.logger.Warn("Failed to list affinity entries", "error", err)
		return nil
	}
	return entries
}

func (t *Table) publishCount(ctx context.Context) {
	if n, err := t.store.Count(ctx); err == nil {
		t.metrics.SetAffinityEntries(n)
	}
}
