package modelsync

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/thushan/flowgate/internal/core/domain"
	"github.com/thushan/flowgate/internal/core/ports"
	"github.com/thushan/flowgate/internal/logger"
	"github.com/thushan/flowgate/internal/util"
	"github.com/thushan/flowgate/pkg/format"
)

const (
	DefaultPullTimeout = 30 * time.Minute
	DefaultConcurrency = 2
)

type Config struct {
	Schedule    string
	PullTimeout time.Duration
	Concurrency int
}

// Synchronizer keeps each backend's local models in line with what the
// frontends referencing it require. Reconciliation runs in the background
// and never blocks the request path.
type Synchronizer struct {
	backends  ports.BackendDirectory
	frontends ports.FrontendDirectory
	clients   map[domain.Dialect]ports.ModelClient
	metrics   ports.MetricsRecorder
	logger    logger.StyledLogger
	states    *xsync.Map[string, *backendState]
	cron      *cron.Cron
	ctx       context.Context
	cancel    context.CancelFunc
	config    Config
	wg        sync.WaitGroup
	mu        sync.Mutex
	running   bool
}

// backendState holds the records of one backend. Its lock is never held
// across network calls.
type backendState struct {
	models     map[string]*domain.ModelSyncRecord // keyed by normalised name
	mu         sync.RWMutex
	running    atomic.Bool
	again      atomic.Bool
	reconciled bool
}

var _ ports.ModelSynchronizer = (*Synchronizer)(nil)

func NewSynchronizer(
	backends ports.BackendDirectory,
	frontends ports.FrontendDirectory,
	clients map[domain.Dialect]ports.ModelClient,
	config Config,
	metrics ports.MetricsRecorder,
	log logger.StyledLogger,
) *Synchronizer {
	if config.PullTimeout <= 0 {
		config.PullTimeout = DefaultPullTimeout
	}
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConcurrency
	}
	if metrics == nil {
		metrics = ports.NoopMetrics{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Synchronizer{
		backends:  backends,
		frontends: frontends,
		clients:   clients,
		metrics:   metrics,
		logger:    log,
		states:    xsync.NewMap[string, *backendState](),
		cron:      cron.New(),
		ctx:       ctx,
		cancel:    cancel,
		config:    config,
	}
}

// Start schedules the periodic sweep. An empty schedule leaves the sweep
// off; reconciliation still happens when backends come up healthy.
func (s *Synchronizer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running || s.config.Schedule == "" {
		return nil
	}

	if _, err := s.cron.AddFunc(s.config.Schedule, func() {
		if err := s.ReconcileAll(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("Scheduled model sync failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid model sync schedule %q: %w", s.config.Schedule, err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("Model sync scheduled", "schedule", s.config.Schedule, "concurrency", s.config.Concurrency)
	return nil
}

// Stop halts the sweep, cancels in-flight pulls and waits for them.
func (s *Synchronizer) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
	}
	s.mu.Unlock()

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reconcile schedules a pass for one backend. A pass already in flight for
// the same backend is not duplicated; it runs once more when it finishes.
func (s *Synchronizer) Reconcile(ctx context.Context, backendID string) error {
	if _, err := s.backends.Get(ctx, backendID); err != nil {
		return err
	}
	if s.ctx.Err() != nil {
		return s.ctx.Err()
	}

	st, _ := s.states.LoadOrCompute(backendID, func() (*backendState, bool) {
		return &backendState{models: make(map[string]*domain.ModelSyncRecord)}, false
	})

	// again is raised before trying to become the runner. A pass that is
	// still holding running will see it once it lets go, so the request is
	// never dropped between the two.
	st.again.Store(true)
	if !st.running.CompareAndSwap(false, true) {
		return nil
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			st.again.Store(false)
			s.run(s.ctx, backendID, st)
			st.running.Store(false)
			if !st.again.Load() || !st.running.CompareAndSwap(false, true) {
				return
			}
		}
	}()
	return nil
}

// ReconcileAll schedules a pass for every backend in the directory.
func (s *Synchronizer) ReconcileAll(ctx context.Context) error {
	backends, err := s.backends.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("listing backends: %w", err)
	}

	eg, ctx := errgroup.WithContext(ctx)
	for _, b := range backends {
		eg.Go(func() error {
			if err := s.Reconcile(ctx, b.ID); err != nil && !errors.Is(err, domain.ErrBackendNotFound) {
				return err
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	s.logger.InfoWithCount("Scheduled model sync", len(backends))
	return nil
}

// Ready is true once a pass has completed and every required model is
// Available. A backend nothing requires anything of is ready after its
// first pass.
func (s *Synchronizer) Ready(backendID string) bool {
	st, ok := s.states.Load(backendID)
	if !ok {
		return false
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	if !st.reconciled {
		return false
	}
	for _, rec := range st.models {
		if rec.Status != domain.SyncAvailable {
			return false
		}
	}
	return true
}

// Status is empty when the model is not required of the backend.
func (s *Synchronizer) Status(backendID, model string) domain.ModelSyncStatus {
	st, ok := s.states.Load(backendID)
	if !ok {
		return ""
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	if rec, ok := st.models[util.NormaliseModelName(model)]; ok {
		return rec.Status
	}
	return ""
}

func (s *Synchronizer) Records(backendID string) []domain.ModelSyncRecord {
	st, ok := s.states.Load(backendID)
	if !ok {
		return nil
	}
	st.mu.RLock()
	out := make([]domain.ModelSyncRecord, 0, len(st.models))
	for _, rec := range st.models {
		out = append(out, *rec)
	}
	st.mu.RUnlock()
	slices.SortFunc(out, func(a, b domain.ModelSyncRecord) int { return strings.Compare(a.Model, b.Model) })
	return out
}

func (s *Synchronizer) Forget(backendID string) {
	s.states.Delete(backendID)
}

func (s *Synchronizer) run(ctx context.Context, backendID string, st *backendState) {
	backend, err := s.backends.Get(ctx, backendID)
	if err != nil {
		if errors.Is(err, domain.ErrBackendNotFound) {
			s.Forget(backendID)
		}
		return
	}

	required, err := s.requiredModels(ctx, backendID)
	if err != nil {
		s.logger.WarnWithBackend("Model sync could not read frontends", backendID, "error", err)
		return
	}

	s.resetRecords(st, backendID, required)
	defer s.publishCounts(backendID, st)

	if len(required) == 0 {
		return
	}

	client, ok := s.clients[backend.Dialect]
	if !ok {
		s.failAll(st, backendID, required, fmt.Sprintf("no model client for %s backends", backend.Dialect))
		return
	}

	local, err := client.ListModels(ctx, backend)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.WarnWithBackend("Model sync could not list models", backendID, "error", err)
			s.failAll(st, backendID, required, err.Error())
		}
		return
	}

	present := make(map[string]struct{}, len(local))
	for _, name := range local {
		present[util.NormaliseModelName(name)] = struct{}{}
	}

	var missing []string
	for key, name := range required {
		if _, ok := present[key]; ok {
			s.update(st, backendID, key, func(rec *domain.ModelSyncRecord) {
				rec.Status = domain.SyncAvailable
				rec.Detail = ""
			})
			continue
		}
		missing = append(missing, name)
	}
	slices.Sort(missing)

	if len(missing) == 0 {
		return
	}
	s.logger.InfoWithBackend("Pulling missing models", backendID, "models", strings.Join(missing, ", "))

	eg := errgroup.Group{}
	eg.SetLimit(s.config.Concurrency)
	for _, model := range missing {
		eg.Go(func() error {
			s.pull(ctx, client, backend, st, model)
			return nil
		})
	}
	_ = eg.Wait()
}

func (s *Synchronizer) pull(ctx context.Context, client ports.ModelClient, backend *domain.Backend, st *backendState, model string) {
	key := util.NormaliseModelName(model)
	s.update(st, backend.ID, key, func(rec *domain.ModelSyncRecord) {
		rec.Status = domain.SyncSyncing
		rec.Detail = ""
	})
	s.publishCounts(backend.ID, st)
	s.logger.InfoModelSync("Model sync started", backend.ID, model, domain.SyncSyncing)

	pullCtx, cancel := context.WithTimeout(ctx, s.config.PullTimeout)
	defer cancel()

	start := time.Now()
	err := client.PullModel(pullCtx, backend, model, func(p domain.PullProgress) {
		s.update(st, backend.ID, key, func(rec *domain.ModelSyncRecord) {
			rec.Detail = p.Status
			if p.Total > 0 {
				rec.Completed = p.Completed
				rec.Total = p.Total
			}
		})
	})

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.update(st, backend.ID, key, func(rec *domain.ModelSyncRecord) {
			rec.Status = domain.SyncFailed
			rec.Detail = err.Error()
		})
		s.logger.InfoModelSync("Model sync failed", backend.ID, model, domain.SyncFailed, "error", err)
		return
	}

	var size int64
	s.update(st, backend.ID, key, func(rec *domain.ModelSyncRecord) {
		rec.Status = domain.SyncAvailable
		rec.Detail = ""
		size = rec.Total
	})
	s.logger.InfoModelSync("Model sync complete", backend.ID, model, domain.SyncAvailable,
		"size", format.Bytes(size), "took", format.Duration(time.Since(start)))
}

// requiredModels is the union of required models over every frontend that
// lists the backend, keyed by normalised name.
func (s *Synchronizer) requiredModels(ctx context.Context, backendID string) (map[string]string, error) {
	frontends, err := s.frontends.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	required := make(map[string]string)
	for _, f := range frontends {
		if !f.HasMember(backendID) {
			continue
		}
		for _, m := range f.RequiredModels {
			if key := util.NormaliseModelName(m); key != "" {
				if _, seen := required[key]; !seen {
					required[key] = m
				}
			}
		}
	}
	return required, nil
}

// resetRecords drops records no frontend requires any more and adds
// Pending ones for new requirements. Existing records keep their status
// until the pass decides otherwise.
func (s *Synchronizer) resetRecords(st *backendState, backendID string, required map[string]string) {
	now := time.Now()
	st.mu.Lock()
	defer st.mu.Unlock()

	for key := range st.models {
		if _, ok := required[key]; !ok {
			delete(st.models, key)
		}
	}
	for key, name := range required {
		if _, ok := st.models[key]; !ok {
			st.models[key] = &domain.ModelSyncRecord{
				BackendID: backendID,
				Model:     name,
				Status:    domain.SyncPending,
				UpdatedAt: now,
			}
		}
	}
	st.reconciled = true
}

func (s *Synchronizer) failAll(st *backendState, backendID string, required map[string]string, detail string) {
	for key := range required {
		s.update(st, backendID, key, func(rec *domain.ModelSyncRecord) {
			if rec.Status != domain.SyncAvailable {
				rec.Status = domain.SyncFailed
				rec.Detail = detail
			}
		})
	}
}

func (s *Synchronizer) update(st *backendState, backendID, key string, fn func(rec *domain.ModelSyncRecord)) {
	st.mu.Lock()
	defer st.mu.Unlock()
	rec, ok := st.models[key]
	if !ok {
		return
	}
	fn(rec)
	rec.BackendID = backendID
	rec.UpdatedAt = time.Now()
}

func (s *Synchronizer) publishCounts(backendID string, st *backendState) {
	counts := map[domain.ModelSyncStatus]int{
		domain.SyncPending:   0,
		domain.SyncSyncing:   0,
		domain.SyncAvailable: 0,
		domain.SyncFailed:    0,
	}
	st.mu.RLock()
	for _, rec := range st.models {
		counts[rec.Status]++
	}
	st.mu.RUnlock()
	s.metrics.SetModelSyncStatus(backendID, counts)
}
