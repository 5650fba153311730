package health

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/thushan/flowgate/internal/core/domain"
	"github.com/thushan/flowgate/internal/core/ports"
	"github.com/thushan/flowgate/internal/logger"
	"github.com/thushan/flowgate/internal/util"
	"github.com/thushan/flowgate/pkg/eventbus"
)

/*
Health state machine, one independent loop per backend:

	Unknown --probe ok--> Healthy --probe fails--> Unhealthy --probe ok--> Healthy

- The last probe wins, there is no hysteresis.
- Every change is published as a HealthTransition.
- A failing backend is probed on a growing interval (2x, 4x, 8x, 12x)
  capped at DefaultMaxBackoffSeconds; the first success resets it.
- The backend directory is re-read every sync interval so created and
  deleted backends gain or lose their loop without a restart.
*/

// Monitor implements ports.HealthMonitor over HTTP probes.
type Monitor struct {
	directory    ports.BackendDirectory
	client       *HealthClient
	metrics      ports.MetricsRecorder
	recovery     RecoveryCallback
	logger       logger.StyledLogger
	records      *xsync.Map[string, *domain.HealthRecord]
	bus          *eventbus.EventBus[domain.HealthTransition]
	tracker      *StatusTransitionTracker
	loops        map[string]*probeLoop
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	syncInterval time.Duration
	mu           sync.Mutex
	running      bool
}

type probeLoop struct {
	backend atomic.Pointer[domain.Backend]
	cancel  context.CancelFunc
}

func (l *probeLoop) stop() {
	if l.cancel != nil {
		l.cancel()
	}
}

var _ ports.HealthMonitor = (*Monitor)(nil)

func NewMonitor(directory ports.BackendDirectory, metrics ports.MetricsRecorder, log logger.StyledLogger) *Monitor {
	return NewMonitorWithClient(directory, &http.Client{}, metrics, log)
}

// NewMonitorWithClient lets tests swap the transport. Probe deadlines come
// from each backend's recipe so the client needs no timeout of its own.
func NewMonitorWithClient(directory ports.BackendDirectory, client HTTPClient, metrics ports.MetricsRecorder, log logger.StyledLogger) *Monitor {
	if metrics == nil {
		metrics = ports.NoopMetrics{}
	}
	return &Monitor{
		directory:    directory,
		client:       NewHealthClient(client),
		metrics:      metrics,
		recovery:     NoOpRecoveryCallback{},
		logger:       log,
		records:      xsync.NewMap[string, *domain.HealthRecord](),
		bus:          eventbus.New[domain.HealthTransition](),
		tracker:      NewStatusTransitionTracker(),
		loops:        make(map[string]*probeLoop),
		syncInterval: DefaultSyncInterval,
	}
}

func (m *Monitor) SetRecoveryCallback(cb RecoveryCallback) {
	if cb == nil {
		cb = NoOpRecoveryCallback{}
	}
	m.recovery = cb
}

func (m *Monitor) SetSyncInterval(d time.Duration) {
	if d > 0 {
		m.syncInterval = d
	}
}

// Start tracks every backend in the directory and keeps following it.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.running = true
	for _, l := range m.loops {
		m.startLoopLocked(l)
	}
	m.mu.Unlock()

	m.syncDirectory(m.ctx)

	m.wg.Add(1)
	go m.directoryLoop()
	return nil
}

func (m *Monitor) Stop(_ context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	m.cancel()
	for _, l := range m.loops {
		l.cancel = nil
	}
	m.mu.Unlock()

	m.wg.Wait()
	m.bus.Shutdown()
	return nil
}

// Track starts probing a backend, or swaps the snapshot a running loop uses.
// A changed address or recipe restarts the loop so the new interval applies
// straight away.
func (m *Monitor) Track(backend *domain.Backend) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.records.LoadOrCompute(backend.ID, func() (*domain.HealthRecord, bool) {
		return &domain.HealthRecord{BackendID: backend.ID, State: domain.HealthUnknown, TransitionedAt: now}, false
	})

	if existing, ok := m.loops[backend.ID]; ok {
		previous := existing.backend.Load()
		if sameProbeTarget(previous, backend) {
			existing.backend.Store(backend)
			return
		}
		existing.stop()
		m.logger.InfoWithBackend("Health check recipe changed, restarting probe", backend.ID,
			"url", backend.HealthCheckURL())
	}

	l := &probeLoop{}
	l.backend.Store(backend)
	m.loops[backend.ID] = l
	if m.running {
		m.startLoopLocked(l)
	}
}

// Untrack stops the loop and forgets everything known about the backend.
func (m *Monitor) Untrack(backendID string) {
	m.mu.Lock()
	if l, ok := m.loops[backendID]; ok {
		l.stop()
		delete(m.loops, backendID)
	}
	m.mu.Unlock()

	m.records.Delete(backendID)
	m.tracker.CleanupBackend(backendID)
	m.metrics.ForgetBackend(backendID)
}

func (m *Monitor) Probe(ctx context.Context, backend *domain.Backend) domain.ProbeResult {
	return m.client.Probe(ctx, backend)
}

func (m *Monitor) State(backendID string) domain.HealthState {
	if rec, ok := m.records.Load(backendID); ok {
		return rec.State
	}
	return domain.HealthUnknown
}

func (m *Monitor) Record(backendID string) (domain.HealthRecord, bool) {
	rec, ok := m.records.Load(backendID)
	if !ok {
		return domain.HealthRecord{}, false
	}
	return *rec, true
}

func (m *Monitor) Records() []domain.HealthRecord {
	out := make([]domain.HealthRecord, 0, m.records.Size())
	m.records.Range(func(_ string, rec *domain.HealthRecord) bool {
		out = append(out, *rec)
		return true
	})
	slices.SortFunc(out, func(a, b domain.HealthRecord) int { return strings.Compare(a.BackendID, b.BackendID) })
	return out
}

func (m *Monitor) Subscribe(ctx context.Context) (<-chan domain.HealthTransition, func()) {
	return m.bus.Subscribe(ctx)
}

func (m *Monitor) startLoopLocked(l *probeLoop) {
	ctx, cancel := context.WithCancel(m.ctx)
	l.cancel = cancel
	m.wg.Add(1)
	go m.runLoop(ctx, l)
}

func (m *Monitor) runLoop(ctx context.Context, l *probeLoop) {
	defer m.wg.Done()

	multiplier := 1
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		backend := l.backend.Load()
		result := m.client.Probe(ctx, backend)
		if ctx.Err() != nil {
			// cancelled mid-probe, the failure says nothing about the backend
			return
		}

		if result.State == domain.HealthHealthy {
			multiplier = 1
		} else {
			multiplier = util.NextBackoffMultiplier(multiplier)
		}
		next := util.CalculateProbeBackoff(backend.HealthCheck.Interval, multiplier)

		m.apply(ctx, backend, result, next)
		timer.Reset(next)
	}
}

// apply folds a probe result into the record and publishes a transition
// when the state changed.
func (m *Monitor) apply(ctx context.Context, backend *domain.Backend, result domain.ProbeResult, next time.Duration) {
	now := time.Now()
	var transition *domain.HealthTransition

	rec, ok := m.records.Compute(backend.ID, func(old *domain.HealthRecord, loaded bool) (*domain.HealthRecord, xsync.ComputeOp) {
		if !loaded {
			// untracked while the probe was in flight
			return nil, xsync.CancelOp
		}
		updated := *old
		updated.LastProbe = now
		updated.LastLatency = result.Latency
		if result.Err != nil {
			updated.LastError = result.Err.Error()
			updated.ConsecutiveFailures++
		} else {
			updated.LastError = ""
			updated.ConsecutiveFailures = 0
		}
		if old.State != result.State {
			transition = &domain.HealthTransition{At: now, BackendID: backend.ID, From: old.State, To: result.State}
			updated.State = result.State
			updated.TransitionedAt = now
		}
		return &updated, xsync.UpdateOp
	})
	if !ok {
		return
	}

	m.metrics.SetBackendHealth(backend.ID, rec.State)
	m.logProbe(backend, result, rec, next)

	if transition == nil {
		return
	}
	m.bus.Publish(*transition)

	if transition.CameUp() {
		if err := m.recovery.OnBackendRecovered(ctx, backend); err != nil {
			m.logger.WarnWithBackend("Recovery callback failed", backend.ID, "error", err)
		}
	}
}

func (m *Monitor) logProbe(backend *domain.Backend, result domain.ProbeResult, rec *domain.HealthRecord, next time.Duration) {
	shouldLog, errorCount := m.tracker.ShouldLog(backend.ID, rec.State, result.Err != nil)
	if !shouldLog {
		return
	}
	if errorCount > 0 {
		m.logger.WarnWithBackend("Backend health issues", backend.ID,
			"state", rec.State.String(),
			"consecutive_failures", rec.ConsecutiveFailures,
			"error_type", string(classifyError(result.Err)),
			"error", rec.LastError,
			"next_check_in", next)
		return
	}
	args := []any{"latency", result.Latency, "next_check_in", next}
	if result.Err != nil {
		args = append(args, "error_type", string(classifyError(result.Err)), "error", result.Err.Error())
	}
	m.logger.InfoHealthState("Backend health changed", backend.ID, rec.State, args...)
}

func (m *Monitor) directoryLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.syncDirectory(m.ctx)
		}
	}
}

// syncDirectory tracks new or changed backends and untracks deleted ones.
func (m *Monitor) syncDirectory(ctx context.Context) {
	backends, err := m.directory.GetAll(ctx)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Warn("Failed to read backend directory", "error", err)
		}
		return
	}

	current := make(map[string]struct{}, len(backends))
	for _, b := range backends {
		current[b.ID] = struct{}{}
		m.Track(b)
	}

	m.mu.Lock()
	var stale []string
	for id := range m.loops {
		if _, ok := current[id]; !ok {
			stale = append(stale, id)
		}
	}
	m.mu.Unlock()

	for _, id := range stale {
		m.logger.InfoWithBackend("Backend removed from directory, stopping probe", id)
		m.Untrack(id)
	}
}

func sameProbeTarget(a, b *domain.Backend) bool {
	if a == nil || b == nil {
		return false
	}
	return a.HealthCheckURL() == b.HealthCheckURL() && a.HealthCheck == b.HealthCheck
}
