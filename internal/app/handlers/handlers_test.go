package handlers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/thushan/flowgate/internal/adapter/affinity"
	"github.com/thushan/flowgate/internal/adapter/balancer"
	"github.com/thushan/flowgate/internal/adapter/directory"
	"github.com/thushan/flowgate/internal/adapter/proxy"
	"github.com/thushan/flowgate/internal/adapter/translator"
	"github.com/thushan/flowgate/internal/config"
	"github.com/thushan/flowgate/internal/core/constants"
	"github.com/thushan/flowgate/internal/core/domain"
	"github.com/thushan/flowgate/internal/logger"
)

const testAdminToken = "s3cret"

func testLogger() logger.StyledLogger {
	return logger.NewPlainStyledLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// fakeMonitor serves fixed health states and records what the admin API
// asked of it.
type fakeMonitor struct {
	states    map[string]domain.HealthState
	tracked   []string
	untracked []string
	mu        sync.Mutex
}

func newFakeMonitor() *fakeMonitor {
	return &fakeMonitor{states: map[string]domain.HealthState{}}
}

func (m *fakeMonitor) set(id string, s domain.HealthState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[id] = s
}

func (m *fakeMonitor) State(id string) domain.HealthState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.states[id]; ok {
		return s
	}
	return domain.HealthUnknown
}

func (m *fakeMonitor) Probe(context.Context, *domain.Backend) domain.ProbeResult {
	return domain.ProbeResult{State: domain.HealthHealthy}
}

func (m *fakeMonitor) Record(id string) (domain.HealthRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[id]
	if !ok {
		return domain.HealthRecord{}, false
	}
	return domain.HealthRecord{BackendID: id, State: s, LastProbe: time.Now(), LastLatency: 3 * time.Millisecond}, true
}

func (m *fakeMonitor) Records() []domain.HealthRecord {
	m.mu.Lock()
	ids := make([]string, 0, len(m.states))
	for id := range m.states {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	out := make([]domain.HealthRecord, 0, len(ids))
	for _, id := range ids {
		rec, _ := m.Record(id)
		out = append(out, rec)
	}
	return out
}

func (m *fakeMonitor) Track(b *domain.Backend) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracked = append(m.tracked, b.ID)
}

func (m *fakeMonitor) Untrack(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.untracked = append(m.untracked, id)
	delete(m.states, id)
}

func (m *fakeMonitor) Subscribe(ctx context.Context) (<-chan domain.HealthTransition, func()) {
	ch := make(chan domain.HealthTransition)
	return ch, func() {}
}

type fakeSync struct {
	records    map[string][]domain.ModelSyncRecord
	reconciled []string
	forgotten  []string
	mu         sync.Mutex
}

func (s *fakeSync) Ready(string) bool { return true }

func (s *fakeSync) Reconcile(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconciled = append(s.reconciled, id)
	return nil
}

func (s *fakeSync) ReconcileAll(context.Context) error { return nil }

func (s *fakeSync) Status(string, string) domain.ModelSyncStatus { return domain.SyncAvailable }

func (s *fakeSync) Records(id string) []domain.ModelSyncRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[id]
}

func (s *fakeSync) Forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forgotten = append(s.forgotten, id)
}

// newUpstream is a tiny ollama backend: chat answers with its id, tags
// lists one model, and generate for the model "missing" is a 404.
func newUpstream(t *testing.T, id string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		model := gjson.GetBytes(body, "model").String()
		w.Header().Set(constants.ContentTypeHeader, constants.ContentTypeJSON)
		switch r.URL.Path {
		case constants.PathOllamaChat:
			fmt.Fprintf(w, `{"model":%q,"created_at":"2024-05-01T10:00:00Z","message":{"role":"assistant","content":"hello from %s"},"done":true,"done_reason":"stop","prompt_eval_count":3,"eval_count":4}`, model, id)
		case constants.PathOllamaGenerate:
			if model == "missing" {
				w.WriteHeader(http.StatusNotFound)
				fmt.Fprint(w, `{"error":"model \"missing\" not found, try pulling it first"}`)
				return
			}
			fmt.Fprintf(w, `{"model":%q,"created_at":"2024-05-01T10:00:00Z","response":"generated by %s","done":true}`, model, id)
		case constants.PathOllamaTags:
			fmt.Fprint(w, `{"models":[{"name":"llama3:8b","model":"llama3:8b","size":1}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

type harness struct {
	backends  *directory.MemoryBackendDirectory
	frontends *directory.MemoryFrontendDirectory
	health    *fakeMonitor
	sync      *fakeSync
	table     *affinity.Table
	handler   http.Handler
}

type harnessOption func(*Dependencies)

func withMetrics(h http.Handler) harnessOption {
	return func(d *Dependencies) { d.Metrics = h }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		backends: directory.NewMemoryBackendDirectory(),
		health:   newFakeMonitor(),
		sync:     &fakeSync{records: map[string][]domain.ModelSyncRecord{}},
	}
	h.frontends = directory.NewMemoryFrontendDirectory(h.backends)
	h.table = affinity.NewTable(affinity.NewMemoryStore(), h.backends, h.health, nil, testLogger())
	rr := balancer.NewRoundRobinSelector(balancer.Dependencies{Backends: h.backends, Health: h.health, Affinity: h.table})
	dispatcher, err := proxy.NewDispatcher(rr, h.table, translator.NewDefaultRegistry(testLogger()), &proxy.Configuration{}, nil, testLogger())
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Admin.Token = testAdminToken

	deps := Dependencies{
		Config:     cfg,
		Dispatcher: dispatcher,
		Frontends:  h.frontends,
		Backends:   h.backends,
		Health:     h.health,
		ModelSync:  h.sync,
		Affinity:   h.table,
		Logger:     testLogger(),
	}
	for _, opt := range opts {
		opt(&deps)
	}
	app, err := NewApplication(deps)
	require.NoError(t, err)
	app.GetRouteRegistry().Quiet()
	h.handler = app.Handler()
	return h
}

// addBackend registers a healthy ollama backend served by srv.
func (h *harness) addBackend(t *testing.T, id string, srv *httptest.Server) {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	b, err := domain.NewBackend(domain.Backend{
		ID:           id,
		Host:         u.Hostname(),
		Port:         port,
		Dialect:      domain.DialectOllama,
		Capabilities: domain.AllCapabilities(),
	})
	require.NoError(t, err)
	require.NoError(t, h.backends.Create(context.Background(), b))
	h.health.set(id, domain.HealthHealthy)
}

func (h *harness) addFrontend(t *testing.T, id, hostname string, members []string, mutate func(*domain.Frontend)) {
	t.Helper()
	def := domain.Frontend{ID: id, Hostname: hostname, Backends: members, Capabilities: domain.AllCapabilities()}
	if mutate != nil {
		mutate(&def)
	}
	fe, err := domain.NewFrontend(def)
	require.NoError(t, err)
	require.NoError(t, h.frontends.Create(context.Background(), fe))
}

func (h *harness) do(method, path, body string, header http.Header) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range header {
		req.Header[k] = v
	}
	if host := header.Get("Host"); host != "" {
		req.Host = host
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) admin(method, path, body string) *httptest.ResponseRecorder {
	return h.do(method, path, body, http.Header{"Authorization": {"Bearer " + testAdminToken}})
}
