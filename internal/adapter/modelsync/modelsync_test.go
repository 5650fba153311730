package modelsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/thushan/flowgate/internal/adapter/directory"
	"github.com/thushan/flowgate/internal/core/domain"
	"github.com/thushan/flowgate/internal/logger"
)

func testLogger() logger.StyledLogger {
	return logger.NewPlainStyledLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// fakeOllama serves /api/tags from a mutable model list and "pulls" by
// streaming progress lines and adding the model.
type fakeOllama struct {
	*httptest.Server
	mu       sync.Mutex
	models   []string
	pulls    []string
	failFor  string
	listedAt atomic.Int64
}

func newFakeOllama(t *testing.T, models ...string) *fakeOllama {
	t.Helper()
	f := &fakeOllama{models: models}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		f.listedAt.Store(time.Now().UnixNano())
		f.mu.Lock()
		defer f.mu.Unlock()
		entries := make([]map[string]any, 0, len(f.models))
		for _, m := range f.models {
			entries = append(entries, map[string]any{"name": m, "model": m, "size": 1024})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"models": entries})
	})
	mux.HandleFunc("/api/pull", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		model := gjson.GetBytes(body, "model").String()

		f.mu.Lock()
		f.pulls = append(f.pulls, model)
		fail := f.failFor == model
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, `{"status":"pulling manifest"}`)
		if fail {
			fmt.Fprintln(w, `{"error":"pull model manifest: file does not exist"}`)
			return
		}
		fmt.Fprintln(w, `{"status":"downloading","digest":"sha256:abc","total":2048,"completed":1024}`)
		fmt.Fprintln(w, `{"status":"downloading","digest":"sha256:abc","total":2048,"completed":2048}`)
		fmt.Fprintln(w, `{"status":"success"}`)

		f.mu.Lock()
		f.models = append(f.models, model)
		f.mu.Unlock()
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeOllama) failPullsOf(model string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failFor = model
}

func (f *fakeOllama) pulled() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.pulls...)
}

func newFakeOpenAI(t *testing.T, models ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			http.NotFound(w, r)
			return
		}
		data := make([]map[string]any, 0, len(models))
		for _, m := range models {
			data = append(data, map[string]any{"id": m, "object": "model", "owned_by": "library"})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func backendFor(t *testing.T, id, rawURL string, dialect domain.Dialect) *domain.Backend {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, _ := strconv.Atoi(portStr)
	b, err := domain.NewBackend(domain.Backend{ID: id, Host: host, Port: port, Dialect: dialect, Capabilities: domain.AllCapabilities()})
	require.NoError(t, err)
	return b
}

func TestOllamaClient_ListModels(t *testing.T) {
	srv := newFakeOllama(t, "llama3:latest", "nomic-embed-text:v1.5")
	b := backendFor(t, "o", srv.URL, domain.DialectOllama)

	models, err := NewOllamaClient(http.DefaultClient).ListModels(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3:latest", "nomic-embed-text:v1.5"}, models)
}

func TestOllamaClient_PullModel(t *testing.T) {
	srv := newFakeOllama(t)
	b := backendFor(t, "o", srv.URL, domain.DialectOllama)
	client := NewOllamaClient(http.DefaultClient)

	var progress []domain.PullProgress
	err := client.PullModel(context.Background(), b, "llama3", func(p domain.PullProgress) {
		progress = append(progress, p)
	})
	require.NoError(t, err)
	require.Len(t, progress, 4)
	assert.Equal(t, int64(2048), progress[2].Total)
	assert.Equal(t, "success", progress[3].Status)

	srv.failPullsOf("ghost")
	err = client.PullModel(context.Background(), b, "ghost", nil)
	var syncErr *SyncError
	require.True(t, errors.As(err, &syncErr))
	assert.Equal(t, "pull", syncErr.Operation)
	assert.Contains(t, err.Error(), "file does not exist")
}

func TestOllamaClient_PullModelHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"disk full"}`))
	}))
	defer srv.Close()

	err := NewOllamaClient(http.DefaultClient).PullModel(context.Background(), backendFor(t, "o", srv.URL, domain.DialectOllama), "llama3", nil)
	var syncErr *SyncError
	require.True(t, errors.As(err, &syncErr))
	assert.Equal(t, http.StatusInternalServerError, syncErr.StatusCode)
	assert.Contains(t, err.Error(), "disk full")
}

func TestOpenAIClient(t *testing.T) {
	srv := newFakeOpenAI(t, "gpt-4o-mini", "text-embedding-3-small")
	b := backendFor(t, "v", srv.URL, domain.DialectOpenAI)
	client := NewOpenAIClient(http.DefaultClient)

	models, err := client.ListModels(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt-4o-mini", "text-embedding-3-small"}, models)

	err = client.PullModel(context.Background(), b, "llama3", nil)
	assert.ErrorIs(t, err, domain.ErrUnsupportedOperation)
}

type syncFixture struct {
	backends  *directory.MemoryBackendDirectory
	frontends *directory.MemoryFrontendDirectory
	sync      *Synchronizer
}

func newSyncFixture(t *testing.T, backends []*domain.Backend, frontends ...*domain.Frontend) *syncFixture {
	t.Helper()
	ctx := context.Background()
	bd := directory.NewMemoryBackendDirectory()
	fd := directory.NewMemoryFrontendDirectory(bd)
	for _, b := range backends {
		require.NoError(t, bd.Create(ctx, b))
	}
	for _, f := range frontends {
		require.NoError(t, fd.Create(ctx, f))
	}
	s := NewSynchronizer(bd, fd, NewClients(http.DefaultClient), Config{Concurrency: 2, PullTimeout: 5 * time.Second}, nil, testLogger())
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	return &syncFixture{backends: bd, frontends: fd, sync: s}
}

func frontend(t *testing.T, id string, members []string, required ...string) *domain.Frontend {
	t.Helper()
	f, err := domain.NewFrontend(domain.Frontend{ID: id, Hostname: "*", Backends: members, RequiredModels: required})
	require.NoError(t, err)
	return f
}

func TestSynchronizer_PullsMissingModels(t *testing.T) {
	srv := newFakeOllama(t, "llama3:latest")
	b := backendFor(t, "gpu-1", srv.URL, domain.DialectOllama)
	fx := newSyncFixture(t, []*domain.Backend{b},
		frontend(t, "chat", []string{"gpu-1"}, "llama3"),
		frontend(t, "embed", []string{"gpu-1"}, "nomic-embed-text:v1.5", "llama3:latest"),
	)

	assert.False(t, fx.sync.Ready("gpu-1"), "never reconciled")
	require.NoError(t, fx.sync.Reconcile(context.Background(), "gpu-1"))

	assert.Eventually(t, func() bool { return fx.sync.Ready("gpu-1") }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, domain.SyncAvailable, fx.sync.Status("gpu-1", "llama3"))
	assert.Equal(t, domain.SyncAvailable, fx.sync.Status("gpu-1", "nomic-embed-text:v1.5"))
	assert.Equal(t, []string{"nomic-embed-text:v1.5"}, srv.pulled(), "present models are not pulled again")

	records := fx.sync.Records("gpu-1")
	require.Len(t, records, 2)
	assert.Equal(t, "llama3", records[0].Model)
	assert.Equal(t, int64(2048), records[1].Total)
}

func TestSynchronizer_FailedPull(t *testing.T) {
	srv := newFakeOllama(t)
	srv.failPullsOf("ghost")
	fx := newSyncFixture(t, []*domain.Backend{backendFor(t, "gpu-1", srv.URL, domain.DialectOllama)},
		frontend(t, "chat", []string{"gpu-1"}, "ghost"))

	require.NoError(t, fx.sync.Reconcile(context.Background(), "gpu-1"))
	assert.Eventually(t, func() bool { return fx.sync.Status("gpu-1", "ghost") == domain.SyncFailed }, 5*time.Second, 10*time.Millisecond)
	assert.False(t, fx.sync.Ready("gpu-1"))
	assert.Contains(t, fx.sync.Records("gpu-1")[0].Detail, "file does not exist")
}

func TestSynchronizer_OpenAIBackendCannotPull(t *testing.T) {
	srv := newFakeOpenAI(t, "gpt-4o-mini")
	fx := newSyncFixture(t, []*domain.Backend{backendFor(t, "vllm", srv.URL, domain.DialectOpenAI)},
		frontend(t, "chat", []string{"vllm"}, "gpt-4o-mini", "llama3"))

	require.NoError(t, fx.sync.Reconcile(context.Background(), "vllm"))
	assert.Eventually(t, func() bool { return fx.sync.Status("vllm", "llama3") == domain.SyncFailed }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, domain.SyncAvailable, fx.sync.Status("vllm", "gpt-4o-mini"))
}

func TestSynchronizer_NoRequirementsIsReady(t *testing.T) {
	srv := newFakeOllama(t)
	fx := newSyncFixture(t, []*domain.Backend{backendFor(t, "gpu-1", srv.URL, domain.DialectOllama)},
		frontend(t, "chat", []string{"gpu-1"}))

	require.NoError(t, fx.sync.Reconcile(context.Background(), "gpu-1"))
	assert.Eventually(t, func() bool { return fx.sync.Ready("gpu-1") }, 5*time.Second, 10*time.Millisecond)
	assert.Empty(t, fx.sync.Records("gpu-1"))
	assert.Equal(t, domain.ModelSyncStatus(""), fx.sync.Status("gpu-1", "llama3"))
}

func TestSynchronizer_DropsRecordsNoLongerRequired(t *testing.T) {
	srv := newFakeOllama(t, "llama3:latest", "phi3:latest")
	fx := newSyncFixture(t, []*domain.Backend{backendFor(t, "gpu-1", srv.URL, domain.DialectOllama)},
		frontend(t, "chat", []string{"gpu-1"}, "llama3", "phi3"))
	ctx := context.Background()

	require.NoError(t, fx.sync.Reconcile(ctx, "gpu-1"))
	assert.Eventually(t, func() bool { return len(fx.sync.Records("gpu-1")) == 2 && fx.sync.Ready("gpu-1") }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, fx.frontends.Create(ctx, frontend(t, "chat", []string{"gpu-1"}, "llama3")))
	require.NoError(t, fx.sync.ReconcileAll(ctx))
	assert.Eventually(t, func() bool { return len(fx.sync.Records("gpu-1")) == 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestSynchronizer_ReconcileDuringPassRunsAgain(t *testing.T) {
	srv := newFakeOllama(t, "llama3:latest")
	fx := newSyncFixture(t, []*domain.Backend{backendFor(t, "gpu-1", srv.URL, domain.DialectOllama)},
		frontend(t, "chat", []string{"gpu-1"}, "llama3"))
	ctx := context.Background()

	for range 100 {
		go func() { _ = fx.sync.Reconcile(ctx, "gpu-1") }()
		asked := time.Now().UnixNano()
		require.NoError(t, fx.sync.Reconcile(ctx, "gpu-1"))
		require.Eventually(t, func() bool { return srv.listedAt.Load() > asked },
			2*time.Second, time.Millisecond, "a reconcile requested mid pass was dropped")
	}
}

func TestSynchronizer_UnknownBackend(t *testing.T) {
	fx := newSyncFixture(t, nil)
	err := fx.sync.Reconcile(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrBackendNotFound)
}

func TestSynchronizer_StartRejectsBadSchedule(t *testing.T) {
	s := NewSynchronizer(directory.NewMemoryBackendDirectory(), nil, nil, Config{Schedule: "every tuesday"}, nil, testLogger())
	assert.Error(t, s.Start(context.Background()))
}
