package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thushan/flowgate/internal/logger"
)

func quietLogger() logger.StyledLogger {
	return logger.NewPlainStyledLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type journal struct {
	events []string
	mu     sync.Mutex
}

func (j *journal) add(e string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, e)
}

type stubService struct {
	startErr error
	stopErr  error
	journal  *journal
	name     string
	deps     []string
}

func (s *stubService) Name() string           { return s.name }
func (s *stubService) Dependencies() []string { return s.deps }

func (s *stubService) Start(context.Context) error {
	if s.startErr != nil {
		return s.startErr
	}
	s.journal.add("start:" + s.name)
	return nil
}

func (s *stubService) Stop(context.Context) error {
	s.journal.add("stop:" + s.name)
	return s.stopErr
}

func TestServiceManager_StartsInDependencyOrder(t *testing.T) {
	j := &journal{}
	sm := NewServiceManager(quietLogger())
	for _, svc := range []*stubService{
		{name: "http", deps: []string{"proxy", "security"}, journal: j},
		{name: "proxy", deps: []string{"health", "metrics"}, journal: j},
		{name: "security", deps: []string{"metrics"}, journal: j},
		{name: "health", deps: []string{"metrics"}, journal: j},
		{name: "metrics", journal: j},
	} {
		require.NoError(t, sm.Register(svc))
	}

	ctx := context.Background()
	require.NoError(t, sm.Start(ctx))
	assert.Equal(t, []string{
		"start:metrics",
		"start:health",
		"start:security",
		"start:proxy",
		"start:http",
	}, j.events)

	j.events = nil
	require.NoError(t, sm.Stop(ctx))
	assert.Equal(t, []string{
		"stop:http",
		"stop:proxy",
		"stop:security",
		"stop:health",
		"stop:metrics",
	}, j.events)
}

func TestServiceManager_FailedStartUnwinds(t *testing.T) {
	j := &journal{}
	sm := NewServiceManager(quietLogger())
	boom := errors.New("port in use")
	require.NoError(t, sm.Register(&stubService{name: "metrics", journal: j}))
	require.NoError(t, sm.Register(&stubService{name: "directory", deps: []string{"metrics"}, journal: j}))
	require.NoError(t, sm.Register(&stubService{name: "http", deps: []string{"directory"}, startErr: boom, journal: j}))

	err := sm.Start(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{
		"start:metrics",
		"start:directory",
		"stop:directory",
		"stop:metrics",
	}, j.events)
}

func TestServiceManager_StopContinuesPastErrors(t *testing.T) {
	j := &journal{}
	sm := NewServiceManager(quietLogger())
	first := errors.New("first")
	require.NoError(t, sm.Register(&stubService{name: "a", journal: j, stopErr: errors.New("second")}))
	require.NoError(t, sm.Register(&stubService{name: "b", deps: []string{"a"}, journal: j, stopErr: first}))

	ctx := context.Background()
	require.NoError(t, sm.Start(ctx))
	j.events = nil

	assert.ErrorIs(t, sm.Stop(ctx), first)
	assert.Equal(t, []string{"stop:b", "stop:a"}, j.events)
}

func TestServiceManager_RejectsBadGraphs(t *testing.T) {
	t.Run("duplicate", func(t *testing.T) {
		sm := NewServiceManager(quietLogger())
		require.NoError(t, sm.Register(&stubService{name: "a", journal: &journal{}}))
		assert.Error(t, sm.Register(&stubService{name: "a", journal: &journal{}}))
	})

	t.Run("missing dependency", func(t *testing.T) {
		sm := NewServiceManager(quietLogger())
		require.NoError(t, sm.Register(&stubService{name: "a", deps: []string{"ghost"}, journal: &journal{}}))
		err := sm.Start(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ghost")
	})

	t.Run("cycle", func(t *testing.T) {
		j := &journal{}
		sm := NewServiceManager(quietLogger())
		require.NoError(t, sm.Register(&stubService{name: "a", deps: []string{"b"}, journal: j}))
		require.NoError(t, sm.Register(&stubService{name: "b", deps: []string{"a"}, journal: j}))
		err := sm.Start(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "circular")
		assert.Empty(t, j.events)
	})
}

func TestServiceRegistry_Lookup(t *testing.T) {
	sm := NewServiceManager(quietLogger())
	metrics := NewMetricsService(defaultMetricsConfig(), quietLogger())
	require.NoError(t, sm.Register(metrics))

	got, err := Lookup[*MetricsService](sm.GetRegistry(), NameMetrics)
	require.NoError(t, err)
	assert.Same(t, metrics, got)

	_, err = Lookup[*HTTPService](sm.GetRegistry(), NameMetrics)
	assert.Error(t, err)

	_, err = sm.GetRegistry().GetHTTP()
	assert.Error(t, err)
}
