package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type transition struct {
	BackendID string
	To        string
}

func TestEventBus_PublishSubscribe(t *testing.T) {
	bus := New[transition]()
	defer bus.Shutdown()

	events, cleanup := bus.Subscribe(context.Background())
	defer cleanup()

	delivered := bus.Publish(transition{BackendID: "gpu-1", To: "unhealthy"})
	assert.Equal(t, 1, delivered)

	select {
	case ev := <-events:
		assert.Equal(t, "gpu-1", ev.BackendID)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestEventBus_FanOut(t *testing.T) {
	bus := New[transition]()
	defer bus.Shutdown()

	a, cleanupA := bus.Subscribe(context.Background())
	defer cleanupA()
	b, cleanupB := bus.Subscribe(context.Background())
	defer cleanupB()

	require.Equal(t, 2, bus.Publish(transition{BackendID: "x"}))
	assert.Equal(t, "x", (<-a).BackendID)
	assert.Equal(t, "x", (<-b).BackendID)
}

func TestEventBus_ContextCancelEndsSubscription(t *testing.T) {
	bus := New[transition]()
	defer bus.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	events, _ := bus.Subscribe(ctx)
	cancel()

	select {
	case _, ok := <-events:
		assert.False(t, ok, "channel should be closed after cancel")
	case <-time.After(time.Second):
		t.Fatal("subscription was not closed")
	}
	assert.Eventually(t, func() bool { return bus.Stats().Subscribers == 0 }, time.Second, 10*time.Millisecond)
}

func TestEventBus_FullBufferDrops(t *testing.T) {
	bus := NewWithBuffer[transition](1)
	defer bus.Shutdown()

	_, cleanup := bus.Subscribe(context.Background())
	defer cleanup()

	assert.Equal(t, 1, bus.Publish(transition{}))
	assert.Equal(t, 0, bus.Publish(transition{}), "second publish must not block")
	assert.Equal(t, uint64(1), bus.Stats().Dropped)
}

func TestEventBus_ShutdownClosesSubscribers(t *testing.T) {
	bus := New[transition]()
	events, cleanup := bus.Subscribe(context.Background())

	bus.Shutdown()
	cleanup()

	_, ok := <-events
	assert.False(t, ok)
	assert.Equal(t, 0, bus.Publish(transition{}))

	late, _ := bus.Subscribe(context.Background())
	_, ok = <-late
	assert.False(t, ok, "subscribing after shutdown yields a closed channel")
}

func TestEventBus_ConcurrentPublishAndCleanup(t *testing.T) {
	bus := New[transition]()
	defer bus.Shutdown()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		_, cleanup := bus.Subscribe(context.Background())
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				bus.Publish(transition{})
			}
		}()
		go func() {
			defer wg.Done()
			cleanup()
		}()
	}
	wg.Wait()
}
