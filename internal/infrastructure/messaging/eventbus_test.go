package messaging

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnpath/academy-hub/internal/domain/shared"
)

func lessonEvent() shared.Event {
	return shared.NewLessonCompletedEvent("learner-1", "course-a", "lesson-1", time.Now())
}

func TestInMemoryEventBus_SyncDelivery(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())
	defer bus.Close()

	var typed, all int32
	require.NoError(t, bus.Subscribe(shared.EventLessonCompleted, func(ctx context.Context, e shared.Event) error {
		atomic.AddInt32(&typed, 1)
		return nil
	}))
	require.NoError(t, bus.Subscribe(shared.EventAdminLoggedIn, func(ctx context.Context, e shared.Event) error {
		t.Fatal("wrong type delivered")
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(ctx context.Context, e shared.Event) error {
		atomic.AddInt32(&all, 1)
		return nil
	}))

	require.NoError(t, bus.Publish(context.Background(), lessonEvent()))
	assert.EqualValues(t, 1, typed)
	assert.EqualValues(t, 1, all)
}

func TestInMemoryEventBus_HandlerFailuresAreContained(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())
	defer bus.Close()

	var reached bool
	require.NoError(t, bus.Subscribe(shared.EventLessonCompleted, func(ctx context.Context, e shared.Event) error {
		return errors.New("boom")
	}))
	require.NoError(t, bus.Subscribe(shared.EventLessonCompleted, func(ctx context.Context, e shared.Event) error {
		panic("handler bug")
	}))
	require.NoError(t, bus.Subscribe(shared.EventLessonCompleted, func(ctx context.Context, e shared.Event) error {
		reached = true
		return nil
	}))

	require.NoError(t, bus.Publish(context.Background(), lessonEvent()))
	assert.True(t, reached)

	snap := bus.Metrics().Snapshot()
	assert.EqualValues(t, 3, snap.TotalHandlerExecs)
	assert.EqualValues(t, 2, snap.HandlerFailures)
}

func TestInMemoryEventBus_AsyncWaitsOnClose(t *testing.T) {
	cfg := DefaultInMemoryEventBusConfig()
	cfg.AsyncMode = true
	bus := NewInMemoryEventBus(cfg)

	var n int32
	require.NoError(t, bus.Subscribe(shared.EventLessonCompleted, func(ctx context.Context, e shared.Event) error {
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&n, 1)
		return nil
	}))

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(context.Background(), lessonEvent()))
	}
	require.NoError(t, bus.Close())
	assert.EqualValues(t, 5, atomic.LoadInt32(&n))

	assert.ErrorIs(t, bus.Publish(context.Background(), lessonEvent()), ErrEventBusClosed)
}
