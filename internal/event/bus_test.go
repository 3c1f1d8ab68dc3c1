package event

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codesquad-ai/codesquad/pkg/types"
)

func TestBus_Subscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var received Event
	var wg sync.WaitGroup
	wg.Add(1)

	unsub := bus.Subscribe(TaskUpdated, func(e Event) {
		received = e
		wg.Done()
	})
	defer unsub()

	bus.Publish(Event{Type: TaskUpdated, Data: TaskData{Task: &types.Task{ID: "t1"}}})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		require.Equal(t, TaskUpdated, received.Type)
		data, ok := received.Data.(TaskData)
		require.True(t, ok)
		assert.Equal(t, "t1", data.Task.ID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_SubscribeAll(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var count int32
	var wg sync.WaitGroup
	wg.Add(3)

	unsub := bus.SubscribeAll(func(e Event) {
		atomic.AddInt32(&count, 1)
		wg.Done()
	})
	defer unsub()

	bus.Publish(Event{Type: SessionCreated})
	bus.Publish(Event{Type: SquadUpdated})
	bus.Publish(Event{Type: TaskUpdated})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		assert.Equal(t, int32(3), atomic.LoadInt32(&count))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for events")
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var count int32
	unsub := bus.Subscribe(SquadUpdated, func(e Event) {
		atomic.AddInt32(&count, 1)
	})
	unsub()

	bus.PublishSync(Event{Type: SquadUpdated})
	assert.Zero(t, atomic.LoadInt32(&count))
}

func TestBus_PublishSync(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var got []Type
	bus.Subscribe(SessionUpdated, func(e Event) {
		got = append(got, e.Type)
	})

	bus.PublishSync(Event{Type: SessionUpdated})
	bus.PublishSync(Event{Type: SessionUpdated})

	assert.Equal(t, []Type{SessionUpdated, SessionUpdated}, got)
}

func TestBus_ClosedBusDropsEverything(t *testing.T) {
	bus := NewBus()
	require.NoError(t, bus.Close())

	var count int32
	unsub := bus.Subscribe(TaskUpdated, func(e Event) {
		atomic.AddInt32(&count, 1)
	})
	unsub()

	bus.PublishSync(Event{Type: TaskUpdated})
	assert.Zero(t, atomic.LoadInt32(&count))

	// Double close is a no-op.
	assert.NoError(t, bus.Close())
}

func TestBus_PubSubMirrorsEvents(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	messages, err := bus.PubSub().Subscribe(ctx, EventsTopic)
	require.NoError(t, err)

	bus.Publish(Event{Type: TaskUpdated, Data: TaskData{Task: &types.Task{ID: "t1"}}})

	select {
	case msg := <-messages:
		msg.Ack()
		assert.Equal(t, string(TaskUpdated), msg.Metadata.Get("type"))
		assert.Contains(t, string(msg.Payload), `"t1"`)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not mirrored to the watermill channel")
	}
}
