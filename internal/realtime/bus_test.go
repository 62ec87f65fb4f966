package realtime

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func startBus(t *testing.T, bus *RedisBus) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bus.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	select {
	case <-bus.Ready():
	case err := <-done:
		t.Fatalf("bus stopped before subscribing: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("bus did not subscribe")
	}
}

func waitEvent(t *testing.T, s *Subscriber) Envelope {
	t.Helper()
	select {
	case env := <-s.C():
		return env
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event on %s", s.ID)
		return Envelope{}
	}
}

func TestRedisBus_RelaysBetweenInstances(t *testing.T) {
	_, client := setupTestRedis(t)

	hubA, hubB := NewHub(8), NewHub(8)
	busA := NewRedisBus(hubA, client, BusOptions{})
	busB := NewRedisBus(hubB, client, BusOptions{})
	startBus(t, busA)
	startBus(t, busB)

	onA := hubA.Register("alice")
	onB := hubB.Register("bob")
	require.NoError(t, hubA.Join(onA.ID, "p1"))
	require.NoError(t, hubB.Join(onB.ID, "p1"))

	busA.Publish("p1", Event{Name: EventTaskDeleted, Data: "t1"})

	for _, s := range []*Subscriber{onA, onB} {
		env := waitEvent(t, s)
		assert.Equal(t, EventTaskDeleted, env.Event)
		assert.Equal(t, "p1", env.ProjectID)
		assert.JSONEq(t, `"t1"`, string(env.Data))
	}

	assert.Eventually(t, func() bool {
		return hubA.Metrics().Snapshot().BusPublished == 1
	}, time.Second, 10*time.Millisecond)
}

func TestRedisBus_PreservesPublishOrder(t *testing.T) {
	_, client := setupTestRedis(t)

	hub := NewHub(32)
	bus := NewRedisBus(hub, client, BusOptions{})
	startBus(t, bus)

	s := hub.Register("alice")
	require.NoError(t, hub.Join(s.ID, "p1"))

	for i := 0; i < 10; i++ {
		bus.Publish("p1", Event{Name: EventTaskDeleted, Data: i})
	}
	for i := 0; i < 10; i++ {
		env := waitEvent(t, s)
		assert.JSONEq(t, strconv.Itoa(i), string(env.Data))
	}
}

func TestRedisBus_FallsBackLocallyWhenPublishFails(t *testing.T) {
	mr, client := setupTestRedis(t)

	hub := NewHub(8)
	bus := NewRedisBus(hub, client, BusOptions{PublishTimeout: 200 * time.Millisecond, MaxFailures: 1})
	startBus(t, bus)

	s := hub.Register("alice")
	require.NoError(t, hub.Join(s.ID, "p1"))

	mr.SetError("ERR injected publish failure")
	bus.Publish("p1", Event{Name: EventTaskDeleted, Data: "t1"})

	env := waitEvent(t, s)
	assert.Equal(t, EventTaskDeleted, env.Event)
	snap := hub.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.BusFailures)
	assert.Equal(t, int64(1), snap.LocalFallbacks)
}

func TestRedisBus_FullQueueDeliversLocally(t *testing.T) {
	_, client := setupTestRedis(t)

	hub := NewHub(8)
	bus := NewRedisBus(hub, client, BusOptions{QueueSize: 1})

	s := hub.Register("alice")
	require.NoError(t, hub.Join(s.ID, "p1"))

	// Not running: the first event sits in the queue, the second overflows.
	bus.Publish("p1", Event{Name: EventTaskDeleted, Data: "t1"})
	bus.Publish("p1", Event{Name: EventTaskDeleted, Data: "t2"})

	env := waitEvent(t, s)
	assert.JSONEq(t, `"t2"`, string(env.Data))
	assert.Equal(t, int64(1), hub.Metrics().Snapshot().LocalFallbacks)
}

func TestRedisBus_EvictionReachesOtherInstances(t *testing.T) {
	_, client := setupTestRedis(t)

	hubA, hubB := NewHub(8), NewHub(8)
	busA := NewRedisBus(hubA, client, BusOptions{})
	busB := NewRedisBus(hubB, client, BusOptions{})
	startBus(t, busA)
	startBus(t, busB)

	removed := hubB.Register("member-1")
	stays := hubB.Register("owner")
	require.NoError(t, hubB.Join(removed.ID, "p1"))
	require.NoError(t, hubB.Join(stays.ID, "p1"))

	busA.EvictPrincipal("p1", "member-1")
	busA.Publish("p1", Event{Name: EventTaskCreated, Data: "t1"})

	env := waitEvent(t, removed)
	assert.Equal(t, EventRemovedFromProject, env.Event)
	assert.JSONEq(t, `"p1"`, string(env.Data))

	env = waitEvent(t, stays)
	assert.Equal(t, EventTaskCreated, env.Event)

	select {
	case env := <-removed.C():
		t.Fatalf("evicted connection received %s", env.Event)
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, 1, hubB.GroupSize("p1"))
}

func TestRedisBus_CloseGroupAfterPendingEvents(t *testing.T) {
	_, client := setupTestRedis(t)

	hubA, hubB := NewHub(8), NewHub(8)
	busA := NewRedisBus(hubA, client, BusOptions{})
	busB := NewRedisBus(hubB, client, BusOptions{})
	startBus(t, busA)
	startBus(t, busB)

	onA := hubA.Register("alice")
	onB := hubB.Register("bob")
	require.NoError(t, hubA.Join(onA.ID, "p1"))
	require.NoError(t, hubB.Join(onB.ID, "p1"))

	busA.Publish("p1", Event{Name: EventProjectDeleted, Data: "p1"})
	busA.CloseGroup("p1")

	for _, s := range []*Subscriber{onA, onB} {
		assert.Equal(t, EventProjectDeleted, waitEvent(t, s).Event)
		assert.Equal(t, EventRemovedFromProject, waitEvent(t, s).Event)
	}
	assert.Eventually(t, func() bool {
		return hubA.GroupSize("p1") == 0 && hubB.GroupSize("p1") == 0
	}, time.Second, 10*time.Millisecond)
}

func TestRedisBus_EvictionFallsBackLocally(t *testing.T) {
	mr, client := setupTestRedis(t)

	hub := NewHub(8)
	bus := NewRedisBus(hub, client, BusOptions{PublishTimeout: 200 * time.Millisecond, MaxFailures: 1})
	startBus(t, bus)

	s := hub.Register("alice")
	require.NoError(t, hub.Join(s.ID, "p1"))

	mr.SetError("ERR injected publish failure")
	bus.Publish("p1", Event{Name: EventProjectDeleted, Data: "p1"})
	bus.CloseGroup("p1")

	assert.Equal(t, EventProjectDeleted, waitEvent(t, s).Event)
	assert.Equal(t, EventRemovedFromProject, waitEvent(t, s).Event)
	assert.Equal(t, 0, hub.GroupSize("p1"))
}
