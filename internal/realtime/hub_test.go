package realtime

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func receive(t *testing.T, s *Subscriber) Envelope {
	t.Helper()
	select {
	case env, ok := <-s.C():
		require.True(t, ok, "subscriber channel closed")
		return env
	default:
		t.Fatalf("no event queued for %s", s.ID)
		return Envelope{}
	}
}

func assertEmpty(t *testing.T, s *Subscriber) {
	t.Helper()
	select {
	case env := <-s.C():
		t.Fatalf("unexpected event %s for %s", env.Event, s.ID)
	default:
	}
}

func TestHub_PublishReachesWholeGroupIncludingInitiator(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub := NewHub(4)
	alice := hub.Register("alice")
	bob := hub.Register("bob")
	other := hub.Register("carol")

	require.NoError(t, hub.Join(alice.ID, "p1"))
	require.NoError(t, hub.Join(bob.ID, "p1"))
	require.NoError(t, hub.Join(other.ID, "p2"))

	hub.Publish("p1", Event{Name: EventTaskDeleted, Data: "t1"})

	for _, s := range []*Subscriber{alice, bob} {
		env := receive(t, s)
		assert.Equal(t, EventTaskDeleted, env.Event)
		assert.Equal(t, "p1", env.ProjectID)
		assert.JSONEq(t, `"t1"`, string(env.Data))
	}
	assertEmpty(t, other)
}

func TestHub_FullQueueDropsWithoutBlocking(t *testing.T) {
	hub := NewHub(1)
	s := hub.Register("alice")
	require.NoError(t, hub.Join(s.ID, "p1"))

	hub.Publish("p1", Event{Name: EventTaskDeleted, Data: "t1"})
	hub.Publish("p1", Event{Name: EventTaskDeleted, Data: "t2"})

	env := receive(t, s)
	assert.JSONEq(t, `"t1"`, string(env.Data))
	assertEmpty(t, s)

	snap := hub.Metrics().Snapshot()
	assert.Equal(t, int64(2), snap.Published)
	assert.Equal(t, int64(1), snap.Delivered)
	assert.Equal(t, int64(1), snap.Dropped)
	assert.InDelta(t, 50.0, snap.DropRate(), 0.001)
}

func TestHub_LeaveAndUnregister(t *testing.T) {
	hub := NewHub(4)
	s := hub.Register("alice")
	require.NoError(t, hub.Join(s.ID, "p1"))
	require.NoError(t, hub.Join(s.ID, "p2"))

	hub.Leave(s.ID, "p1")
	assert.Equal(t, 0, hub.GroupSize("p1"))
	assert.Equal(t, 1, hub.GroupSize("p2"))

	hub.Unregister(s.ID)
	assert.Equal(t, 0, hub.GroupSize("p2"))
	assert.Equal(t, 0, hub.Connections())

	_, ok := <-s.C()
	assert.False(t, ok)

	assert.ErrorIs(t, hub.Join(s.ID, "p1"), ErrUnknownSubscriber)
	hub.Unregister(s.ID)
}

func TestHub_EvictPrincipal(t *testing.T) {
	hub := NewHub(4)
	bobPhone := hub.Register("bob")
	bobLaptop := hub.Register("bob")
	alice := hub.Register("alice")
	for _, s := range []*Subscriber{bobPhone, bobLaptop, alice} {
		require.NoError(t, hub.Join(s.ID, "p1"))
	}

	hub.EvictPrincipal("p1", "bob")

	for _, s := range []*Subscriber{bobPhone, bobLaptop} {
		env := receive(t, s)
		assert.Equal(t, EventRemovedFromProject, env.Event)
		var id string
		require.NoError(t, json.Unmarshal(env.Data, &id))
		assert.Equal(t, "p1", id)
	}
	assertEmpty(t, alice)
	assert.Equal(t, 1, hub.GroupSize("p1"))

	hub.Publish("p1", Event{Name: EventTaskDeleted, Data: "t1"})
	assertEmpty(t, bobPhone)
	assertEmpty(t, bobLaptop)
	receive(t, alice)
}

func TestHub_CloseGroup(t *testing.T) {
	hub := NewHub(4)
	a := hub.Register("alice")
	b := hub.Register("bob")
	require.NoError(t, hub.Join(a.ID, "p1"))
	require.NoError(t, hub.Join(b.ID, "p1"))

	hub.Publish("p1", Event{Name: EventProjectDeleted, Data: "p1"})
	hub.CloseGroup("p1")

	for _, s := range []*Subscriber{a, b} {
		assert.Equal(t, EventProjectDeleted, receive(t, s).Event)
		assert.Equal(t, EventRemovedFromProject, receive(t, s).Event)
	}
	assert.Equal(t, 0, hub.GroupSize("p1"))
	assert.Equal(t, int64(2), hub.Metrics().Snapshot().Evicted)
}

func TestHub_ConcurrentPublishAndUnregister(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub := NewHub(8)
	subs := make([]*Subscriber, 16)
	for i := range subs {
		subs[i] = hub.Register("p")
		require.NoError(t, hub.Join(subs[i].ID, "p1"))
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				hub.Publish("p1", Event{Name: EventTaskDeleted, Data: j})
			}
		}()
	}
	for _, s := range subs {
		wg.Add(1)
		go func(s *Subscriber) {
			defer wg.Done()
			hub.Unregister(s.ID)
		}(s)
	}
	wg.Wait()

	assert.Equal(t, 0, hub.Connections())
	snap := hub.Metrics().Snapshot()
	assert.Equal(t, int64(400), snap.Published)
}

func TestEncode_UnencodableData(t *testing.T) {
	hub := NewHub(1)
	s := hub.Register("alice")
	require.NoError(t, hub.Join(s.ID, "p1"))

	hub.Publish("p1", Event{Name: EventTaskUpdated, Data: make(chan int)})

	assertEmpty(t, s)
	assert.Equal(t, int64(1), hub.Metrics().Snapshot().EncodeErrors)
}
