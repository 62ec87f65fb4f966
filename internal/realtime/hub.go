package realtime

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/crewboard/crewboard-backend/internal/logging"
)

const DefaultBuffer = 64

var ErrUnknownSubscriber = errors.New("unknown subscriber")

// Subscriber is one live connection. Events arrive on C until the
// subscriber is unregistered, at which point C is closed.
type Subscriber struct {
	ID          string
	PrincipalID string

	out      chan Envelope
	projects map[string]struct{} // guarded by Hub.mu
}

func (s *Subscriber) C() <-chan Envelope { return s.out }

// Hub holds project groups in process memory. Delivery is at-most-once: a
// subscriber whose queue is full misses the event.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]*Subscriber
	groups  map[string]map[string]*Subscriber
	buffer  int
	metrics *Metrics
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		subs:    make(map[string]*Subscriber),
		groups:  make(map[string]map[string]*Subscriber),
		buffer:  buffer,
		metrics: &Metrics{},
	}
}

func (h *Hub) Metrics() *Metrics { return h.metrics }

// Register creates a subscriber for an authenticated connection.
func (h *Hub) Register(principalID string) *Subscriber {
	s := &Subscriber{
		ID:          uuid.NewString(),
		PrincipalID: principalID,
		out:         make(chan Envelope, h.buffer),
		projects:    make(map[string]struct{}),
	}
	h.mu.Lock()
	h.subs[s.ID] = s
	h.mu.Unlock()
	return s
}

// Unregister removes the subscriber from every group and closes its channel.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.subs[connID]
	if !ok {
		return
	}
	for projectID := range s.projects {
		h.removeLocked(projectID, connID)
	}
	delete(h.subs, connID)
	close(s.out)
}

// Join adds the connection to a project group. It performs no authorization;
// transports check read access before calling it.
func (h *Hub) Join(connID, projectID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.subs[connID]
	if !ok {
		return ErrUnknownSubscriber
	}
	group, ok := h.groups[projectID]
	if !ok {
		group = make(map[string]*Subscriber)
		h.groups[projectID] = group
	}
	group[connID] = s
	s.projects[projectID] = struct{}{}
	return nil
}

func (h *Hub) Leave(connID, projectID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s, ok := h.subs[connID]; ok {
		delete(s.projects, projectID)
	}
	h.removeLocked(projectID, connID)
}

func (h *Hub) removeLocked(projectID, connID string) {
	group, ok := h.groups[projectID]
	if !ok {
		return
	}
	delete(group, connID)
	if len(group) == 0 {
		delete(h.groups, projectID)
	}
}

// Publish encodes ev and delivers it to the project group.
func (h *Hub) Publish(projectID string, ev Event) {
	env, err := Encode(projectID, ev)
	if err != nil {
		atomic.AddInt64(&h.metrics.encodeErrors, 1)
		logging.L().WithError(err).WithField("event", ev.Name).Error("realtime: encode event")
		return
	}
	atomic.AddInt64(&h.metrics.published, 1)
	h.Deliver(env)
}

// Deliver fans an already encoded envelope out to the local group.
func (h *Hub) Deliver(env Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, s := range h.groups[env.ProjectID] {
		h.send(s, env)
	}
}

func (h *Hub) send(s *Subscriber, env Envelope) {
	select {
	case s.out <- env:
		atomic.AddInt64(&h.metrics.delivered, 1)
	default:
		atomic.AddInt64(&h.metrics.dropped, 1)
	}
}

// EvictPrincipal removes every connection of principalID from the project
// group and tells each one it was removed.
func (h *Hub) EvictPrincipal(projectID, principalID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for connID, s := range h.groups[projectID] {
		if s.PrincipalID != principalID {
			continue
		}
		h.evictLocked(projectID, connID, s)
	}
}

// CloseGroup evicts every connection in the group.
func (h *Hub) CloseGroup(projectID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for connID, s := range h.groups[projectID] {
		h.evictLocked(projectID, connID, s)
	}
}

func (h *Hub) evictLocked(projectID, connID string, s *Subscriber) {
	delete(s.projects, projectID)
	h.removeLocked(projectID, connID)
	atomic.AddInt64(&h.metrics.evicted, 1)

	data, _ := json.Marshal(projectID)
	h.send(s, Envelope{Event: EventRemovedFromProject, ProjectID: projectID, Data: data})
}

// GroupSize returns the number of connections in a project group.
func (h *Hub) GroupSize(projectID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[projectID])
}

// Connections returns the number of registered subscribers.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
