package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/crewboard/crewboard-backend/internal/logging"
)

const (
	eventChannelPrefix = "crewboard:events:" // Pub/Sub channel per project: crewboard:events:{project_id}
	defaultQueueSize   = 1024

	// eventEvict travels only between instances and is applied to the hub,
	// never delivered to a connection.
	eventEvict EventName = "crewboard.evict"
)

// evictPayload names the principal to evict. An empty PrincipalID closes
// the whole group.
type evictPayload struct {
	PrincipalID string `json:"principalId,omitempty"`
}

type BusOptions struct {
	QueueSize      int
	PublishTimeout time.Duration
	// Breaker trips after this many consecutive publish failures.
	MaxFailures uint32
	OpenTimeout time.Duration
}

// RedisBus relays events between api instances. Publish enqueues the event
// on an ordered queue; one worker PUBLISHes it and every instance, this one
// included, delivers what it receives on the pattern subscription to its
// local hub. When Redis is unavailable events reach local connections only.
type RedisBus struct {
	hub     *Hub
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
	queue   chan Envelope
	opt     BusOptions
	ready   chan struct{}
	log     *logrus.Entry
}

func NewRedisBus(hub *Hub, client *redis.Client, opt BusOptions) *RedisBus {
	if opt.QueueSize <= 0 {
		opt.QueueSize = defaultQueueSize
	}
	if opt.PublishTimeout <= 0 {
		opt.PublishTimeout = 2 * time.Second
	}
	if opt.MaxFailures == 0 {
		opt.MaxFailures = 5
	}
	if opt.OpenTimeout <= 0 {
		opt.OpenTimeout = 30 * time.Second
	}

	log := logging.L().WithField("component", "realtime_bus")
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "redis-publish",
		Timeout: opt.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opt.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).
				Warn("realtime: breaker state changed")
		},
	})

	return &RedisBus{
		hub:     hub,
		client:  client,
		breaker: breaker,
		queue:   make(chan Envelope, opt.QueueSize),
		opt:     opt,
		ready:   make(chan struct{}),
		log:     log,
	}
}

func (b *RedisBus) Hub() *Hub { return b.hub }

// Ready is closed once the pattern subscription is confirmed.
func (b *RedisBus) Ready() <-chan struct{} { return b.ready }

func (b *RedisBus) Publish(projectID string, ev Event) {
	env, err := Encode(projectID, ev)
	if err != nil {
		atomic.AddInt64(&b.hub.metrics.encodeErrors, 1)
		b.log.WithError(err).WithField("event", ev.Name).Error("realtime: encode event")
		return
	}
	atomic.AddInt64(&b.hub.metrics.published, 1)

	b.enqueue(env)
}

// EvictPrincipal drops the principal's local connections at once and relays
// the eviction so other instances drop theirs. The relayed copy rides the
// same queue as events, so nothing published after the eviction reaches the
// principal on any instance.
func (b *RedisBus) EvictPrincipal(projectID, principalID string) {
	b.hub.EvictPrincipal(projectID, principalID)
	b.enqueueEvict(projectID, principalID)
}

// CloseGroup is queued behind whatever was published before it, so a
// projectDeleted event reaches every connection before the group closes.
func (b *RedisBus) CloseGroup(projectID string) {
	b.enqueueEvict(projectID, "")
}

func (b *RedisBus) enqueueEvict(projectID, principalID string) {
	env, err := Encode(projectID, Event{Name: eventEvict, Data: evictPayload{PrincipalID: principalID}})
	if err != nil {
		atomic.AddInt64(&b.hub.metrics.encodeErrors, 1)
		return
	}
	b.enqueue(env)
}

func (b *RedisBus) enqueue(env Envelope) {
	select {
	case b.queue <- env:
	default:
		atomic.AddInt64(&b.hub.metrics.localFallbacks, 1)
		b.applyLocal(env)
	}
}

// applyLocal hands env to this instance's hub only.
func (b *RedisBus) applyLocal(env Envelope) {
	if env.Event != eventEvict {
		b.hub.Deliver(env)
		return
	}

	var p evictPayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		b.log.WithError(err).WithField("project_id", env.ProjectID).Warn("realtime: malformed eviction")
		return
	}
	if p.PrincipalID == "" {
		b.hub.CloseGroup(env.ProjectID)
		return
	}
	b.hub.EvictPrincipal(env.ProjectID, p.PrincipalID)
}

// Run subscribes, drains the outbound queue and relays inbound messages
// until ctx is cancelled. Events still queued at shutdown are delivered
// locally.
func (b *RedisBus) Run(ctx context.Context) error {
	pubsub := b.client.PSubscribe(ctx, eventChannelPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s*: %w", eventChannelPrefix, err)
	}
	close(b.ready)
	b.log.Info("realtime: redis bus subscribed")

	inbound := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			b.drainLocal()
			return nil
		case env := <-b.queue:
			b.publishRemote(ctx, env)
		case msg, ok := <-inbound:
			if !ok {
				b.drainLocal()
				return nil
			}
			b.deliverInbound(msg)
		}
	}
}

func (b *RedisBus) publishRemote(ctx context.Context, env Envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		atomic.AddInt64(&b.hub.metrics.encodeErrors, 1)
		return
	}

	_, err = b.breaker.Execute(func() (interface{}, error) {
		pctx, cancel := context.WithTimeout(ctx, b.opt.PublishTimeout)
		defer cancel()
		return nil, b.client.Publish(pctx, eventChannel(env.ProjectID), payload).Err()
	})
	if err != nil {
		atomic.AddInt64(&b.hub.metrics.busFailures, 1)
		atomic.AddInt64(&b.hub.metrics.localFallbacks, 1)
		b.log.WithError(err).WithField("project_id", env.ProjectID).Debug("realtime: publish failed, delivering locally")
		b.applyLocal(env)
		return
	}
	atomic.AddInt64(&b.hub.metrics.busPublished, 1)
}

func (b *RedisBus) deliverInbound(msg *redis.Message) {
	var env Envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		b.log.WithError(err).WithField("channel", msg.Channel).Warn("realtime: malformed bus message")
		return
	}
	if env.ProjectID == "" {
		env.ProjectID = strings.TrimPrefix(msg.Channel, eventChannelPrefix)
	}
	b.applyLocal(env)
}

func (b *RedisBus) drainLocal() {
	for {
		select {
		case env := <-b.queue:
			b.applyLocal(env)
		default:
			return
		}
	}
}

func eventChannel(projectID string) string {
	return eventChannelPrefix + projectID
}
