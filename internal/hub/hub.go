package hub

import (
	"sync"
	"time"
)

// Event is one realtime update published to a topic.
type Event struct {
	Topic   string    `json:"topic"`
	Kind    string    `json:"kind"`
	Payload any       `json:"payload"`
	At      time.Time `json:"at"`
}

// Event kinds published by the coordinator.
const (
	KindJobCreated     = "job_created"
	KindJobTransition  = "job_transition"
	KindLocationUpdate = "location_update"
	KindChatMessage    = "chat_message"
)

// Topic keys. A dashboard subscribes to the job topics it cares about, a
// tracking view to a courier topic, a chat view to a chat topic.
func JobTopic(jobID string) string         { return "job:" + jobID }
func CourierTopic(courierID string) string { return "courier:" + courierID }
func ChatTopic(jobID string) string        { return "chat:" + jobID }
func UserTopic(userID string) string       { return "user:" + userID }

// Subscription is an owned handle on a topic. Close is mandatory on view
// teardown; a closed subscription's Events channel is closed.
type Subscription interface {
	Events() <-chan Event
	Close()
}

type subscription struct {
	hub    *Hub
	topic  string
	events chan Event
	once   sync.Once
}

func (s *subscription) Events() <-chan Event { return s.events }

func (s *subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
		close(s.events)
	})
}

// Hub fans committed changes out to current topic subscribers. Delivery is
// best-effort: there is no durable queue, and a slow or disconnected
// subscriber has events dropped rather than retried. Per-topic delivery
// order matches publish order.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*subscription]struct{}

	dropped func(topic string)
}

func New() *Hub {
	return &Hub{topics: make(map[string]map[*subscription]struct{})}
}

// OnDrop registers a hook observing dropped deliveries, used for metrics.
func (h *Hub) OnDrop(fn func(topic string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropped = fn
}

// Subscribe registers an observer of topic. buffer bounds how far the
// subscriber may fall behind before deliveries are dropped.
func (h *Hub) Subscribe(topic string, buffer int) Subscription {
	if buffer <= 0 {
		buffer = 16
	}
	sub := &subscription{hub: h, topic: topic, events: make(chan Event, buffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[*subscription]struct{})
		h.topics[topic] = subs
	}
	subs[sub] = struct{}{}
	return sub
}

// Publish delivers the event to every current subscriber of topic. Never
// blocks the publisher.
func (h *Hub) Publish(topic, kind string, payload any) {
	ev := Event{Topic: topic, Kind: kind, Payload: payload, At: time.Now().UTC()}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.topics[topic] {
		select {
		case sub.events <- ev:
		default:
			if h.dropped != nil {
				h.dropped(topic)
			}
		}
	}
}

// Subscribers returns the current subscriber count for topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

func (h *Hub) remove(sub *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.topics[sub.topic]
	if !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.topics, sub.topic)
	}
}
