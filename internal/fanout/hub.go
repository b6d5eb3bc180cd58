package fanout

import (
	"log"
	"sync"

	"stackit/internal/events"
)

// Hub is the in-process pub/sub channel between the consistency core and
// connected clients. Delivery is transient and best-effort: a subscriber gets
// the events published while it is attached, nothing is replayed, and a full
// subscriber buffer sheds its oldest event rather than blocking the
// publisher.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscription]struct{}
	buffer int
}

const defaultBuffer = 16

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{
		topics: make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
	}
}

// Subscription is one attached consumer of a single topic.
type Subscription struct {
	topic   string
	ch      chan events.Event
	hub     *Hub
	once    sync.Once
	dropMu  sync.Mutex
	closed  bool
	dropped uint64
}

// C is the stream of events. It is closed by Close.
func (s *Subscription) C() <-chan events.Event {
	return s.ch
}

// Topic returns the topic this subscription is attached to.
func (s *Subscription) Topic() string {
	return s.topic
}

// Dropped reports how many events were shed because the consumer lagged.
func (s *Subscription) Dropped() uint64 {
	s.dropMu.Lock()
	defer s.dropMu.Unlock()
	return s.dropped
}

// Close detaches the subscription and closes its channel. Safe to call twice.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
		s.dropMu.Lock()
		s.closed = true
		s.dropMu.Unlock()
		close(s.ch)
	})
}

// Subscribe attaches a new consumer to topic. Events published before the
// call are not delivered.
func (h *Hub) Subscribe(topic string) *Subscription {
	sub := &Subscription{
		topic: topic,
		ch:    make(chan events.Event, h.buffer),
		hub:   h,
	}
	h.mu.Lock()
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[*Subscription]struct{})
		h.topics[topic] = subs
	}
	subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *Hub) remove(sub *Subscription) {
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

// Publish delivers ev to every current subscriber of topic. It never blocks:
// each subscriber's buffer is filled in publish order, and when one is full
// the oldest buffered event is dropped to make room.
func (h *Hub) Publish(topic string, ev events.Event) {
	h.mu.RLock()
	subs := make([]*Subscription, 0, len(h.topics[topic]))
	for sub := range h.topics[topic] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		sub.offer(topic, ev)
	}
}

// PublishToUser delivers ev on the user's private queue.
func (h *Hub) PublishToUser(userID uint, ev events.Event) {
	h.Publish(events.UserTopic(userID), ev)
}

// SubscriberCount reports how many consumers a topic currently has.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

func (s *Subscription) offer(topic string, ev events.Event) {
	// dropMu keeps drop-oldest atomic when two publishers hit the same full
	// buffer; without it both could pop and the channel would under-fill.
	s.dropMu.Lock()
	defer s.dropMu.Unlock()
	if s.closed {
		return
	}

	select {
	case s.ch <- ev:
		return
	default:
	}

	// Buffer full: shed the oldest event, then retry once.
	select {
	case <-s.ch:
		s.dropped++
	default:
	}
	select {
	case s.ch <- ev:
	default:
		// Still full (another publisher refilled it); drop the new event.
		s.dropped++
		log.Printf("fanout: dropped %s event for slow subscriber on %s", ev.Type, topic)
	}
}
