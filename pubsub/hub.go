// Package pubsub fans published events out to live subscribers within one process.
// Each topic keeps an immutable snapshot of its subscribers that is swapped on every
// subscribe or unsubscribe, so a publish walks a consistent list without locking it.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"wtfGram/domain"
)

// ErrClosed is returned by a closed Hub or Subscription.
var ErrClosed = errors.New("pubsub: closed")

// Message is one published event. Payload is the JSON encoding of what was published.
// A nil Audience reaches every subscriber of Topic.
type Message struct {
	Topic    string          `json:"topic"`
	Payload  json.RawMessage `json:"payload"`
	Audience []string        `json:"audience"`
}

// allows reports whether a subscriber with the given canonical identity may receive msg.
func (m Message) allows(identity string) bool {
	if m.Audience == nil {
		return true
	}
	return identity != "" && domain.ContainsID(m.Audience, identity)
}

// Hub is a publish/subscribe broker. Create one with NewHub and share it between
// the publishers and the transports serving subscribers.
type Hub struct {
	log     logrus.FieldLogger
	metrics *Metrics

	mu     sync.Mutex
	topics map[string]*topic
	closed bool
}

// topic holds the current subscriber snapshot of one topic.
type topic struct {
	name string
	// mu serializes writers. Readers load subs without it.
	mu   sync.Mutex
	subs atomic.Value // []*Subscription
	// closed is set under mu once the hub swept the topic.
	closed bool
}

func (t *topic) snapshot() []*Subscription {
	subs, _ := t.subs.Load().([]*Subscription)
	return subs
}

// NewHub returns an empty Hub. metrics may be nil.
func NewHub(log logrus.FieldLogger, metrics *Metrics) *Hub {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Hub{
		log:     log,
		metrics: metrics,
		topics:  map[string]*topic{},
	}
}

// Ensure the Hub properly implements the domain.Publisher interface.
var _ domain.Publisher = &Hub{}

// topic returns the named topic, creating it on first use. Topics live as long as the hub.
func (h *Hub) topic(name string) (*topic, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	t, ok := h.topics[name]
	if !ok {
		t = &topic{name: name}
		t.subs.Store([]*Subscription{})
		h.topics[name] = t
	}
	return t, nil
}

// Subscribe registers a new subscriber on the named topic. identity is matched against
// the audience of filtered messages. It may be empty for anonymous subscribers, which
// then only receive unfiltered messages.
func (h *Hub) Subscribe(name, identity string) (*Subscription, error) {
	t, err := h.topic(name)
	if err != nil {
		return nil, err
	}
	sub := newSubscription(h, t, identity)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrClosed
	}
	old := t.snapshot()
	next := make([]*Subscription, len(old), len(old)+1)
	copy(next, old)
	t.subs.Store(append(next, sub))
	t.mu.Unlock()

	h.metrics.subscribers.WithLabelValues(name).Inc()
	h.log.WithFields(logrus.Fields{"topic": name, "identity": sub.identity}).Debug("subscribed")
	return sub, nil
}

// unsubscribe removes sub from its topic's snapshot.
func (h *Hub) unsubscribe(sub *Subscription) {
	t := sub.topic
	t.mu.Lock()
	old := t.snapshot()
	next := make([]*Subscription, 0, len(old))
	removed := false
	for _, s := range old {
		if s == sub {
			removed = true
			continue
		}
		next = append(next, s)
	}
	t.subs.Store(next)
	t.mu.Unlock()

	if removed {
		h.metrics.subscribers.WithLabelValues(t.name).Dec()
		h.log.WithFields(logrus.Fields{"topic": t.name, "identity": sub.identity}).Debug("unsubscribed")
	}
}

// Publish encodes payload once and hands it to every current subscriber of the named topic.
// With a non-nil audience only subscribers whose identity is listed receive it, so an empty
// audience reaches nobody. Publish never waits for subscribers.
func (h *Hub) Publish(ctx context.Context, name string, payload interface{}, audience []string) error {
	msg, err := NewMessage(name, payload, audience)
	if err != nil {
		return err
	}
	return h.Deliver(ctx, msg)
}

// NewMessage builds the Message published for payload. json.RawMessage payloads are taken as is.
func NewMessage(name string, payload interface{}, audience []string) (Message, error) {
	var raw json.RawMessage
	switch p := payload.(type) {
	case json.RawMessage:
		raw = p
	default:
		b, err := json.Marshal(payload)
		if err != nil {
			return Message{}, err
		}
		raw = b
	}
	msg := Message{Topic: name, Payload: raw}
	if audience != nil {
		msg.Audience = make([]string, len(audience))
		for i, id := range audience {
			msg.Audience[i] = domain.CanonicalID(id)
		}
	}
	return msg, nil
}

// Deliver hands an already built message to the local subscribers of its topic.
// Relays use it to inject messages published elsewhere.
func (h *Hub) Deliver(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t, err := h.topic(msg.Topic)
	if err != nil {
		return err
	}
	h.metrics.published.WithLabelValues(msg.Topic).Inc()

	delivered, filtered := 0, 0
	for _, sub := range t.snapshot() {
		if !msg.allows(sub.identity) {
			filtered++
			continue
		}
		// A subscription closed after the snapshot was taken just refuses the message.
		if sub.enqueue(msg) {
			delivered++
		}
	}
	h.metrics.delivered.WithLabelValues(msg.Topic).Add(float64(delivered))
	h.metrics.filtered.WithLabelValues(msg.Topic).Add(float64(filtered))
	return nil
}

// Subscribers returns the number of live subscribers of the named topic.
func (h *Hub) Subscribers(name string) int {
	h.mu.Lock()
	t, ok := h.topics[name]
	h.mu.Unlock()
	if !ok {
		return 0
	}
	return len(t.snapshot())
}

// Close closes every subscription. Publishing or subscribing afterwards fails with ErrClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	topics := make([]*topic, 0, len(h.topics))
	for _, t := range h.topics {
		topics = append(topics, t)
	}
	h.mu.Unlock()

	for _, t := range topics {
		t.mu.Lock()
		t.closed = true
		subs := t.snapshot()
		t.subs.Store([]*Subscription{})
		t.mu.Unlock()
		for _, s := range subs {
			s.close()
			h.metrics.subscribers.WithLabelValues(t.name).Dec()
		}
	}
}
