package pubsub

import (
	"context"
	"sync"

	"wtfGram/domain"
)

// Subscription is one subscriber's stream of messages on a topic. Messages are queued
// without bound in publish order, so a slow reader never holds up a publisher.
type Subscription struct {
	topic    *topic
	identity string
	hub      *Hub

	mu     sync.Mutex
	queue  []Message
	closed bool
	// signal holds at most one pending wake up for Next.
	signal chan struct{}
	done   chan struct{}
}

func newSubscription(h *Hub, t *topic, identity string) *Subscription {
	return &Subscription{
		topic:    t,
		identity: domain.CanonicalID(identity),
		hub:      h,
		signal:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Topic returns the name of the topic subscribed to.
func (s *Subscription) Topic() string { return s.topic.name }

// Identity returns the canonical identity the subscription filters on.
func (s *Subscription) Identity() string { return s.identity }

// Next blocks until the next message arrives, ctx is done or the subscription is closed.
// Messages already queued are still handed out after Close; ErrClosed follows once the
// queue is drained.
func (s *Subscription) Next(ctx context.Context) (Message, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			msg := s.queue[0]
			s.queue[0] = Message{}
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return msg, nil
		}
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return Message{}, ErrClosed
		}

		select {
		case <-s.signal:
		case <-s.done:
		case <-ctx.Done():
			return Message{}, ctx.Err()
		}
	}
}

// Close unregisters the subscription. It never blocks and may be called more than once.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()
	s.hub.unsubscribe(s)
}

// Done is closed once the subscription is closed.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Len returns the number of queued messages.
func (s *Subscription) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// enqueue appends msg to the queue. It reports false if the subscription is closed.
func (s *Subscription) enqueue(msg Message) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, msg)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
	return true
}

// close marks the subscription closed without touching the hub's registry.
func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
}
