// Package broadcast fans values out to any number of independent subscribers.
//
// Delivery is lossy: each subscriber owns a bounded
// queue, and when a subscriber falls behind the oldest undelivered
// values are dropped for that subscriber only. Publishers never block on
// subscribers.
package broadcast

import (
	"sync"

	"github.com/google/uuid"
)

// Hub multiplexes published values to its subscribers.
// All methods are safe for concurrent use.
type Hub[T any] struct {
	mu       sync.Mutex
	subs     map[string]*Subscription[T]
	capacity int
	closed   bool
}

// NewHub creates a hub whose subscribers buffer up to capacity values each.
func NewHub[T any](capacity int) *Hub[T] {
	if capacity <= 0 {
		panic("broadcast: capacity must be > 0")
	}
	return &Hub[T]{
		subs:     make(map[string]*Subscription[T]),
		capacity: capacity,
	}
}

// Subscribe registers a new subscriber that receives every value published
// after this call. Subscribing to a closed hub returns a subscription whose
// channel is already closed.
func (h *Hub[T]) Subscribe() *Subscription[T] {
	s := &Subscription[T]{
		id:   uuid.NewString(),
		hub:  h,
		ring: newRing[T](h.capacity),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		s.ring.close()
		s.closed = true
		return s
	}
	h.subs[s.id] = s
	return s
}

// Publish delivers values, in order, to every current subscriber.
// Values from one call stay contiguous for each subscriber because
// publications are serialized. Returns how many buffered values were
// dropped across all subscribers to make room.
func (h *Hub[T]) Publish(values ...T) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0
	}

	dropped := 0
	for _, s := range h.subs {
		for _, v := range values {
			if s.ring.push(v) {
				dropped++
			}
		}
	}
	return dropped
}

// Len returns the number of active subscribers
func (h *Hub[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close closes every subscriber channel. Later publications are ignored.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, s := range h.subs {
		s.ring.close()
		s.closed = true
		delete(h.subs, id)
	}
}

// Subscription is one subscriber's view of a Hub.
type Subscription[T any] struct {
	id   string
	hub  *Hub[T]
	ring *ring[T]

	// closed is guarded by hub.mu
	closed bool
}

// ID uniquely identifies the subscription
func (s *Subscription[T]) ID() string {
	return s.id
}

// C returns the channel values are delivered on. It is closed when the
// subscription or its hub is closed.
func (s *Subscription[T]) C() <-chan T {
	return s.ring.out()
}

// Close detaches the subscription from its hub and closes its channel.
// Other subscribers are unaffected. Safe to call more than once.
func (s *Subscription[T]) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	delete(s.hub.subs, s.id)
	s.ring.close()
}

// Dropped returns how many values were overwritten before this subscriber read them
func (s *Subscription[T]) Dropped() int64 {
	return s.ring.evicted.Load()
}
