package broadcast

import "sync/atomic"

// ring is one subscriber's bounded queue. push never blocks: when the queue
// is full the oldest value is evicted to make room.
//
// push assumes a single writer at a time (Hub.mu); reads may run
// concurrently through out().
type ring[T any] struct {
	ch      chan T
	evicted atomic.Int64
}

func newRing[T any](capacity int) *ring[T] {
	if capacity <= 0 {
		panic("broadcast: capacity must be > 0")
	}
	return &ring[T]{ch: make(chan T, capacity)}
}

func (r *ring[T]) out() <-chan T {
	return r.ch
}

// push enqueues v and reports whether an older value was evicted for it.
func (r *ring[T]) push(v T) bool {
	select {
	case r.ch <- v:
		return false
	default:
	}

	evicted := false
	select {
	case <-r.ch:
		r.evicted.Add(1)
		evicted = true
	default:
		// the reader emptied a slot meanwhile
	}
	r.ch <- v
	return evicted
}

func (r *ring[T]) pending() int {
	return len(r.ch)
}

// close ends the stream; buffered values stay readable. push after close panics.
func (r *ring[T]) close() {
	close(r.ch)
}
