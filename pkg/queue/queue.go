// Package queue implements the broker's FIFO queue abstraction: a Set maps
// queue names to Queues, and two interchangeable Queue backends trade off
// concurrency safety against ordering fidelity on requeue.
package queue

import "github.com/loopwire/queued/pkg/wire"

// Queue is a named FIFO sequence of messages, plus the privileged Requeue
// operation used only by redelivery.
//
// A Queue handle may be held concurrently by its owning Set and by any
// number of in-flight deliveries; handles share the same underlying
// storage (reference-counted in spirit, via a pointer or a channel
// depending on backend).
type Queue interface {
	// Enqueue appends (id, payload) at the tail. It returns false if the
	// queue is bounded and at capacity; the caller retains ownership of
	// payload in that case and may report it back to the client unchanged.
	Enqueue(id wire.MessageID, payload []byte) (ok bool)

	// Requeue reinserts (id, payload) after a failed delivery. Its
	// insertion point is backend-specific: the single-thread backend
	// inserts at the front (the requeued message is next to be read); the
	// concurrent backend inserts at the tail, same as Enqueue.
	Requeue(id wire.MessageID, payload []byte) (ok bool)

	// Dequeue removes and returns the head message, if any.
	Dequeue() (id wire.MessageID, payload []byte, ok bool)
}

// Set is a mapping from queue name to Queue.
type Set interface {
	// Insert creates a queue named name if one does not already exist.
	// Idempotent: an existing queue of the same name is left untouched.
	Insert(name string)

	// Remove deletes the named queue from the Set. Handles already held by
	// connections or in-flight deliveries continue to operate; only
	// subsequent Lookups observe the removal.
	Remove(name string) (existed bool)

	// Lookup returns the named Queue, or ok=false if no such queue exists.
	Lookup(name string) (q Queue, ok bool)
}
