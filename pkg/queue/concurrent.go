package queue

import (
	"sync"

	"github.com/loopwire/queued/pkg/wire"
)

// concurrentSet is a Set backend safe to share across reactor goroutines,
// and across independently-running Servers. It pairs a read-write lock over
// the name map with a bounded, channel-backed Queue per entry — a Go
// channel is already a lock-free(ish), bounded, multi-producer/
// multi-consumer queue, so it needs no additional synchronization of its
// own.
type concurrentSet struct {
	capacity int
	mu       sync.RWMutex
	queues   map[string]*concQueue
}

// NewConcurrent returns a Set whose Queues are bounded to capacity entries
// each, safe to share across any number of Servers or reactor goroutines.
func NewConcurrent(capacity int) Set {
	return &concurrentSet{
		capacity: capacity,
		queues:   make(map[string]*concQueue),
	}
}

func (s *concurrentSet) Insert(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.queues[name]; !ok {
		s.queues[name] = newConcQueue(s.capacity)
	}
}

func (s *concurrentSet) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	var _, ok = s.queues[name]
	delete(s.queues, name)
	return ok
}

func (s *concurrentSet) Lookup(name string) (Queue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var q, ok = s.queues[name]
	if !ok {
		return nil, false
	}
	return q, true
}

type concEntry struct {
	id      wire.MessageID
	payload []byte
}

// concQueue is a bounded MPMC queue backed by a buffered channel.
type concQueue struct {
	ch chan concEntry
}

func newConcQueue(capacity int) *concQueue {
	return &concQueue{ch: make(chan concEntry, capacity)}
}

func (q *concQueue) Enqueue(id wire.MessageID, payload []byte) bool {
	select {
	case q.ch <- concEntry{id: id, payload: payload}:
		return true
	default:
		return false
	}
}

// Requeue is equivalent to Enqueue (tail insert). A blocking front-insert
// isn't expressible over a channel without risking stalling the reactor, so
// the concurrent backend accepts appending to the tail as the cost of
// lock-free concurrency — a documented per-backend trade-off, not a bug.
func (q *concQueue) Requeue(id wire.MessageID, payload []byte) bool {
	return q.Enqueue(id, payload)
}

func (q *concQueue) Dequeue() (wire.MessageID, []byte, bool) {
	select {
	case e := <-q.ch:
		return e.id, e.payload, true
	default:
		return wire.MessageID{}, nil, false
	}
}
