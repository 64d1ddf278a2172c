package queue

import (
	"container/list"

	"github.com/loopwire/queued/pkg/wire"
)

// singlethreadSet is a Set backend with no internal synchronization: it
// assumes a single goroutine (the owning reactor) ever touches it, the same
// trade a non-atomic RefCell-backed queue type makes in exchange for
// avoiding locking overhead on the hot path. Go has no type-level Send
// marker to enforce this; the enforcement here is that NewSinglethread
// returns a Set which is never handed to more than one Server, by
// convention of the broker.Server constructor.
type singlethreadSet struct {
	queues map[string]*stQueue
}

// NewSinglethread returns an unbounded, non-shareable Set suitable for a
// broker driven by exactly one reactor goroutine.
func NewSinglethread() Set {
	return &singlethreadSet{queues: make(map[string]*stQueue)}
}

func (s *singlethreadSet) Insert(name string) {
	if _, ok := s.queues[name]; !ok {
		s.queues[name] = &stQueue{l: list.New()}
	}
}

func (s *singlethreadSet) Remove(name string) bool {
	var _, ok = s.queues[name]
	delete(s.queues, name)
	return ok
}

func (s *singlethreadSet) Lookup(name string) (Queue, bool) {
	var q, ok = s.queues[name]
	if !ok {
		return nil, false
	}
	return q, true
}

// stQueue is an unbounded FIFO backed by a doubly-linked list, giving O(1)
// push-back, push-front, and pop-front — the operations Enqueue, Requeue,
// and Dequeue respectively require.
type stQueue struct {
	l *list.List
}

type stEntry struct {
	id      wire.MessageID
	payload []byte
}

func (q *stQueue) Enqueue(id wire.MessageID, payload []byte) bool {
	q.l.PushBack(stEntry{id: id, payload: payload})
	return true
}

// Requeue inserts at the front, so the requeued Message is the next one a
// reader observes.
func (q *stQueue) Requeue(id wire.MessageID, payload []byte) bool {
	q.l.PushFront(stEntry{id: id, payload: payload})
	return true
}

func (q *stQueue) Dequeue() (wire.MessageID, []byte, bool) {
	var front = q.l.Front()
	if front == nil {
		return wire.MessageID{}, nil, false
	}
	q.l.Remove(front)
	var e = front.Value.(stEntry)
	return e.id, e.payload, true
}
