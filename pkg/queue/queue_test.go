package queue

import (
	"testing"

	"github.com/loopwire/queued/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSinglethreadFIFOOrder(t *testing.T) {
	var set = NewSinglethread()
	set.Insert("foo")
	var q, ok = set.Lookup("foo")
	require.True(t, ok)

	var gen = wire.NewIDGenerator()
	var ids = []wire.MessageID{gen.Next(), gen.Next(), gen.Next()}
	var payloads = [][]byte{[]byte("a"), []byte("b"), []byte("c")}

	for i := range ids {
		assert.True(t, q.Enqueue(ids[i], payloads[i]))
	}
	for i := range ids {
		var id, payload, ok = q.Dequeue()
		require.True(t, ok)
		assert.Equal(t, ids[i], id)
		assert.Equal(t, payloads[i], payload)
	}
	var _, _, ok2 = q.Dequeue()
	assert.False(t, ok2)
}

func TestSinglethreadRequeueToHead(t *testing.T) {
	var set = NewSinglethread()
	set.Insert("foo")
	var q, _ = set.Lookup("foo")

	var gen = wire.NewIDGenerator()
	var a, b = gen.Next(), gen.Next()

	q.Enqueue(a, []byte("a"))
	q.Enqueue(b, []byte("b"))

	var id1, _, _ = q.Dequeue()
	assert.Equal(t, a, id1)

	// Timeout elapses without Confirm: the message goes back to the front.
	q.Requeue(a, []byte("a"))

	var id2, _, _ = q.Dequeue()
	assert.Equal(t, a, id2, "requeued message should be next, ahead of b")

	var id3, _, _ = q.Dequeue()
	assert.Equal(t, b, id3)
}

func TestSetLookupMissing(t *testing.T) {
	var set = NewSinglethread()
	var _, ok = set.Lookup("does-not-exist")
	assert.False(t, ok)
}

func TestRemoveAbandonsButDoesNotBreakHeldHandle(t *testing.T) {
	var set = NewSinglethread()
	set.Insert("foo")
	var q, _ = set.Lookup("foo")

	assert.True(t, set.Remove("foo"))
	var _, ok = set.Lookup("foo")
	assert.False(t, ok, "removed queue is no longer resolvable by name")

	// The handle obtained before removal still functions for its holder.
	var gen = wire.NewIDGenerator()
	assert.True(t, q.Enqueue(gen.Next(), []byte("still alive")))
}

func TestConcurrentEnqueueRejectedAtCapacity(t *testing.T) {
	var set = NewConcurrent(1)
	set.Insert("q")
	var q, _ = set.Lookup("q")

	var gen = wire.NewIDGenerator()
	var a = gen.Next()
	assert.True(t, q.Enqueue(a, []byte("a")))

	var b = gen.Next()
	assert.False(t, q.Enqueue(b, []byte("b")), "second enqueue on a full bounded queue must be rejected")
}

func TestConcurrentRequeueAppendsToTail(t *testing.T) {
	var set = NewConcurrent(4)
	set.Insert("q")
	var q, _ = set.Lookup("q")

	var gen = wire.NewIDGenerator()
	var a, b = gen.Next(), gen.Next()

	q.Enqueue(a, []byte("a"))
	q.Enqueue(b, []byte("b"))

	var id1, _, _ = q.Dequeue()
	assert.Equal(t, a, id1)

	// Unlike the single-thread backend, requeue lands at the tail: b is
	// still ahead of the requeued a.
	q.Requeue(a, []byte("a"))

	var id2, _, _ = q.Dequeue()
	assert.Equal(t, b, id2)

	var id3, _, _ = q.Dequeue()
	assert.Equal(t, a, id3)
}

func TestConcurrentSetSharedAcrossGoroutines(t *testing.T) {
	var set = NewConcurrent(256)
	set.Insert("q")
	var q, _ = set.Lookup("q")
	var gen = wire.NewIDGenerator()

	var done = make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 16; j++ {
				q.Enqueue(gen.Next(), []byte("x"))
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	var count int
	for {
		var _, _, ok = q.Dequeue()
		if !ok {
			break
		}
		count++
	}
	assert.Equal(t, 128, count)
}
