package reactor

import (
	"container/heap"
	"time"
)

// TimerID identifies an armed timer so it can be cancelled before it fires.
type TimerID uint64

// timerEntry is one armed timer. callback runs on the reactor's run-loop
// goroutine when deadline elapses, never concurrently with I/O dispatch —
// this is what lets the unconfirmed-delivery timeout race treat
// timer firing and readiness dispatch as mutually exclusive.
type timerEntry struct {
	id       TimerID
	deadline time.Time
	callback func()
	index    int // heap.Interface bookkeeping
	live     bool
}

// timerHeap is a container/heap.Interface over *timerEntry ordered by
// deadline, giving O(log n) arm/cancel/pop — the same asymptotics a fixed
// timer wheel gives in the steady state, without a wheel's granularity loss.
type timerHeap []*timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *timerHeap) Push(x interface{}) {
	var e = x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *timerHeap) Pop() interface{} {
	var old = *h
	var n = len(old)
	var e = old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Timers is a capacity-bounded set of armed, cancellable, one-shot timers,
// driven entirely by calls from the reactor run loop: nothing here spawns a
// goroutine of its own.
type Timers struct {
	capacity int
	heap     timerHeap
	byID     map[TimerID]*timerEntry
	nextID   TimerID
}

// NewTimers returns an empty Timers bounded to capacity simultaneously armed
// timers.
func NewTimers(capacity int) *Timers {
	return &Timers{
		capacity: capacity,
		byID:     make(map[TimerID]*timerEntry),
	}
}

// Arm schedules callback to run when d has elapsed, returning a TimerID
// usable with Cancel. Arm fails silently (returns TimerID(0), false) at
// capacity, the same way a full bounded channel send fails: the caller
// observes failure and decides how to proceed (the broker's coordinator
// leaves the delivery without a timer).
func (t *Timers) Arm(d time.Duration, callback func()) (TimerID, bool) {
	if len(t.byID) >= t.capacity {
		return 0, false
	}
	t.nextID++
	var e = &timerEntry{
		id:       t.nextID,
		deadline: nowFunc().Add(d),
		callback: callback,
		live:     true,
	}
	t.byID[e.id] = e
	heap.Push(&t.heap, e)
	return e.id, true
}

// Cancel disarms a previously armed timer. Cancelling an already-fired or
// unknown TimerID is a harmless no-op.
func (t *Timers) Cancel(id TimerID) {
	var e, ok = t.byID[id]
	if !ok {
		return
	}
	e.live = false
	delete(t.byID, id)
}

// Next returns the duration until the soonest live timer's deadline, capped
// at most, and false if there are no live timers at all (in which case the
// caller should use most unconditionally).
func (t *Timers) Next(most time.Duration) (time.Duration, bool) {
	t.dropDead()
	if t.heap.Len() == 0 {
		return most, false
	}
	var until = t.heap[0].deadline.Sub(nowFunc())
	if until < 0 {
		until = 0
	}
	if until > most {
		until = most
	}
	return until, true
}

// Fire invokes and removes every timer whose deadline has elapsed.
func (t *Timers) Fire() {
	var now = nowFunc()
	for t.heap.Len() > 0 && !t.heap[0].deadline.After(now) {
		var e = heap.Pop(&t.heap).(*timerEntry)
		if !e.live {
			continue
		}
		delete(t.byID, e.id)
		e.callback()
	}
}

func (t *Timers) dropDead() {
	for t.heap.Len() > 0 && !t.heap[0].live {
		heap.Pop(&t.heap)
	}
}

// nowFunc is overridden in tests to make timer expiry deterministic.
var nowFunc = time.Now
