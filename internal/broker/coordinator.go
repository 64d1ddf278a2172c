package broker

import (
	"time"

	"github.com/loopwire/queued/internal/metrics"
	"github.com/loopwire/queued/internal/reactor"
	"github.com/loopwire/queued/internal/xtrace"
	"github.com/loopwire/queued/pkg/queue"
	"github.com/loopwire/queued/pkg/wire"
)

// confirmStatus is the outcome of attempting to Confirm a delivered
// message. Alongside the straightforward confirmed/confirmUnknown poles,
// it distinguishes two ways a Confirm can race a requeue: the requeue
// already succeeded elsewhere (alreadyRequeued), or a requeue attempt is
// still outstanding because the queue was full when it was last tried and
// this Confirm just retried it — either succeeding (alreadyRequeued) or
// failing again (confirmFull, carrying the payload back out so the client
// can see what couldn't be re-admitted).
type confirmStatus int

const (
	confirmed confirmStatus = iota
	alreadyRequeued
	confirmFull
	confirmUnknown
)

// delivery is one outstanding, unconfirmed dequeue: a message handed to a
// client by Read, racing between an explicit Confirm and a redelivery
// timeout.
type delivery struct {
	id      wire.MessageID
	queue   queue.Queue
	payload []byte
	timer   reactor.TimerID
	owner   reactor.Token
	trace   *xtrace.Trace
}

// coordinator owns every outstanding delivery across every connection. It
// is only ever touched from the reactor run-loop goroutine — by Connection
// dispatch on Read/Confirm, by an armed timer's callback on expiry, or by
// Handler cleanup when a connection's owning token is removed from the slab
// — so it needs no locking of its own, the same thread-confinement the
// reactor gives Connection state.
type coordinator struct {
	entries   map[wire.MessageID]*delivery
	recent    map[wire.MessageID]struct{}
	recentQ   []wire.MessageID
	recentCap int
	// failed holds deliveries whose timeout- or cancellation-driven requeue
	// was rejected by a full bounded queue. The message exists nowhere else
	// at that point, so the entry is kept (not capacity-bounded like recent)
	// until a later Confirm retries the requeue, which either succeeds
	// (entry removed, treated the same as any other requeue) or fails again
	// (entry kept, client sees Full).
	failed  map[wire.MessageID]*delivery
	metrics *metrics.Collectors
}

func newCoordinator(recentCap int, m *metrics.Collectors) *coordinator {
	if recentCap <= 0 {
		recentCap = 1024
	}
	return &coordinator{
		entries:   make(map[wire.MessageID]*delivery),
		recent:    make(map[wire.MessageID]struct{}),
		recentCap: recentCap,
		failed:    make(map[wire.MessageID]*delivery),
		metrics:   m,
	}
}

// start records a fresh delivery and, if timeout > 0, arms its redelivery
// timer. The Read dispatch in connection.go has already replaced a request's
// timeout_ms of 0 with the Handler's default timeout, so start sees a zero
// timeout only when that default is itself zero; the delivery then has no
// timer. If Timers.Arm is at capacity the delivery is likewise left without
// a timer.
func (c *coordinator) start(id wire.MessageID, q queue.Queue, payload []byte, owner reactor.Token, timeout time.Duration, timers *reactor.Timers, tr *xtrace.Trace) {
	var d = &delivery{id: id, queue: q, payload: payload, owner: owner, trace: tr}
	c.entries[id] = d
	c.metrics.DeliveryStarted()

	if timeout > 0 {
		var tid, ok = timers.Arm(timeout, func() { c.onTimeout(id) })
		if ok {
			d.timer = tid
		}
	}
}

// confirm resolves a delivery explicitly confirmed by its client. The
// returned payload is only meaningful when the status is confirmFull.
func (c *coordinator) confirm(id wire.MessageID, timers *reactor.Timers) (confirmStatus, []byte) {
	if d, ok := c.entries[id]; ok {
		delete(c.entries, id)
		if d.timer != 0 {
			timers.Cancel(d.timer)
		}
		d.trace.Printf("confirmed")
		c.metrics.DeliveryResolved()
		return confirmed, nil
	}

	if d, ok := c.failed[id]; ok {
		if d.queue.Requeue(d.id, d.payload) {
			delete(c.failed, id)
			d.trace.Printf("confirm retried a previously-full requeue, now succeeded")
			c.metrics.Requeued("retry")
			c.markRecent(id)
			return alreadyRequeued, nil
		}
		d.trace.Printf("confirm retried a previously-full requeue, still full")
		c.metrics.Requeued("full")
		return confirmFull, d.payload
	}

	if _, seen := c.recent[id]; seen {
		return alreadyRequeued, nil
	}
	return confirmUnknown, nil
}

// onTimeout fires when a delivery's redelivery timer expires without a
// Confirm: the message returns to its queue via Requeue.
func (c *coordinator) onTimeout(id wire.MessageID) {
	var d, ok = c.entries[id]
	if !ok {
		return
	}
	delete(c.entries, id)
	c.metrics.DeliveryResolved()
	d.trace.Printf("redelivery timeout elapsed, requeuing")
	c.requeue(d, "timeout")
}

// cancelOwner immediately requeues every delivery owned by a connection
// being torn down, rather than waiting out its timer — the cancellation leg
// of the timeout/confirm/cancellation race. A closed connection can never
// confirm, so there's no reason to hold its deliveries hostage to a timer.
func (c *coordinator) cancelOwner(owner reactor.Token, timers *reactor.Timers) {
	for id, d := range c.entries {
		if d.owner != owner {
			continue
		}
		delete(c.entries, id)
		if d.timer != 0 {
			timers.Cancel(d.timer)
		}
		c.metrics.DeliveryResolved()
		d.trace.Printf("owning connection closed, requeuing")
		c.requeue(d, "connection_closed")
	}
}

// requeue attempts to return d to its queue. On success it's recorded in
// recent, same as always. On failure — the queue was at capacity — d is
// held in failed instead, so a later Confirm for its id can retry the
// requeue rather than the message silently vanishing.
func (c *coordinator) requeue(d *delivery, reason string) {
	if d.queue.Requeue(d.id, d.payload) {
		c.metrics.Requeued(reason)
		c.markRecent(d.id)
		return
	}
	c.metrics.Requeued("full")
	c.failed[d.id] = d
}

func (c *coordinator) markRecent(id wire.MessageID) {
	if _, ok := c.recent[id]; ok {
		return
	}
	c.recent[id] = struct{}{}
	c.recentQ = append(c.recentQ, id)
	if len(c.recentQ) > c.recentCap {
		var oldest = c.recentQ[0]
		c.recentQ = c.recentQ[1:]
		delete(c.recent, oldest)
	}
}
