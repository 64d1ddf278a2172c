//go:build linux

package broker

import (
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/loopwire/queued/internal/reactor"
	"github.com/loopwire/queued/internal/xtrace"
	"github.com/loopwire/queued/pkg/wire"
)

// connection is the Registration for one accepted client socket: an
// incoming byte buffer decoded request-by-request, an outgoing byte
// buffer flushed as the socket allows, and dispatch into the shared Queue
// Set and delivery coordinator. All methods run only from the reactor's
// goroutine.
type connection struct {
	fd    int
	token reactor.Token
	h     *Handler

	inbuf  []byte
	outbuf []byte

	writable bool // true iff currently registered for EPOLLOUT
	trace    *xtrace.Trace
}

func newConnection(fd int, h *Handler) *connection {
	return &connection{fd: fd, h: h, trace: xtrace.New("queued.connection", "")}
}

// FD implements reactor.Registration.
func (c *connection) FD() int { return c.fd }

// onReadable drains the socket into inbuf and decodes as many complete
// requests as are available, dispatching each in arrival order — this is
// what gives pipelined requests on one connection their ordering guarantee.
func (c *connection) onReadable() {
	var tmp [4096]byte
	for {
		var n, err = unix.Read(c.fd, tmp[:])
		if err != nil {
			if err == unix.EAGAIN {
				break
			}
			c.h.closeConnection(c.token, "read error")
			return
		}
		if n == 0 {
			c.h.closeConnection(c.token, "peer closed")
			return
		}
		c.inbuf = append(c.inbuf, tmp[:n]...)
		if n < len(tmp) {
			break
		}
	}

	for {
		var req, consumed, err = wire.DecodeRequest(c.inbuf)
		if err == wire.ErrIncomplete {
			break
		}
		if err != nil {
			log.WithField("error", err).Warn("malformed request, closing connection")
			c.h.closeConnection(c.token, "decode error")
			return
		}
		c.inbuf = c.inbuf[consumed:]

		var resp = c.dispatch(req)
		var buf, encErr = wire.EncodeResponse(resp)
		if encErr != nil {
			log.WithField("error", encErr).Error("failed to encode response")
			c.h.closeConnection(c.token, "encode error")
			return
		}
		c.outbuf = append(c.outbuf, buf...)
	}

	c.flush()
}

// onWritable is called when the socket reports room in its send buffer.
func (c *connection) onWritable() {
	c.flush()
}

// flush writes as much of outbuf as the socket accepts, arming or
// disarming EPOLLOUT interest as needed so the reactor only wakes this
// connection on writability while there's something queued to send.
func (c *connection) flush() {
	for len(c.outbuf) > 0 {
		var n, err = unix.Write(c.fd, c.outbuf)
		if err != nil {
			if err == unix.EAGAIN {
				c.armWritable()
				return
			}
			c.h.closeConnection(c.token, "write error")
			return
		}
		c.outbuf = c.outbuf[n:]
	}
	c.disarmWritable()
}

func (c *connection) armWritable() {
	if c.writable {
		return
	}
	c.writable = true
	c.h.reactor.Poll().Reregister(c.fd, c.token, reactor.Interest{Readable: true, Writable: true})
}

func (c *connection) disarmWritable() {
	if !c.writable {
		return
	}
	c.writable = false
	c.h.reactor.Poll().Reregister(c.fd, c.token, reactor.Interest{Readable: true})
}

// dispatch executes a single decoded request against the shared queue set
// and delivery coordinator, returning the response to serialize back.
func (c *connection) dispatch(req wire.Request) wire.Response {
	switch r := req.(type) {
	case wire.CreateQueue:
		c.h.metrics.Dispatched("create_queue")
		c.h.queues.Insert(r.Name)
		return wire.QueueCreated{}

	case wire.DeleteQueue:
		c.h.metrics.Dispatched("delete_queue")
		if !c.h.queues.Remove(r.Name) {
			return wire.NoSuchEntity{}
		}
		return wire.QueueDeleted{}

	case wire.Enqueue:
		c.h.metrics.Dispatched("enqueue")
		var q, ok = c.h.queues.Lookup(r.Name)
		if !ok {
			return wire.NoSuchEntity{}
		}
		var id = c.h.idgen.Next()
		if !q.Enqueue(id, r.Payload) {
			return wire.Full{ID: id, Payload: r.Payload}
		}
		return wire.ObjectQueued{ID: id}

	case wire.Read:
		c.h.metrics.Dispatched("read")
		var q, ok = c.h.queues.Lookup(r.Name)
		if !ok {
			return wire.NoSuchEntity{}
		}
		var id, payload, hasMsg = q.Dequeue()
		if !hasMsg {
			return wire.Empty{}
		}
		var timeout = time.Duration(r.TimeoutMs) * time.Millisecond
		if r.TimeoutMs == 0 {
			timeout = c.h.defaultTimeout
		}
		c.h.coordinator.start(id, q, payload, c.token, timeout, c.h.reactor.Timers(), c.trace)
		return wire.ReadResponse{ID: id, Payload: payload}

	case wire.Confirm:
		c.h.metrics.Dispatched("confirm")
		var status, payload = c.h.coordinator.confirm(r.ID, c.h.reactor.Timers())
		switch status {
		case confirmed:
			return wire.Confirmed{}
		case alreadyRequeued:
			return wire.Requeued{}
		case confirmFull:
			return wire.Full{ID: r.ID, Payload: payload}
		default:
			return wire.NoSuchEntity{}
		}

	default:
		log.WithField("type", r).Error("unhandled request type")
		return wire.NoSuchEntity{}
	}
}

// Close releases the raw socket, implementing reactor.Closer so the
// reactor can tear it down directly (e.g. during Reactor.Close's slab
// sweep) as well as from Handler.closeConnection. Poll deregistration and
// coordinator cleanup are the caller's responsibility since they involve
// shared state beyond this connection.
func (c *connection) Close() error {
	c.trace.Finish()
	return unix.Close(c.fd)
}
