//go:build linux

package broker

import (
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/loopwire/queued/internal/metrics"
	"github.com/loopwire/queued/internal/reactor"
	"github.com/loopwire/queued/pkg/queue"
	"github.com/loopwire/queued/pkg/wire"
)

// registerListener is a Control message asking the Handler to start
// accepting on an already-bound, listening fd.
type registerListener struct {
	fd   int
	addr string
}

// shutdown is a Control message asking the Handler to stop admitting new
// connections. Run itself still exits via its context being cancelled;
// once it does, Reactor.Close tears down every acceptor and connection
// still registered.
type shutdown struct{}

// Handler implements reactor.Handler, owning the shared state every
// connection dispatches against: the QueueSet, the ID generator, and the
// delivery coordinator. It plays the role the original source's rt.rs
// Handler plays for its Slab<Connection> — the single place readiness and
// control events are turned into queue and connection mutation.
type Handler struct {
	reactor        *reactor.Reactor
	queues         queue.Set
	idgen          *wire.IDGenerator
	coordinator    *coordinator
	metrics        *metrics.Collectors
	defaultTimeout time.Duration

	shuttingDown bool
}

// NewHandler constructs a Handler bound to r, dispatching against queues.
func NewHandler(r *reactor.Reactor, queues queue.Set, m *metrics.Collectors, defaultTimeout time.Duration, recentHistoryCap int) *Handler {
	return &Handler{
		reactor:        r,
		queues:         queues,
		idgen:          wire.NewIDGenerator(),
		coordinator:    newCoordinator(recentHistoryCap, m),
		metrics:        m,
		defaultTimeout: defaultTimeout,
	}
}

// HandleControl implements reactor.Handler.
func (h *Handler) HandleControl(msg reactor.Control) {
	switch m := msg.(type) {
	case registerListener:
		var a = newAcceptor(m.fd, m.addr)
		var tok, err = h.reactor.Slab().Insert(a)
		if err != nil {
			log.WithField("error", err).Error("failed to register acceptor, slab full")
			unix.Close(m.fd)
			return
		}
		if err := h.reactor.Poll().Register(m.fd, tok, reactor.Interest{Readable: true}); err != nil {
			log.WithField("error", err).Error("failed to register acceptor with poller")
			h.reactor.Slab().Remove(tok)
			unix.Close(m.fd)
			return
		}
		log.WithField("addr", m.addr).Info("listening")

	case shutdown:
		h.shuttingDown = true
	}
}

// HandleReady implements reactor.Handler.
func (h *Handler) HandleReady(tok reactor.Token, ev reactor.Event) {
	var reg, ok = h.reactor.Slab().Get(tok)
	if !ok {
		return // stale token: registration already removed this tick
	}

	switch r := reg.(type) {
	case *acceptor:
		if h.shuttingDown {
			return // stop admitting new connections once shutdown has begun
		}
		h.acceptLoop(r)

	case *connection:
		if ev.Error || ev.HangUp {
			h.closeConnection(tok, "hangup or error")
			return
		}
		if ev.Readable {
			r.onReadable()
		}
		if ev.Writable {
			r.onWritable()
		}

	default:
		log.WithField("token", tok).Error("readiness event for unknown registration kind")
	}
}

// acceptLoop drains every pending connection on a ready acceptor, since
// epoll's level-triggered mode only guarantees one notification per
// readiness transition, not one per pending connection.
func (h *Handler) acceptLoop(a *acceptor) {
	for {
		var fd, err = acceptConn(a.fd)
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			log.WithField("error", err).Warn("accept failed")
			return
		}

		var c = newConnection(fd, h)
		var tok, serr = h.reactor.Slab().Insert(c)
		if serr != nil {
			log.WithField("error", serr).Warn("connection slab full, dropping new connection")
			unix.Close(fd)
			continue
		}
		c.token = tok
		if err := h.reactor.Poll().Register(fd, tok, reactor.Interest{Readable: true}); err != nil {
			log.WithField("error", err).Warn("failed to register connection with poller")
			h.reactor.Slab().Remove(tok)
			unix.Close(fd)
			continue
		}
		h.metrics.ConnAccepted()
	}
}

// closeConnection tears down the connection at tok: any deliveries it holds
// are immediately requeued (the cancellation leg of the delivery race),
// then its fd is deregistered and closed.
func (h *Handler) closeConnection(tok reactor.Token, reason string) {
	var reg, ok = h.reactor.Slab().Remove(tok)
	if !ok {
		return
	}
	var c, isConn = reg.(*connection)
	if !isConn {
		return
	}

	h.coordinator.cancelOwner(tok, h.reactor.Timers())
	h.reactor.Poll().Deregister(c.fd)
	c.Close()
	h.metrics.ConnClosed()
	log.WithField("reason", reason).Debug("connection closed")
}

// ShuttingDown reports whether a shutdown Control has been processed, which
// HandleReady consults to stop admitting new connections on any acceptor
// still registered while existing connections finish up.
func (h *Handler) ShuttingDown() bool { return h.shuttingDown }
