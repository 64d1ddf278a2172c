//go:build linux

package reactor

import (
	"context"

	"github.com/pkg/errors"
)

// Control is an in-process message delivered from Server to Reactor through
// the notify queue — e.g. "register this listener" or "shut down" in the
// broker package's terms. The reactor package itself only ferries these;
// the Handler interprets them.
type Control interface{}

// ErrNotifyQueueFull is returned by Notify when the control channel's
// buffer is saturated, mirroring the original source's bounded notify
// channel: callers observe backpressure rather than blocking the caller's
// goroutine indefinitely.
var ErrNotifyQueueFull = errors.New("reactor: notify queue full")

// Handler is implemented by the broker package and reacts to readiness and
// control events, all invoked from the single goroutine running Reactor.Run
// — the same thread-confinement the original source's mio::Handler enjoyed.
type Handler interface {
	// HandleReady is called once per registration with pending readiness.
	HandleReady(tok Token, ev Event)
	// HandleControl is called once per drained control message, at most
	// MessagesPerTick times per loop iteration.
	HandleControl(msg Control)
}

// Reactor drives one epoll-based event loop: readiness polling, a bounded
// notify queue of Control messages, and a heap of armed redelivery timers,
// exactly the three event sources the original source's EventLoop selects
// across.
type Reactor struct {
	cfg     Config
	poll    *Poll
	waker   *Waker
	slab    *Slab
	timers  *Timers
	control chan Control

	wakerTok Token
}

// New builds a Reactor from cfg. The returned Reactor owns an epoll
// instance and an eventfd-backed waker until Close is called.
func New(cfg Config) (*Reactor, error) {
	var poll, err = NewPoll()
	if err != nil {
		return nil, err
	}
	var slab = NewSlab(cfg.SlabCapacity + 1) // +1 reserves the waker's own token
	var wakerTok = Token(cfg.SlabCapacity)   // outside the user-visible range

	var waker, werr = NewWaker(poll, wakerTok)
	if werr != nil {
		poll.Close()
		return nil, werr
	}
	slab.Reserve(wakerTok, waker)

	return &Reactor{
		cfg:      cfg,
		poll:     poll,
		waker:    waker,
		slab:     slab,
		timers:   NewTimers(cfg.TimerCapacity),
		control:  make(chan Control, cfg.NotifyQueueCapacity),
		wakerTok: wakerTok,
	}, nil
}

// Slab exposes the registration table so the broker's Handler can insert,
// look up, and remove Acceptors and Connections.
func (r *Reactor) Slab() *Slab { return r.slab }

// Poll exposes the epoll wrapper so the Handler can register/reregister/
// deregister file descriptors as connections are accepted and closed.
func (r *Reactor) Poll() *Poll { return r.poll }

// Timers exposes the timer queue so the Handler can arm and cancel
// redelivery timeouts.
func (r *Reactor) Timers() *Timers { return r.timers }

// Notify enqueues msg onto the control channel and wakes a blocked
// epoll_wait. It never blocks: at capacity it returns ErrNotifyQueueFull.
func (r *Reactor) Notify(msg Control) error {
	select {
	case r.control <- msg:
	default:
		return ErrNotifyQueueFull
	}
	return r.waker.Wake()
}

// Run drives the event loop until ctx is cancelled or an unrecoverable
// epoll error occurs. All calls into handler happen from this goroutine.
func (r *Reactor) Run(ctx context.Context, handler Handler) error {
	var events = make([]Event, 0, 256)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		var timeout, _ = r.timers.Next(r.cfg.PollTimeout)
		var timeoutMs = int(timeout.Milliseconds())
		if timeoutMs <= 0 && timeout > 0 {
			timeoutMs = 1
		}

		events = events[:0]
		var err error
		events, err = r.poll.Wait(events, timeoutMs)
		if err != nil {
			return err
		}

		for _, ev := range events {
			if ev.Token == r.wakerTok {
				r.waker.Drain()
				r.drainControl(handler)
				continue
			}
			handler.HandleReady(ev.Token, ev)
		}

		r.timers.Fire()
	}
}

func (r *Reactor) drainControl(handler Handler) {
	for i := 0; i < r.cfg.MessagesPerTick; i++ {
		select {
		case msg := <-r.control:
			handler.HandleControl(msg)
		default:
			return
		}
	}
}

// Close tears down every registered acceptor and connection still held in
// the Slab, then releases the epoll instance and waker fd. Run must have
// already returned (via ctx cancellation) before Close is called, so
// nothing is concurrently touching the Slab or Poll.
func (r *Reactor) Close() error {
	// The waker occupies a Slab slot too (reserved in New), but it's closed
	// explicitly below; drop it from the Slab first so CloseAll doesn't
	// double-close its eventfd.
	r.slab.Remove(r.wakerTok)

	var err = r.slab.CloseAll()
	if werr := r.waker.Close(); werr != nil && err == nil {
		err = werr
	}
	if perr := r.poll.Close(); perr != nil && err == nil {
		err = perr
	}
	return err
}
