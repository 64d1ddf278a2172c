//go:build linux

package reactor

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Waker lets any goroutine interrupt a blocked epoll_wait, used so that
// Server.Notify (pushing a control message onto the reactor's notify queue)
// takes effect promptly instead of waiting out the rest of PollTimeout.
// Backed by a Linux eventfd, registered in the Poll like any other fd.
type Waker struct {
	fd int
}

// NewWaker creates an eventfd-backed Waker and registers it with p under
// tok, interested in readability.
func NewWaker(p *Poll, tok Token) (*Waker, error) {
	var fd, err = unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "eventfd")
	}
	var w = &Waker{fd: fd}
	if err := p.Register(fd, tok, Interest{Readable: true}); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return w, nil
}

// Wake causes a pending or future epoll_wait to return promptly.
func (w *Waker) Wake() error {
	var buf = [8]byte{0, 0, 0, 0, 0, 0, 0, 1}
	var _, err = unix.Write(w.fd, buf[:])
	if err != nil && err != unix.EAGAIN {
		return errors.Wrap(err, "eventfd write")
	}
	return nil
}

// Drain consumes the pending wake count so the fd stops reporting readable
// until the next Wake.
func (w *Waker) Drain() {
	var buf [8]byte
	for {
		var _, err = unix.Read(w.fd, buf[:])
		if err != nil {
			return
		}
	}
}

// Close releases the eventfd.
func (w *Waker) Close() error {
	return unix.Close(w.fd)
}

// FD implements Registration, letting the Waker reserve its own Slab slot
// so Insert can never hand its Token out to anything else.
func (w *Waker) FD() int { return w.fd }
