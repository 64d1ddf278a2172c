//go:build linux

package broker

import "golang.org/x/sys/unix"

// acceptor is the Registration inserted into the reactor's Slab for a
// listening socket. Its readiness events mean "one or more connections are
// pending accept", handled in Handler.HandleReady by looping acceptConn
// until it returns EAGAIN.
type acceptor struct {
	fd   int
	addr string
}

func newAcceptor(fd int, addr string) *acceptor { return &acceptor{fd: fd, addr: addr} }

// FD implements reactor.Registration.
func (a *acceptor) FD() int { return a.fd }

// Close implements reactor.Closer, releasing the listening socket.
func (a *acceptor) Close() error { return unix.Close(a.fd) }
