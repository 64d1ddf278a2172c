//go:build linux

// Package broker implements the CORE message-queue broker: per-connection
// request dispatch (connection.go), the unconfirmed-delivery timeout/confirm
// race (coordinator.go), the reactor Handler tying dispatch to readiness
// events (handler.go), and the Server façade (server.go). It talks directly
// to raw non-blocking sockets rather than net.Conn/net.Listener, since
// registering those with our own epoll instance alongside the Go runtime's
// own netpoller would double-poll the same fd; this mirrors the original
// source's direct use of mio's raw TcpListener/TcpStream.
package broker

import (
	"net"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// listen opens a non-blocking, listening TCP socket bound to addr
// ("host:port"), returning its raw file descriptor.
func listen(addr string) (int, error) {
	var host, portStr, err = net.SplitHostPort(addr)
	if err != nil {
		return -1, errors.Wrap(err, "split host port")
	}
	var port, perr = strconv.Atoi(portStr)
	if perr != nil {
		return -1, errors.Wrap(perr, "parse port")
	}

	var fd int
	fd, err = unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, errors.Wrap(err, "socket")
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, errors.Wrap(err, "setsockopt reuseaddr")
	}
	// SO_REUSEPORT lets multiple shards bind the same listen address, each
	// with its own kernel-side accept queue feeding its own reactor.
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
		unix.Close(fd)
		return -1, errors.Wrap(err, "setsockopt reuseport")
	}

	var ip [4]byte
	if host != "" && host != "0.0.0.0" {
		var parsed = net.ParseIP(host)
		if parsed == nil {
			unix.Close(fd)
			return -1, errors.Errorf("invalid listen host %q", host)
		}
		copy(ip[:], parsed.To4())
	}

	var sa = &unix.SockaddrInet4{Port: port, Addr: ip}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, errors.Wrap(err, "bind")
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return -1, errors.Wrap(err, "listen")
	}
	return fd, nil
}

// acceptConn accepts a single pending connection on a listening fd,
// returning the new non-blocking connection fd. A nil error with fd < 0
// never happens; unix.EAGAIN is returned as-is so callers can distinguish
// "no more pending connections this tick" from a real failure.
func acceptConn(listenFD int) (int, error) {
	var fd, _, err = unix.Accept4(listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return -1, err
	}
	return fd, nil
}
