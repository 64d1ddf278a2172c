//go:build linux

package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/loopwire/queued/internal/metrics"
	"github.com/loopwire/queued/internal/reactor"
	"github.com/loopwire/queued/internal/task"
	"github.com/loopwire/queued/pkg/queue"
)

// ServerConfig bundles Server's construction parameters: the reactor.Config
// for its event loop plus the domain-level ones (listen address, default
// redelivery timeout, queue set, metrics, executor). Queues is optional;
// when nil, NewServer builds a private single-thread Set for this Server.
type ServerConfig struct {
	ListenAddr       string
	Reactor          reactor.Config
	DefaultTimeout   time.Duration
	RecentHistoryCap int
	Queues           queue.Set
	Metrics          *metrics.Collectors
	Executor         task.Executor
}

// Server is the broker façade: it owns a Reactor and its Handler, and runs
// the event loop under an internal/task.Group so callers get run-to-
// completion semantics and a single error from Wait, mirroring how the
// teacher's consumer.Service supervises its own background tasks.
type Server struct {
	cfg     ServerConfig
	reactor *reactor.Reactor
	handler *Handler
	group   *task.Group
	listenFD int
}

// NewServer builds a Server. It does not start listening until Serve is
// called.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Queues == nil {
		cfg.Queues = queue.NewSinglethread()
	}
	if cfg.Executor == nil {
		cfg.Executor = task.GoExecutor
	}
	if cfg.Reactor.SlabCapacity == 0 {
		cfg.Reactor = reactor.DefaultConfig()
	}

	var r, err = reactor.New(cfg.Reactor)
	if err != nil {
		return nil, errors.Wrap(err, "construct reactor")
	}
	var h = NewHandler(r, cfg.Queues, cfg.Metrics, cfg.DefaultTimeout, cfg.RecentHistoryCap)

	return &Server{cfg: cfg, reactor: r, handler: h}, nil
}

// Serve opens the listening socket, starts the reactor run loop under ctx,
// and returns once the loop has been launched — it does not block. Callers
// wait for termination via Wait.
func (s *Server) Serve(ctx context.Context) error {
	var fd, err = listen(s.cfg.ListenAddr)
	if err != nil {
		return errors.Wrap(err, "listen")
	}
	s.listenFD = fd

	s.group = task.NewGroup(ctx)
	var done = make(chan error, 1)
	s.cfg.Executor(func() {
		done <- s.reactor.Run(s.group.Context(), s.handler)
	})
	s.group.Queue("reactor", func() error { return <-done })

	if notifyErr := s.reactor.Notify(registerListener{fd: fd, addr: s.cfg.ListenAddr}); notifyErr != nil {
		return errors.Wrap(notifyErr, "register listener")
	}
	return nil
}

// Shutdown asks the reactor to stop and blocks until it has.
func (s *Server) Shutdown() error {
	if s.group == nil {
		return nil
	}
	_ = s.reactor.Notify(shutdown{})
	s.group.Cancel()
	var err = s.group.Wait()
	if cerr := s.reactor.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Wait blocks until the server's reactor goroutine has exited, returning
// its error if any.
func (s *Server) Wait() error {
	if s.group == nil {
		return nil
	}
	return s.group.Wait()
}

// Addr returns the socket's actual bound address, useful after listening on
// port 0 (as tests do) to discover the kernel-assigned port.
func (s *Server) Addr() (string, error) {
	var sa, err = unix.Getsockname(s.listenFD)
	if err != nil {
		return "", errors.Wrap(err, "getsockname")
	}
	var in4, ok = sa.(*unix.SockaddrInet4)
	if !ok {
		return "", errors.New("broker: unexpected socket address family")
	}
	return fmt.Sprintf("%d.%d.%d.%d:%d", in4.Addr[0], in4.Addr[1], in4.Addr[2], in4.Addr[3], in4.Port), nil
}
